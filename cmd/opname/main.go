// Command opname is the stock-opname field client: login, pick a draft,
// scan serials, photograph items with a watermark, and submit counts.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rekadana/opname/internal/config"
	"github.com/rekadana/opname/internal/errs"
	"github.com/rekadana/opname/internal/gateway"
	"github.com/rekadana/opname/internal/logging"
	"github.com/rekadana/opname/internal/session"
	"github.com/rekadana/opname/internal/tokenstore"
	"github.com/rekadana/opname/internal/workflow"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// app bundles the wired components handed to every subcommand.
type app struct {
	cfg  *config.Config
	log  *logging.AppLog
	sess *session.Manager
	wf   *workflow.Workflow
}

func usage() {
	fmt.Fprintf(os.Stderr, `opname field client
Usage:
  opname [-env file] <cmd> [args]

Commands:
  version
  login       -u <username> -p <password>
  logout
  whoami
  drafts
  items       -noref <id>
  progress    -noref <id>
  check       -noref <id> -sn <serial>
  conditions
  capture     [-label text]                (prints the final photo path)
  save        -noref <id> -item <id> -sn <serial> -condition <id> -location <loc> [-photo file]
  sendlog     -message <text>
  showlog
  clearlog
`)
	os.Exit(2)
}

// main dispatches subcommands over a session wired from the environment.
func main() {
	envFile := flag.String("env", "", "optional .env file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	if cmd == "version" {
		fmt.Printf("opname %s (%s)\n", version, buildDate)
		return
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fail(err)
	}
	logg := logging.Must(logging.New(cfg.Storage.LogFile))
	defer logg.Close()

	store, err := tokenstore.New(cfg.Storage.TokenFile)
	if err != nil {
		fail(err)
	}

	gw := gateway.New(cfg.API, logg.Logger)
	sess := session.NewManager(gw, store, logg.Logger)
	a := &app{cfg: cfg, log: logg, sess: sess, wf: workflow.New(sess, logg.Logger)}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch cmd {
	case "login":
		cmdLogin(ctx, a, args)
	case "logout":
		a.sess.Logout(ctx)
		fmt.Println("ok")
	case "whoami":
		cmdWhoami(ctx, a)
	case "drafts":
		cmdDrafts(ctx, a)
	case "items":
		cmdItems(ctx, a, args)
	case "progress":
		cmdProgress(ctx, a, args)
	case "check":
		cmdCheck(ctx, a, args)
	case "conditions":
		cmdConditions(ctx, a)
	case "capture":
		cmdCapture(ctx, a, args)
	case "save":
		cmdSave(ctx, a, args)
	case "sendlog":
		cmdSendLog(ctx, a, args)
	case "showlog":
		b, err := a.log.Read()
		if err != nil {
			fail(err)
		}
		_, _ = os.Stdout.Write(b)
	case "clearlog":
		if err := a.log.Clear(); err != nil {
			fail(err)
		}
		fmt.Println("ok")
	default:
		usage()
	}
}

// restore loads the persisted session and fails when nobody is signed in.
func restore(ctx context.Context, a *app) {
	a.sess.Bootstrap(ctx)
	if !a.sess.IsAuthenticated() {
		fail(fmt.Errorf("no active session (login first): %w", errs.ErrUnauthorized))
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, errs.UserMessage(err))
	os.Exit(1)
}
