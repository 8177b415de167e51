package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rekadana/opname/internal/capture"
	"github.com/rekadana/opname/internal/model"
	"github.com/rekadana/opname/internal/workflow"
)

// cmdLogin authenticates and persists the issued token.
func cmdLogin(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	u := fs.String("u", "", "username")
	p := fs.String("p", "", "password")
	_ = fs.Parse(args)
	if *u == "" || *p == "" {
		fmt.Fprintln(os.Stderr, "need -u and -p")
		os.Exit(1)
	}
	if err := a.sess.Login(ctx, *u, *p); err != nil {
		fail(err)
	}
	fmt.Println("ok")
}

func cmdWhoami(ctx context.Context, a *app) {
	restore(ctx, a)
	printJSON(a.sess.User())
}

// cmdDrafts lists draft sessions as "<noref> | <date>   <percent>" rows.
func cmdDrafts(ctx context.Context, a *app) {
	restore(ctx, a)
	rows, err := a.wf.DraftRows(ctx)
	if err != nil {
		fail(err)
	}
	for _, r := range rows {
		fmt.Printf("%-40s %s\n", r.Label, r.Right)
	}
}

func cmdItems(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("items", flag.ExitOnError)
	noref := fs.String("noref", "", "draft reference id")
	_ = fs.Parse(args)
	if *noref == "" {
		fmt.Fprintln(os.Stderr, "need -noref")
		os.Exit(1)
	}

	restore(ctx, a)
	var out any
	err := a.sess.WithValidToken(ctx, func(ctx context.Context, _ string) error {
		res, ferr := a.sess.FetchItems(ctx, *noref)
		out = res
		return ferr
	})
	if err != nil {
		fail(err)
	}
	printJSON(out)
}

func cmdProgress(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("progress", flag.ExitOnError)
	noref := fs.String("noref", "", "draft reference id")
	_ = fs.Parse(args)
	if *noref == "" {
		fmt.Fprintln(os.Stderr, "need -noref")
		os.Exit(1)
	}

	restore(ctx, a)
	draft, updated, err := a.wf.ProgressSummary(ctx, *noref)
	if err != nil {
		fail(err)
	}
	fmt.Printf("counted %d of %d\n", updated, draft)
}

// cmdCheck resolves a scanned serial within a draft; "not found" is reported
// as a notice, not a crash.
func cmdCheck(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	noref := fs.String("noref", "", "draft reference id")
	sn := fs.String("sn", "", "serial number or asset tag")
	_ = fs.Parse(args)

	restore(ctx, a)
	item, err := a.wf.LookupItem(ctx, *noref, strings.TrimSpace(*sn))
	if err != nil {
		fail(err)
	}
	printJSON(item)
}

func cmdConditions(ctx context.Context, a *app) {
	restore(ctx, a)
	codes, err := a.wf.Conditions(ctx)
	if err != nil {
		fail(err)
	}
	printJSON(codes)
}

// cmdCapture runs one capture cycle and prints the terminal photo reference.
func cmdCapture(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("capture", flag.ExitOnError)
	label := fs.String("label", a.cfg.Capture.Watermark, "watermark label")
	_ = fs.Parse(args)

	done := make(chan model.CapturedPhoto, 1)
	pipe := capture.NewPipeline(
		&capture.CommandCamera{CmdLine: a.cfg.Capture.CameraCmd},
		&capture.WatermarkCompositor{OutDir: a.cfg.Capture.OutputDir},
		a.cfg.Capture.SettleDelay,
		*label,
		a.log.Logger,
		func(p model.CapturedPhoto) { done <- p },
	)

	if err := pipe.Start(ctx); err != nil {
		fail(err)
	}
	if pipe.State() == capture.StateIdle {
		fmt.Println("cancelled")
		return
	}

	select {
	case photo := <-done:
		printJSON(photo)
	case <-time.After(time.Minute):
		pipe.Cancel()
		fail(fmt.Errorf("capture timed out"))
	}
}

// cmdSave submits one counted item. The photo flag takes a capture result
// path; the payload travels base64-encoded.
func cmdSave(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("save", flag.ExitOnError)
	noref := fs.String("noref", "", "draft reference id")
	item := fs.String("item", "", "resolved item id")
	sn := fs.String("sn", "", "serial number or asset tag")
	condition := fs.String("condition", "", "condition code id")
	location := fs.String("location", "", "item location")
	photo := fs.String("photo", "", "path to the captured photo (optional)")
	_ = fs.Parse(args)

	restore(ctx, a)

	payload, err := workflow.EncodePhoto(*photo)
	if err != nil {
		fail(err)
	}
	req := model.SaveItemRequest{
		NoRef:       *noref,
		ItemID:      *item,
		Serial:      *sn,
		ConditionID: *condition,
		Location:    *location,
		PhotoBase64: payload,
	}
	if err := a.wf.SubmitCount(ctx, req); err != nil {
		fail(err)
	}
	fmt.Println("ok")
}

// cmdSendLog uploads the application log with a user message attached.
func cmdSendLog(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("sendlog", flag.ExitOnError)
	message := fs.String("message", "", "message for the support team")
	_ = fs.Parse(args)
	if *message == "" {
		fmt.Fprintln(os.Stderr, "need -message")
		os.Exit(1)
	}

	restore(ctx, a)
	err := a.sess.WithValidToken(ctx, func(ctx context.Context, _ string) error {
		return a.sess.SendHelpLog(ctx, *message, a.log.Path())
	})
	if err != nil {
		fail(err)
	}
	fmt.Println("ok")
}
