package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rekadana/opname/internal/errs"
)

// Sysexits code an external capture command uses to signal a permission
// problem with the camera device.
const exitNoPerm = 77

// CommandCamera shells out to a configured capture command. Protocol: the
// command takes the photo, writes it somewhere readable, and prints the file
// path on stdout. A zero exit with empty output means the user cancelled.
type CommandCamera struct {
	CmdLine string
}

var _ Camera = (*CommandCamera)(nil)

// Capture invokes the external command and maps its outcome onto the camera
// error taxonomy.
func (c *CommandCamera) Capture(ctx context.Context) (RawPhoto, error) {
	if strings.TrimSpace(c.CmdLine) == "" {
		return RawPhoto{}, fmt.Errorf("no capture command configured: %w", errs.ErrCameraUnavailable)
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", c.CmdLine)
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return RawPhoto{}, errs.ErrCameraCancelled
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == exitNoPerm {
			return RawPhoto{}, errs.ErrCameraDenied
		}
		return RawPhoto{}, fmt.Errorf("%w: %v", errs.ErrCameraUnavailable, err)
	}

	path := strings.TrimSpace(string(out))
	if path == "" {
		return RawPhoto{}, errs.ErrCameraCancelled
	}
	if _, serr := os.Stat(path); serr != nil {
		return RawPhoto{}, fmt.Errorf("%w: capture output %q: %v", errs.ErrCameraUnavailable, path, serr)
	}
	return RawPhoto{Path: path, TakenAt: time.Now()}, nil
}
