// Package capture drives the photo-capture-and-watermark pipeline: camera
// capture, an off-thread composite render of photo plus watermark text, and
// a raw-photo fallback when the composite fails.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rekadana/opname/internal/errs"
	"github.com/rekadana/opname/internal/model"
)

// State tracks one capture cycle.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateRendering
	StateReady
	StateFailedFallback
)

func (s State) String() string {
	switch s {
	case StateCapturing:
		return "capturing"
	case StateRendering:
		return "rendering"
	case StateReady:
		return "ready"
	case StateFailedFallback:
		return "failed-fallback"
	default:
		return "idle"
	}
}

// RawPhoto is the unprocessed camera output.
type RawPhoto struct {
	Path    string
	TakenAt time.Time
}

// Camera produces a raw photo. Implementations report user cancellation as
// ErrCameraCancelled and permission problems as ErrCameraDenied.
type Camera interface {
	Capture(ctx context.Context) (RawPhoto, error)
}

// Compositor renders the watermarked derivative and returns its path.
type Compositor interface {
	Render(ctx context.Context, rawPath, label, timestamp string) (string, error)
}

// timestampLayout matches the capture-time label burned into the watermark.
const timestampLayout = "02/01/2006 15:04:05"

// Pipeline runs at most one composite render at a time. A new Start preempts
// any pending render: its eventual resolution is discarded via the generation
// counter, so exactly one terminal callback fires per surviving cycle.
type Pipeline struct {
	camera Camera
	comp   Compositor
	settle time.Duration
	label  string
	log    *zap.Logger

	onResult func(model.CapturedPhoto)

	mu     sync.Mutex
	state  State
	gen    uint64
	cancel context.CancelFunc
}

// NewPipeline constructs a pipeline. onResult receives exactly one terminal
// photo per capture cycle that reaches the render stage.
func NewPipeline(camera Camera, comp Compositor, settle time.Duration, label string, logger *zap.Logger, onResult func(model.CapturedPhoto)) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		camera:   camera,
		comp:     comp,
		settle:   settle,
		label:    label,
		log:      logger.Named("capture"),
		onResult: onResult,
	}
}

// Start runs one capture cycle. Camera cancellation returns nil without a
// callback; permission and hardware failures return an error without a
// callback. After a successful capture the composite render is scheduled and
// Start returns; the terminal callback fires asynchronously.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	p.gen++
	myGen := p.gen
	if p.cancel != nil {
		p.cancel()
	}
	renderCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.state = StateCapturing
	p.mu.Unlock()

	raw, err := p.camera.Capture(ctx)
	if err != nil {
		p.toIdle(myGen)
		if errors.Is(err, errs.ErrCameraCancelled) {
			p.log.Info("capture cancelled by user")
			return nil
		}
		p.log.Error("camera capture", zap.Error(err))
		return fmt.Errorf("capture: %w", err)
	}

	// The composite must not run before the raw image is confirmed decodable;
	// compositing an unreadable frame produces a blank result.
	if err := verifyDecodable(raw.Path); err != nil {
		p.toIdle(myGen)
		p.log.Error("raw photo not decodable", zap.String("path", raw.Path), zap.Error(err))
		return fmt.Errorf("capture: %w", err)
	}

	p.mu.Lock()
	if myGen != p.gen {
		// Preempted between capture and render scheduling.
		p.mu.Unlock()
		return nil
	}
	p.state = StateRendering
	p.mu.Unlock()

	go p.renderCycle(renderCtx, myGen, raw)
	return nil
}

// Cancel discards any pending render without firing a callback.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.state = StateIdle
}

// State returns the current cycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// renderCycle waits the settle delay, renders the composite, and delivers the
// terminal photo unless a newer cycle took over.
func (p *Pipeline) renderCycle(ctx context.Context, gen uint64, raw RawPhoto) {
	select {
	case <-time.After(p.settle):
	case <-ctx.Done():
		return
	}
	if p.stale(gen) {
		return
	}

	photo := model.CapturedPhoto{RawPath: raw.Path, TakenAt: raw.TakenAt}
	ts := raw.TakenAt.Format(timestampLayout)

	finalPath, err := p.comp.Render(ctx, raw.Path, p.label, ts)
	switch {
	case err != nil:
		photo.FinalPath = raw.Path
		photo.Fallback = true
		photo.Reason = err.Error()
		p.log.Warn("composite failed, using raw photo", zap.Error(err))
	case !isLocalFile(finalPath):
		photo.FinalPath = raw.Path
		photo.Fallback = true
		photo.Reason = fmt.Sprintf("composite produced invalid reference %q", finalPath)
		p.log.Warn("composite reference invalid, using raw photo", zap.String("ref", finalPath))
	default:
		photo.FinalPath = finalPath
	}

	p.deliver(gen, photo)
}

// deliver fires the terminal callback if gen is still the active cycle.
func (p *Pipeline) deliver(gen uint64, photo model.CapturedPhoto) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		p.log.Info("stale composite discarded")
		return
	}
	if photo.Fallback {
		p.state = StateFailedFallback
	} else {
		p.state = StateReady
	}
	cb := p.onResult
	p.mu.Unlock()

	if cb != nil {
		cb(photo)
	}
}

func (p *Pipeline) stale(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return gen != p.gen
}

func (p *Pipeline) toIdle(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen == p.gen {
		p.state = StateIdle
	}
}

// verifyDecodable is the image-loaded gate: the raw file must parse as an
// image header before a composite is attempted.
func verifyDecodable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open raw photo: %w", err)
	}
	defer f.Close()
	if _, _, err := image.DecodeConfig(f); err != nil {
		return fmt.Errorf("decode raw photo: %w", err)
	}
	return nil
}

func isLocalFile(path string) bool {
	if path == "" {
		return false
	}
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}
