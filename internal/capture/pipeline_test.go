package capture

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rekadana/opname/internal/errs"
	"github.com/rekadana/opname/internal/model"
)

// writePNG creates a small decodable photo file.
func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 15), G: uint8(y * 20), A: 0xff})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", name, err)
	}
	return path
}

type fakeCamera struct {
	photo RawPhoto
	err   error
}

func (f *fakeCamera) Capture(context.Context) (RawPhoto, error) { return f.photo, f.err }

// queueCamera returns a different photo per capture.
type queueCamera struct {
	mu     sync.Mutex
	photos []RawPhoto
}

func (q *queueCamera) Capture(context.Context) (RawPhoto, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p := q.photos[0]
	if len(q.photos) > 1 {
		q.photos = q.photos[1:]
	}
	return p, nil
}

type compCall struct {
	raw     string
	release chan struct{}
	result  string
	err     error
}

// fakeComp parks every Render call until the test releases it, so resolution
// order is fully controlled.
type fakeComp struct {
	entered chan *compCall
}

func newFakeComp() *fakeComp { return &fakeComp{entered: make(chan *compCall, 4)} }

func (f *fakeComp) Render(_ context.Context, rawPath, _, _ string) (string, error) {
	c := &compCall{raw: rawPath, release: make(chan struct{})}
	f.entered <- c
	<-c.release
	return c.result, c.err
}

// instantComp resolves immediately.
type instantComp struct {
	result string
	err    error
}

func (f *instantComp) Render(context.Context, string, string, string) (string, error) {
	return f.result, f.err
}

func collect(t *testing.T) (func(model.CapturedPhoto), chan model.CapturedPhoto) {
	t.Helper()
	ch := make(chan model.CapturedPhoto, 4)
	return func(p model.CapturedPhoto) { ch <- p }, ch
}

func waitResult(t *testing.T, ch chan model.CapturedPhoto) model.CapturedPhoto {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no terminal callback within 2s")
		return model.CapturedPhoto{}
	}
}

func assertNoResult(t *testing.T, ch chan model.CapturedPhoto) {
	t.Helper()
	select {
	case p := <-ch:
		t.Fatalf("unexpected callback: %+v", p)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestCompositeSuccessDeliversFinalReference(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	raw := writePNG(t, dir, "raw.png")
	final := writePNG(t, dir, "final.png")

	cb, results := collect(t)
	p := NewPipeline(
		&fakeCamera{photo: RawPhoto{Path: raw, TakenAt: time.Now()}},
		&instantComp{result: final},
		0, "Opname", nil, cb,
	)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	got := waitResult(t, results)
	if got.FinalPath != final {
		t.Fatalf("FinalPath = %q, want the composite %q", got.FinalPath, final)
	}
	if got.Fallback || got.Reason != "" {
		t.Fatalf("unexpected fallback: %+v", got)
	}
	assertNoResult(t, results)
	if p.State() != StateReady {
		t.Fatalf("state = %v", p.State())
	}
}

func TestCompositeFailureFallsBackToRaw(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	raw := writePNG(t, dir, "raw.png")

	cb, results := collect(t)
	p := NewPipeline(
		&fakeCamera{photo: RawPhoto{Path: raw, TakenAt: time.Now()}},
		&instantComp{err: context.DeadlineExceeded},
		0, "Opname", nil, cb,
	)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	got := waitResult(t, results)
	if got.FinalPath != raw {
		t.Fatalf("FinalPath = %q, want the raw photo %q", got.FinalPath, raw)
	}
	if !got.Fallback || got.Reason == "" {
		t.Fatalf("fallback must be marked with a reason: %+v", got)
	}
	assertNoResult(t, results)
	if p.State() != StateFailedFallback {
		t.Fatalf("state = %v", p.State())
	}
}

func TestInvalidCompositeReferenceFallsBack(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	raw := writePNG(t, dir, "raw.png")

	cb, results := collect(t)
	p := NewPipeline(
		&fakeCamera{photo: RawPhoto{Path: raw, TakenAt: time.Now()}},
		&instantComp{result: filepath.Join(dir, "does-not-exist.jpg")},
		0, "Opname", nil, cb,
	)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	got := waitResult(t, results)
	if got.FinalPath != raw || !got.Fallback {
		t.Fatalf("want raw fallback on invalid reference, got %+v", got)
	}
}

func TestStaleCompositeDiscarded(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	raw1 := writePNG(t, dir, "raw1.png")
	raw2 := writePNG(t, dir, "raw2.png")
	final1 := writePNG(t, dir, "final1.png")
	final2 := writePNG(t, dir, "final2.png")

	comp := newFakeComp()
	cb, results := collect(t)
	cam := &queueCamera{photos: []RawPhoto{
		{Path: raw1, TakenAt: time.Now()},
		{Path: raw2, TakenAt: time.Now()},
	}}
	p := NewPipeline(cam, comp, 0, "Opname", nil, cb)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	c1 := <-comp.entered

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	c2 := <-comp.entered

	// Resolve out of order: the newer cycle first, then the stale one.
	c2.result = final2
	close(c2.release)
	got := waitResult(t, results)
	if got.FinalPath != final2 || got.RawPath != raw2 {
		t.Fatalf("terminal result = %+v, want the second cycle's composite", got)
	}

	c1.result = final1
	close(c1.release)
	assertNoResult(t, results)
}

func TestCancelSuppressesCallback(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	raw := writePNG(t, dir, "raw.png")
	final := writePNG(t, dir, "final.png")

	comp := newFakeComp()
	cb, results := collect(t)
	p := NewPipeline(
		&fakeCamera{photo: RawPhoto{Path: raw, TakenAt: time.Now()}},
		comp, 0, "Opname", nil, cb,
	)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c := <-comp.entered
	p.Cancel()
	c.result = final
	close(c.release)

	assertNoResult(t, results)
	if p.State() != StateIdle {
		t.Fatalf("state = %v, want idle after cancel", p.State())
	}
}

func TestUserCancelledCaptureIsSilent(t *testing.T) {
	t.Parallel()
	cb, results := collect(t)
	p := NewPipeline(&fakeCamera{err: errs.ErrCameraCancelled}, &instantComp{}, 0, "Opname", nil, cb)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("user cancellation must not error: %v", err)
	}
	assertNoResult(t, results)
	if p.State() != StateIdle {
		t.Fatalf("state = %v", p.State())
	}
}

func TestPermissionDeniedSurfaces(t *testing.T) {
	t.Parallel()
	cb, results := collect(t)
	p := NewPipeline(&fakeCamera{err: errs.ErrCameraDenied}, &instantComp{}, 0, "Opname", nil, cb)

	err := p.Start(context.Background())
	if err == nil {
		t.Fatal("want error on permission denial")
	}
	assertNoResult(t, results)
}

func TestUndecodableRawPhotoBlocksRender(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	bad := filepath.Join(dir, "garbage.jpg")
	if err := os.WriteFile(bad, []byte("not an image"), 0o600); err != nil {
		t.Fatal(err)
	}

	cb, results := collect(t)
	p := NewPipeline(
		&fakeCamera{photo: RawPhoto{Path: bad, TakenAt: time.Now()}},
		&instantComp{}, 0, "Opname", nil, cb,
	)

	if err := p.Start(context.Background()); err == nil {
		t.Fatal("want error when the raw photo cannot be decoded")
	}
	assertNoResult(t, results)
}
