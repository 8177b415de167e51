package capture

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png" // raw photos may come in as PNG
	"os"
	"path/filepath"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const jpegQuality = 90

// WatermarkCompositor burns the label and capture timestamp into the photo
// and writes the result as a JPEG in OutDir.
type WatermarkCompositor struct {
	OutDir string
}

var _ Compositor = (*WatermarkCompositor)(nil)

// Render decodes the raw photo, draws the watermark block bottom-left, and
// returns the path of the composited file.
func (w *WatermarkCompositor) Render(ctx context.Context, rawPath, label, timestamp string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.Open(rawPath)
	if err != nil {
		return "", fmt.Errorf("open raw photo: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("decode raw photo: %w", err)
	}

	bounds := src.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, src, bounds.Min, draw.Src)

	face := basicfont.Face7x13
	lineHeight := face.Metrics().Height.Ceil() + 4
	x := bounds.Min.X + 20
	y := bounds.Max.Y - 20 - lineHeight

	drawLine(canvas, face, x, y, label)
	drawLine(canvas, face, x, y+lineHeight, timestamp)

	id, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("composite file name: %w", err)
	}
	outPath := filepath.Join(w.OutDir, fmt.Sprintf("opname_%s.jpg", id))

	out, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("create composite file: %w", err)
	}
	defer out.Close()

	if err := jpeg.Encode(out, canvas, &jpeg.Options{Quality: jpegQuality}); err != nil {
		_ = os.Remove(outPath)
		return "", fmt.Errorf("encode composite: %w", err)
	}
	return outPath, nil
}

// drawLine draws one white text line with a thin shadow so the watermark
// stays readable on bright photos.
func drawLine(dst *image.RGBA, face font.Face, x, y int, text string) {
	shadow := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.RGBA{A: 0xb0}),
		Face: face,
		Dot:  fixed.P(x+1, y+1),
	}
	shadow.DrawString(text)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
