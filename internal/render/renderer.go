//go:build ebiten

package render

import (
	"github.com/hajimehoshi/ebiten/v2"

	"lifegpu/internal/device"
)

// FramePainter mirrors the device's presented frame into an ebiten image.
type FramePainter struct {
	w, h int
	img  *ebiten.Image
}

// NewFramePainter allocates a painter for a w*h pixel target.
func NewFramePainter(w, h int) *FramePainter {
	return &FramePainter{w: w, h: h, img: ebiten.NewImage(w, h)}
}

// Refresh captures the latest presented frame from dev.
func (fp *FramePainter) Refresh(dev device.Device) error {
	rgba, err := Capture(dev, fp.w, fp.h)
	if err != nil {
		return err
	}
	fp.img.WritePixels(rgba.Pix)
	return nil
}

// Blit draws the captured frame onto dst.
func (fp *FramePainter) Blit(dst *ebiten.Image) {
	dst.DrawImage(fp.img, nil)
}

// Size returns the dimensions of the underlying image.
func (fp *FramePainter) Size() (int, int) { return fp.w, fp.h }
