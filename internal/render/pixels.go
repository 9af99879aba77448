package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/draw"

	"lifegpu/internal/device"
)

// toByte converts a normalized channel to 8 bits.
func toByte(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(float64(v) * 255))
}

// ToRGBA converts a normalized color.
func ToRGBA(c [4]float32) color.RGBA {
	return color.RGBA{R: toByte(c[0]), G: toByte(c[1]), B: toByte(c[2]), A: toByte(c[3])}
}

// Rasterize paints a presented frame into dst. Clip space y points up, so
// clip (-1,-1) is the bottom-left pixel. Triangles are filled by sampling
// pixel centers; zero-area triangles produce nothing.
func Rasterize(dst *image.RGBA, f device.Frame) {
	b := dst.Bounds()
	fillRGBA(dst, ToRGBA(f.Clear))
	w, h := float32(b.Dx()), float32(b.Dy())
	toPixel := func(v device.Vertex) [2]float32 {
		return [2]float32{(v.X + 1) / 2 * w, (1 - v.Y) / 2 * h}
	}
	for i := 0; i+2 < len(f.Vertices); i += 3 {
		a, bb, c := toPixel(f.Vertices[i]), toPixel(f.Vertices[i+1]), toPixel(f.Vertices[i+2])
		fillTriangle(dst, a, bb, c, ToRGBA(f.Vertices[i].Color))
	}
}

func fillRGBA(dst *image.RGBA, c color.RGBA) {
	px := []byte{c.R, c.G, c.B, c.A}
	b := dst.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := dst.Pix[dst.PixOffset(b.Min.X, y):dst.PixOffset(b.Max.X, y)]
		for i := 0; i < len(row); i += 4 {
			copy(row[i:i+4], px)
		}
	}
}

func edge(a, b, p [2]float32) float32 {
	return (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
}

func fillTriangle(dst *image.RGBA, a, b, c [2]float32, col color.RGBA) {
	area := edge(a, b, c)
	if area == 0 {
		return
	}
	bounds := dst.Bounds()
	minX := max(int(math.Floor(float64(min(a[0], b[0], c[0])))), 0)
	maxX := min(int(math.Ceil(float64(max(a[0], b[0], c[0])))), bounds.Dx())
	minY := max(int(math.Floor(float64(min(a[1], b[1], c[1])))), 0)
	maxY := min(int(math.Ceil(float64(max(a[1], b[1], c[1])))), bounds.Dy())
	for y := minY; y < maxY; y++ {
		for x := minX; x < maxX; x++ {
			p := [2]float32{float32(x) + 0.5, float32(y) + 0.5}
			w0, w1, w2 := edge(b, c, p), edge(c, a, p), edge(a, b, p)
			if area < 0 {
				w0, w1, w2 = -w0, -w1, -w2
			}
			if w0 >= 0 && w1 >= 0 && w2 >= 0 {
				dst.SetRGBA(bounds.Min.X+x, bounds.Min.Y+y, col)
			}
		}
	}
}

// Capture returns the image last presented by dev at w*h pixels. Devices that
// keep frames as triangles are rasterized; pixel targets are scaled.
func Capture(dev device.Device, w, h int) (*image.RGBA, error) {
	switch src := dev.(type) {
	case device.ImageSource:
		img, err := src.Image()
		if err != nil {
			return nil, err
		}
		if img.Bounds().Dx() == w && img.Bounds().Dy() == h {
			return img, nil
		}
		return Resize(img, w, h), nil
	case device.FrameSource:
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		Rasterize(img, src.Frame())
		return img, nil
	}
	return nil, fmt.Errorf("render: device %s cannot be captured", dev.Name())
}

// Resize scales src to w*h with nearest-neighbour sampling so cell edges stay
// sharp.
func Resize(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// WritePNG encodes img.
func WritePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}
