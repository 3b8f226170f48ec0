// Package imageprep normalizes source images before they are sent to the
// enrichment service: RGB only, bounded size, JPEG encoded.
package imageprep

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// MaxSide is the longest side, in pixels, of a prepared image.
	MaxSide = 512
	// JPEGQuality is the encoder quality of prepared images.
	JPEGQuality = 85
)

// Prepared is a re-encoded image ready for embedding in a request.
type Prepared struct {
	JPEG   []byte
	Width  int
	Height int
	// SourceFormat is the decoder name of the original image, e.g. "png".
	SourceFormat string
}

// DataURL returns the image as a base64 data URL.
func (p Prepared) DataURL() string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(p.JPEG)
}

// Prepare decodes data, flattens any transparency onto white, shrinks it so
// the longest side is at most MaxSide and re-encodes it as JPEG.
func Prepare(data []byte) (Prepared, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Prepared{}, fmt.Errorf("imageprep: decode: %w", err)
	}
	b := src.Bounds()
	w, h := Fit(b.Dx(), b.Dy(), MaxSide)
	if w == 0 || h == 0 {
		return Prepared{}, fmt.Errorf("imageprep: empty image (%dx%d)", b.Dx(), b.Dy())
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return Prepared{}, fmt.Errorf("imageprep: encode: %w", err)
	}
	return Prepared{JPEG: buf.Bytes(), Width: w, Height: h, SourceFormat: format}, nil
}

// Fit scales (w, h) down to fit inside a max x max box, preserving aspect
// ratio. Images already inside the box are returned unchanged.
func Fit(w, h, max int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	if w <= max && h <= max {
		return w, h
	}
	if w >= h {
		nh := (h*max + w/2) / w
		if nh < 1 {
			nh = 1
		}
		return max, nh
	}
	nw := (w*max + h/2) / h
	if nw < 1 {
		nw = 1
	}
	return nw, max
}
