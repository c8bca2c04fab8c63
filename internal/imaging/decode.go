// Package imaging turns encoded tile bytes into RGBA pixel buffers ready
// for GPU upload. Decoding happens on fetch workers so the render thread
// only ever pays for the upload itself.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"

	_ "image/jpeg" // tile servers occasionally serve JPEG despite the .png URL
	_ "image/png"
)

// Decode parses encoded tile bytes and normalizes them into an *image.RGBA
// anchored at the origin.
func Decode(data []byte) (*image.RGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode tile: %w", err)
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba, nil
}
