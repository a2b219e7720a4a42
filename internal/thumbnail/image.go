package thumbnail

import (
	"context"
	"fmt"

	"github.com/disintegration/imaging"
)

// ImageRenderer resizes an image into a bounded box, preserving aspect
// ratio, and re-encodes it as JPEG.
type ImageRenderer struct {
	Width  int
	Height int
}

// Render implements Renderer.
func (r *ImageRenderer) Render(_ context.Context, src, dst string) error {
	img, err := imaging.Open(src)
	if err != nil {
		return fmt.Errorf("decode image %s: %w", src, err)
	}

	// Fit scales down only; a source smaller than the box keeps its size.
	thumb := imaging.Fit(img, r.Width, r.Height, imaging.Lanczos)

	if err := imaging.Save(thumb, dst, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("encode thumbnail %s: %w", dst, err)
	}
	return nil
}
