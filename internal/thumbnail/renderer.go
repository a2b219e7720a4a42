// Package thumbnail derives preview assets from finished files. Dispatch
// is by file extension; each media family has its own Renderer, and a
// generation failure never escalates past this package's boundary.
package thumbnail

import (
	"context"
	"errors"
)

// ErrGenerationFailed marks any thumbnail generation failure. Callers at
// the merge boundary log it and keep the file record without a preview.
var ErrGenerationFailed = errors.New("thumbnail generation failed")

// Renderer produces one preview file at dst from the source at src.
// dst is always a JPEG path chosen by the pipeline.
type Renderer interface {
	Render(ctx context.Context, src, dst string) error
}

// imageExtensions, videoExtensions: families handled by the resize and
// frame-grab renderers. Document types other than PDF produce no preview.
var (
	imageExtensions = map[string]bool{
		".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true,
	}
	videoExtensions = map[string]bool{
		".mp4": true, ".mov": true, ".avi": true, ".mkv": true,
	}
)
