package thumbnail

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cloudrift/cloudrift/internal/storage"
)

// Options configures the pipeline.
type Options struct {
	Width    int    // bounded box width
	Height   int    // bounded box height
	FFmpeg   string // ffmpeg binary for video frame grabs
	Pdftoppm string // pdftoppm binary for PDF page rendering
	PDFDPI   int
}

// DefaultOptions are the stock 400x400 box and tool names resolved from PATH.
func DefaultOptions() Options {
	return Options{Width: 400, Height: 400, FFmpeg: "ffmpeg", Pdftoppm: "pdftoppm", PDFDPI: 150}
}

// Pipeline derives one preview asset per finished file, writing it under
// the owner's thumbnail directory with a random name.
type Pipeline struct {
	ns    *storage.Namespace
	box   Options
	image Renderer
	video Renderer
	pdf   Renderer
}

// New creates a pipeline over the given namespace. Zero-valued options
// fall back to DefaultOptions.
func New(ns *storage.Namespace, opts Options) *Pipeline {
	def := DefaultOptions()
	if opts.Width <= 0 {
		opts.Width = def.Width
	}
	if opts.Height <= 0 {
		opts.Height = def.Height
	}
	if opts.FFmpeg == "" {
		opts.FFmpeg = def.FFmpeg
	}
	if opts.Pdftoppm == "" {
		opts.Pdftoppm = def.Pdftoppm
	}
	if opts.PDFDPI <= 0 {
		opts.PDFDPI = def.PDFDPI
	}

	return &Pipeline{
		ns:    ns,
		box:   opts,
		image: &ImageRenderer{Width: opts.Width, Height: opts.Height},
		video: &FrameGrabber{FFmpeg: opts.FFmpeg, Width: opts.Width},
		pdf:   &PageRenderer{Pdftoppm: opts.Pdftoppm, DPI: opts.PDFDPI, Width: opts.Width, Height: opts.Height},
	}
}

// Generate derives a preview for the file at src owned by userID and
// returns its public URL. Unsupported types return an empty URL and no
// error. Any failure wraps ErrGenerationFailed.
func (p *Pipeline) Generate(ctx context.Context, src string, userID int64) (string, error) {
	renderer := p.rendererFor(src)
	if renderer == nil {
		return "", nil
	}

	dir, err := p.ns.ThumbDir(userID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	name := "thumb_" + uuid.NewString() + ".jpg"
	dst := filepath.Join(dir, name)

	if err := renderer.Render(ctx, src, dst); err != nil {
		if m := storage.GetMetrics(); m != nil {
			m.RecordThumbnail("error")
		}
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	if m := storage.GetMetrics(); m != nil {
		m.RecordThumbnail("ok")
	}
	url := p.ns.ThumbURL(userID, name)
	log.Debug().Int64("user", userID).Str("src", filepath.Base(src)).Str("url", url).
		Msg("thumbnail generated")
	return url, nil
}

// rendererFor picks the media-family renderer for a path, or nil when the
// type has no preview.
func (p *Pipeline) rendererFor(src string) Renderer {
	ext := strings.ToLower(filepath.Ext(src))
	switch {
	case imageExtensions[ext]:
		return p.image
	case videoExtensions[ext]:
		return p.video
	case ext == ".pdf":
		return p.pdf
	default:
		return nil
	}
}
