package thumbnail

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudrift/cloudrift/internal/storage"
)

func newTestPipeline(t *testing.T, opts Options) (*Pipeline, *storage.Namespace) {
	t.Helper()
	root := t.TempDir()
	ns := storage.NewNamespace(
		filepath.Join(root, "upload"),
		filepath.Join(root, "temp"),
		"http://127.0.0.1:8080",
	)
	return New(ns, opts), ns
}

// writeTestPNG writes a solid-color PNG of the given dimensions.
func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestGenerateImageThumbnail(t *testing.T) {
	pipeline, ns := newTestPipeline(t, Options{})

	src := filepath.Join(t.TempDir(), "big.png")
	writeTestPNG(t, src, 1200, 800)

	url, err := pipeline.Generate(context.Background(), src, 5)
	require.NoError(t, err)
	require.NotEmpty(t, url)
	assert.True(t, strings.HasPrefix(url, "http://127.0.0.1:8080/thumb/5/thumb_"))
	assert.True(t, strings.HasSuffix(url, ".jpg"))

	// The derived file exists in the user's thumbnail directory and fits
	// the bounded box.
	dir, err := ns.ThumbDir(5)
	require.NoError(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	thumb, err := imaging.Open(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	bounds := thumb.Bounds()
	assert.LessOrEqual(t, bounds.Dx(), 400)
	assert.LessOrEqual(t, bounds.Dy(), 400)
	// Aspect ratio preserved: 1200x800 -> 400x266.
	assert.Equal(t, 400, bounds.Dx())
}

func TestGenerateUnsupportedTypeIsNoop(t *testing.T) {
	pipeline, ns := newTestPipeline(t, Options{})

	src := filepath.Join(t.TempDir(), "notes.docx")
	require.NoError(t, os.WriteFile(src, []byte("not really a doc"), 0o644))

	url, err := pipeline.Generate(context.Background(), src, 5)
	require.NoError(t, err)
	assert.Empty(t, url)

	dir, err := ns.ThumbDir(5)
	require.NoError(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGenerateCorruptImageFails(t *testing.T) {
	pipeline, _ := newTestPipeline(t, Options{})

	src := filepath.Join(t.TempDir(), "broken.jpg")
	require.NoError(t, os.WriteFile(src, []byte("not an image"), 0o644))

	_, err := pipeline.Generate(context.Background(), src, 5)
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestGenerateVideoToolMissing(t *testing.T) {
	pipeline, _ := newTestPipeline(t, Options{FFmpeg: "/nonexistent/ffmpeg"})

	src := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(src, []byte("fake video bytes"), 0o644))

	_, err := pipeline.Generate(context.Background(), src, 5)
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestGenerateVideoToolExitsNonZero(t *testing.T) {
	pipeline, _ := newTestPipeline(t, Options{FFmpeg: "false"})

	src := filepath.Join(t.TempDir(), "clip.mkv")
	require.NoError(t, os.WriteFile(src, []byte("fake video bytes"), 0o644))

	_, err := pipeline.Generate(context.Background(), src, 5)
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

// stubFrameGrabber simulates a successful external tool run by writing a
// byte to the destination given as the last argument.
func writeStubTool(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stub-ffmpeg")
	script := "#!/bin/sh\nfor last; do :; done\nprintf 'frame' > \"$last\"\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestGenerateVideoWithStubTool(t *testing.T) {
	pipeline, ns := newTestPipeline(t, Options{FFmpeg: writeStubTool(t)})

	src := filepath.Join(t.TempDir(), "clip.mov")
	require.NoError(t, os.WriteFile(src, []byte("fake video bytes"), 0o644))

	url, err := pipeline.Generate(context.Background(), src, 9)
	require.NoError(t, err)
	assert.NotEmpty(t, url)

	dir, err := ns.ThumbDir(9)
	require.NoError(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestGeneratePDFToolMissing(t *testing.T) {
	pipeline, _ := newTestPipeline(t, Options{Pdftoppm: "/nonexistent/pdftoppm"})

	src := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF-1.4 fake"), 0o644))

	_, err := pipeline.Generate(context.Background(), src, 5)
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestGenerateCancelledContext(t *testing.T) {
	// A cancelled context aborts the external process path with an error
	// rather than hanging or being silently ignored.
	pipeline, _ := newTestPipeline(t, Options{FFmpeg: "sleep"})

	src := filepath.Join(t.TempDir(), "clip.avi")
	require.NoError(t, os.WriteFile(src, []byte("fake"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pipeline.Generate(ctx, src, 5)
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestRendererDispatch(t *testing.T) {
	pipeline, _ := newTestPipeline(t, Options{})

	tests := []struct {
		path string
		want Renderer
	}{
		{"a.JPG", pipeline.image},
		{"a.png", pipeline.image},
		{"a.mp4", pipeline.video},
		{"a.MOV", pipeline.video},
		{"a.pdf", pipeline.pdf},
		{"a.docx", nil},
		{"a", nil},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, pipeline.rendererFor(tt.path))
		})
	}
}
