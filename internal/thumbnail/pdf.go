package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// PageRenderer rasterizes the first page of a PDF at a fixed DPI via an
// external pdftoppm process and re-encodes the result into the bounded
// JPEG box.
type PageRenderer struct {
	Pdftoppm string // pdftoppm binary, e.g. "pdftoppm"
	DPI      int
	Width    int
	Height   int
}

// Render implements Renderer.
func (r *PageRenderer) Render(ctx context.Context, src, dst string) error {
	workDir, err := os.MkdirTemp("", "pdfthumb-*")
	if err != nil {
		return fmt.Errorf("create pdf scratch dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	prefix := filepath.Join(workDir, "page")

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Pdftoppm,
		"-f", "1",
		"-singlefile",
		"-r", fmt.Sprint(r.DPI),
		"-jpeg",
		src,
		prefix,
	)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pdftoppm first page: %w (stderr: %s)", err, tail(stderr.String(), 512))
	}

	pagePath := prefix + ".jpg"
	img, err := imaging.Open(pagePath)
	if err != nil {
		return fmt.Errorf("decode rendered page %s: %w", pagePath, err)
	}

	thumb := imaging.Fit(img, r.Width, r.Height, imaging.Lanczos)
	if err := imaging.Save(thumb, dst, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("encode pdf thumbnail %s: %w", dst, err)
	}
	return nil
}
