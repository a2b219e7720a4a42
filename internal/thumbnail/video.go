package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// FrameGrabber extracts one video frame via an external ffmpeg process:
// the frame at a fixed one-second offset, scaled to the target width with
// the height following the aspect ratio.
type FrameGrabber struct {
	FFmpeg string // ffmpeg binary, e.g. "ffmpeg"
	Width  int
}

// Render implements Renderer. The source is copied to a scoped temporary
// file that is removed on every exit path, and the tool's stderr is
// captured for diagnostics.
func (r *FrameGrabber) Render(ctx context.Context, src, dst string) error {
	tmp, err := os.CreateTemp("", "video_*"+filepath.Ext(src))
	if err != nil {
		return fmt.Errorf("create scratch video file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", tmpPath).Msg("failed to remove scratch video file")
		}
	}()

	srcFile, err := os.Open(src)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("open video source: %w", err)
	}
	_, err = io.Copy(tmp, srcFile)
	srcFile.Close()
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("stage video source: %w", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.FFmpeg,
		"-ss", "00:00:01",
		"-i", tmpPath,
		"-vframes", "1",
		"-an",
		"-vf", fmt.Sprintf("scale=%d:-1", r.Width),
		"-qscale:v", "2",
		"-y",
		dst,
	)
	cmd.Stderr = &stderr

	// CommandContext kills the process when ctx is cancelled and Run
	// returns the failure, so an interrupted wait still surfaces as an
	// error instead of being swallowed.
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg frame grab: %w (stderr: %s)", err, tail(stderr.String(), 512))
	}

	info, err := os.Stat(dst)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("ffmpeg produced no output file %s", dst)
	}
	return nil
}

// tail returns at most n trailing bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
