package engine

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"os/exec"

	"streamvision/pkg/models"
)

// FrameDecoder extracts a single representative decoded frame from a
// segment file. The default implementation shells to ffmpeg — segments
// of the streaming container format are short and not reliably
// seekable, so the first frame is acceptably representative rather than
// any particular keyframe.
type FrameDecoder struct {
	ffmpegPath string
}

// NewFrameDecoder constructs a decoder. An empty ffmpegPath resolves to
// "ffmpeg" on PATH.
func NewFrameDecoder(ffmpegPath string) *FrameDecoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FrameDecoder{ffmpegPath: ffmpegPath}
}

// DecodeFrame opens segmentPath and returns its first decoded frame as
// RGB. A missing segment file surfaces as ErrSegmentMissing; a segment
// that exists but can't be turned into a frame (ffmpeg failure,
// truncated output, corrupt JPEG) surfaces as ErrFrameDecodeFailed, so
// the worker pool can tell a vanished file from a broken one.
func (d *FrameDecoder) DecodeFrame(ctx context.Context, segmentPath string) (image.Image, error) {
	if _, err := os.Stat(segmentPath); err != nil {
		return nil, models.NewAnalysisError(models.ErrSegmentMissing, fmt.Errorf("stat %s: %w", segmentPath, err))
	}

	tmp, err := os.CreateTemp("", "frame-*.jpg")
	if err != nil {
		return nil, fmt.Errorf("decode frame: temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	cmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-y", "-i", segmentPath,
		"-frames:v", "1",
		"-q:v", "2",
		tmpPath,
	)
	if err := cmd.Run(); err != nil {
		return nil, models.NewAnalysisError(models.ErrFrameDecodeFailed, fmt.Errorf("ffmpeg extract frame from %s: %w", segmentPath, err))
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return nil, models.NewAnalysisError(models.ErrFrameDecodeFailed, fmt.Errorf("open decoded frame for %s: %w", segmentPath, err))
	}
	defer f.Close()

	img, err := jpeg.Decode(f)
	if err != nil {
		return nil, models.NewAnalysisError(models.ErrFrameDecodeFailed, fmt.Errorf("jpeg decode frame for %s: %w", segmentPath, err))
	}
	return img, nil
}

// DecodeFrameOrSentinel wraps DecodeFrame for callers that only care
// whether a usable frame came back, not which failure kind caused its
// absence; DecodeFrame's own error already carries that distinction.
func DecodeFrameOrSentinel(ctx context.Context, d *FrameDecoder, segmentPath string) (image.Image, error) {
	return d.DecodeFrame(ctx, segmentPath)
}
