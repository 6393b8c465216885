package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"next2play/internal/config"
)

var ErrProcessing = errors.New("image processing failed")

// ImageProcessor normalizes downloaded cover art (size, format, metadata).
type ImageProcessor interface {
	Normalize(ctx context.Context, data []byte) ([]byte, error)
}

// BoundsChecker is implemented by processors that can tell whether a file
// already fits the target size.
type BoundsChecker interface {
	WithinBounds(ctx context.Context, path string) (bool, error)
}

type NopProcessor struct{}

func (NopProcessor) Normalize(_ context.Context, data []byte) ([]byte, error) {
	return data, nil
}

// MagickProcessor shells out to ImageMagick.
type MagickProcessor struct {
	ConvertBinary  string
	IdentifyBinary string
	Resize         string
	Quality        int
	MaxWidth       int
	MaxHeight      int
}

func NewMagickProcessor(cfg config.Images) *MagickProcessor {
	return &MagickProcessor{
		ConvertBinary:  cfg.ConvertBinary,
		IdentifyBinary: cfg.IdentifyBinary,
		Resize:         cfg.Resize,
		Quality:        cfg.Quality,
		MaxWidth:       cfg.MaxWidth,
		MaxHeight:      cfg.MaxHeight,
	}
}

// NewProcessor picks the processor named in the config.
func NewProcessor(cfg config.Images) ImageProcessor {
	if strings.EqualFold(cfg.Processor, "none") {
		return NopProcessor{}
	}
	return NewMagickProcessor(cfg)
}

// Args is the fixed convert invocation: shrink to the bound, recompress,
// strip metadata and encode progressively.
func (p *MagickProcessor) Args(in, out string) []string {
	return []string{
		in,
		"-resize", p.Resize,
		"-quality", strconv.Itoa(p.Quality),
		"-strip",
		"-interlace", "Plane",
		out,
	}
}

func (p *MagickProcessor) Normalize(ctx context.Context, data []byte) ([]byte, error) {
	const op = "images.processor.Normalize"

	dir, err := os.MkdirTemp("", "next2play-img-*")
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrProcessing, err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "source")
	out := filepath.Join(dir, "normalized.jpg")

	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrProcessing, err)
	}

	if err := p.run(ctx, p.ConvertBinary, p.Args(in, out)...); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrProcessing, err)
	}

	normalized, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrProcessing, err)
	}

	return normalized, nil
}

// WithinBounds reports whether the image at path already fits MaxWidth x MaxHeight.
func (p *MagickProcessor) WithinBounds(ctx context.Context, path string) (bool, error) {
	const op = "images.processor.WithinBounds"

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, p.IdentifyBinary, "-format", "%w %h", path)
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return false, fmt.Errorf("%s: %w: %w", op, ErrProcessing, err)
	}

	w, h, err := parseDimensions(stdout.String())
	if err != nil {
		return false, fmt.Errorf("%s: %w: %w", op, ErrProcessing, err)
	}

	return w <= p.MaxWidth && h <= p.MaxHeight, nil
}

func (p *MagickProcessor) run(ctx context.Context, binary string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", binary, err, msg)
		}
		return fmt.Errorf("%s: %w", binary, err)
	}
	return nil
}

func parseDimensions(s string) (int, int, error) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("unexpected identify output %q", s)
	}
	w, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, err
	}
	h, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, err
	}
	return w, h, nil
}
