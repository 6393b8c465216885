package images

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type OptimizeResult struct {
	File       string
	Skipped    bool
	SizeBefore int64
	SizeAfter  int64
}

// Folder is the part of the uploads store the optimizer needs.
type Folder interface {
	FullPath(filename string) string
	ReplaceImage(image []byte, filename string) error
	DeleteImage(filename string) error
}

// OptimizeFile normalizes one cached file in place and always leaves a .jpg
// behind. JPEGs that already fit the bound are skipped.
func OptimizeFile(ctx context.Context, folder Folder, processor ImageProcessor, name string) (OptimizeResult, error) {
	const op = "images.optimize.OptimizeFile"

	path := folder.FullPath(name)
	ext := strings.ToLower(filepath.Ext(name))
	target := strings.TrimSuffix(name, filepath.Ext(name)) + ".jpg"

	res := OptimizeResult{File: target}

	info, err := os.Stat(path)
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	res.SizeBefore = info.Size()

	if checker, ok := processor.(BoundsChecker); ok && ext == ".jpg" {
		if fits, err := checker.WithinBounds(ctx, path); err == nil && fits {
			res.Skipped = true
			res.SizeAfter = res.SizeBefore
			return res, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}

	out, err := processor.Normalize(ctx, data)
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}

	if err := folder.ReplaceImage(out, target); err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	res.SizeAfter = int64(len(out))

	if target != name {
		if err := folder.DeleteImage(name); err != nil {
			return res, fmt.Errorf("%s: %w", op, err)
		}
	}

	return res, nil
}

// IsImageFile matches the extensions the optimizer handles.
func IsImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	}
	return false
}
