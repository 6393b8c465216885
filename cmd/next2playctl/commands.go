package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"next2play/internal/images"
	"next2play/internal/models"
	"next2play/internal/services"
	"next2play/internal/storage"

	"github.com/schollz/progressbar/v3"
)

func refetchImages(ctx context.Context, e *env) error {
	games, err := e.store.Load()
	if err != nil {
		return err
	}

	bar := progressbar.Default(int64(len(games)), "Refetching covers")
	var failed []string

	report, err := e.service.RefetchImages(ctx, func(g models.Game, err error) {
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", g.GameName, err))
		}
		_ = bar.Add(1)
	})
	_ = bar.Finish()
	if err != nil {
		return err
	}

	fmt.Println()
	for _, f := range failed {
		fmt.Printf("  failed %s\n", f)
	}
	fmt.Printf("Processed: %d\n", report.Processed)
	fmt.Printf("Failed: %d\n", report.Failed)
	return nil
}

func optimizeImages(ctx context.Context, e *env) error {
	names, err := e.uploads.List()
	if err != nil {
		return err
	}

	var files []string
	for _, name := range names {
		if images.IsImageFile(name) {
			files = append(files, name)
		}
	}

	bar := progressbar.Default(int64(len(files)), "Optimizing")
	var optimized, skipped, failed int
	var saved int64

	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := images.OptimizeFile(ctx, e.uploads, e.processor, name)
		switch {
		case err != nil:
			failed++
			e.log.Error("optimize failed", slog.String("file", name), slog.String("error", err.Error()))
		case res.Skipped:
			skipped++
		default:
			optimized++
			saved += res.SizeBefore - res.SizeAfter
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	fmt.Println()
	fmt.Printf("Optimized: %d\n", optimized)
	fmt.Printf("Skipped: %d\n", skipped)
	fmt.Printf("Failed: %d\n", failed)
	fmt.Printf("Saved: %d bytes\n", saved)
	return nil
}

func fixIDs(e *env) error {
	n, err := e.store.NormalizeIDs()
	if err != nil {
		return err
	}
	fmt.Printf("Updated %d game IDs\n", n)
	return nil
}

func importCSV(ctx context.Context, e *env, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	titles, err := readTitles(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	bar := progressbar.Default(int64(len(titles)), "Importing")
	var added, duplicates, missing, failed int
	var problems []string

	for _, title := range titles {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := importTitle(ctx, e.service, title)
		switch {
		case err == nil:
			added++
		case errors.Is(err, storage.ErrExists):
			duplicates++
		case errors.Is(err, storage.ErrNotFound):
			missing++
			problems = append(problems, "not found: "+title)
		default:
			failed++
			problems = append(problems, fmt.Sprintf("failed: %s: %v", title, err))
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	fmt.Println()
	for _, p := range problems {
		fmt.Printf("  %s\n", p)
	}
	fmt.Printf("Added: %d\n", added)
	fmt.Printf("Duplicates: %d\n", duplicates)
	fmt.Printf("Not found: %d\n", missing)
	fmt.Printf("Failed: %d\n", failed)
	return nil
}

type titleImporter interface {
	SearchCandidates(ctx context.Context, term string) ([]models.Candidate, error)
	AddGame(ctx context.Context, in services.AddGameInput) (*models.Game, error)
}

// importTitle adds the provider's first match for title.
func importTitle(ctx context.Context, svc titleImporter, title string) error {
	candidates, err := svc.SearchCandidates(ctx, title)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return fmt.Errorf("%q: %w", title, storage.ErrNotFound)
	}

	_, err = svc.AddGame(ctx, services.AddGameInput{SearchTerm: title, ChosenID: candidates[0].ExternalID})
	return err
}

// readTitles returns the first column of every row after the header, skipping blanks.
func readTitles(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var titles []string
	header := true
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if header {
			header = false
			continue
		}
		if len(row) == 0 {
			continue
		}
		if title := strings.TrimSpace(row[0]); title != "" {
			titles = append(titles, title)
		}
	}

	return titles, nil
}
