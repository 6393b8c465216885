package services

import (
	"context"
	"fmt"
	"log/slog"

	"next2play/internal/models"
)

type RefreshReport struct {
	GamesUpdated  int
	FieldsUpdated int
	Failed        int
}

func (r RefreshReport) Message() string {
	if r.GamesUpdated == 0 {
		return "No games needed updating"
	}
	return fmt.Sprintf("Updated %d games", r.GamesUpdated)
}

type RefetchReport struct {
	Total     int
	Processed int
	Failed    int
}

// gamePatch holds backfilled values together with what the record looked
// like when the lookup started, so a concurrent edit is never overwritten.
type gamePatch struct {
	seenImage   string
	image       *string
	hours       *models.Playtime
	releaseYear *int
}

func (p gamePatch) empty() bool {
	return p.image == nil && p.hours == nil && p.releaseYear == nil
}

func (p gamePatch) apply(g *models.Game) int {
	fields := 0
	if p.image != nil && g.ImageURL == p.seenImage && g.ImageURL != *p.image {
		g.ImageURL = *p.image
		fields++
	}
	if p.hours != nil && g.HowLongToBeat.IsUnreleased() {
		g.HowLongToBeat = *p.hours
		fields++
	}
	if p.releaseYear != nil && g.ReleaseYear == nil {
		year := *p.releaseYear
		g.ReleaseYear = &year
		fields++
	}
	return fields
}

// RefreshAll backfills missing playtime, release year and cover art from the
// provider and moves hot-linked covers into the local cache. A failed lookup
// for one game is counted and does not stop the rest.
func (s *GameService) RefreshAll(ctx context.Context) (RefreshReport, error) {
	const op = "services.games.RefreshAll"

	var report RefreshReport

	games, err := s.storage.Load()
	if err != nil {
		return report, fmt.Errorf("%s: %w", op, err)
	}

	// On cancellation the patches gathered so far are still saved.
	var interrupted error
	patches := make(map[models.GameID]gamePatch)
	for _, g := range games {
		if interrupted = ctx.Err(); interrupted != nil {
			break
		}

		p, err := s.refreshGame(ctx, g)
		if err != nil {
			report.Failed++
			s.log.Warn("refresh lookup failed",
				slog.String("operation", op),
				slog.String("name", g.GameName),
				slog.String("error", err.Error()))
		}
		if !p.empty() {
			patches[g.GameID] = p
		}
	}

	if len(patches) == 0 {
		return report, wrapInterrupted(op, interrupted)
	}

	err = s.storage.Update(func(current []models.Game) ([]models.Game, error) {
		for i := range current {
			p, ok := patches[current[i].GameID]
			if !ok {
				continue
			}
			if n := p.apply(&current[i]); n > 0 {
				report.GamesUpdated++
				report.FieldsUpdated += n
			}
		}
		return current, nil
	})
	if err != nil {
		return RefreshReport{Failed: report.Failed}, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("collection refreshed",
		slog.String("operation", op),
		slog.Int("games_updated", report.GamesUpdated),
		slog.Int("fields_updated", report.FieldsUpdated),
		slog.Int("failed", report.Failed),
		slog.Bool("interrupted", interrupted != nil))

	return report, wrapInterrupted(op, interrupted)
}

func wrapInterrupted(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *GameService) refreshGame(ctx context.Context, g models.Game) (gamePatch, error) {
	p := gamePatch{seenImage: g.ImageURL}

	if g.ImageURL != "" && !s.images.IsLocal(g.ImageURL) {
		if local := s.images.EnsureCached(ctx, g.ImageURL, g.GameID); local != "" && local != g.ImageURL {
			p.image = &local
		}
	}

	needsHours := g.HowLongToBeat.IsUnreleased()
	needsYear := g.ReleaseYear == nil
	needsImage := g.ImageURL == ""
	if !needsHours && !needsYear && !needsImage {
		return p, nil
	}

	candidates, err := s.resolver.Search(ctx, g.GameName)
	if err != nil {
		return p, err
	}

	cand, ok := matchCandidate(candidates, g)
	if !ok {
		return p, nil
	}

	if needsHours && !cand.MainStory.IsUnreleased() {
		hours := cand.MainStory
		p.hours = &hours
	}
	if needsYear && cand.ReleaseYear != nil {
		year := *cand.ReleaseYear
		p.releaseYear = &year
	}
	if needsImage && cand.ImageRef != "" {
		if img := s.images.EnsureCached(ctx, s.resolver.ImageURL(cand.ImageRef), g.GameID); img != "" {
			p.image = &img
		}
	}

	return p, nil
}

// matchCandidate prefers the stored provider id and falls back to an exact
// name match. Anything looser risks attaching another game's metadata.
func matchCandidate(candidates []models.Candidate, g models.Game) (models.Candidate, bool) {
	if c, ok := findCandidate(candidates, g.GameID); ok {
		return c, true
	}
	for _, c := range candidates {
		if models.SameName(c.Name, g.GameName) {
			return c, true
		}
	}
	return models.Candidate{}, false
}

// RefetchImages downloads every cover again, overwriting the cached file.
// onGame is called after each game, with the error if that one failed.
func (s *GameService) RefetchImages(ctx context.Context, onGame func(models.Game, error)) (RefetchReport, error) {
	const op = "services.games.RefetchImages"

	games, err := s.storage.Load()
	if err != nil {
		return RefetchReport{}, fmt.Errorf("%s: %w", op, err)
	}

	report := RefetchReport{Total: len(games)}
	refreshed := make(map[models.GameID]string)

	var interrupted error
	for _, g := range games {
		if interrupted = ctx.Err(); interrupted != nil {
			break
		}

		path, err := s.refetchImage(ctx, g)
		if err != nil {
			report.Failed++
			s.log.Warn("cover refetch failed",
				slog.String("operation", op),
				slog.String("name", g.GameName),
				slog.String("error", err.Error()))
		} else {
			report.Processed++
			refreshed[g.GameID] = path
		}

		if onGame != nil {
			onGame(g, err)
		}
	}

	if len(refreshed) == 0 {
		return report, wrapInterrupted(op, interrupted)
	}

	err = s.storage.Update(func(current []models.Game) ([]models.Game, error) {
		for i := range current {
			if path, ok := refreshed[current[i].GameID]; ok {
				current[i].ImageURL = path
			}
		}
		return current, nil
	})
	if err != nil {
		return report, fmt.Errorf("%s: %w", op, err)
	}

	return report, wrapInterrupted(op, interrupted)
}

func (s *GameService) refetchImage(ctx context.Context, g models.Game) (string, error) {
	candidates, err := s.resolver.Search(ctx, g.GameName)
	if err != nil {
		return "", err
	}

	cand, ok := findCandidate(candidates, g.GameID)
	if !ok {
		return "", fmt.Errorf("no search result with id %d", g.GameID)
	}
	if cand.ImageRef == "" {
		return "", fmt.Errorf("search result %d has no image", g.GameID)
	}

	return s.images.Refetch(ctx, s.resolver.ImageURL(cand.ImageRef), g.GameID)
}
