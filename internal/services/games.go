package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"next2play/internal/metrics"
	"next2play/internal/models"
	"next2play/internal/storage"
)

var ErrValidation = errors.New("validation error")

// NoNotStartedGames is returned by PickRandomNotStarted when there is nothing to pick.
const NoNotStartedGames = "No 'Not Started' games available"

type GameStorage interface {
	Load() ([]models.Game, error)
	Update(fn func(games []models.Game) ([]models.Game, error)) error
}

type MetadataResolver interface {
	Search(ctx context.Context, term string) ([]models.Candidate, error)
	ImageURL(ref string) string
}

type ImageCache interface {
	EnsureCached(ctx context.Context, remoteRef string, id models.GameID) string
	Refetch(ctx context.Context, remoteRef string, id models.GameID) (string, error)
	IsLocal(ref string) bool
}

type GameService struct {
	storage  GameStorage
	resolver MetadataResolver
	images   ImageCache
	log      *slog.Logger
	now      func() time.Time
	intn     func(n int) int
}

func NewGameService(s GameStorage, r MetadataResolver, images ImageCache, log *slog.Logger) *GameService {
	return &GameService{
		storage:  s,
		resolver: r,
		images:   images,
		log:      log,
		now:      time.Now,
		intn:     rand.IntN,
	}
}

type AddGameInput struct {
	SearchTerm  string
	ChosenID    models.GameID
	ReleaseYear *int
	Hours       *models.Playtime
}

func (s *GameService) List() ([]models.Game, error) {
	const op = "services.games.List"

	games, err := s.storage.Load()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.UpdateCollection(games)

	return games, nil
}

// SearchCandidates passes the search through to the provider with image
// references made absolute for the browser.
func (s *GameService) SearchCandidates(ctx context.Context, term string) ([]models.Candidate, error) {
	const op = "services.games.SearchCandidates"

	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("%s: game name is required: %w", op, ErrValidation)
	}

	candidates, err := s.resolver.Search(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for i := range candidates {
		candidates[i].ImageRef = s.resolver.ImageURL(candidates[i].ImageRef)
	}

	return candidates, nil
}

// AddGame stores the candidate the user picked from an earlier search. The
// search is repeated so the stored metadata comes from the provider, not the client.
func (s *GameService) AddGame(ctx context.Context, in AddGameInput) (*models.Game, error) {
	const op = "services.games.AddGame"

	term := strings.TrimSpace(in.SearchTerm)
	if term == "" {
		return nil, fmt.Errorf("%s: game name is required: %w", op, ErrValidation)
	}
	if in.ChosenID == 0 {
		return nil, fmt.Errorf("%s: game id is required: %w", op, ErrValidation)
	}

	candidates, err := s.resolver.Search(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cand, ok := findCandidate(candidates, in.ChosenID)
	if !ok {
		return nil, fmt.Errorf("%s: candidate %d for %q: %w", op, in.ChosenID, term, storage.ErrNotFound)
	}

	added := s.now().UTC()
	game := models.Game{
		GameID:         cand.ExternalID,
		GameName:       cand.Name,
		HowLongToBeat:  cand.MainStory,
		ProgressStatus: models.StatusNotStarted,
		ReleaseYear:    cand.ReleaseYear,
		DateAdded:      &added,
	}
	if game.GameName == "" {
		game.GameName = term
	}
	if in.ReleaseYear != nil {
		game.ReleaseYear = in.ReleaseYear
	}
	if in.Hours != nil && !in.Hours.IsUnreleased() {
		game.HowLongToBeat = *in.Hours
	}

	existing, err := s.storage.Load()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if dup, found := findDuplicate(existing, game); found {
		return nil, fmt.Errorf("%s: %q duplicates game %d: %w", op, game.GameName, dup.GameID, storage.ErrExists)
	}

	game.ImageURL = s.images.EnsureCached(ctx, s.resolver.ImageURL(cand.ImageRef), game.GameID)

	err = s.storage.Update(func(games []models.Game) ([]models.Game, error) {
		if dup, found := findDuplicate(games, game); found {
			return nil, fmt.Errorf("%q duplicates game %d: %w", game.GameName, dup.GameID, storage.ErrExists)
		}
		return append(games, game), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("game added",
		slog.String("operation", op),
		slog.Int64("game_id", int64(game.GameID)),
		slog.String("name", game.GameName))

	return &game, nil
}

func (s *GameService) UpdateStatus(id models.GameID, status models.GameStatus) error {
	const op = "services.games.UpdateStatus"

	if !status.Valid() {
		return fmt.Errorf("%s: unknown status %q: %w", op, status, ErrValidation)
	}

	err := s.storage.Update(func(games []models.Game) ([]models.Game, error) {
		for i := range games {
			if games[i].GameID == id {
				games[i].ProgressStatus = status
				return games, nil
			}
		}
		return nil, fmt.Errorf("game %d: %w", id, storage.ErrNotFound)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// DeleteGame removes the record whose id matches. Ids are compared as strings
// because older data files mixed numeric and string ids.
func (s *GameService) DeleteGame(id string) error {
	const op = "services.games.DeleteGame"

	id = strings.TrimSpace(id)

	err := s.storage.Update(func(games []models.Game) ([]models.Game, error) {
		for i := range games {
			if games[i].GameID.String() == id {
				return append(games[:i], games[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("game %s: %w", id, storage.ErrNotFound)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// PickRandomNotStarted returns the name of a uniformly chosen "Not Started"
// game, or NoNotStartedGames.
func (s *GameService) PickRandomNotStarted() (string, error) {
	const op = "services.games.PickRandomNotStarted"

	games, err := s.storage.Load()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	var names []string
	for _, g := range games {
		if g.ProgressStatus == models.StatusNotStarted {
			names = append(names, g.GameName)
		}
	}

	if len(names) == 0 {
		return NoNotStartedGames, nil
	}

	return names[s.intn(len(names))], nil
}

func (s *GameService) GetInProgress() (*models.Game, error) {
	const op = "services.games.GetInProgress"

	games, err := s.storage.Load()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, g := range games {
		if g.ProgressStatus == models.StatusInProgress {
			return &g, nil
		}
	}

	return nil, nil
}

func (s *GameService) ComputeStats() (models.GameStats, error) {
	const op = "services.games.ComputeStats"

	games, err := s.storage.Load()
	if err != nil {
		return models.GameStats{}, fmt.Errorf("%s: %w", op, err)
	}

	stats := models.GameStats{
		TotalGames: len(games),
		ByStatus:   make(map[models.GameStatus]models.StatusStats, len(models.Statuses)),
	}
	for _, status := range models.Statuses {
		stats.ByStatus[status] = models.StatusStats{}
	}

	for _, g := range games {
		bucket := stats.ByStatus[g.ProgressStatus]
		bucket.Count++
		if !g.HowLongToBeat.IsUnreleased() {
			bucket.Hours += g.HowLongToBeat.Hours
			stats.TotalHours += g.HowLongToBeat.Hours
		}
		stats.ByStatus[g.ProgressStatus] = bucket
	}

	return stats, nil
}

// RecentlyAdded returns up to limit games that carry DateAdded, newest first.
func (s *GameService) RecentlyAdded(limit int) ([]models.Game, error) {
	const op = "services.games.RecentlyAdded"

	games, err := s.storage.Load()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	recent := make([]models.Game, 0, len(games))
	for _, g := range games {
		if g.DateAdded != nil {
			recent = append(recent, g)
		}
	}

	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].DateAdded.After(*recent[j].DateAdded)
	})

	if limit > 0 && len(recent) > limit {
		recent = recent[:limit]
	}

	return recent, nil
}

func findCandidate(candidates []models.Candidate, id models.GameID) (models.Candidate, bool) {
	for _, c := range candidates {
		if c.ExternalID == id {
			return c, true
		}
	}
	return models.Candidate{}, false
}

// findDuplicate matches on id, or on name plus release year.
func findDuplicate(games []models.Game, g models.Game) (models.Game, bool) {
	for _, existing := range games {
		if existing.GameID == g.GameID {
			return existing, true
		}
		if models.SameName(existing.GameName, g.GameName) && sameYear(existing.ReleaseYear, g.ReleaseYear) {
			return existing, true
		}
	}
	return models.Game{}, false
}

func sameYear(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
