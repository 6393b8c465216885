package controllers

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"next2play/internal/middleware"
	"next2play/internal/models"
	"next2play/internal/services"

	"github.com/go-chi/chi/v5"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type GameServicer interface {
	List() ([]models.Game, error)
	SearchCandidates(ctx context.Context, term string) ([]models.Candidate, error)
	AddGame(ctx context.Context, in services.AddGameInput) (*models.Game, error)
	RefreshAll(ctx context.Context) (services.RefreshReport, error)
	DeleteGame(id string) error
	UpdateStatus(id models.GameID, status models.GameStatus) error
	PickRandomNotStarted() (string, error)
	GetInProgress() (*models.Game, error)
	ComputeStats() (models.GameStats, error)
	RecentlyAdded(limit int) ([]models.Game, error)
	RefetchImages(ctx context.Context, onGame func(models.Game, error)) (services.RefetchReport, error)
}

const (
	defaultRecentLimit = 10
	maxRecentLimit     = 100
)

type GameController struct {
	service GameServicer
	log     *slog.Logger
}

func NewGameController(s GameServicer, log *slog.Logger) *GameController {
	return &GameController{
		service: s,
		log:     log,
	}
}

type indexPage struct {
	Games      []models.Game
	Statuses   []models.GameStatus
	SortColumn string
	SortOrder  string
	ViewOnly   bool
}

type candidateResponse struct {
	GameID       models.GameID   `json:"game_id"`
	GameName     string          `json:"game_name"`
	GameImageURL string          `json:"game_image_url"`
	ReleaseWorld *int            `json:"release_world"`
	MainStory    models.Playtime `json:"main_story"`
}

type refreshResponse struct {
	Message       string `json:"message"`
	Success       bool   `json:"success"`
	GamesUpdated  int    `json:"games_updated"`
	FieldsUpdated int    `json:"fields_updated"`
	Failed        int    `json:"failed"`
}

type refetchResponse struct {
	Message   string `json:"message"`
	Success   bool   `json:"success"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
}

type statusRequest struct {
	Status models.GameStatus `json:"status"`
}

type searchRequest struct {
	GameName string `json:"GameName"`
}

// addGameRequest accepts JSON numbers or strings for every field, the way the form posts them.
type addGameRequest struct {
	GameName      json.RawMessage `json:"GameName"`
	GameID        json.RawMessage `json:"GameID"`
	ReleaseYear   json.RawMessage `json:"ReleaseYear"`
	HowLongToBeat json.RawMessage `json:"HowLongToBeat"`
}

func (c *GameController) Index(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.games.Index"

	games, err := c.service.List()
	if err != nil {
		c.log.Error(
			ErrGetGames.Error(),
			slog.String("operation", op),
			slog.String("error", err.Error()))
		http.Error(w, ErrGetGames.Error(), http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	sortOrder := strings.ToUpper(query.Get("sort_order"))
	if sortOrder != "DESC" {
		sortOrder = "ASC"
	}
	sortColumn := query.Get("sort_column")
	if sortColumn == "" {
		sortColumn = "GameName"
	}

	SortGames(games, sortOrder == "DESC")

	if query.Get("ajax") != "" {
		writeJSON(w, c.log, op, http.StatusOK, games)
		return
	}

	access, _ := middleware.AccessFromContext(r.Context())
	page := indexPage{
		Games:      games,
		Statuses:   models.Statuses,
		SortColumn: sortColumn,
		SortOrder:  sortOrder,
		ViewOnly:   access.ViewOnly(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ExecuteTemplate(w, "index.html", page); err != nil {
		c.log.Error(ErrRender.Error(), slog.String("operation", op), slog.String("error", err.Error()))
		http.Error(w, ErrRender.Error(), http.StatusInternalServerError)
		return
	}
}

func (c *GameController) SearchGames(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.games.SearchGames"

	term, err := readSearchTerm(r)
	if err != nil {
		c.log.Error(ErrParsingForm.Error(), slog.String("operation", op), slog.String("error", err.Error()))
		http.Error(w, ErrBadRequest.Error(), http.StatusBadRequest)
		return
	}

	candidates, err := c.service.SearchCandidates(r.Context(), term)
	if err != nil {
		c.log.Error(ErrSearch.Error(), slog.String("operation", op), slog.String("error", err.Error()))
		code, msg := statusFor(err, ErrSearch)
		http.Error(w, msg, code)
		return
	}

	res := make([]candidateResponse, 0, len(candidates))
	for _, cand := range candidates {
		res = append(res, candidateResponse{
			GameID:       cand.ExternalID,
			GameName:     cand.Name,
			GameImageURL: cand.ImageRef,
			ReleaseWorld: cand.ReleaseYear,
			MainStory:    cand.MainStory,
		})
	}

	writeJSON(w, c.log, op, http.StatusOK, res)
}

func (c *GameController) AddGame(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.games.AddGame"

	in, err := readAddGame(r)
	if err != nil {
		c.log.Error(ErrBadRequest.Error(), slog.String("operation", op), slog.String("error", err.Error()))
		http.Error(w, ErrBadRequest.Error(), http.StatusBadRequest)
		return
	}

	game, err := c.service.AddGame(r.Context(), in)
	if err != nil {
		code, msg := statusFor(err, ErrCreate)
		c.log.Error(ErrCreate.Error(),
			slog.String("operation", op),
			slog.String("name", in.SearchTerm),
			slog.String("error", err.Error()))
		http.Error(w, msg, code)
		return
	}

	writeJSON(w, c.log, op, http.StatusOK, struct {
		messageResponse
		Game *models.Game `json:"game"`
	}{messageResponse{Message: "Game added successfully", Success: true}, game})
}

func (c *GameController) UpdateGames(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.games.UpdateGames"

	report, err := c.service.RefreshAll(r.Context())
	if err != nil {
		c.log.Error(ErrUpdate.Error(), slog.String("operation", op), slog.String("error", err.Error()))
		http.Error(w, ErrUpdate.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, c.log, op, http.StatusOK, refreshResponse{
		Message:       report.Message(),
		Success:       true,
		GamesUpdated:  report.GamesUpdated,
		FieldsUpdated: report.FieldsUpdated,
		Failed:        report.Failed,
	})
}

func (c *GameController) DeleteGame(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.games.DeleteGame"

	id := chi.URLParam(r, "id")

	if err := c.service.DeleteGame(id); err != nil {
		code, _ := statusFor(err, ErrDelete)
		c.log.Error(ErrDelete.Error(),
			slog.String("operation", op),
			slog.String("id", id),
			slog.String("error", err.Error()))
		msg := ErrDelete.Error()
		if code == http.StatusNotFound {
			msg = "Game not found"
		}
		writeJSON(w, c.log, op, code, messageResponse{Message: msg, Success: false})
		return
	}

	writeJSON(w, c.log, op, http.StatusOK, messageResponse{Message: "Game deleted successfully", Success: true})
}

func (c *GameController) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.games.UpdateStatus"

	id, err := models.ParseGameID(chi.URLParam(r, "id"))
	if err != nil {
		c.log.Error(ErrInvalidID.Error(), slog.String("operation", op), slog.String("error", err.Error()))
		http.Error(w, ErrInvalidID.Error(), http.StatusBadRequest)
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		c.log.Error(ErrParsingJSON.Error(), slog.String("operation", op), slog.String("error", err.Error()))
		http.Error(w, ErrBadRequest.Error(), http.StatusBadRequest)
		return
	}

	if err := c.service.UpdateStatus(id, req.Status); err != nil {
		code, msg := statusFor(err, ErrStatus)
		c.log.Error(ErrStatus.Error(),
			slog.String("operation", op),
			slog.String("id", id.String()),
			slog.String("error", err.Error()))
		http.Error(w, msg, code)
		return
	}

	writeJSON(w, c.log, op, http.StatusOK, messageResponse{Message: "Status updated successfully", Success: true})
}

func (c *GameController) RandomGame(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.games.RandomGame"

	name, err := c.service.PickRandomNotStarted()
	if err != nil {
		c.log.Error(ErrGetGames.Error(), slog.String("operation", op), slog.String("error", err.Error()))
		http.Error(w, ErrGetGames.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, c.log, op, http.StatusOK, map[string]string{"gameName": name})
}

func (c *GameController) InProgressGame(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.games.InProgressGame"

	game, err := c.service.GetInProgress()
	if err != nil {
		c.log.Error(ErrGetGames.Error(), slog.String("operation", op), slog.String("error", err.Error()))
		http.Error(w, ErrGetGames.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, c.log, op, http.StatusOK, map[string]*models.Game{"game": game})
}

func (c *GameController) Stats(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.games.Stats"

	stats, err := c.service.ComputeStats()
	if err != nil {
		c.log.Error(ErrGetGames.Error(), slog.String("operation", op), slog.String("error", err.Error()))
		http.Error(w, ErrGetGames.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, c.log, op, http.StatusOK, stats)
}

func (c *GameController) RecentGames(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.games.RecentGames"

	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, ErrInvalidLimit.Error(), http.StatusBadRequest)
			return
		}
		limit = min(n, maxRecentLimit)
	}

	games, err := c.service.RecentlyAdded(limit)
	if err != nil {
		c.log.Error(ErrGetGames.Error(), slog.String("operation", op), slog.String("error", err.Error()))
		http.Error(w, ErrGetGames.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, c.log, op, http.StatusOK, games)
}

func (c *GameController) RefetchImages(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.games.RefetchImages"

	report, err := c.service.RefetchImages(r.Context(), nil)
	if err != nil {
		c.log.Error(ErrRefetch.Error(), slog.String("operation", op), slog.String("error", err.Error()))
		http.Error(w, ErrRefetch.Error(), http.StatusInternalServerError)
		return
	}

	c.log.Info("covers refetched",
		slog.String("operation", op),
		slog.Int("processed", report.Processed),
		slog.Int("failed", report.Failed))

	writeJSON(w, c.log, op, http.StatusOK, refetchResponse{
		Message:   "Refetched " + strconv.Itoa(report.Processed) + " images",
		Success:   report.Failed == 0,
		Processed: report.Processed,
		Failed:    report.Failed,
	})
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

func readSearchTerm(r *http.Request) (string, error) {
	if isJSON(r) {
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", err
		}
		return req.GameName, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", err
	}
	return r.FormValue("GameName"), nil
}

func readAddGame(r *http.Request) (services.AddGameInput, error) {
	var name, id, year, hours string

	if isJSON(r) {
		var req addGameRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			return services.AddGameInput{}, err
		}
		name, id, year, hours = rawString(req.GameName), rawString(req.GameID),
			rawString(req.ReleaseYear), rawString(req.HowLongToBeat)
	} else {
		if err := r.ParseForm(); err != nil {
			return services.AddGameInput{}, err
		}
		name, id = r.FormValue("GameName"), r.FormValue("GameID")
		year, hours = r.FormValue("ReleaseYear"), r.FormValue("HowLongToBeat")
	}

	in := services.AddGameInput{SearchTerm: strings.TrimSpace(name)}

	if id == "" {
		return in, errMissingGameID
	}
	chosen, err := models.ParseGameID(id)
	if err != nil {
		return in, err
	}
	in.ChosenID = chosen

	if year != "" {
		parsed, err := strconv.Atoi(year)
		if err != nil {
			return in, err
		}
		in.ReleaseYear = &parsed
	}

	if hours != "" {
		parsed, err := models.ParsePlaytime(hours)
		if err != nil {
			return in, err
		}
		in.Hours = &parsed
	}

	return in, nil
}

// rawString unquotes a JSON string or returns a bare literal as text. null is empty.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}
