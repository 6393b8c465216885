package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"next2play/internal/middleware"
	"next2play/internal/models"
	"next2play/internal/services"
	"next2play/internal/session"
	"next2play/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockGameService struct {
	mock.Mock
}

func (m *MockGameService) List() ([]models.Game, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Game), args.Error(1)
}

func (m *MockGameService) SearchCandidates(ctx context.Context, term string) ([]models.Candidate, error) {
	args := m.Called(term)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Candidate), args.Error(1)
}

func (m *MockGameService) AddGame(ctx context.Context, in services.AddGameInput) (*models.Game, error) {
	args := m.Called(in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Game), args.Error(1)
}

func (m *MockGameService) RefreshAll(ctx context.Context) (services.RefreshReport, error) {
	args := m.Called()
	return args.Get(0).(services.RefreshReport), args.Error(1)
}

func (m *MockGameService) DeleteGame(id string) error {
	return m.Called(id).Error(0)
}

func (m *MockGameService) UpdateStatus(id models.GameID, status models.GameStatus) error {
	return m.Called(id, status).Error(0)
}

func (m *MockGameService) PickRandomNotStarted() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *MockGameService) GetInProgress() (*models.Game, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Game), args.Error(1)
}

func (m *MockGameService) ComputeStats() (models.GameStats, error) {
	args := m.Called()
	return args.Get(0).(models.GameStats), args.Error(1)
}

func (m *MockGameService) RecentlyAdded(limit int) ([]models.Game, error) {
	args := m.Called(limit)
	return args.Get(0).([]models.Game), args.Error(1)
}

func (m *MockGameService) RefetchImages(ctx context.Context, onGame func(models.Game, error)) (services.RefetchReport, error) {
	args := m.Called()
	return args.Get(0).(services.RefetchReport), args.Error(1)
}

func setupController() (*GameController, *MockGameService) {
	mockService := &MockGameService{}
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))

	return NewGameController(mockService, logger), mockService
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func names(games []models.Game) []string {
	out := make([]string, 0, len(games))
	for _, g := range games {
		out = append(out, g.GameName)
	}
	return out
}

func TestSortGames(t *testing.T) {
	fixture := func() []models.Game {
		return []models.Game{
			{GameName: "C", ProgressStatus: models.StatusNotStarted},
			{GameName: "a", ProgressStatus: models.StatusComplete},
			{GameName: "B", ProgressStatus: models.StatusInProgress},
		}
	}

	t.Run("ascending", func(t *testing.T) {
		games := fixture()
		SortGames(games, false)
		assert.Equal(t, []string{"B", "a", "C"}, names(games))
	})

	t.Run("descending reverses whole list", func(t *testing.T) {
		games := fixture()
		SortGames(games, true)
		assert.Equal(t, []string{"C", "a", "B"}, names(games))
	})
}

func TestGameController_Index(t *testing.T) {
	games := []models.Game{
		{GameID: 1, GameName: "Zelda", ProgressStatus: models.StatusNotStarted, HowLongToBeat: models.HoursPlaytime(50)},
		{GameID: 2, GameName: "celeste", ProgressStatus: models.StatusInProgress},
	}

	t.Run("ajax returns sorted json", func(t *testing.T) {
		ctrl, mockService := setupController()
		mockService.On("List").Return(append([]models.Game(nil), games...), nil)

		req := httptest.NewRequest(http.MethodGet, "/?ajax=1&sort_order=DESC", nil)
		w := httptest.NewRecorder()
		ctrl.Index(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var got []models.Game
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, []string{"Zelda", "celeste"}, names(got))
	})

	t.Run("html hides write controls for view only", func(t *testing.T) {
		ctrl, mockService := setupController()
		mockService.On("List").Return(append([]models.Game(nil), games...), nil)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(middleware.WithAccess(req.Context(), middleware.Access{Mode: session.ModeViewOnly}))
		w := httptest.NewRecorder()
		ctrl.Index(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Contains(t, body, "Zelda")
		assert.Contains(t, body, "Unreleased")
		assert.NotContains(t, body, `action="/add_game"`)
	})

	t.Run("html shows write controls for full access", func(t *testing.T) {
		ctrl, mockService := setupController()
		mockService.On("List").Return(append([]models.Game(nil), games...), nil)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(middleware.WithAccess(req.Context(), middleware.Access{Mode: session.ModeFull}))
		w := httptest.NewRecorder()
		ctrl.Index(w, req)

		assert.Contains(t, w.Body.String(), `action="/add_game"`)
	})

	t.Run("storage error", func(t *testing.T) {
		ctrl, mockService := setupController()
		mockService.On("List").Return(nil, storage.ErrLoadFailed)

		w := httptest.NewRecorder()
		ctrl.Index(w, httptest.NewRequest(http.MethodGet, "/?ajax=1", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "storage")
	})
}

func TestGameController_AddGame(t *testing.T) {
	year := 2017
	hours := models.HoursPlaytime(30)

	tests := []struct {
		name        string
		contentType string
		body        string
		want        services.AddGameInput
		serviceErr  error
		wantCode    int
	}{
		{
			name:        "form",
			contentType: "application/x-www-form-urlencoded",
			body: url.Values{
				"GameName": {"Hollow Knight"}, "GameID": {"26286"},
				"ReleaseYear": {"2017"}, "HowLongToBeat": {"30"},
			}.Encode(),
			want:     services.AddGameInput{SearchTerm: "Hollow Knight", ChosenID: 26286, ReleaseYear: &year, Hours: &hours},
			wantCode: http.StatusOK,
		},
		{
			name:        "json with numbers",
			contentType: "application/json",
			body:        `{"GameName":"Hollow Knight","GameID":26286,"ReleaseYear":2017,"HowLongToBeat":30}`,
			want:        services.AddGameInput{SearchTerm: "Hollow Knight", ChosenID: 26286, ReleaseYear: &year, Hours: &hours},
			wantCode:    http.StatusOK,
		},
		{
			name:        "duplicate",
			contentType: "application/json",
			body:        `{"GameName":"Hollow Knight","GameID":"26286"}`,
			want:        services.AddGameInput{SearchTerm: "Hollow Knight", ChosenID: 26286},
			serviceErr:  fmt.Errorf("services.games.AddGame: %w", storage.ErrExists),
			wantCode:    http.StatusConflict,
		},
		{
			name:        "candidate not found",
			contentType: "application/json",
			body:        `{"GameName":"Hollow Knight","GameID":"1"}`,
			want:        services.AddGameInput{SearchTerm: "Hollow Knight", ChosenID: 1},
			serviceErr:  fmt.Errorf("services.games.AddGame: %w", storage.ErrNotFound),
			wantCode:    http.StatusNotFound,
		},
		{
			name:        "empty name",
			contentType: "application/json",
			body:        `{"GameName":"","GameID":5}`,
			want:        services.AddGameInput{ChosenID: 5},
			serviceErr:  services.ErrValidation,
			wantCode:    http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl, mockService := setupController()
			if tt.serviceErr != nil {
				mockService.On("AddGame", tt.want).Return(nil, tt.serviceErr)
			} else {
				mockService.On("AddGame", tt.want).Return(&models.Game{GameID: tt.want.ChosenID, GameName: tt.want.SearchTerm}, nil)
			}

			req := httptest.NewRequest(http.MethodPost, "/add_game", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			w := httptest.NewRecorder()
			ctrl.AddGame(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			mockService.AssertExpectations(t)
		})
	}

	t.Run("malformed year", func(t *testing.T) {
		ctrl, mockService := setupController()

		req := httptest.NewRequest(http.MethodPost, "/add_game",
			strings.NewReader(`{"GameName":"X","GameID":1,"ReleaseYear":"soon"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		ctrl.AddGame(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockService.AssertNotCalled(t, "AddGame", mock.Anything)
	})

	for _, tc := range []struct {
		name        string
		contentType string
		body        string
	}{
		{"missing GameID form", "application/x-www-form-urlencoded", url.Values{"GameName": {"Hollow Knight"}, "GameID": {""}}.Encode()},
		{"missing GameID json", "application/json", `{"GameName":"Hollow Knight"}`},
		{"null GameID json", "application/json", `{"GameName":"Hollow Knight","GameID":null}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctrl, mockService := setupController()

			req := httptest.NewRequest(http.MethodPost, "/add_game", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", tc.contentType)
			w := httptest.NewRecorder()
			ctrl.AddGame(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			mockService.AssertNotCalled(t, "AddGame", mock.Anything)
		})
	}
}

func TestGameController_SearchGames(t *testing.T) {
	t.Run("candidates", func(t *testing.T) {
		ctrl, mockService := setupController()
		year := 2018
		mockService.On("SearchCandidates", "celeste").Return([]models.Candidate{
			{ExternalID: 42, Name: "Celeste", ImageRef: "https://provider.test/games/c.jpg", MainStory: models.HoursPlaytime(8), ReleaseYear: &year},
			{ExternalID: 43, Name: "Celeste 2"},
		}, nil)

		body, _ := json.Marshal(map[string]string{"GameName": "celeste"})
		req := httptest.NewRequest(http.MethodPost, "/search_games", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		ctrl.SearchGames(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var got []map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		require.Len(t, got, 2)
		assert.Equal(t, float64(42), got[0]["game_id"])
		assert.Equal(t, "https://provider.test/games/c.jpg", got[0]["game_image_url"])
		assert.Equal(t, float64(2018), got[0]["release_world"])
		assert.Equal(t, float64(8), got[0]["main_story"])
		assert.Nil(t, got[1]["release_world"])
		assert.Equal(t, "Unreleased", got[1]["main_story"])
	})

	t.Run("empty result is an empty list", func(t *testing.T) {
		ctrl, mockService := setupController()
		mockService.On("SearchCandidates", "nothing").Return([]models.Candidate{}, nil)

		req := httptest.NewRequest(http.MethodPost, "/search_games", strings.NewReader("GameName=nothing"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		ctrl.SearchGames(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, "[]", w.Body.String())
	})

	t.Run("transport error", func(t *testing.T) {
		ctrl, mockService := setupController()
		mockService.On("SearchCandidates", "celeste").Return(nil, errors.New("hltb: transport"))

		req := httptest.NewRequest(http.MethodPost, "/search_games", strings.NewReader(`{"GameName":"celeste"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		ctrl.SearchGames(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestGameController_UpdateGames(t *testing.T) {
	ctrl, mockService := setupController()
	mockService.On("RefreshAll").Return(services.RefreshReport{GamesUpdated: 2, FieldsUpdated: 3, Failed: 1}, nil)

	w := httptest.NewRecorder()
	ctrl.UpdateGames(w, httptest.NewRequest(http.MethodPost, "/update_games", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t,
		`{"message":"Updated 2 games","success":true,"games_updated":2,"fields_updated":3,"failed":1}`,
		w.Body.String())
}

func TestGameController_DeleteGame(t *testing.T) {
	t.Run("deleted", func(t *testing.T) {
		ctrl, mockService := setupController()
		mockService.On("DeleteGame", "5").Return(nil)

		req := withURLParam(httptest.NewRequest(http.MethodDelete, "/delete_game/5", nil), "id", "5")
		w := httptest.NewRecorder()
		ctrl.DeleteGame(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"message":"Game deleted successfully","success":true}`, w.Body.String())
	})

	t.Run("missing", func(t *testing.T) {
		ctrl, mockService := setupController()
		mockService.On("DeleteGame", "9").Return(fmt.Errorf("op: %w", storage.ErrNotFound))

		req := withURLParam(httptest.NewRequest(http.MethodDelete, "/delete_game/9", nil), "id", "9")
		w := httptest.NewRecorder()
		ctrl.DeleteGame(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"message":"Game not found","success":false}`, w.Body.String())
	})
}

func TestGameController_UpdateStatus(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ctrl, mockService := setupController()
		mockService.On("UpdateStatus", models.GameID(3), models.StatusComplete).Return(nil)

		req := httptest.NewRequest(http.MethodPost, "/update_status/3", strings.NewReader(`{"status":"Complete"}`))
		w := httptest.NewRecorder()
		ctrl.UpdateStatus(w, withURLParam(req, "id", "3"))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown game", func(t *testing.T) {
		ctrl, mockService := setupController()
		mockService.On("UpdateStatus", models.GameID(3), models.StatusComplete).Return(storage.ErrNotFound)

		req := httptest.NewRequest(http.MethodPost, "/update_status/3", strings.NewReader(`{"status":"Complete"}`))
		w := httptest.NewRecorder()
		ctrl.UpdateStatus(w, withURLParam(req, "id", "3"))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid status", func(t *testing.T) {
		ctrl, mockService := setupController()
		mockService.On("UpdateStatus", models.GameID(3), models.GameStatus("Abandoned")).Return(services.ErrValidation)

		req := httptest.NewRequest(http.MethodPost, "/update_status/3", strings.NewReader(`{"status":"Abandoned"}`))
		w := httptest.NewRecorder()
		ctrl.UpdateStatus(w, withURLParam(req, "id", "3"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		ctrl, _ := setupController()

		req := httptest.NewRequest(http.MethodPost, "/update_status/abc", strings.NewReader(`{"status":"Complete"}`))
		w := httptest.NewRecorder()
		ctrl.UpdateStatus(w, withURLParam(req, "id", "abc"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGameController_DerivedViews(t *testing.T) {
	t.Run("random game", func(t *testing.T) {
		ctrl, mockService := setupController()
		mockService.On("PickRandomNotStarted").Return(services.NoNotStartedGames, nil)

		w := httptest.NewRecorder()
		ctrl.RandomGame(w, httptest.NewRequest(http.MethodGet, "/random_game", nil))

		assert.JSONEq(t, `{"gameName":"No 'Not Started' games available"}`, w.Body.String())
	})

	t.Run("no game in progress", func(t *testing.T) {
		ctrl, mockService := setupController()
		mockService.On("GetInProgress").Return(nil, nil)

		w := httptest.NewRecorder()
		ctrl.InProgressGame(w, httptest.NewRequest(http.MethodGet, "/in_progress_game", nil))

		assert.JSONEq(t, `{"game":null}`, w.Body.String())
	})

	t.Run("stats", func(t *testing.T) {
		ctrl, mockService := setupController()
		mockService.On("ComputeStats").Return(models.GameStats{TotalGames: 1, TotalHours: 5}, nil)

		w := httptest.NewRecorder()
		ctrl.Stats(w, httptest.NewRequest(http.MethodGet, "/stats", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"total_hours":5`)
	})

	t.Run("recent games default and cap", func(t *testing.T) {
		ctrl, mockService := setupController()
		mockService.On("RecentlyAdded", defaultRecentLimit).Return([]models.Game{}, nil).Once()
		mockService.On("RecentlyAdded", maxRecentLimit).Return([]models.Game{}, nil).Once()

		w := httptest.NewRecorder()
		ctrl.RecentGames(w, httptest.NewRequest(http.MethodGet, "/recent_games", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		ctrl.RecentGames(w, httptest.NewRequest(http.MethodGet, "/recent_games?limit=5000", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		mockService.AssertExpectations(t)
	})

	t.Run("recent games bad limit", func(t *testing.T) {
		ctrl, _ := setupController()

		w := httptest.NewRecorder()
		ctrl.RecentGames(w, httptest.NewRequest(http.MethodGet, "/recent_games?limit=-1", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("refetch images", func(t *testing.T) {
		ctrl, mockService := setupController()
		mockService.On("RefetchImages").Return(services.RefetchReport{Total: 3, Processed: 2, Failed: 1}, nil)

		w := httptest.NewRecorder()
		ctrl.RefetchImages(w, httptest.NewRequest(http.MethodPost, "/admin/refetch_images", nil))

		assert.JSONEq(t, `{"message":"Refetched 2 images","success":false,"processed":2,"failed":1}`, w.Body.String())
	})
}
