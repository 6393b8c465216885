package jsonfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"next2play/internal/models"
	"next2play/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("creates empty collection", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "data", "games_data.json")

		s, err := New(path)
		require.NoError(t, err)

		games, err := s.Load()
		require.NoError(t, err)
		assert.Empty(t, games)

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "[]", string(raw))
	})

	t.Run("keeps existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "games_data.json")
		require.NoError(t, os.WriteFile(path, []byte(`[{"GameID":1,"GameName":"Celeste","HowLongToBeat":8,"ProgressStatus":"Complete","ImageURL":""}]`), 0o644))

		s, err := New(path)
		require.NoError(t, err)

		games, err := s.Load()
		require.NoError(t, err)
		require.Len(t, games, 1)
		assert.Equal(t, "Celeste", games[0].GameName)
	})

	t.Run("empty path", func(t *testing.T) {
		s, err := New("")
		assert.Error(t, err)
		assert.Nil(t, s)
	})
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "games_data.json")
		s, err := New(path)
		require.NoError(t, err)
		require.NoError(t, os.Remove(path))

		_, err = s.Load()
		assert.True(t, errors.Is(err, storage.ErrLoadFailed))
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "games_data.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
		s, err := New(path)
		require.NoError(t, err)

		_, err = s.Load()
		assert.True(t, errors.Is(err, storage.ErrInvalidFormat))
	})
}

func TestSave_PrettyPrinted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "games_data.json")
	s, err := New(path)
	require.NoError(t, err)

	year := 2018
	games := []models.Game{{
		GameID:         42,
		GameName:       "Celeste",
		HowLongToBeat:  models.HoursPlaytime(8),
		ProgressStatus: models.StatusComplete,
		ReleaseYear:    &year,
	}}
	require.NoError(t, s.Save(games))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "[\n  {\n    \"GameID\": 42,"))

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, games, loaded)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestUpdate(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "games_data.json"))
	require.NoError(t, err)

	t.Run("error leaves storage untouched", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.Update(func(games []models.Game) ([]models.Game, error) {
			return append(games, models.Game{GameID: 1}), boom
		})
		assert.ErrorIs(t, err, boom)

		games, err := s.Load()
		require.NoError(t, err)
		assert.Empty(t, games)
	})

	t.Run("concurrent appends are not lost", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				_ = s.Update(func(games []models.Game) ([]models.Game, error) {
					return append(games, models.Game{GameID: models.GameID(id + 100)}), nil
				})
			}(i)
		}
		wg.Wait()

		games, err := s.Load()
		require.NoError(t, err)
		assert.Len(t, games, 20)
	})
}

func TestNormalizeIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "games_data.json")
	legacy := `[
  {"GameID": "12", "GameName": "Old", "HowLongToBeat": "Unreleased", "ProgressStatus": "Not Started", "ImageURL": ""},
  {"GameID": 13, "GameName": "New", "HowLongToBeat": 4, "ProgressStatus": "Complete", "ImageURL": ""}
]`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	s, err := New(path)
	require.NoError(t, err)

	n, err := s.NormalizeIDs()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"GameID": 12`)
	assert.NotContains(t, string(data), `"12"`)

	n, err = s.NormalizeIDs()
	require.NoError(t, err)
	assert.Zero(t, n)
}
