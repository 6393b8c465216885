// Package jsonfile keeps the whole game collection in a single JSON document.
package jsonfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"next2play/internal/models"
	"next2play/internal/storage"
)

type Storage struct {
	path string
	mu   sync.Mutex
}

// New opens the collection at path, creating an empty one if the file does not exist yet.
func New(path string) (*Storage, error) {
	const op = "storage.jsonfile.New"

	if path == "" {
		return nil, fmt.Errorf("%s: path is empty", op)
	}

	s := &Storage{path: filepath.Clean(path)}

	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := s.write([]models.Game{}); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s, nil
}

func (s *Storage) Path() string {
	return s.path
}

// Load reads the whole collection. A missing or malformed file is an error.
func (s *Storage) Load() ([]models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.read()
}

// Save replaces the whole collection.
func (s *Storage) Save(games []models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(games)
}

// Update runs load, fn and save under one lock so concurrent mutations cannot
// lose each other's writes. Nothing is written when fn returns an error.
func (s *Storage) Update(fn func(games []models.Game) ([]models.Game, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	games, err := s.read()
	if err != nil {
		return err
	}

	games, err = fn(games)
	if err != nil {
		return err
	}

	return s.write(games)
}

// NormalizeIDs rewrites the file so every GameID is stored as a number and
// reports how many were strings before.
func (s *Storage) NormalizeIDs() (int, error) {
	const op = "storage.jsonfile.NormalizeIDs"

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %w", op, storage.ErrLoadFailed, err)
	}

	var raw []struct {
		GameID json.RawMessage `json:"GameID"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, fmt.Errorf("%s: %w: %w", op, storage.ErrInvalidFormat, err)
	}

	legacy := 0
	for _, r := range raw {
		if len(r.GameID) > 0 && r.GameID[0] == '"' {
			legacy++
		}
	}

	games, err := s.read()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.write(games); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return legacy, nil
}

func (s *Storage) read() ([]models.Game, error) {
	const op = "storage.jsonfile.read"

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, storage.ErrLoadFailed, err)
	}

	var games []models.Game
	if err := json.Unmarshal(data, &games); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, storage.ErrInvalidFormat, err)
	}
	if games == nil {
		games = []models.Game{}
	}

	return games, nil
}

func (s *Storage) write(games []models.Game) error {
	const op = "storage.jsonfile.write"

	if games == nil {
		games = []models.Game{}
	}

	data, err := json.MarshalIndent(games, "", "  ")
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, storage.ErrSaveFailed, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, storage.ErrSaveFailed, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%s: %w: %w", op, storage.ErrSaveFailed, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%s: %w: %w", op, storage.ErrSaveFailed, err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%s: %w: %w", op, storage.ErrSaveFailed, err)
	}

	return nil
}
