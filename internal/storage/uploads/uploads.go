package uploads

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrInvalidImage    = errors.New("invalid image data")
	ErrFileExists      = errors.New("file already exists")
	ErrFileNotExists   = errors.New("file does not exist")
	ErrInvalidFileName = errors.New("invalid file name")
)

type IUploads interface {
	Exists(filename string) bool
	FullPath(filename string) string
	SaveImage(image []byte, filename string) error
	ReplaceImage(image []byte, filename string) error
	DeleteImage(filename string) error
}

// Uploads is a flat folder of cover images served as static files.
type Uploads struct {
	folderPath string
	mu         sync.RWMutex
}

func NewUploads(folderPath string) (*Uploads, error) {
	if folderPath == "" {
		return nil, errors.New("folder path is empty")
	}

	folderPath = filepath.Clean(folderPath) + string(filepath.Separator)

	u := &Uploads{folderPath: folderPath}

	if err := u.ensureFolderExists(); err != nil {
		return nil, err
	}

	return u, nil
}

func (u *Uploads) ensureFolderExists() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, err := os.Stat(u.folderPath); os.IsNotExist(err) {
		if err := os.MkdirAll(u.folderPath, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func (u *Uploads) Folder() string {
	return u.folderPath
}

func (u *Uploads) FullPath(filename string) string {
	return filepath.Join(u.folderPath, filename)
}

func (u *Uploads) Exists(filename string) bool {
	if validateName(filename) != nil {
		return false
	}

	u.mu.RLock()
	defer u.mu.RUnlock()

	info, err := os.Stat(u.FullPath(filename))
	return err == nil && !info.IsDir()
}

// SaveImage stores a new file and refuses to overwrite an existing one.
func (u *Uploads) SaveImage(image []byte, filename string) error {
	if len(image) == 0 {
		return ErrInvalidImage
	}

	if err := validateName(filename); err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if _, err := os.Stat(u.FullPath(filename)); err == nil {
		return ErrFileExists
	}

	return u.writeAtomic(image, filename)
}

// ReplaceImage writes the file whether or not it already exists.
func (u *Uploads) ReplaceImage(image []byte, filename string) error {
	if len(image) == 0 {
		return ErrInvalidImage
	}

	if err := validateName(filename); err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	return u.writeAtomic(image, filename)
}

func (u *Uploads) DeleteImage(filename string) error {
	if err := validateName(filename); err != nil {
		return err
	}

	fullPath := u.FullPath(filename)

	u.mu.Lock()
	defer u.mu.Unlock()

	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return ErrFileNotExists
	}

	return os.Remove(fullPath)
}

// List returns the regular files in the folder sorted by name, skipping temp files.
func (u *Uploads) List() ([]string, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	entries, err := os.ReadDir(u.folderPath)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	return names, nil
}

func (u *Uploads) writeAtomic(image []byte, filename string) error {
	fullPath := u.FullPath(filename)
	tempPath := filepath.Join(u.folderPath, uuid.NewString()+".tmp")

	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := file.Write(image); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write image data: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

func validateName(filename string) error {
	if filename == "" || filename != filepath.Base(filename) || filename == "." || filename == ".." {
		return ErrInvalidFileName
	}
	return nil
}
