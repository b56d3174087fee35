package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	ErrNotFound  = errors.New("summary not found")
	ErrInvalidID = errors.New("invalid summary id")
)

// Data is anything the storage can persist as one JSON document
type Data interface {
	json.Marshaler
	json.Unmarshaler
}

// FileStorage keeps one indented JSON file per ID under basePath.
type FileStorage[T Data] struct {
	basePath string
}

func NewFileStorage[T Data](basePath string) (*FileStorage[T], error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStorage[T]{basePath: basePath}, nil
}

// Path returns the storage directory
func (s *FileStorage[T]) Path() string {
	return s.basePath
}

func (s *FileStorage[T]) file(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(s.basePath, id+".json"), nil
}

func (s *FileStorage[T]) Save(id string, data T) error {
	path, err := s.file(id)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")

	return encoder.Encode(data)
}

func (s *FileStorage[T]) Load(id string) (T, error) {
	var zero T
	path, err := s.file(id)
	if err != nil {
		return zero, err
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return zero, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return zero, err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&zero); err != nil {
		return zero, fmt.Errorf("decode %s: %w", id, err)
	}
	return zero, nil
}

// Exists reports whether id has a stored document
func (s *FileStorage[T]) Exists(id string) bool {
	path, err := s.file(id)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Info describes one stored summary
type Info struct {
	ID         string    `json:"id"`
	ModifiedAt time.Time `json:"modifiedAt"`
	FileSizeKB int64     `json:"fileSizeKB"`
}

// List returns every stored document, sorted by ID
func (s *FileStorage[T]) List() ([]Info, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}

	infos := make([]Info, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		info, err := entry.Info()
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}

		infos = append(infos, Info{
			ID:         strings.TrimSuffix(entry.Name(), ".json"),
			ModifiedAt: info.ModTime(),
			FileSizeKB: info.Size() / 1024,
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}
