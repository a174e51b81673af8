package photos

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"cattle-worker-go/internal/models"
)

// Encoder turns a BGR crop into JPEG bytes.
type Encoder func(frame *models.RawFrame) ([]byte, error)

// Store writes entity photos under one directory.
type Store struct {
	dir    string
	encode Encoder
	now    func() time.Time
}

func New(dir string, encode Encoder) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create photos dir %s: %w", dir, err)
	}
	return &Store{dir: dir, encode: encode, now: time.Now}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Save writes <dir>/<safe-name>_<YYYYmmdd_HHMMSS>.jpg and returns its path.
func (s *Store) Save(crop *models.RawFrame, name string) (string, error) {
	data, err := s.encode(crop)
	if err != nil {
		return "", fmt.Errorf("failed to encode photo: %w", err)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s_%s.jpg", SafeName(name), s.now().Format("20060102_150405")))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write photo: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to finalize photo: %w", err)
	}
	return path, nil
}

// SafeName keeps letters, digits, '-' and '_'; everything else becomes '_'.
func SafeName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, name)
}
