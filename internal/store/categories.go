package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"fjacquet/ledger-sync/internal/logging"
	"fjacquet/ledger-sync/internal/models"
)

// CategoryStore loads the category list the classifier chooses from.
type CategoryStore struct {
	CategoriesFile string
	logger         logging.Logger
}

// NewCategoryStore creates a store reading categoriesFile.
func NewCategoryStore(categoriesFile string, logger logging.Logger) *CategoryStore {
	return &CategoryStore{CategoriesFile: categoriesFile, logger: logger}
}

type categoriesFile struct {
	Categories []models.Category `yaml:"categories"`
}

// FindConfigFile looks for filename as given, under ./config, then under
// $HOME/.ledger-sync.
func (s *CategoryStore) FindConfigFile(filename string) (string, error) {
	if filepath.IsAbs(filename) {
		if _, err := os.Stat(filename); err != nil {
			return "", os.ErrNotExist
		}
		return filename, nil
	}

	locations := []string{filename, filepath.Join("config", filename)}
	if home, err := os.UserHomeDir(); err == nil {
		locations = append(locations, filepath.Join(home, ".ledger-sync", filename))
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location, nil
		}
	}
	return "", os.ErrNotExist
}

// LoadCategories reads either a top-level "categories:" list or a bare list.
// A missing file yields an empty list. Entries without an id get one derived
// from the name.
func (s *CategoryStore) LoadCategories() ([]models.Category, error) {
	filename := s.CategoriesFile
	if filename == "" {
		filename = "categories.yaml"
	}

	path, err := s.FindConfigFile(filename)
	if err != nil {
		s.logger.Warn("Categories file not found", logging.F(logging.FieldInputFile, filename))
		return []models.Category{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading categories file: %w", err)
	}

	var wrapped categoriesFile
	var categories []models.Category
	if err := yaml.Unmarshal(data, &wrapped); err == nil && len(wrapped.Categories) > 0 {
		categories = wrapped.Categories
	} else if err := yaml.Unmarshal(data, &categories); err != nil {
		return nil, fmt.Errorf("error parsing categories file %s: %w", path, err)
	}

	out := make([]models.Category, 0, len(categories))
	for _, c := range categories {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" && c.ID == "" {
			continue
		}
		if c.ID == "" {
			c.ID = CategoryID(c.Name)
		}
		if c.Name == "" {
			c.Name = c.ID
		}
		out = append(out, c)
	}

	s.logger.Debug("Loaded categories",
		logging.F(logging.FieldInputFile, path),
		logging.F(logging.FieldCount, len(out)))
	return out, nil
}

// CategoryID derives a stable id from a category name: "Food & Drink" becomes
// "food_drink".
func CategoryID(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}
	return b.String()
}
