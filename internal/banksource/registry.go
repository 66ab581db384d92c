// Package banksource holds the registry of configured bank export formats and
// persists it as YAML.
package banksource

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"fjacquet/ledger-sync/internal/fileutils"
	"fjacquet/ledger-sync/internal/logging"
	"fjacquet/ledger-sync/internal/models"
	"fjacquet/ledger-sync/internal/txerror"
)

// file is the on-disk layout of the registry.
type file struct {
	Sources []models.BankSource `yaml:"sources"`
}

// Registry maps bank source ids to their definitions. A source's column mapping
// cannot change once it has been marked processed.
type Registry struct {
	path    string
	logger  logging.Logger
	sources map[string]models.BankSource
}

// NewRegistry creates an in-memory registry seeded with sources.
func NewRegistry(logger logging.Logger, sources ...models.BankSource) (*Registry, error) {
	r := &Registry{logger: logger, sources: make(map[string]models.BankSource)}
	for _, src := range sources {
		if err := r.Upsert(src); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// LoadRegistry reads the registry at path. Sources in defaults that the file does
// not define are added; a missing file yields a registry of defaults only.
func LoadRegistry(path string, logger logging.Logger, defaults []models.BankSource) (*Registry, error) {
	r, err := NewRegistry(logger)
	if err != nil {
		return nil, err
	}
	r.path = path

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Warn("Bank source registry not found, using built-in sources",
			logging.F(logging.FieldInputFile, path))
	case err != nil:
		return nil, fmt.Errorf("error reading bank source registry: %w", err)
	default:
		var f file
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, &txerror.ConfigError{Key: "sources.file", Reason: "invalid YAML", Err: err}
		}
		for _, src := range f.Sources {
			if err := r.Upsert(src); err != nil {
				return nil, err
			}
		}
		logger.Debug("Loaded bank sources",
			logging.F(logging.FieldInputFile, path), logging.F(logging.FieldCount, len(f.Sources)))
	}

	for _, src := range defaults {
		if _, ok := r.sources[src.ID]; !ok {
			if err := r.Upsert(src); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// Get returns the source with id, or a ConfigError when it is not registered.
func (r *Registry) Get(id string) (models.BankSource, error) {
	src, ok := r.sources[id]
	if !ok {
		return models.BankSource{}, &txerror.ConfigError{Key: "sources." + id, Reason: "bank source not registered"}
	}
	src.ColumnMapping = maps.Clone(src.ColumnMapping)
	return src, nil
}

// List returns all sources ordered by id.
func (r *Registry) List() []models.BankSource {
	out := make([]models.BankSource, 0, len(r.sources))
	for _, id := range r.IDs() {
		src, _ := r.Get(id)
		out = append(out, src)
	}
	return out
}

// IDs returns the registered source ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.sources))
	for id := range r.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Upsert adds or replaces a source definition. Replacing the column mapping of a
// processed source fails with MappingLockedError.
func (r *Registry) Upsert(src models.BankSource) error {
	if err := Validate(src); err != nil {
		return err
	}
	if existing, ok := r.sources[src.ID]; ok && existing.Processed {
		if !maps.Equal(existing.ColumnMapping, src.ColumnMapping) {
			return &txerror.MappingLockedError{SourceID: src.ID}
		}
		src.Processed = true
	}
	src.ColumnMapping = maps.Clone(src.ColumnMapping)
	r.sources[src.ID] = src
	return nil
}

// UpdateMapping replaces the column mapping of an unprocessed source.
func (r *Registry) UpdateMapping(id string, mapping map[string]string) error {
	src, err := r.Get(id)
	if err != nil {
		return err
	}
	if src.Processed {
		return &txerror.MappingLockedError{SourceID: id}
	}
	src.ColumnMapping = mapping
	return r.Upsert(src)
}

// MarkProcessed locks the source's column mapping.
func (r *Registry) MarkProcessed(id string) error {
	src, ok := r.sources[id]
	if !ok {
		return &txerror.ConfigError{Key: "sources." + id, Reason: "bank source not registered"}
	}
	if src.Processed {
		return nil
	}
	src.Processed = true
	r.sources[id] = src
	r.logger.Info("Bank source column mapping locked", logging.F(logging.FieldSourceID, id))
	return nil
}

// Save writes the registry back to its file. In-memory registries are a no-op.
func (r *Registry) Save() error {
	if r.path == "" {
		return nil
	}
	data, err := yaml.Marshal(file{Sources: r.List()})
	if err != nil {
		return fmt.Errorf("error marshaling bank sources: %w", err)
	}
	if err := fileutils.EnsureDirectoryExists(filepath.Dir(r.path)); err != nil {
		return err
	}
	if err := os.WriteFile(r.path, data, models.PermissionConfigFile); err != nil {
		return fmt.Errorf("error writing bank sources: %w", err)
	}
	r.logger.Debug("Saved bank sources", logging.F(logging.FieldCount, len(r.sources)))
	return nil
}

// Validate checks that a source maps every canonical field a normalizer needs.
func Validate(src models.BankSource) error {
	if src.ID == "" {
		return &txerror.ConfigError{Key: "sources", Reason: "bank source id is empty"}
	}
	key := "sources." + src.ID + ".column_mapping"

	_, hasDate := src.Column(models.FieldDate)
	_, hasCompleted := src.Column(models.FieldCompleted)
	_, hasStarted := src.Column(models.FieldStarted)
	if !hasDate && !hasCompleted && !hasStarted {
		return &txerror.ConfigError{Key: key, Reason: "no date column mapped"}
	}
	for _, field := range []string{models.FieldDescription, models.FieldAmount} {
		if _, ok := src.Column(field); !ok {
			return &txerror.ConfigError{Key: key, Reason: "no " + field + " column mapped"}
		}
	}
	if _, ok := src.Column(models.FieldCurrency); !ok && src.DefaultCurrency == "" {
		return &txerror.ConfigError{Key: key, Reason: "no currency column mapped and no default currency"}
	}
	if _, ok := src.Column(models.FieldID); src.HasNativeID && !ok {
		return &txerror.ConfigError{Key: key, Reason: "native id declared but no id column mapped"}
	}
	return nil
}
