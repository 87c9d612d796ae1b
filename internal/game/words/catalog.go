// Package words provides the static word-pair catalog the game draws from.
// Each pair holds the villagers' word first and the imposter's word second.
package words

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/imposter/internal/game/rng"
)

// Pair is one word pairing: Common goes to the villagers, Imposter to the
// single imposter.
type Pair struct {
	Common   string `yaml:"common"`
	Imposter string `yaml:"imposter"`
}

// yamlCatalogFile is the top-level YAML structure for catalog files.
type yamlCatalogFile struct {
	Pairs []Pair `yaml:"pairs"`
}

// ErrEmptyCatalog is returned when a catalog contains no pairs.
var ErrEmptyCatalog = errors.New("word catalog is empty")

// Catalog is a read-only set of word pairs.
type Catalog struct {
	pairs []Pair
}

// NewCatalog builds a Catalog from the given pairs.
//
// Precondition: pairs must be non-empty and every pair must have two non-empty words.
// Postcondition: Returns a validated Catalog or a non-nil error.
func NewCatalog(pairs []Pair) (*Catalog, error) {
	if len(pairs) == 0 {
		return nil, ErrEmptyCatalog
	}
	for i, p := range pairs {
		if p.Common == "" || p.Imposter == "" {
			return nil, fmt.Errorf("pair %d: both words must be non-empty", i)
		}
	}
	cp := make([]Pair, len(pairs))
	copy(cp, pairs)
	return &Catalog{pairs: cp}, nil
}

// LoadFromFile reads and validates a catalog YAML file.
//
// Precondition: path must point to a valid YAML catalog file.
// Postcondition: Returns a validated Catalog or a non-nil error.
func LoadFromFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file %s: %w", path, err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses and validates a catalog from YAML bytes.
//
// Precondition: data must be valid YAML conforming to the catalog schema.
// Postcondition: Returns a validated Catalog or a non-nil error.
func LoadFromBytes(data []byte) (*Catalog, error) {
	var file yamlCatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing catalog YAML: %w", err)
	}
	return NewCatalog(file.Pairs)
}

// Draw returns a uniformly random pair from the catalog.
//
// Precondition: src must be non-nil.
func (c *Catalog) Draw(src rng.Source) Pair {
	return c.pairs[src.Intn(len(c.pairs))]
}

// Len returns the number of pairs in the catalog.
func (c *Catalog) Len() int {
	return len(c.pairs)
}
