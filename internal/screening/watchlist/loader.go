package watchlist

import (
	"fmt"
	"io"
	"os"

	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Entities []*models.WatchlistEntity `yaml:"entities"`
}

// LoadSeedFile reads watchlist entities from a YAML file
func LoadSeedFile(path string) ([]*models.WatchlistEntity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open watchlist seed %s: %w", path, err)
	}
	defer f.Close()

	return LoadSeed(f)
}

// LoadSeed decodes watchlist entities from a YAML document
func LoadSeed(r io.Reader) ([]*models.WatchlistEntity, error) {
	var doc seedFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode watchlist seed: %w", err)
	}
	for i, e := range doc.Entities {
		if err := validateEntity(e); err != nil {
			return nil, fmt.Errorf("seed entity %d: %w", i, err)
		}
	}
	return doc.Entities, nil
}
