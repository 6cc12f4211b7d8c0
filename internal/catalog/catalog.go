package catalog

import (
	"fmt"
	"os"

	"p5glab/internal/config"
	"p5glab/internal/models"

	"gopkg.in/yaml.v2"
)

// Catalog is the read-only experiment lookup. It is built once at startup
// and injected wherever an exp_key needs resolving; nothing mutates it.
type Catalog struct {
	byKey   map[string]models.Experiment
	ordered []models.Experiment
}

// Load reads an experiments YAML file and builds the catalog.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read experiments file: %w", err)
	}

	var file struct {
		Experiments []models.Experiment `yaml:"experiments"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse experiments file: %w", err)
	}

	return New(file.Experiments)
}

// New builds a catalog from an already-parsed experiment list.
func New(experiments []models.Experiment) (*Catalog, error) {
	if err := config.ValidateExperiments(experiments); err != nil {
		return nil, err
	}

	byKey := make(map[string]models.Experiment, len(experiments))
	for _, exp := range experiments {
		byKey[exp.Key] = exp
	}

	return &Catalog{byKey: byKey, ordered: experiments}, nil
}

// Get returns the experiment for a key.
func (c *Catalog) Get(key string) (models.Experiment, bool) {
	exp, ok := c.byKey[key]
	return exp, ok
}

// All returns experiments in file order.
func (c *Catalog) All() []models.Experiment {
	out := make([]models.Experiment, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// ActionRef resolves the restart handle for an experiment. Experiments
// without a restart script still activate; the runner just has nothing to do.
func (c *Catalog) ActionRef(key string) (models.ActionRef, error) {
	exp, ok := c.byKey[key]
	if !ok {
		return models.ActionRef{}, fmt.Errorf("experiment %q not in catalog", key)
	}
	return models.ActionRef{ExpKey: exp.Key, Script: exp.RestartScript, URL: exp.URL}, nil
}
