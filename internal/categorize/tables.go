package categorize

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed taxonomy.yaml
var defaultTaxonomy []byte

//go:embed usecases.yaml
var defaultUseCases []byte

// Category is a top-level category with its keywords and subcategories
type Category struct {
	Name          string   `yaml:"name"`
	Keywords      []string `yaml:"keywords"`
	Subcategories []string `yaml:"subcategories"`
}

type Taxonomy struct {
	Categories []Category `yaml:"categories"`
}

// UseCaseRule lists the clip traits that make a use case fitting.
// Absent criteria do not count towards the maximum score.
type UseCaseRule struct {
	Name       string   `yaml:"name"`
	Keywords   []string `yaml:"keywords"`
	Moods      []string `yaml:"moods"`
	Motion     []string `yaml:"motion"`
	Categories []string `yaml:"categories"`
	EnergyMin  *float64 `yaml:"energy_min"`
	EnergyMax  *float64 `yaml:"energy_max"`
}

type useCaseFile struct {
	UseCases []UseCaseRule `yaml:"use_cases"`
}

func readTable(path string, fallback []byte) ([]byte, error) {
	if path == "" {
		return fallback, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// LoadTaxonomy parses the taxonomy at path, or the built-in one when path
// is empty
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data, err := readTable(path, defaultTaxonomy)
	if err != nil {
		return nil, err
	}
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	if len(t.Categories) == 0 {
		return nil, fmt.Errorf("taxonomy has no categories")
	}
	for _, c := range t.Categories {
		if c.Name == "" {
			return nil, fmt.Errorf("taxonomy has a category without a name")
		}
	}
	return &t, nil
}

// LoadUseCases parses the use-case rules at path, or the built-in ones when
// path is empty
func LoadUseCases(path string) ([]UseCaseRule, error) {
	data, err := readTable(path, defaultUseCases)
	if err != nil {
		return nil, err
	}
	var f useCaseFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse use cases: %w", err)
	}
	for _, r := range f.UseCases {
		if r.Name == "" {
			return nil, fmt.Errorf("use case rule without a name")
		}
	}
	return f.UseCases, nil
}
