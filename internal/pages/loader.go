package pages

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/siteverify/internal/models"
	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk catalog layout shared by TOML and YAML
type catalogFile struct {
	Pages []pageEntry `toml:"pages" yaml:"pages"`
}

type pageEntry struct {
	Name            string              `toml:"name" yaml:"name"`
	Route           string              `toml:"route" yaml:"route"`
	Landmarks       []string            `toml:"landmarks" yaml:"landmarks"`
	ExpectedContent []string            `toml:"expected_content" yaml:"expected_content"`
	Capabilities    models.Capabilities `toml:"capabilities" yaml:"capabilities"`
	TitlePattern    string              `toml:"title_pattern" yaml:"title_pattern"`
	HeadingPattern  string              `toml:"heading_pattern" yaml:"heading_pattern"`
	Items           []string            `toml:"items" yaml:"items"`
}

// LoadCatalog reads a catalog file; the format is chosen by extension (.toml, .yaml, .yml)
func LoadCatalog(path string) ([]models.PageSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}

	var file catalogFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format: %s", path)
	}

	specs := make([]models.PageSpec, 0, len(file.Pages))
	for i, entry := range file.Pages {
		spec, err := entry.toSpec()
		if err != nil {
			return nil, fmt.Errorf("catalog %s page %d: %w", path, i+1, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (e pageEntry) toSpec() (models.PageSpec, error) {
	spec := models.PageSpec{
		Name:           e.Name,
		Route:          e.Route,
		Capabilities:   e.Capabilities,
		TitlePattern:   e.TitlePattern,
		HeadingPattern: e.HeadingPattern,
	}

	for _, l := range e.Landmarks {
		strategy, err := models.ParseStrategy(l)
		if err != nil {
			return spec, err
		}
		spec.LandmarkSelectors = append(spec.LandmarkSelectors, strategy)
	}

	for _, item := range e.Items {
		strategy, err := models.ParseStrategy(item)
		if err != nil {
			return spec, err
		}
		spec.ItemSelectors = append(spec.ItemSelectors, strategy)
	}

	for _, c := range e.ExpectedContent {
		matcher, err := models.ParseContentMatcher(c)
		if err != nil {
			return spec, err
		}
		spec.ExpectedContent = append(spec.ExpectedContent, matcher)
	}

	return spec, nil
}

// NewRegistryFromConfig builds the registry from a catalog file, or the
// built-in catalog when path is empty
func NewRegistryFromConfig(path string) (*Registry, error) {
	if path == "" {
		return NewRegistry(DefaultCatalog())
	}
	specs, err := LoadCatalog(path)
	if err != nil {
		return nil, err
	}
	return NewRegistry(specs)
}
