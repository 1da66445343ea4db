package collector

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"autopress/internal/pkg/logger"
)

// One feed to poll.
type Source struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Category string `yaml:"category"`
}

type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// Reads the feed list from a YAML file. Entries without a name or URL
// are dropped with a warning rather than failing the whole file.
func LoadSources(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var parsed sourcesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}

	sources := make([]Source, 0, len(parsed.Sources))
	for _, source := range parsed.Sources {
		if source.Name == "" || source.URL == "" {
			logger.Log.Warn("Skipping source with missing name or url",
				zap.String("name", source.Name),
				zap.String("url", source.URL))
			continue
		}
		sources = append(sources, source)
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("no usable sources in %s", path)
	}
	return sources, nil
}
