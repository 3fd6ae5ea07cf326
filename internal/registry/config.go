package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config adjusts the registry. The zero value uses the built-in language
// table and the embedded query files.
type Config struct {
	// QueriesDir overrides the embedded queries: files found under
	// <QueriesDir>/<language>/ shadow the defaults per file.
	QueriesDir string `yaml:"queries_dir"`

	// Languages extends built-in languages with extra markers.
	Languages []LanguageDef `yaml:"languages"`
}

// LanguageDef adds markers to one built-in language.
type LanguageDef struct {
	Name       string   `yaml:"name"`
	Extensions []string `yaml:"extensions"`
	Aliases    []string `yaml:"aliases"`
	Shebangs   []string `yaml:"shebangs"`
	Filenames  []string `yaml:"filenames"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
