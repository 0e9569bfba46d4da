// Package config loads experiment options.
//
// Options come from a YAML file with a "standard" section and optional
// per-model sections. A model section overrides only the keys it sets;
// command-line flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the options file looked up in the working directory.
const DefaultFile = "options.yaml"

// Params is the effective parameter set for one model.
type Params struct {
	Thresholds     []float64 `yaml:"threshold"`
	BatchSize      int       `yaml:"batch_size"`
	Window         int       `yaml:"window"` // hours
	Annotation     string    `yaml:"annotation"`
	Lang           string    `yaml:"lang"`
	RemoveMentions bool      `yaml:"remove_mentions"`
	SubModel       string    `yaml:"sub_model,omitempty"`
	MinDF          int       `yaml:"min_df"`
	Corpus         string    `yaml:"corpus,omitempty"` // IDF corpus for tfidf_all_tweets
	Metric         string    `yaml:"distance"`
	Update         string    `yaml:"update"`
	WindowSpan     string    `yaml:"window_span,omitempty"` // time eviction, e.g. "6h"
	Workers        int       `yaml:"workers"`
	SaveResults    bool      `yaml:"save_results"`
	ResultsFile    string    `yaml:"results_file"`
}

// Defaults returns the parameters used when no options file exists.
func Defaults() Params {
	return Params{
		Thresholds:  []float64{0.7},
		BatchSize:   8,
		Window:      24,
		Annotation:  "annotated",
		Lang:        "en",
		MinDF:       1,
		Metric:      "cosine",
		Update:      "first-member",
		SaveResults: true,
		ResultsFile: "results_clustering.csv",
	}
}

// Options is a parsed options file.
type Options struct {
	Path     string
	sections map[string]yaml.Node
}

// Load reads an options file. A missing file yields empty Options so every
// model gets Defaults.
func Load(path string) (*Options, error) {
	o := &Options{Path: path, sections: map[string]yaml.Node{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return o, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &o.sections); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return o, nil
}

// Params merges Defaults, the standard section and the model's section.
func (o *Options) Params(model string) (Params, error) {
	p := Defaults()
	for _, name := range []string{"standard", model} {
		node, ok := o.sections[name]
		if !ok {
			continue
		}
		if err := node.Decode(&p); err != nil {
			return Params{}, fmt.Errorf("config: section %q: %w", name, err)
		}
	}
	return p, nil
}

// Models lists the per-model sections present in the file.
func (o *Options) Models() []string {
	var out []string
	for name := range o.sections {
		if name != "standard" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Env holds settings read from the environment.
type Env struct {
	JinaAPIKey  string
	JinaModel   string
	OllamaHost  string
	OllamaModel string
	DBPath      string
}

// FromEnv reads API keys and endpoints from the environment.
func FromEnv() Env {
	return Env{
		JinaAPIKey:  os.Getenv("JINA_API_KEY"),
		JinaModel:   envOrDefault("JINA_MODEL", "jina-embeddings-v3"),
		OllamaHost:  envOrDefault("OLLAMA_HOST", "http://localhost:11434"),
		OllamaModel: envOrDefault("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		DBPath:      envOrDefault("TOPICSTREAM_DB", filepath.Join(Dir(), "topicstream.db")),
	}
}

// Dir returns the per-user topicstream directory.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".topicstream"
	}
	return filepath.Join(home, ".topicstream")
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
