package analysis

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Names under which the chain is published. Other index configuration refers
// to them, so they are part of the wire contract.
const (
	CharFilterStripScheme = "strip_scheme"
	FilterPathURL         = "path_url"
	FilterRstripSlash     = "rstrip_slash"
	TokenizerURIPart      = "uri_part"

	AnalyzerURI     = "uri"
	AnalyzerURIPart = "uri_part"
)

type CharFilter struct {
	Type        string `json:"type" yaml:"type"`
	Pattern     string `json:"pattern" yaml:"pattern"`
	Replacement string `json:"replacement" yaml:"replacement"`
}

type Filter struct {
	Type             string   `json:"type" yaml:"type"`
	Pattern          string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Patterns         []string `json:"patterns,omitempty" yaml:"patterns,omitempty"`
	Replacement      string   `json:"replacement,omitempty" yaml:"replacement,omitempty"`
	PreserveOriginal *bool    `json:"preserve_original,omitempty" yaml:"preserve_original,omitempty"`
}

type Tokenizer struct {
	Type    string `json:"type" yaml:"type"`
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

type AnalyzerDef struct {
	Type       string   `json:"type" yaml:"type"`
	CharFilter []string `json:"char_filter,omitempty" yaml:"char_filter,omitempty"`
	Tokenizer  string   `json:"tokenizer" yaml:"tokenizer"`
	Filter     []string `json:"filter,omitempty" yaml:"filter,omitempty"`
}

// Settings is the analysis block an external indexing engine consumes.
type Settings struct {
	CharFilter map[string]CharFilter  `json:"char_filter" yaml:"char_filter"`
	Filter     map[string]Filter      `json:"filter" yaml:"filter"`
	Tokenizer  map[string]Tokenizer   `json:"tokenizer" yaml:"tokenizer"`
	Analyzer   map[string]AnalyzerDef `json:"analyzer" yaml:"analyzer"`
}

// DefaultSettings describes the chain implemented in this package.
func DefaultSettings() Settings {
	preserve := false
	return Settings{
		CharFilter: map[string]CharFilter{
			CharFilterStripScheme: {
				Type:        "pattern_replace",
				Pattern:     StripSchemePattern,
				Replacement: StripSchemeReplacement,
			},
		},
		Filter: map[string]Filter{
			FilterPathURL: {
				Type:             "pattern_capture",
				Patterns:         []string{PathURLPattern},
				PreserveOriginal: &preserve,
			},
			FilterRstripSlash: {
				Type:        "pattern_replace",
				Pattern:     RstripSlashPattern,
				Replacement: RstripSlashReplacement,
			},
		},
		Tokenizer: map[string]Tokenizer{
			TokenizerURIPart: {
				Type:    "pattern",
				Pattern: URIPartPattern,
			},
		},
		Analyzer: map[string]AnalyzerDef{
			AnalyzerURI: {
				Type:       "custom",
				CharFilter: []string{CharFilterStripScheme},
				Tokenizer:  "keyword",
				Filter:     []string{FilterPathURL, FilterRstripSlash, "lowercase"},
			},
			AnalyzerURIPart: {
				Type:      "custom",
				Tokenizer: TokenizerURIPart,
				Filter:    []string{"lowercase"},
			},
		},
	}
}

// YAML renders the settings for index templates kept in config repos.
func (s Settings) YAML() ([]byte, error) {
	out, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis settings: %w", err)
	}
	return out, nil
}

// ParseSettings reads settings previously written by YAML.
func ParseSettings(data []byte) (Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse analysis settings: %w", err)
	}
	return s, nil
}
