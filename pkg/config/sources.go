package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SourceProfile describes one watchtower feed source: identity, whether it
// participates in batch syncs, whether its failure degrades overall health,
// and the endpoint set the adapter should use.
type SourceProfile struct {
	ID           string   `yaml:"id" json:"id"`
	Name         string   `yaml:"name" json:"name"`
	Category     string   `yaml:"category" json:"category"`
	Enabled      bool     `yaml:"enabled" json:"enabled"`
	Required     bool     `yaml:"required" json:"required"`
	URL          string   `yaml:"url" json:"url"`
	FallbackURLs []string `yaml:"fallback_urls,omitempty" json:"fallback_urls,omitempty"`
	Description  string   `yaml:"description,omitempty" json:"description,omitempty"`
	CacheTTLSecs int      `yaml:"cache_ttl_seconds,omitempty" json:"cache_ttl_seconds,omitempty"`
}

// CacheTTL returns the profile's cache TTL, defaulting to 15 minutes.
func (p *SourceProfile) CacheTTL() time.Duration {
	if p.CacheTTLSecs <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(p.CacheTTLSecs) * time.Second
}

type sourcesFile struct {
	Sources []SourceProfile `yaml:"sources"`
}

// DefaultSources returns the built-in FDA source set.
func DefaultSources() []SourceProfile {
	return []SourceProfile{
		{
			ID:       "fda_recalls",
			Name:     "FDA Drug Recalls",
			Category: "recall",
			Enabled:  true,
			Required: true,
			URL:      "https://api.fda.gov/drug/enforcement.json",
			FallbackURLs: []string{
				"https://www.fda.gov/about-fda/contact-fda/stay-informed/rss-feeds/drug-recalls/rss.xml",
				"https://www.fda.gov/drugs/drug-safety-and-availability/drug-recalls/rss",
			},
			Description: "FDA Drug Recalls via openFDA API",
		},
		{
			ID:       "fda_shortages",
			Name:     "FDA Drug Shortages",
			Category: "shortage",
			Enabled:  true,
			Required: true,
			URL:      "https://api.fda.gov/drug/shortages.json",
			FallbackURLs: []string{
				"https://www.accessdata.fda.gov/scripts/drugshortages/default.cfm",
			},
			Description: "FDA Drug Shortages via openFDA API",
		},
		{
			ID:       "fda_warning_letters",
			Name:     "FDA Warning Letters",
			Category: "warning_letter",
			Enabled:  true,
			Required: true,
			URL:      "https://www.fda.gov/inspections-compliance-enforcement-and-criminal-investigations/compliance-actions-and-activities/warning-letters",
			FallbackURLs: []string{
				"https://www.fda.gov/drugs/enforcement-activities-fda/warning-letters-and-notice-violation-letters-pharmaceutical-companies",
			},
			Description: "FDA Warning Letters via HTML scraping",
		},
	}
}

// LoadSources loads source profiles from a YAML file. An empty path returns
// the built-in defaults.
func LoadSources(path string) ([]SourceProfile, error) {
	if path == "" {
		return DefaultSources(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load sources %q: %w", path, err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse sources %q: %w", path, err)
	}
	if len(file.Sources) == 0 {
		return nil, fmt.Errorf("sources %q: no sources defined", path)
	}

	for i := range file.Sources {
		if err := file.Sources[i].validate(); err != nil {
			return nil, fmt.Errorf("sources %q: %w", path, err)
		}
	}
	return file.Sources, nil
}

func (p *SourceProfile) validate() error {
	if p.ID == "" {
		return fmt.Errorf("source with empty id")
	}
	if p.URL == "" {
		return fmt.Errorf("source %q: url is required", p.ID)
	}
	switch p.Category {
	case "recall", "shortage", "warning_letter":
	default:
		return fmt.Errorf("source %q: invalid category %q", p.ID, p.Category)
	}
	return nil
}
