package config

// FeatureConfig toggles a single server feature
type FeatureConfig struct {
	Enabled bool `yaml:"enabled"`
}

// FeaturesConfig holds the optional parts of the server
type FeaturesConfig struct {
	SSEEvents   FeatureConfig `yaml:"sse_events"`
	Export      FeatureConfig `yaml:"export"`
	Persistence FeatureConfig `yaml:"persistence"`
	HotReload   FeatureConfig `yaml:"hot_reload"`
}

// DefaultFeatures returns the default feature configuration
func DefaultFeatures() FeaturesConfig {
	return FeaturesConfig{
		SSEEvents:   FeatureConfig{Enabled: true},
		Export:      FeatureConfig{Enabled: true},
		Persistence: FeatureConfig{Enabled: true},
		HotReload:   FeatureConfig{Enabled: false}, // Needs scenario.file
	}
}

// FeatureInfo provides runtime info about a feature
type FeatureInfo struct {
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

// ListFeatures returns info about all features
func (f *FeaturesConfig) ListFeatures() []FeatureInfo {
	return []FeatureInfo{
		{
			Name:        "sse_events",
			Enabled:     f.SSEEvents.Enabled,
			Description: "Server-Sent Events streaming every snapshot",
		},
		{
			Name:        "export",
			Enabled:     f.Export.Enabled,
			Description: "JSON/YAML snapshot export",
		},
		{
			Name:        "persistence",
			Enabled:     f.Persistence.Enabled,
			Description: "SQLite run history",
		},
		{
			Name:        "hot_reload",
			Enabled:     f.HotReload.Enabled,
			Description: "Reset the run when the scenario file changes",
		},
	}
}

// IsEnabled checks if a feature is enabled
func (f *FeaturesConfig) IsEnabled(name string) bool {
	for _, feature := range f.ListFeatures() {
		if feature.Name == name {
			return feature.Enabled
		}
	}
	return false
}
