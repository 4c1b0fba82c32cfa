package config

const (
	// FeatureRepoSync schedules the periodic marketplace update_all.
	FeatureRepoSync = "repo_sync"
	// FeatureEventForwarding republishes app events on Redis.
	FeatureEventForwarding = "event_forwarding"
	// FeatureAutoUpdateApps updates outdated apps after every repo sync.
	FeatureAutoUpdateApps = "auto_update_apps"
)

// DefaultFeatureValues defines the default values for each feature
var DefaultFeatureValues = map[string]bool{
	FeatureRepoSync:        true,
	FeatureEventForwarding: true,
	FeatureAutoUpdateApps:  false,
}

// IsFeatureEnabled checks if a feature is enabled in the configuration.
func (c *Config) IsFeatureEnabled(feature string) bool {
	value, exists := c.Features[feature]
	if !exists {
		return DefaultFeatureValues[feature]
	}
	return value
}
