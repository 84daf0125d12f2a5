package config

// Nestfile represents the structure of the nest.yaml configuration file.
type Nestfile struct {
	Registry   string            `yaml:"registry"`
	Registries map[string]string `yaml:"registries"`
	Workspaces []string          `yaml:"workspaces"`
	Jobs       int               `yaml:"jobs"`
	Cache      CacheDTO          `yaml:"cache"`
	Fetch      FetchDTO          `yaml:"fetch"`
	Overrides  map[string]string `yaml:"overrides"`
	Scripts    ScriptsDTO        `yaml:"scripts"`
}

// CacheDTO configures the metadata cache.
type CacheDTO struct {
	Dir string `yaml:"dir"`
	TTL string `yaml:"ttl"`
}

// FetchDTO configures network fetches.
type FetchDTO struct {
	Retries *int   `yaml:"retries"`
	Timeout string `yaml:"timeout"`
}

// ScriptsDTO configures lifecycle scripts.
type ScriptsDTO struct {
	Enabled *bool  `yaml:"enabled"`
	Shell   string `yaml:"shell"`
}
