package domain

import "time"

// DefaultRegistryURL is the registry used when no other is configured.
const DefaultRegistryURL = "https://registry.npmjs.org/"

// Config holds the resolved project configuration.
type Config struct {
	// Root is the absolute project root.
	Root string
	// Registry is the base URL of the default registry.
	Registry string
	// Registries maps registry aliases to base URLs.
	Registries map[string]string
	// Workspaces lists workspace directories relative to Root, in sorted order.
	Workspaces []string
	// Overrides replaces the specifier of any dependency with the given name.
	Overrides map[string]string
	// Jobs bounds concurrent resolution and script execution.
	Jobs int

	CacheDir      string
	CacheTTL      time.Duration
	FetchRetries  int
	FetchTimeout  time.Duration
	ScriptsEnable bool
	ScriptShell   string
}

// RegistryURL returns the base URL for a registry alias. Unknown and empty
// aliases map to the default registry.
func (c *Config) RegistryURL(alias string) string {
	if u, ok := c.Registries[alias]; ok && alias != "" {
		return u
	}
	return c.Registry
}
