package config

import (
	"fmt"
	"strings"
	"time"
)

// UpstreamConfig configures the remote product catalog the storefront
// fronts. The URL is the base address of the catalog API.
type UpstreamConfig struct {
	Url     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// String returns a string representation of the upstream configuration.
func (c *UpstreamConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Upstream ---\n")
	b.WriteString(fmt.Sprintf("  url: %s\n", c.Url))
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	return b.String()
}

func (c *UpstreamConfig) Validate() error {
	if c.Url == "" {
		return fmt.Errorf("upstream URL is not configured")
	}
	if !strings.HasPrefix(c.Url, "http://") && !strings.HasPrefix(c.Url, "https://") {
		return fmt.Errorf("upstream URL must start with http:// or https://: %s", c.Url)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("upstream timeout is not configured")
	}
	return nil
}
