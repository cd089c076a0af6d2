package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/client"
)

// Transport names accepted by --transport
const (
	TransportSocket  = "socket"
	TransportPolling = "polling"
)

// Config holds CLI configuration
type Config struct {
	ServerURL   string
	Transport   string
	SessionFile string
	Output      string
	Timeout     time.Duration
	Verbose     bool
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		ServerURL:   getEnvOrDefault("SNL_SERVER", "http://localhost:8080"),
		Transport:   getEnvOrDefault("SNL_TRANSPORT", TransportSocket),
		SessionFile: getEnvOrDefault("SNL_SESSION_FILE", client.DefaultSessionPath()),
		Output:      "text",
		Timeout:     10 * time.Second,
		Verbose:     false,
	}
}

// Validate checks flag values that cobra cannot
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportSocket, TransportPolling:
	default:
		return fmt.Errorf("invalid transport %q: must be %s or %s", c.Transport, TransportSocket, TransportPolling)
	}
	switch c.Output {
	case "text", "json":
	default:
		return fmt.Errorf("invalid output %q: must be text or json", c.Output)
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
