package webclient

import "time"

type Client string

const (
	ClientNetHTTP  Client = "nethttp"
	ClientChromedp Client = "chromedp"
)

// Config selects and tunes a backend.
type Config struct {
	Client    Client        `yaml:"client"`
	Timeout   time.Duration `yaml:"timeout"`
	IdleAfter time.Duration `yaml:"idle_after"`
	Headless  *bool         `yaml:"headless"`
	UserAgent string        `yaml:"user_agent"`
}

// DefaultConfig returns the nethttp backend with a 30s timeout.
func DefaultConfig() Config {
	return Config{
		Client:    ClientNetHTTP,
		Timeout:   30 * time.Second,
		IdleAfter: 2 * time.Second,
		UserAgent: "lotsync/0.1 (+inventory sync)",
	}
}
