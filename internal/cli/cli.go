package cli

import (
	"errors"
	"flag"
	"strings"
)

// CLIArgs are the command-line arguments that control a single pass or the
// API server.
type CLIArgs struct {
	// ConfigPath points at the YAML config. Empty means built-in defaults.
	ConfigPath string

	// Dealership runs one dealership's pass.
	Dealership string

	// All runs every configured dealership.
	All bool

	// Serve starts the HTTP API instead of running passes.
	Serve bool

	// Enrich follows a completed single-dealership pass with cross-source
	// enrichment. -all always enriches.
	Enrich bool

	// LogLevel overrides the configured level when set.
	LogLevel string

	// RawArgs is the original args slice (useful for debugging/tests).
	RawArgs []string
}

// ParseArgs parses a slice of args and returns CLIArgs. The function is
// deterministic and does not read os.Args.
func ParseArgs(args []string) (*CLIArgs, error) {
	fs := flag.NewFlagSet("lotsync", flag.ContinueOnError)
	var (
		configPath = fs.String("config", "", "Path to the YAML config file")
		dealership = fs.String("dealership", "", "Reconcile a single dealership by id")
		all        = fs.Bool("all", false, "Reconcile every configured dealership")
		serve      = fs.Bool("serve", false, "Start the HTTP API")
		enrich     = fs.Bool("enrich", true, "With -dealership, run cross-source enrichment after a completed pass")
		logLevel   = fs.String("log-level", "", "Override the log level: debug|info|warn|error")
	)

	// Ensure Parse doesn't write to stdout/stderr in tests
	fs.SetOutput(nil)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	dealer := strings.TrimSpace(*dealership)
	modes := 0
	for _, set := range []bool{dealer != "", *all, *serve} {
		if set {
			modes++
		}
	}
	switch {
	case modes == 0:
		return nil, errors.New("one of -dealership, -all or -serve is required")
	case modes > 1:
		return nil, errors.New("-dealership, -all and -serve are mutually exclusive")
	}

	return &CLIArgs{
		ConfigPath: *configPath,
		Dealership: dealer,
		All:        *all,
		Serve:      *serve,
		Enrich:     *enrich,
		LogLevel:   *logLevel,
		RawArgs:    args,
	}, nil
}
