package demolot

// Config holds configuration for the demo lot.
type Config struct {
	// Port is the port on which the demo lot listens.
	Port int

	// PageSize is the number of vehicles per inventory page.
	PageSize int

	// Vehicles is the size of the generated inventory.
	Vehicles int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:     9999,
		PageSize: 5,
		Vehicles: 12,
	}
}
