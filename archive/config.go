package archive

import "fmt"

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Config holds archive initialization parameters.
type Config struct {
	Path   string `json:"path,omitempty"   yaml:"path,omitempty"   env:"STORYLOOP_ARCHIVE_PATH"`   // empty disables archiving
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty" env:"STORYLOOP_ARCHIVE_DRIVER"` // "file" or "sqlite"
}

// DefaultConfig returns the default archive configuration (disabled).
func DefaultConfig() Config {
	return Config{Driver: DriverFile}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Path != "" {
		c.Path = source.Path
	}
	if source.Driver != "" {
		c.Driver = source.Driver
	}
}

// NewStore creates a Store from configuration. Returns a nil Store when Path
// is empty, indicating archiving is disabled.
func NewStore(cfg *Config) (Store, error) {
	if cfg.Path == "" {
		return nil, nil
	}

	switch cfg.Driver {
	case "", DriverFile:
		return NewFileStore(cfg.Path), nil
	case DriverSQLite:
		store, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown archive driver: %s", cfg.Driver)
	}
}
