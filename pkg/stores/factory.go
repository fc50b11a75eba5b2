package stores

import "fmt"

// Driver names accepted by NewDriver.
const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
	DriverMemory = "memory"
)

// NewDriver creates a Driver by name.
//
// Supported drivers:
//
//	"sqlite" - one SQLite file per database in cfg.Dir (default)
//	"bolt"   - one BoltDB file per database in cfg.Dir
//	"memory" - process memory (web platform, tests)
func NewDriver(name string, cfg SQLiteConfig) (Driver, error) {
	switch name {
	case DriverSQLite, "":
		return NewSQLiteDriver(cfg)
	case DriverBolt:
		return NewBoltDriver(cfg.Dir)
	case DriverMemory:
		return NewMemoryDriver(), nil
	default:
		return nil, fmt.Errorf("unknown store driver: %q (supported: sqlite, bolt, memory)", name)
	}
}
