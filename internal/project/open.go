package project

import (
	"fmt"

	"github.com/rosrad/rtags/internal/config"
)

// Open constructs the Store backend named by opts.Driver.
func Open(opts config.Options) (Store, error) {
	switch opts.Driver {
	case config.DriverLevelDB:
		return NewLevelDBStore(opts.LevelDBPath)
	case config.DriverRedis:
		return NewRedisStore(opts.RedisAddr), nil
	case config.DriverMemory, "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("project: unknown driver %q", opts.Driver)
	}
}
