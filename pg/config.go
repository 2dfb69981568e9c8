package pg

import (
	"fmt"
	"time"
)

// Config describes the PostgreSQL connection shared by aggregate
// repositories: one pool serves the planner's transactional writes,
// the loader's reads and the outbox worker. Meant to be embedded in an
// application config and filled by cfgloader:
//
//	type Config struct {
//	    DB pg.Config `yaml:"db"`
//	}
type Config struct {
	// Debug logs every executed statement of an aggregate change
	// through the query hook. Not for production.
	Debug bool `yaml:"debug" default:"false"`

	Host     string `yaml:"host"     validate:"required"`
	Port     int    `yaml:"port"     validate:"required"`
	User     string `yaml:"user"     validate:"required"`
	Password string `yaml:"password" validate:"required"`
	Database string `yaml:"database" validate:"required"`

	// SSLMode selects the libpq ssl negotiation mode.
	SSLMode string `yaml:"sslmode"         default:"disable" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	// SearchPath scopes unqualified table names; all tables an
	// aggregate maps to are expected in one schema.
	SearchPath string `yaml:"search_path"     default:"public"`
	// ConnectTimeout bounds the initial connection attempt.
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"10s"`

	// Pool sizing. A save holds one connection for its whole
	// transaction, so PoolMaxConns caps concurrent aggregate writes.
	PoolMaxConns        int32         `yaml:"pool_max_conns"          default:"4"`
	PoolMinConns        int32         `yaml:"pool_min_conns"          default:"1"`
	PoolMaxConnLifetime time.Duration `yaml:"pool_max_conn_lifetime"  default:"1h"`
	PoolMaxConnIdleTime time.Duration `yaml:"pool_max_conn_idle_time" default:"30m"`
}

// dsn returns a PostgreSQL connection string built from the configuration.
func (c Config) dsn() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s search_path=%s connect_timeout=%d",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
		c.SearchPath,
		int(c.ConnectTimeout.Seconds()),
	)
}
