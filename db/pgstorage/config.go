package pgstorage

import (
	"fmt"
	"net/url"
)

// Config holds the postgres connection settings of the state and batch history storage
type Config struct {
	Name     string `mapstructure:"Name"`
	User     string `mapstructure:"User"`
	Password string `mapstructure:"Password"`
	Host     string `mapstructure:"Host"`
	Port     string `mapstructure:"Port"`

	// MaxConns is the maximum number of connections in the pool. Zero keeps the pgxpool default.
	MaxConns int `mapstructure:"MaxConns"`
}

// DSN returns the connection URL. pool_max_conns is only understood by pgxpool.
func (c Config) DSN(withPool bool) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + c.Port,
		Path:   "/" + c.Name,
	}
	if withPool && c.MaxConns > 0 {
		u.RawQuery = fmt.Sprintf("pool_max_conns=%d", c.MaxConns)
	}
	return u.String()
}
