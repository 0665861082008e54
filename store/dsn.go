package store

import (
	"fmt"
	"net"
	"net/url"

	"github.com/Tutortoise/catascan-service/config"
)

// DSN assembles the driver-specific connection string.
func DSN(cfg config.DatabaseConfig) (string, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		port := cfg.Port
		if port == "" {
			port = "5432"
		}
		u := url.URL{
			Scheme: "postgresql",
			User:   url.UserPassword(cfg.User, cfg.Password),
			Host:   net.JoinHostPort(cfg.Host, port),
			Path:   "/" + cfg.Name,
		}
		if cfg.SSLMode != "" {
			u.RawQuery = url.Values{"sslmode": {cfg.SSLMode}}.Encode()
		}
		return u.String(), nil
	case config.DriverMySQL:
		port := cfg.Port
		if port == "" {
			port = "3306"
		}
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.User, cfg.Password, net.JoinHostPort(cfg.Host, port), cfg.Name), nil
	case config.DriverSQLite:
		if cfg.Path == "" {
			return "", fmt.Errorf("database.path is required for sqlite")
		}
		return cfg.Path, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
