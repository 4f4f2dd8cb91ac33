package db

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/spendwise/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DSN renders the connection string for the configured dialect. Times are
// always exchanged in UTC so renewal and deadline comparisons stay stable.
// Only postgres and sqlite are accepted: the schema relies on partial unique
// indexes and ON CONFLICT, which MySQL lacks.
func DSN(cfg config.Config) (string, error) {
	switch strings.ToLower(cfg.DBType) {
	case "postgres":
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode), nil
	case "sqlite":
		if cfg.DBName == ":memory:" || strings.HasSuffix(cfg.DBName, ".db") {
			return cfg.DBName, nil
		}
		return cfg.DBName + ".db", nil
	default:
		return "", fmt.Errorf("unsupported database type %q", cfg.DBType)
	}
}

func Dialect(cfg config.Config) (gorm.Dialector, error) {
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(cfg.DBType) {
	case "postgres":
		return postgres.Open(dsn), nil
	default:
		return sqlite.Open(dsn), nil
	}
}
