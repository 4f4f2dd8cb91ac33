package migration

import (
	"github.com/smallbiznis/spendwise/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(migrateOnStart),
)

// migrateOnStart applies the embedded schema when DATABASE_AUTO_MIGRATE is set.
// SQLite databases are provisioned out of band.
func migrateOnStart(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	log = log.Named("migration")
	if !cfg.DBAutoMigrate {
		return nil
	}
	if cfg.DBType != "postgres" {
		log.Warn("skipping embedded migrations for non-postgres database", zap.String("type", cfg.DBType))
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	version, err := Apply(sqlDB)
	if err != nil {
		return err
	}
	log.Info("governance schema ready", zap.Uint("version", version))
	return nil
}
