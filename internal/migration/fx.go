package migration

import (
	"github.com/trello-talk/tacows/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migration",
	fx.Invoke(Run),
)

func Run(cfg config.Config, gormDB *gorm.DB, log *zap.Logger) error {
	if cfg.DBType != "postgres" {
		log.Debug("skipping migrations", zap.String("db_type", cfg.DBType))
		return nil
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}
