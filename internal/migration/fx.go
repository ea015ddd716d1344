package migration

import (
	"strings"

	"github.com/smallbiznis/pantry/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Schema names a service's migration set. Models are auto-migrated instead
// when the database is not postgres, which is how local sqlite runs work.
type Schema struct {
	Name   string
	Models []any
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Config config.Config
	Log    *zap.Logger
	Schema Schema
}

var Module = fx.Module("migrations",
	fx.Invoke(Apply),
)

func Apply(p Params) error {
	log := p.Log.Named("migration").With(zap.String("schema", p.Schema.Name))

	if !strings.EqualFold(strings.TrimSpace(p.Config.DBType), "postgres") {
		if err := p.DB.AutoMigrate(p.Schema.Models...); err != nil {
			return err
		}
		log.Info("schema auto-migrated", zap.Int("models", len(p.Schema.Models)))
		return nil
	}

	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	if err := RunMigrations(sqlDB, p.Schema.Name); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}
