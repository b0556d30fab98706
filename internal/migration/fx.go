package migration

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/milkbill/internal/authorization"
	"github.com/smallbiznis/milkbill/internal/config"
	ownerdomain "github.com/smallbiznis/milkbill/internal/owner/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, owners ownerdomain.Service, log *zap.Logger) error {
		log = log.Named("migration")
		if cfg.MigrateOnStart {
			if !strings.EqualFold(cfg.DBType, "postgres") {
				log.Warn("embedded migrations target postgres; skipping", zap.String("db_type", cfg.DBType))
			} else {
				sqlDB, err := conn.DB()
				if err != nil {
					return err
				}
				if err := RunMigrations(sqlDB); err != nil {
					return err
				}
				log.Info("migrations applied")
			}
		}
		return EnsureAdmin(context.Background(), owners, cfg)
	}),
)

// EnsureAdmin creates the bootstrap administrator when one is configured.
func EnsureAdmin(ctx context.Context, owners ownerdomain.Service, cfg config.Config) error {
	if cfg.BootstrapAdminEmail == "" {
		return nil
	}
	_, err := owners.Create(ctx, ownerdomain.CreateOwnerRequest{
		Name:  cfg.BootstrapAdminName,
		Email: cfg.BootstrapAdminEmail,
		Role:  string(authorization.RoleAdmin),
	})
	if errors.Is(err, ownerdomain.ErrEmailAlreadyTaken) {
		return nil
	}
	return err
}
