package app

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/hlk-radar/internal/config"
	"github.com/taoyao-code/hlk-radar/internal/migrate"
	pgstorage "github.com/taoyao-code/hlk-radar/internal/storage/pg"
)

// ConnectDBAndMigrate 建立数据库连接并执行迁移；未配置 DSN 时返回 nil, nil
func ConnectDBAndMigrate(ctx context.Context, cfg cfgpkg.DatabaseConfig, log *zap.Logger) (*pgxpool.Pool, error) {
	dbpool, err := pgstorage.NewPool(ctx, cfg, log)
	if errors.Is(err, pgstorage.ErrDisabled) {
		log.Info("database is disabled, command audit off")
		return nil, nil
	}
	if err != nil {
		log.Error("db connect error", zap.Error(err))
		return nil, err
	}
	if cfg.Migrations != "" {
		n, err := (migrate.Runner{Dir: cfg.Migrations, Log: log}).Up(ctx, dbpool)
		if err != nil {
			log.Error("db migrate error", zap.Error(err))
			dbpool.Close()
			return nil, err
		}
		log.Info("db migrations applied", zap.Int("count", n))
	}
	return dbpool, nil
}
