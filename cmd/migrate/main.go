package main

import (
	"errors"
	"flag"
	"strconv"

	"rakhi_store/internal/pkg/config"
	"rakhi_store/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

func main() {
	dir := flag.String("dir", "migrations", "migrations directory")
	down := flag.Bool("down", false, "roll back one version")
	force := flag.String("force", "", "force a version after a failed migration")
	flag.Parse()

	config.LoadConfig()
	logger.InitLogger(config.GlobalConfig.App.Env, config.GlobalConfig.Log.Level)
	defer logger.Sync()

	m, err := migrate.New("file://"+*dir, config.GlobalConfig.Database.DSN())
	if err != nil {
		logger.Log.Fatal("Failed to open migrations", zap.Error(err))
	}
	defer m.Close()

	if *force != "" {
		version, err := strconv.Atoi(*force)
		if err != nil {
			logger.Log.Fatal("Invalid force version", zap.String("version", *force))
		}
		if err := m.Force(version); err != nil {
			logger.Log.Fatal("Failed to force version", zap.Int("version", version), zap.Error(err))
		}
		logger.Log.Info("Forced migration version", zap.Int("version", version))
		return
	}

	if *down {
		err = m.Steps(-1)
	} else {
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		// dirty 状态需要人工确认后使用 -force 修复
		var dirty migrate.ErrDirty
		if errors.As(err, &dirty) {
			logger.Log.Fatal("Database is dirty, fix it and rerun with -force", zap.Int("version", dirty.Version))
		}
		logger.Log.Fatal("Migration failed", zap.Error(err))
	}

	version, isDirty, _ := m.Version()
	logger.Log.Info("Migration successful", zap.Uint("version", version), zap.Bool("dirty", isDirty))
}
