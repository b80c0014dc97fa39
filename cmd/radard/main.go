package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/taoyao-code/hlk-radar/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/hlk-radar/internal/config"
	"github.com/taoyao-code/hlk-radar/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "config file (default: $RADAR_CONFIG or ./configs/radard.yaml)")
	flag.Parse()

	// 1) 加载配置
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// 3) 启动网关
	if err := bootstrap.Run(cfg, logger); err != nil {
		logger.Error("radard exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
