package main

import (
	"flag"
	"os"

	"esdtscan/internal/api"
	"esdtscan/internal/app"
	"esdtscan/internal/shutdown"

	"github.com/sirupsen/logrus"
)

var (
	configPath = flag.String("config", "", "配置文件路径")
	envPath    = flag.String("env", ".env", ".env文件路径")
	port       = flag.Int("port", 0, "API 服务端口，0表示使用配置")
	verbose    = flag.Bool("verbose", false, "详细输出")
)

func main() {
	flag.Parse()

	cfg, err := app.Load(*configPath, *envPath)
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}
	if *port > 0 {
		cfg.API.Port = *port
	}
	if *verbose {
		cfg.Logging.Level = logrus.DebugLevel.String()
	}

	a, err := app.New(cfg, app.Options{})
	if err != nil {
		logrus.Fatalf("初始化失败: %v", err)
	}
	logger := a.Logger

	var tokens api.TokenIndex
	if a.Store != nil {
		tokens = a.Store
	}
	server := api.NewServer(cfg, a.Processor, tokens, a.Validator, logger)

	gs := shutdown.NewGracefulShutdown(cfg.Processor.Timeout, logger)
	gs.Register("api server", shutdown.OrderStopAPI, server.Stop)
	a.RegisterShutdown(gs)
	gs.Start()

	go func() {
		if err := server.Start(); err != nil {
			logger.Errorf("API服务器异常退出: %v", err)
			gs.Shutdown()
		}
	}()

	logger.Infof("API服务器已启动，监听地址: %s", cfg.API.Addr())

	if err := gs.Wait(); err != nil {
		logrus.Errorf("关闭服务器失败: %v", err)
		os.Exit(1)
	}
}
