package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lss-net/lss/internal/alerts"
	"github.com/lss-net/lss/internal/api"
	"github.com/lss-net/lss/internal/basestation"
	cfgpkg "github.com/lss-net/lss/internal/config"
	"github.com/lss-net/lss/internal/httpserver"
	"github.com/lss-net/lss/internal/logging"
	"github.com/lss-net/lss/internal/metrics"
	"github.com/lss-net/lss/internal/mqttpub"
	"github.com/lss-net/lss/internal/outbound"
	"github.com/lss-net/lss/internal/radio"
	"github.com/lss-net/lss/internal/registry"
	"github.com/lss-net/lss/internal/store"
)

func main() {
	configPath := flag.String("config", "", "config file path")
	flag.Parse()

	// 1) 加载配置
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging, cfg.App, cfg.NetworkID)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	log := zap.L()

	// 3) 指标注册与处理器
	reg := metrics.NewRegistry()
	appm := metrics.NewAppMetrics(reg)
	metricsHandler := metrics.Handler(reg)

	// 4) 无线链路（主机台架：UDP承载）
	link, err := radio.NewUDPLink(cfg.Radio.ListenAddr, cfg.Radio.PeerAddr)
	if err != nil {
		log.Fatal("radio link init failed", zap.Error(err))
	}
	defer link.Close()

	// 5) 核心部件：命令队列、节点登记表
	queue := outbound.NewQueue(nil)
	nodes := registry.New(nil)

	// 6) 可选部件：历史库、MQTT、告警
	var repo *store.Repository
	if cfg.Database.Enabled {
		repo, err = store.Open(cfg.Database)
		if err != nil {
			log.Fatal("history store init failed", zap.Error(err))
		}
		log.Info("history store enabled")
	}
	var publisher *mqttpub.Publisher
	if cfg.MQTT.Enabled {
		publisher, err = mqttpub.Connect(cfg.MQTT, logger)
		if err != nil {
			// MQTT不可用不阻塞启动，按原样降级
			log.Warn("mqtt unavailable, publishing disabled", zap.Error(err))
			publisher = nil
		}
	}
	var alertEval *alerts.Evaluator
	if cfg.Alerts.Enabled {
		alertEval = alerts.New(cfg.Alerts, &alerts.LogNotifier{Logger: logger}, nil)
	}

	// 7) LoRa管理器与下行Worker
	manager := basestation.New(cfg, link, queue, nodes, repo, publisher, alertEval, appm, logger)
	worker := outbound.NewWorker(queue, link, logger)
	worker.Metrics = appm

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager.Start()
	go manager.Run(ctx)
	go worker.Run(ctx)
	go nodes.Run(ctx, func(dropped []uint8) {
		for _, id := range dropped {
			log.Info("node offline", zap.Uint8("node_id", id))
		}
	})

	// 8) HTTP 服务与REST路由
	httpSrv := httpserver.New(cfg.HTTP, cfg.Metrics.Path, metricsHandler, func() bool { return true })
	handler := api.NewHandler(nodes, queue, repo, manager.Params, logger)
	api.RegisterRoutes(httpSrv.Engine(), handler, logger)

	go func() {
		if err := httpSrv.Start(); err != nil {
			log.Error("http server error", zap.Error(err))
		}
	}()
	log.Info("base station up",
		zap.String("http", cfg.HTTP.Addr),
		zap.Uint16("network_id", cfg.NetworkID))

	// 信号处理，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	if publisher != nil {
		publisher.Close()
	}
}
