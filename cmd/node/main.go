package main

import (
	"context"
	"flag"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lss-net/lss/internal/node"
	"github.com/lss-net/lss/internal/nodeconfig"
	"github.com/lss-net/lss/internal/protocol/lss"
	"github.com/lss-net/lss/internal/radio"
)

// 主机侧节点运行时：同一套固件主循环跑在UDP台架上。
// 真实部署里这个循环运行在节点硬件上，链路换成SX1262驱动。
func main() {
	configDir := flag.String("config-dir", "data", "node config directory")
	listenAddr := flag.String("listen", "127.0.0.1:0", "udp listen address")
	peerAddr := flag.String("peer", "127.0.0.1:7400", "base station udp address")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger

	link, err := radio.NewUDPLink(*listenAddr, *peerAddr)
	if err != nil {
		log.Fatal("radio link init failed", zap.Error(err))
	}
	defer link.Close()

	store := nodeconfig.NewStore(*configDir)

	// 仿真传感器阵列：温湿度按正弦摆动
	start := time.Now()
	climate := node.NewSimSensor("sim-climate", func() []lss.SensorValue {
		phase := time.Since(start).Seconds() / 600.0 * 2 * math.Pi
		return []lss.SensorValue{
			{Type: lss.ValueTemperature, Value: float32(21.0 + 4.0*math.Sin(phase))},
			{Type: lss.ValueHumidity, Value: float32(55.0 + 10.0*math.Cos(phase))},
		}
	})

	rt := node.NewRuntime(store, link, []node.Sensor{climate}, log)
	rt.Reboot = func() {
		log.Info("rebooting")
		os.Exit(0)
	}
	if err := rt.Start(); err != nil {
		log.Fatal("node start failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	go rt.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	cancel()
}
