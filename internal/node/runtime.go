// Package node 实现客户端节点的固件主循环：
// 开机宣告、周期遥测、收包分发与命令应用、网格信标。
// 单线程协作式调度，链路回调（"中断上下文"）只置位标志并拷贝缓冲。
package node

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lss-net/lss/internal/mesh"
	"github.com/lss-net/lss/internal/nodeconfig"
	"github.com/lss-net/lss/internal/protocol/lss"
	"github.com/lss-net/lss/internal/radio"
)

// 回执发送前与破坏性动作前的退避
const (
	ackDelay     = 50 * time.Millisecond
	rebootDelay  = 200 * time.Millisecond
	loopInterval = 10 * time.Millisecond
)

// Runtime 一个节点的全部运行时状态：电台、路由器、传感器阵列、
// 配置存储与调度时钟都归它所有，外层只驱动 Run。
type Runtime struct {
	store   *nodeconfig.Store
	link    radio.Link
	sensors []Sensor
	router  *mesh.Router
	log     *zap.Logger

	// 可注入的硬件缝隙，测试与仿真替换
	Battery func() (percent uint8, charging bool)
	Reboot  func()
	NowMs   func() uint32
	Sleep   func(time.Duration)

	// rxFlag 是中断上下文与主循环之间唯一的共享标志
	rxFlag atomic.Bool
	rxMu   sync.Mutex
	rxBuf  []byte

	lastTxMs      uint32
	lastCmdSeq    uint8
	lastAckStatus uint8
	started       time.Time
}

// NewRuntime 组装节点运行时
func NewRuntime(store *nodeconfig.Store, link radio.Link, sensors []Sensor, logger *zap.Logger) *Runtime {
	rt := &Runtime{
		store:   store,
		link:    link,
		sensors: sensors,
		log:     logger,
		started: time.Now(),
	}
	rt.Battery = func() (uint8, bool) { return 100, false }
	rt.Reboot = func() { logger.Warn("reboot requested, host build ignores it") }
	rt.NowMs = func() uint32 { return uint32(time.Since(rt.started).Milliseconds()) }
	rt.Sleep = time.Sleep
	return rt
}

// Router 返回网格路由器（Start 之后有效）
func (rt *Runtime) Router() *mesh.Router { return rt.router }

// Start 启动序列：读配置 → 初始化电台 → 初始化传感器 → 广播宣告。
// 与固件 setup() 一一对应。
func (rt *Runtime) Start() error {
	if err := rt.store.Load(); err != nil {
		return err
	}
	cfg := rt.store.Config()

	params := radio.Params{
		FrequencyMHz:    cfg.LoRaFrequency,
		SpreadingFactor: cfg.LoRaSpreadingFactor,
		BandwidthHz:     125000,
		CodingRate:      5,
		TxPower:         cfg.LoRaTxPower,
		PreambleLength:  8,
		NetworkID:       cfg.NetworkID,
	}
	rt.log.Info("radio init",
		zap.Uint8("node_id", cfg.NodeID),
		zap.Uint16("network_id", cfg.NetworkID),
		zap.String("params", params.String()))

	rt.router = mesh.NewRouter(cfg.NodeID, cfg.MeshEnabled, rt.NowMs)
	rt.link.SetReceiveHandler(rt.onRxDone)

	for _, s := range rt.sensors {
		if err := s.Begin(); err != nil {
			rt.log.Warn("sensor init failed", zap.String("sensor", s.Name()), zap.Error(err))
		}
	}

	if err := rt.announce(); err != nil {
		rt.log.Warn("announce transmit failed", zap.Error(err))
	}
	rt.log.Info("node announced", zap.Uint8("node_id", cfg.NodeID), zap.Uint16("network_id", cfg.NetworkID))
	return nil
}

// Run 驱动主循环直到 ctx 取消
func (rt *Runtime) Run(ctx context.Context) {
	ticker := time.NewTicker(loopInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rt.Step()
		}
	}
}

// Step 执行一次循环迭代：收包 → 遥测 → 信标。测试直接调用。
func (rt *Runtime) Step() {
	cfg := rt.store.Config()

	// 收包路径
	if rt.rxFlag.CompareAndSwap(true, false) {
		rt.rxMu.Lock()
		raw := rt.rxBuf
		rt.rxBuf = nil
		rt.rxMu.Unlock()
		if len(raw) > 0 {
			rt.handleFrame(raw)
		}
	}

	// 遥测路径
	now := rt.NowMs()
	if now-rt.lastTxMs >= cfg.TelemetryIntervalMs {
		rt.lastTxMs = now
		rt.transmitTelemetry()
	}

	// 网格信标
	if cfg.MeshEnabled {
		if beacon := rt.router.Tick(); beacon != nil {
			if err := rt.link.Transmit(beacon); err != nil {
				rt.log.Warn("beacon transmit failed", zap.Error(err))
			}
		}
	}
}

// onRxDone 链路回调：置位标志、缓存一帧。只保留最新帧，
// 与固件单缓冲行为一致。
func (rt *Runtime) onRxDone(frame []byte) {
	rt.rxMu.Lock()
	rt.rxBuf = append([]byte(nil), frame...)
	rt.rxMu.Unlock()
	rt.rxFlag.Store(true)
}

// handleFrame 收包分发。
// 先按裸LSS帧识别；识别失败且长度超过4字节时跳过基站无线驱动
// 添加的4字节RadioHead头重试；仍失败再交给网格层。
func (rt *Runtime) handleFrame(raw []byte) {
	if ptype, err := lss.DetectPacket(raw); err == nil {
		rt.handlePacket(ptype, raw)
		return
	}
	if len(raw) > radio.RadioHeadLen {
		sub := raw[radio.RadioHeadLen:]
		if ptype, err := lss.DetectPacket(sub); err == nil {
			rt.handlePacket(ptype, sub)
			return
		}
	}
	if rt.router.Enabled() {
		verdict, payload := rt.router.Receive(raw)
		switch verdict {
		case mesh.Delivered:
			if ptype, err := lss.DetectPacket(payload); err == nil {
				rt.handlePacket(ptype, payload)
			}
		case mesh.Forward:
			if fwd := rt.router.ForwardFrame(raw); fwd != nil {
				if err := rt.link.Transmit(fwd); err != nil {
					rt.log.Warn("mesh forward failed", zap.Error(err))
				}
			}
		}
	}
}

// handlePacket 处理一个识别成功的LSS帧。节点只消费下行命令，
// 其余帧族（别的节点的遥测、回执）静默忽略。
func (rt *Runtime) handlePacket(ptype lss.PacketType, raw []byte) {
	if ptype != lss.PacketConfig {
		return
	}
	cmd, err := lss.DeserializeCommand(raw)
	if err != nil {
		// 帧故障静默丢弃
		return
	}
	cfg := rt.store.Config()
	if cmd.TargetSensorID != cfg.NodeID && cmd.TargetSensorID != lss.BroadcastID {
		return
	}

	rt.log.Info("command received",
		zap.String("cmd", cmd.CommandType.Name()),
		zap.Uint8("seq", cmd.SequenceNumber))

	ack, action := ApplyCommand(cmd, rt.store, rt.router)
	if ack == nil {
		return
	}
	rt.lastCmdSeq = cmd.SequenceNumber
	rt.lastAckStatus = ack[5] // AckPacket statusCode 偏移

	// 帧间退避后回执
	rt.Sleep(ackDelay)
	if err := rt.link.Transmit(ack); err != nil {
		rt.log.Warn("ack transmit failed", zap.Error(err))
		return
	}

	switch action {
	case ActionRestart:
		// 回执先上天线，基站才知道我们收到了
		rt.Sleep(rebootDelay)
		rt.Reboot()
	case ActionFactoryReset:
		rt.Sleep(rebootDelay)
		if err := rt.store.FactoryReset(); err != nil {
			rt.log.Error("factory reset failed", zap.Error(err))
		}
		rt.Reboot()
	}
}

// transmitTelemetry 从传感器阵列组帧并发送（必要时加网格头）
func (rt *Runtime) transmitTelemetry() {
	cfg := rt.store.Config()
	battery, charging := rt.Battery()

	pkt := &lss.MultiSensorPacket{
		NetworkID:      cfg.NetworkID,
		SensorID:       cfg.NodeID,
		BatteryPercent: battery,
		LastCommandSeq: rt.lastCmdSeq,
		AckStatus:      rt.lastAckStatus,
		Location:       cfg.Location,
		Zone:           cfg.Zone,
	}
	if charging {
		pkt.PowerState = 1
	}

	for _, s := range rt.sensors {
		if len(pkt.Values) >= lss.MaxSensorValues {
			break
		}
		if err := s.Read(); err != nil {
			// 读取失败沿用缓存值
			rt.log.Warn("sensor read failed", zap.String("sensor", s.Name()), zap.Error(err))
		}
		pkt.Values = append(pkt.Values, s.Values(lss.MaxSensorValues-len(pkt.Values))...)
	}

	buf := make([]byte, radio.MaxPayload)
	n, err := lss.SerializeMultiSensor(pkt, buf)
	if err != nil {
		rt.log.Error("telemetry serialize failed", zap.Error(err))
		return
	}
	raw := buf[:n]
	if cfg.MeshEnabled {
		raw = rt.router.Wrap(lss.BaseStationID, raw)
	}
	if err := rt.link.Transmit(raw); err != nil {
		rt.log.Warn("telemetry transmit failed", zap.Error(err))
		return
	}
	rt.log.Debug("telemetry sent",
		zap.Int("values", len(pkt.Values)),
		zap.Uint8("battery", battery),
		zap.Bool("mesh", cfg.MeshEnabled))
}

// announce 广播 CMD_SENSOR_ANNOUNCE 向基站登记
func (rt *Runtime) announce() error {
	raw, err := lss.BuildCommand(lss.CmdSensorAnnounce, rt.store.Config().NodeID, 0, nil)
	if err != nil {
		return err
	}
	return rt.link.Transmit(raw)
}
