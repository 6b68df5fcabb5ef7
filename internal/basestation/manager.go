// Package basestation 组装协调者（节点0）的接收分发与下行调度。
// 接收线程消化空口帧并按帧族分发：遥测进登记表/历史库/MQTT/告警，
// 回执进下行队列做关联，宣告触发欢迎命令入列。
package basestation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lss-net/lss/internal/alerts"
	cfgpkg "github.com/lss-net/lss/internal/config"
	"github.com/lss-net/lss/internal/logging"
	"github.com/lss-net/lss/internal/mesh"
	"github.com/lss-net/lss/internal/metrics"
	"github.com/lss-net/lss/internal/mqttpub"
	"github.com/lss-net/lss/internal/outbound"
	"github.com/lss-net/lss/internal/protocol/lss"
	"github.com/lss-net/lss/internal/radio"
	"github.com/lss-net/lss/internal/registry"
	"github.com/lss-net/lss/internal/store"
)

const rxQueueDepth = 64

// Manager 基站LoRa管理器
type Manager struct {
	cfg     *cfgpkg.Config
	link    radio.Link
	queue   *outbound.Queue
	reg     *registry.Registry
	router  *mesh.Router
	repo    *store.Repository  // 可为nil（历史库未启用）
	mqtt    *mqttpub.Publisher // 可为nil
	alerts  *alerts.Evaluator  // 可为nil
	metrics *metrics.AppMetrics
	log     *zap.Logger
	now     func() time.Time

	rxC          chan []byte
	lastTimeSync time.Time
	started      time.Time
}

// New 组装管理器。repo/mqtt/alerts/metrics 均允许为nil。
func New(
	cfg *cfgpkg.Config,
	link radio.Link,
	queue *outbound.Queue,
	reg *registry.Registry,
	repo *store.Repository,
	mqtt *mqttpub.Publisher,
	alertEval *alerts.Evaluator,
	appm *metrics.AppMetrics,
	logger *zap.Logger,
) *Manager {
	m := &Manager{
		cfg:     cfg,
		link:    link,
		queue:   queue,
		reg:     reg,
		repo:    repo,
		mqtt:    mqtt,
		alerts:  alertEval,
		metrics: appm,
		log:     logger,
		now:     time.Now,
		rxC:     make(chan []byte, rxQueueDepth),
		started: time.Now(),
	}
	m.router = mesh.NewRouter(lss.BaseStationID, true, m.nowMs)

	// 新节点首次露面（宣告或遥测）即入列欢迎命令
	reg.OnRegister = m.enqueueWelcome

	// 命令终态回调：指标与日志
	queue.SetResultFunc(func(cmd *outbound.PendingCommand, state outbound.State) {
		if m.metrics != nil {
			m.metrics.CommandResults.WithLabelValues(string(state)).Inc()
		}
		logging.ForNode(m.log, cmd.NodeID).Info("command finished",
			zap.String("cmd", cmd.CommandType.Name()),
			zap.Uint8("seq", cmd.SequenceNumber),
			zap.String("state", string(state)))
	})
	return m
}

// Params 返回当前射频参数（API回显）
func (m *Manager) Params() radio.Params {
	return radio.Params{
		FrequencyMHz:    m.cfg.LoRa.Frequency,
		SpreadingFactor: m.cfg.LoRa.SpreadingFactor,
		BandwidthHz:     m.cfg.LoRa.Bandwidth,
		CodingRate:      m.cfg.LoRa.CodingRate,
		TxPower:         m.cfg.LoRa.TxPower,
		PreambleLength:  m.cfg.LoRa.PreambleLength,
		NetworkID:       m.cfg.NetworkID,
	}
}

// Start 记下对时周期的起点并挂上链路回调。回调只入队，解析在接收线程做。
func (m *Manager) Start() {
	m.lastTimeSync = m.now() // 启动时不立刻全网对时
	m.link.SetReceiveHandler(func(frame []byte) {
		select {
		case m.rxC <- frame:
		default:
			m.log.Warn("rx queue full, frame dropped")
		}
	})
	m.log.Info("lora manager started", zap.String("params", m.Params().String()))
}

// Run 接收分发循环 + 周期性维护（全网对时、网格信标），直到 ctx 取消
func (m *Manager) Run(ctx context.Context) {
	maint := time.NewTicker(time.Second)
	defer maint.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-m.rxC:
			m.Dispatch(raw)
		case <-maint.C:
			m.maybeTimeSync()
			if beacon := m.router.Tick(); beacon != nil {
				if err := m.link.Transmit(beacon); err != nil {
					m.log.Warn("beacon transmit failed", zap.Error(err))
				}
			}
			if m.metrics != nil {
				m.metrics.OnlineNodes.Set(float64(m.reg.OnlineCount()))
			}
		}
	}
}

// Dispatch 识别并处理一帧。网格包裹的帧先剥头；转发交给路由器重写。
func (m *Manager) Dispatch(raw []byte) {
	if ptype, err := lss.DetectPacket(raw); err == nil {
		m.handlePacket(ptype, raw)
		return
	}
	verdict, payload := m.router.Receive(raw)
	switch verdict {
	case mesh.Delivered:
		if ptype, err := lss.DetectPacket(payload); err == nil {
			m.handlePacket(ptype, payload)
			return
		}
		m.countParseError(lss.ErrUnknownFrame)
	case mesh.Forward:
		if fwd := m.router.ForwardFrame(raw); fwd != nil {
			if err := m.link.Transmit(fwd); err != nil {
				m.log.Warn("mesh forward failed", zap.Error(err))
			}
		}
	default:
		// 信标已被路由层消化；其余按未识别计数
		if h, err := mesh.ParseHeader(raw); err != nil || h.Type != mesh.FrameNeighborBeacon {
			m.countParseError(lss.ErrUnknownFrame)
		} else {
			m.countRx("mesh")
		}
	}
}

func (m *Manager) handlePacket(ptype lss.PacketType, raw []byte) {
	switch ptype {
	case lss.PacketMultiSensor:
		pkt, err := lss.DeserializeMultiSensor(raw)
		if err != nil {
			m.countParseError(err)
			return
		}
		m.countRx("multi_sensor")
		m.handleTelemetry(pkt)

	case lss.PacketLegacy:
		pkt, err := lss.DeserializeLegacy(raw)
		if err != nil {
			m.countParseError(err)
			return
		}
		m.countRx("legacy")
		m.reg.IngestLegacy(pkt)

	case lss.PacketAck:
		pkt, err := lss.DeserializeAck(raw)
		if err != nil {
			m.countParseError(err)
			return
		}
		m.countRx("ack")
		m.reg.Touch(pkt.SensorID)
		matched := m.queue.ProcessAck(pkt.SensorID, pkt.SequenceNumber, pkt.Success(), pkt.StatusCode)
		if !matched {
			logging.ForNode(m.log, pkt.SensorID).Debug("unmatched ack",
				zap.Uint8("seq", pkt.SequenceNumber))
		}

	case lss.PacketConfig:
		pkt, err := lss.DeserializeCommand(raw)
		if err != nil {
			m.countParseError(err)
			return
		}
		m.countRx("command")
		if pkt.CommandType == lss.CmdSensorAnnounce {
			m.handleAnnounce(pkt.TargetSensorID)
		}
	}
}

func (m *Manager) handleTelemetry(pkt *lss.MultiSensorPacket) {
	if m.metrics != nil {
		m.metrics.TelemetryTotal.Inc()
	}
	m.reg.IngestTelemetry(pkt)

	// 捎带回执与显式回执等效
	if m.queue.ProcessPiggybackAck(pkt.SensorID, pkt.LastCommandSeq, pkt.AckStatus) {
		if m.metrics != nil {
			m.metrics.PiggybackAcks.Inc()
		}
	}

	if m.repo != nil {
		if err := m.repo.InsertTelemetry(pkt); err != nil {
			logging.ForNode(m.log, pkt.SensorID).Error("history insert failed", zap.Error(err))
		}
	}
	if m.mqtt != nil {
		m.mqtt.PublishTelemetry(pkt)
	}
	if m.alerts != nil {
		for _, f := range m.alerts.Check(pkt) {
			if m.metrics != nil {
				m.metrics.AlertsFired.WithLabelValues(f.Kind).Inc()
			}
		}
	}

	logging.ForNode(m.log, pkt.SensorID).Debug("telemetry",
		zap.Int("values", len(pkt.Values)),
		zap.Uint8("battery", pkt.BatteryPercent))
}

// handleAnnounce 节点宣告：登记并（对新节点经 OnRegister）发出欢迎
func (m *Manager) handleAnnounce(nodeID uint8) {
	if m.metrics != nil {
		m.metrics.AnnounceTotal.Inc()
	}
	logging.ForNode(m.log, nodeID).Info("node announced")
	m.reg.Touch(nodeID)
}

// enqueueWelcome 给新节点下发 CMD_BASE_WELCOME（UTC秒 + 时区偏移）
func (m *Manager) enqueueWelcome(nodeID uint8) {
	epoch := uint32(m.now().UTC().Unix())
	_, seq := m.queue.Enqueue(nodeID, lss.CmdBaseWelcome, lss.EncodeTimeSync(epoch, 0))
	logging.ForNode(m.log, nodeID).Info("welcome queued", zap.Uint8("seq", seq))
}

// maybeTimeSync 每个对时周期向所有在线节点重发 CMD_TIME_SYNC
func (m *Manager) maybeTimeSync() {
	interval := m.cfg.Commands.TimeSyncInterval
	if interval <= 0 {
		interval = 3 * time.Hour
	}
	now := m.now()
	if now.Sub(m.lastTimeSync) < interval {
		return
	}
	m.lastTimeSync = now

	epoch := uint32(now.UTC().Unix())
	for _, id := range m.reg.OnlineNodes() {
		m.queue.Enqueue(id, lss.CmdTimeSync, lss.EncodeTimeSync(epoch, 0))
		if m.metrics != nil {
			m.metrics.TimeSyncTotal.Inc()
		}
	}
	m.log.Info("time sync queued for online nodes", zap.Int("nodes", m.reg.OnlineCount()))
}

func (m *Manager) nowMs() uint32 {
	return uint32(time.Since(m.started).Milliseconds())
}

func (m *Manager) countRx(family string) {
	if m.metrics != nil {
		m.metrics.RxFrames.WithLabelValues(family).Inc()
	}
}

func (m *Manager) countParseError(err error) {
	if m.metrics == nil {
		return
	}
	reason := "unknown"
	switch err {
	case lss.ErrShort:
		reason = "short"
	case lss.ErrCRCMismatch:
		reason = "crc"
	case lss.ErrSyncMismatch:
		reason = "sync"
	case lss.ErrTooManyValues:
		reason = "values"
	}
	m.metrics.ParseErrors.WithLabelValues(reason).Inc()
}
