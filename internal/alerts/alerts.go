// Package alerts 在入站遥测上评估阈值并限频派发告警。
// 派发通道（Teams webhook、SMTP）是外部协作方，这里只定义 Notifier
// 契约并内置一个走结构化日志的实现。
package alerts

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/lss-net/lss/internal/config"
	"github.com/lss-net/lss/internal/protocol/lss"
)

// Notifier 告警派发契约
type Notifier interface {
	Notify(title, body string)
}

// LogNotifier 把告警写进结构化日志
type LogNotifier struct {
	Logger *zap.Logger
}

// Notify 实现 Notifier
func (n *LogNotifier) Notify(title, body string) {
	n.Logger.Warn("alert", zap.String("title", title), zap.String("body", body))
}

// Fired 一次告警派发记录（指标与测试用）
type Fired struct {
	Kind   string
	NodeID uint8
}

// Evaluator 阈值评估器。同一告警键在限频窗口内只派发一次。
type Evaluator struct {
	cfg      cfgpkg.AlertsConfig
	notifier Notifier
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// New 创建评估器；now 可注入
func New(cfg cfgpkg.AlertsConfig, notifier Notifier, now func() time.Time) *Evaluator {
	if now == nil {
		now = time.Now
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 300 * time.Second
	}
	return &Evaluator{cfg: cfg, notifier: notifier, now: now, lastSent: make(map[string]time.Time)}
}

// Check 评估一帧遥测，返回本次实际派发的告警
func (e *Evaluator) Check(pkt *lss.MultiSensorPacket) []Fired {
	if !e.cfg.Enabled {
		return nil
	}
	var fired []Fired

	for _, v := range pkt.Values {
		if v.Type != lss.ValueTemperature && v.Type != lss.ValueThermistorTemperature {
			continue
		}
		if v.Value > e.cfg.TempHigh {
			if e.dispatch(fmt.Sprintf("node_%d_temp_high", pkt.SensorID),
				fmt.Sprintf("Node %d: High Temperature", pkt.SensorID),
				fmt.Sprintf("Temperature %.1f°C exceeds threshold %.1f°C", v.Value, e.cfg.TempHigh)) {
				fired = append(fired, Fired{Kind: "temp_high", NodeID: pkt.SensorID})
			}
		} else if v.Value < e.cfg.TempLow {
			if e.dispatch(fmt.Sprintf("node_%d_temp_low", pkt.SensorID),
				fmt.Sprintf("Node %d: Low Temperature", pkt.SensorID),
				fmt.Sprintf("Temperature %.1f°C below threshold %.1f°C", v.Value, e.cfg.TempLow)) {
				fired = append(fired, Fired{Kind: "temp_low", NodeID: pkt.SensorID})
			}
		}
	}

	batt := float32(pkt.BatteryPercent)
	if batt <= e.cfg.BatteryCritical {
		if e.dispatch(fmt.Sprintf("node_%d_batt_critical", pkt.SensorID),
			fmt.Sprintf("Node %d: Critical Battery", pkt.SensorID),
			fmt.Sprintf("Battery at %d%%", pkt.BatteryPercent)) {
			fired = append(fired, Fired{Kind: "battery_critical", NodeID: pkt.SensorID})
		}
	} else if batt <= e.cfg.BatteryLow {
		if e.dispatch(fmt.Sprintf("node_%d_batt_low", pkt.SensorID),
			fmt.Sprintf("Node %d: Low Battery", pkt.SensorID),
			fmt.Sprintf("Battery at %d%%", pkt.BatteryPercent)) {
			fired = append(fired, Fired{Kind: "battery_low", NodeID: pkt.SensorID})
		}
	}

	return fired
}

// dispatch 限频后派发；窗口内重复键直接吞掉
func (e *Evaluator) dispatch(key, title, body string) bool {
	now := e.now()
	e.mu.Lock()
	if last, ok := e.lastSent[key]; ok && now.Sub(last) < e.cfg.RateLimit {
		e.mu.Unlock()
		return false
	}
	e.lastSent[key] = now
	e.mu.Unlock()

	if e.notifier != nil {
		e.notifier.Notify(title, body)
	}
	return true
}
