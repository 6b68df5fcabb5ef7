// Package registry 维护已知节点的最近状态与在线判定。
// 节点在首次遥测/宣告时自动登记；超过离线阈值未收到任何帧即判离线。
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/lss-net/lss/internal/protocol/lss"
)

const (
	// OfflineTimeout 无帧判离线阈值
	OfflineTimeout = 300 * time.Second
	// MaxNodes 最多跟踪的节点数，超出的不登记
	MaxNodes = 10
	// sweepInterval 离线扫描周期
	sweepInterval = 30 * time.Second
)

// NodeState 单个节点的最近已知状态
type NodeState struct {
	NodeID         uint8                     `json:"node_id"`
	Location       string                    `json:"location"`
	Zone           string                    `json:"zone"`
	BatteryPercent uint8                     `json:"battery_percent"`
	PowerState     uint8                     `json:"power_state"`
	RSSI           float64                   `json:"rssi"`
	SNR            float64                   `json:"snr"`
	LastSeen       time.Time                 `json:"last_seen"`
	Online         bool                      `json:"online"`
	Values         map[lss.ValueType]float32 `json:"values"`
}

func (n *NodeState) snapshot() NodeState {
	cp := *n
	cp.Values = make(map[lss.ValueType]float32, len(n.Values))
	for k, v := range n.Values {
		cp.Values[k] = v
	}
	return cp
}

// Registry 线程安全的节点登记表
type Registry struct {
	mu    sync.RWMutex
	nodes map[uint8]*NodeState
	now   func() time.Time

	// OnRegister 新节点首次出现时的回调（入列欢迎命令的挂接点）
	OnRegister func(nodeID uint8)
}

// New 创建登记表；now 可注入
func New(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{nodes: make(map[uint8]*NodeState), now: now}
}

// Touch 登记一帧来自 nodeID 的活动。返回是否新节点。
// 保留地址（0与255）不登记。
func (r *Registry) Touch(nodeID uint8) bool {
	if nodeID == lss.BaseStationID || nodeID == lss.BroadcastID {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n, created := r.getOrCreateLocked(nodeID)
	if n == nil {
		return false
	}
	n.LastSeen = r.now()
	n.Online = true
	if created && r.OnRegister != nil {
		go r.OnRegister(nodeID)
	}
	return created
}

// IngestTelemetry 记录一帧多传感器遥测
func (r *Registry) IngestTelemetry(pkt *lss.MultiSensorPacket) bool {
	if pkt.SensorID == lss.BaseStationID || pkt.SensorID == lss.BroadcastID {
		return false
	}
	r.mu.Lock()
	n, created := r.getOrCreateLocked(pkt.SensorID)
	if n == nil {
		r.mu.Unlock()
		return false
	}
	if pkt.Location != "" {
		n.Location = pkt.Location
	}
	if pkt.Zone != "" {
		n.Zone = pkt.Zone
	}
	n.BatteryPercent = pkt.BatteryPercent
	n.PowerState = pkt.PowerState
	n.RSSI = pkt.RSSI
	n.SNR = pkt.SNR
	n.LastSeen = r.now()
	n.Online = true
	for _, v := range pkt.Values {
		n.Values[v.Type] = v.Value
	}
	r.mu.Unlock()
	if created && r.OnRegister != nil {
		go r.OnRegister(pkt.SensorID)
	}
	return created
}

// IngestLegacy 记录一帧v1遗留遥测
func (r *Registry) IngestLegacy(pkt *lss.LegacyPacket) bool {
	if pkt.SensorID == lss.BaseStationID || pkt.SensorID == lss.BroadcastID {
		return false
	}
	r.mu.Lock()
	n, created := r.getOrCreateLocked(pkt.SensorID)
	if n == nil {
		r.mu.Unlock()
		return false
	}
	n.BatteryPercent = pkt.BatteryPercent
	n.RSSI = float64(pkt.RSSI)
	n.SNR = float64(pkt.SNR)
	n.LastSeen = r.now()
	n.Online = true
	n.Values[lss.ValueTemperature] = pkt.Temperature
	n.Values[lss.ValueHumidity] = pkt.Humidity
	r.mu.Unlock()
	if created && r.OnRegister != nil {
		go r.OnRegister(pkt.SensorID)
	}
	return created
}

// Get 返回节点状态快照
func (r *Registry) Get(nodeID uint8) (NodeState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[nodeID]
	if !ok {
		return NodeState{}, false
	}
	return n.snapshot(), true
}

// All 返回全部节点状态快照
func (r *Registry) All() []NodeState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NodeState, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n.snapshot())
	}
	return out
}

// OnlineNodes 返回当前在线节点ID
func (r *Registry) OnlineNodes() []uint8 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uint8, 0, len(r.nodes))
	for id, n := range r.nodes {
		if n.Online {
			out = append(out, id)
		}
	}
	return out
}

// OnlineCount 返回在线节点数
func (r *Registry) OnlineCount() int {
	return len(r.OnlineNodes())
}

// Sweep 将超时未见的节点转为离线，返回本次转离线的节点ID
func (r *Registry) Sweep() []uint8 {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	var dropped []uint8
	for id, n := range r.nodes {
		if n.Online && now.Sub(n.LastSeen) > OfflineTimeout {
			n.Online = false
			dropped = append(dropped, id)
		}
	}
	return dropped
}

// Run 周期性离线扫描，直到 ctx 取消
func (r *Registry) Run(ctx context.Context, onOffline func([]uint8)) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if dropped := r.Sweep(); len(dropped) > 0 && onOffline != nil {
				onOffline(dropped)
			}
		}
	}
}

func (r *Registry) getOrCreateLocked(nodeID uint8) (*NodeState, bool) {
	if n, ok := r.nodes[nodeID]; ok {
		return n, false
	}
	if len(r.nodes) >= MaxNodes {
		return nil, false
	}
	n := &NodeState{NodeID: nodeID, Values: make(map[lss.ValueType]float32)}
	r.nodes[nodeID] = n
	return n, true
}
