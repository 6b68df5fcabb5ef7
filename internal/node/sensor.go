package node

import (
	"sync"

	"github.com/lss-net/lss/internal/protocol/lss"
)

// Sensor 传感器驱动契约。
// 一个驱动可以产出多个测量值（如温湿度计 → 温度+湿度）。
// Read 失败时必须保留上一次缓存的值，Values 永远返回缓存。
// 具体硬件驱动（DHT22、BME680、热敏电阻分压等）在固件侧实现；
// 这里只依赖该契约，主机侧用仿真驱动替身。
type Sensor interface {
	// Begin 初始化硬件，失败表示传感器缺席或自检不过
	Begin() error
	// Read 触发一次测量并缓存结果
	Read() error
	// Values 返回最近缓存的测量值，数量不超过 limit
	Values(limit int) []lss.SensorValue
	// Name 可读名称（日志用）
	Name() string
}

// SimSensor 仿真传感器：由取样函数供值，主机联调与测试使用
type SimSensor struct {
	name   string
	sample func() []lss.SensorValue

	mu     sync.Mutex
	cached []lss.SensorValue
}

// NewSimSensor 创建仿真传感器
func NewSimSensor(name string, sample func() []lss.SensorValue) *SimSensor {
	return &SimSensor{name: name, sample: sample}
}

// Begin 实现 Sensor
func (s *SimSensor) Begin() error { return nil }

// Read 实现 Sensor：取样失败（返回nil）时保留缓存
func (s *SimSensor) Read() error {
	vals := s.sample()
	if vals == nil {
		return nil
	}
	s.mu.Lock()
	s.cached = vals
	s.mu.Unlock()
	return nil
}

// Values 实现 Sensor
func (s *SimSensor) Values(limit int) []lss.SensorValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cached) > limit {
		return append([]lss.SensorValue(nil), s.cached[:limit]...)
	}
	return append([]lss.SensorValue(nil), s.cached...)
}

// Name 实现 Sensor
func (s *SimSensor) Name() string { return s.name }
