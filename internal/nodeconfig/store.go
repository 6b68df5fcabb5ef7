// Package nodeconfig 管理客户端节点的持久化配置。
// 固件侧存放在NVS命名空间 lss_node 里；主机侧用同名YAML文件承载同一套
// 键值契约（键名逐一对应，双端不可各改各的）。
package nodeconfig

import "path/filepath"

// Namespace 键值命名空间（NVS命名空间名，亦作主机侧文件基名）
const Namespace = "lss_node"

// Config 节点的全部运行时可配置参数
type Config struct {
	NodeID                uint8   // 1–254，网内唯一
	NetworkID             uint16  // 必须与基站一致
	TelemetryIntervalMs   uint32  // 遥测发送周期
	Location              string  // 最长31字符
	Zone                  string  // 最长15字符
	TempThreshHigh        float32 // °C，超过触发告警
	TempThreshLow         float32 // °C，低于触发告警
	BatteryThreshLow      float32 // %
	BatteryThreshCritical float32 // %
	LoRaFrequency         float32 // MHz
	LoRaSpreadingFactor   uint8
	LoRaTxPower           uint8 // dBm
	MeshEnabled           bool
	TZOffsetMinutes       int32
	LastTimeSync          uint32 // 最近一次时间同步的UTC秒
}

// Defaults 返回出厂默认配置（与基站 config 默认值保持一致）
func Defaults() Config {
	return Config{
		NodeID:                1,
		NetworkID:             1,
		TelemetryIntervalMs:   30000,
		Location:              "Unknown",
		Zone:                  "default",
		TempThreshHigh:        50.0,
		TempThreshLow:         -20.0,
		BatteryThreshLow:      20.0,
		BatteryThreshCritical: 10.0,
		LoRaFrequency:         915.0,
		LoRaSpreadingFactor:   10,
		LoRaTxPower:           20,
		MeshEnabled:           true,
		TZOffsetMinutes:       0,
		LastTimeSync:          0,
	}
}

// Store 跨KV契约的节点配置存储
type Store struct {
	kv  KV
	cfg Config
}

// NewStore 创建文件承载的存储。dir 为配置目录，文件名固定为
// <Namespace>.yaml。
func NewStore(dir string) *Store {
	return NewStoreWithKV(NewFileKV(filepath.Join(dir, Namespace+".yaml")))
}

// NewStoreWithKV 在任意KV实现上构造存储（固件侧NVS、测试侧MemKV）
func NewStoreWithKV(kv KV) *Store {
	return &Store{kv: kv}
}

// Path 返回底层文件路径；非文件承载的KV返回空串
func (s *Store) Path() string {
	if f, ok := s.kv.(*FileKV); ok {
		return f.Path()
	}
	return ""
}

// Config 返回内存配置的可变引用；修改后需调用 Save 落盘
func (s *Store) Config() *Config { return &s.cfg }

// Load 从KV逐键读取全部字段，缺失的单个键回退默认值（容忍个别
// 字段丢失）。命名空间不存在时写入默认值并返回默认配置。
func (s *Store) Load() error {
	if !s.kv.Exists() {
		s.cfg = Defaults()
		return s.Save()
	}

	d := Defaults()
	s.cfg = Config{
		NodeID:                uint8(s.kv.GetUint32("node_id", uint32(d.NodeID))),
		NetworkID:             uint16(s.kv.GetUint32("network_id", uint32(d.NetworkID))),
		TelemetryIntervalMs:   s.kv.GetUint32("tx_interval", d.TelemetryIntervalMs),
		Location:              s.kv.GetString("location", d.Location),
		Zone:                  s.kv.GetString("zone", d.Zone),
		TempThreshHigh:        s.kv.GetFloat32("temp_hi", d.TempThreshHigh),
		TempThreshLow:         s.kv.GetFloat32("temp_lo", d.TempThreshLow),
		BatteryThreshLow:      s.kv.GetFloat32("batt_lo", d.BatteryThreshLow),
		BatteryThreshCritical: s.kv.GetFloat32("batt_crit", d.BatteryThreshCritical),
		LoRaFrequency:         s.kv.GetFloat32("lora_freq", d.LoRaFrequency),
		LoRaSpreadingFactor:   uint8(s.kv.GetUint32("lora_sf", uint32(d.LoRaSpreadingFactor))),
		LoRaTxPower:           uint8(s.kv.GetUint32("lora_txpwr", uint32(d.LoRaTxPower))),
		MeshEnabled:           s.kv.GetBool("mesh_en", d.MeshEnabled),
		TZOffsetMinutes:       s.kv.GetInt32("tz_offset", d.TZOffsetMinutes),
		LastTimeSync:          s.kv.GetUint32("time_sync", d.LastTimeSync),
	}
	return nil
}

// Save 将内存配置逐键写回（尽力而为的逐键原子性由一次Commit保证）
func (s *Store) Save() error {
	s.kv.Set("node_id", uint32(s.cfg.NodeID))
	s.kv.Set("network_id", uint32(s.cfg.NetworkID))
	s.kv.Set("tx_interval", s.cfg.TelemetryIntervalMs)
	s.kv.Set("location", s.cfg.Location)
	s.kv.Set("zone", s.cfg.Zone)
	s.kv.Set("temp_hi", s.cfg.TempThreshHigh)
	s.kv.Set("temp_lo", s.cfg.TempThreshLow)
	s.kv.Set("batt_lo", s.cfg.BatteryThreshLow)
	s.kv.Set("batt_crit", s.cfg.BatteryThreshCritical)
	s.kv.Set("lora_freq", s.cfg.LoRaFrequency)
	s.kv.Set("lora_sf", uint32(s.cfg.LoRaSpreadingFactor))
	s.kv.Set("lora_txpwr", uint32(s.cfg.LoRaTxPower))
	s.kv.Set("mesh_en", s.cfg.MeshEnabled)
	s.kv.Set("tz_offset", s.cfg.TZOffsetMinutes)
	s.kv.Set("time_sync", s.cfg.LastTimeSync)
	return s.kv.Commit()
}

// FactoryReset 清除命名空间并恢复默认值（CMD_FACTORY_RESET）
func (s *Store) FactoryReset() error {
	if err := s.kv.Clear(); err != nil {
		return err
	}
	s.cfg = Defaults()
	return s.Save()
}
