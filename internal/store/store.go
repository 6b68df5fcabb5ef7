// Package store 持久化遥测历史，供仪表盘时序查询。
// 节点的"最近状态"在 registry 的内存里；这里只管追加与按窗口读取。
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	cfgpkg "github.com/lss-net/lss/internal/config"
	"github.com/lss-net/lss/internal/protocol/lss"
)

// TelemetryRecord 一帧遥测对应一行历史
type TelemetryRecord struct {
	ID             uint64    `gorm:"primaryKey"`
	NodeID         uint8     `gorm:"index:idx_node_ts"`
	ReceivedAt     time.Time `gorm:"index:idx_node_ts"`
	BatteryPercent uint8
	PowerState     uint8
	RSSI           float64
	SNR            float64
	ValuesJSON     string `gorm:"type:text"`
}

// TableName 指定表名
func (TelemetryRecord) TableName() string { return "telemetry_history" }

// EncodeValues 将测量值编码为行内JSON（键为类型名）
func EncodeValues(values []lss.SensorValue) (string, error) {
	m := make(map[string]float32, len(values))
	for _, v := range values {
		m[v.Type.Name()] = v.Value
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode values: %w", err)
	}
	return string(b), nil
}

// DecodeValues 还原行内JSON
func DecodeValues(s string) (map[string]float32, error) {
	if s == "" {
		return map[string]float32{}, nil
	}
	m := make(map[string]float32)
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decode values: %w", err)
	}
	return m, nil
}

// Repository 遥测历史仓库
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// Open 按配置连接数据库并迁移表结构
func Open(cfg cfgpkg.DatabaseConfig) (*Repository, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return NewRepository(db)
}

// NewRepository 在现有连接上构造仓库（测试注入）
func NewRepository(db *gorm.DB) (*Repository, error) {
	if err := db.AutoMigrate(&TelemetryRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Repository{db: db, now: time.Now}, nil
}

// InsertTelemetry 追加一帧遥测
func (r *Repository) InsertTelemetry(pkt *lss.MultiSensorPacket) error {
	valuesJSON, err := EncodeValues(pkt.Values)
	if err != nil {
		return err
	}
	rec := &TelemetryRecord{
		NodeID:         pkt.SensorID,
		ReceivedAt:     r.now(),
		BatteryPercent: pkt.BatteryPercent,
		PowerState:     pkt.PowerState,
		RSSI:           pkt.RSSI,
		SNR:            pkt.SNR,
		ValuesJSON:     valuesJSON,
	}
	if err := r.db.Create(rec).Error; err != nil {
		return fmt.Errorf("insert telemetry: %w", err)
	}
	return nil
}

// History 按节点与时间窗口查询历史，时间升序，最多 limit 行
func (r *Repository) History(nodeID uint8, since time.Time, limit int) ([]TelemetryRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []TelemetryRecord
	err := r.db.
		Where("node_id = ? AND received_at >= ?", nodeID, since).
		Order("received_at asc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("history query: %w", err)
	}
	return rows, nil
}
