// Package mqttpub 把解析后的遥测发布到MQTT，供仪表盘之外的订阅方
// （Home Assistant等）消费。发布失败只记日志，绝不反压接收路径。
package mqttpub

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	cfgpkg "github.com/lss-net/lss/internal/config"
	"github.com/lss-net/lss/internal/protocol/lss"
)

const (
	connectTimeout = 5 * time.Second
	publishQoS     = 0
)

// Publisher MQTT遥测发布器
type Publisher struct {
	client mqtt.Client
	prefix string
	log    *zap.Logger
}

// telemetryMessage 聚合主题上发布的JSON
type telemetryMessage struct {
	NodeID         uint8              `json:"node_id"`
	NetworkID      uint16             `json:"network_id"`
	Location       string             `json:"location"`
	Zone           string             `json:"zone"`
	BatteryPercent uint8              `json:"battery_percent"`
	PowerState     uint8              `json:"power_state"`
	RSSI           float64            `json:"rssi"`
	SNR            float64            `json:"snr"`
	Values         map[string]float32 `json:"values"`
}

// Connect 建立MQTT连接并返回发布器
func Connect(cfg cfgpkg.MQTTConfig, logger *zap.Logger) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port)).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("mqtt connected", zap.String("broker", cfg.Broker))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) || token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "lss"
	}
	return &Publisher{client: client, prefix: prefix, log: logger}, nil
}

// PublishTelemetry 发布一帧遥测：
// <prefix>/nodes/<id>/state 上发聚合JSON，
// <prefix>/nodes/<id>/<value_name> 上逐值发裸数字。
func (p *Publisher) PublishTelemetry(pkt *lss.MultiSensorPacket) {
	msg := telemetryMessage{
		NodeID:         pkt.SensorID,
		NetworkID:      pkt.NetworkID,
		Location:       pkt.Location,
		Zone:           pkt.Zone,
		BatteryPercent: pkt.BatteryPercent,
		PowerState:     pkt.PowerState,
		RSSI:           pkt.RSSI,
		SNR:            pkt.SNR,
		Values:         make(map[string]float32, len(pkt.Values)),
	}
	for _, v := range pkt.Values {
		msg.Values[v.Type.Name()] = v.Value
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		p.log.Error("telemetry marshal failed", zap.Error(err))
		return
	}
	base := fmt.Sprintf("%s/nodes/%d", p.prefix, pkt.SensorID)
	p.client.Publish(base+"/state", publishQoS, false, payload)
	for _, v := range pkt.Values {
		p.client.Publish(fmt.Sprintf("%s/%s", base, v.Type.Name()),
			publishQoS, false, fmt.Sprintf("%g", v.Value))
	}
}

// Close 断开连接
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
