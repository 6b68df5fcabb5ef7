package node

import (
	"github.com/lss-net/lss/internal/mesh"
	"github.com/lss-net/lss/internal/nodeconfig"
	"github.com/lss-net/lss/internal/protocol/lss"
)

// Action 命令处理后运行时需要执行的后续动作。
// 回执必须先行发出（上天线）之后才能做破坏性动作。
type Action int

const (
	ActionNone Action = iota
	// ActionRestart 发完ACK后重启
	ActionRestart
	// ActionFactoryReset 发完ACK后清除存储并重启
	ActionFactoryReset
)

// 回执状态码
const (
	statusOK  uint8 = 0x00
	statusErr uint8 = 0x01
)

// ApplyCommand 解码并应用一条已通过CRC校验的下行命令。
// 返回序列化好的 ACK / NACK 帧与后续动作。配置变更先落盘再回执；
// 落盘失败按命令失败处理（NACK），循环继续。
func ApplyCommand(pkt *lss.CommandPacket, store *nodeconfig.Store, router *mesh.Router) ([]byte, Action) {
	cfg := store.Config()
	seq := pkt.SequenceNumber
	nid := cfg.NodeID
	action := ActionNone
	ok := true

	switch pkt.CommandType {

	case lss.CmdPing:
		// 只回执

	case lss.CmdGetConfig:
		// 回执无载荷；配置回读留作后续扩展

	case lss.CmdSetInterval:
		interval, err := lss.DecodeInterval(pkt.Data)
		if err != nil || interval < lss.IntervalMinMs || interval > lss.IntervalMaxMs {
			ok = false
			break
		}
		cfg.TelemetryIntervalMs = interval
		ok = store.Save() == nil

	case lss.CmdSetLocation:
		location, zone := lss.DecodeLocation(pkt.Data)
		if location != "" {
			cfg.Location = truncate(location, lss.LocationMaxLen-1)
		}
		if zone != "" {
			cfg.Zone = truncate(zone, lss.ZoneMaxLen-1)
		}
		ok = store.Save() == nil

	case lss.CmdSetTempThresh:
		lo, hi, err := lss.DecodeFloatPair(pkt.Data)
		if err != nil {
			ok = false
			break
		}
		cfg.TempThreshLow = lo
		cfg.TempThreshHigh = hi
		ok = store.Save() == nil

	case lss.CmdSetBatteryThresh:
		lo, crit, err := lss.DecodeFloatPair(pkt.Data)
		if err != nil {
			ok = false
			break
		}
		cfg.BatteryThreshLow = lo
		cfg.BatteryThreshCritical = crit
		ok = store.Save() == nil

	case lss.CmdSetMeshConfig:
		enabled, err := lss.DecodeMeshConfig(pkt.Data)
		if err != nil {
			ok = false
			break
		}
		cfg.MeshEnabled = enabled
		router.SetEnabled(enabled)
		ok = store.Save() == nil

	case lss.CmdRestart:
		action = ActionRestart

	case lss.CmdFactoryReset:
		// 存储在回执发出之后才清除（见运行时），这里只决定动作
		action = ActionFactoryReset

	case lss.CmdSetLoRaParams:
		freq, sf, txPower, err := lss.DecodeLoRaParams(pkt.Data)
		if err != nil {
			ok = false
			break
		}
		cfg.LoRaFrequency = freq
		cfg.LoRaSpreadingFactor = sf
		cfg.LoRaTxPower = txPower
		// 射频参数下次启动生效
		ok = store.Save() == nil

	case lss.CmdTimeSync, lss.CmdBaseWelcome:
		epoch, tz, err := lss.DecodeTimeSync(pkt.Data)
		if err != nil {
			ok = false
			break
		}
		cfg.LastTimeSync = epoch
		cfg.TZOffsetMinutes = int32(tz)
		ok = store.Save() == nil

	default:
		ok = false
	}

	kind := lss.CmdAck
	status := statusOK
	if !ok {
		kind = lss.CmdNack
		status = statusErr
		action = ActionNone
	}
	ack, err := lss.BuildAck(kind, nid, seq, status)
	if err != nil {
		return nil, ActionNone
	}
	return ack, action
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
