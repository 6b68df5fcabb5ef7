// Package radio 定义LoRa链路的收发缝隙（seam）。
// 真实硬件（SX1262/RFM95W）驱动在固件侧；这里提供同一契约的
// 进程内与UDP实现，使两端状态机可以在主机上端到端运行与测试。
package radio

import "fmt"

// MaxPayload 单帧最大长度（LoRa物理层限制）
const MaxPayload = 255

// Params LoRa射频参数。两端必须使用完全一致的参数才能互通。
type Params struct {
	FrequencyMHz    float32
	SpreadingFactor uint8
	BandwidthHz     uint32
	CodingRate      uint8 // 分母：5 表示 4/5
	TxPower         uint8 // dBm
	PreambleLength  uint8
	NetworkID       uint16
}

// DefaultParams 默认射频参数（915 MHz / SF10 / 125 kHz / 4/5 / 20 dBm / 前导8）
func DefaultParams() Params {
	return Params{
		FrequencyMHz:    915.0,
		SpreadingFactor: 10,
		BandwidthHz:     125000,
		CodingRate:      5,
		TxPower:         20,
		PreambleLength:  8,
		NetworkID:       1,
	}
}

// SyncWord 物理层同步字：0x12 + (networkId mod 244)。
// 用网络ID错开共址部署，与应用层同步字是两回事。
func (p Params) SyncWord() uint8 {
	return 0x12 + uint8(p.NetworkID%244)
}

// String 供日志输出
func (p Params) String() string {
	return fmt.Sprintf("%.1fMHz SF%d BW%dHz CR4/%d %ddBm sync=0x%02X",
		p.FrequencyMHz, p.SpreadingFactor, p.BandwidthHz, p.CodingRate, p.TxPower, p.SyncWord())
}

// Link 半双工无线链路。
// Transmit 把一帧送上空口；收到的帧通过 SetReceiveHandler 注册的回调
// 交付，回调在链路自己的goroutine（"中断上下文"）里执行，实现方不得
// 在回调里长时间阻塞 —— 置位标志、拷贝缓冲后立刻返回。
type Link interface {
	Transmit(frame []byte) error
	SetReceiveHandler(fn func(frame []byte))
	Close() error
}
