package mesh

import (
	"encoding/binary"
	"errors"
)

var ErrShortFrame = errors.New("frame shorter than mesh header")

// FrameType 网格帧类型
type FrameType uint8

const (
	FrameData           FrameType = 0 // 用户数据载荷
	FrameRouteRequest   FrameType = 1 // RREQ — 泛洪寻路（保留）
	FrameRouteReply     FrameType = 2 // RREP — 沿已知路由单播回复（保留）
	FrameRouteError     FrameType = 3 // RERR — 链路断裂上报（可选）
	FrameNeighborBeacon FrameType = 4 // 周期性邻居发现广播
)

// HeaderSize 网格帧头长度（字节）
const HeaderSize = 9

// Header 每个网格帧前置的路由头
type Header struct {
	Type        FrameType
	SourceID    uint8
	DestID      uint8 // 255=广播
	NextHop     uint8
	PrevHop     uint8
	HopCount    uint8
	TTL         uint8
	SequenceNum uint16
}

// encode 将帧头写入 dst（调用方保证容量）
func (h *Header) encode(dst []byte) {
	dst[0] = uint8(h.Type)
	dst[1] = h.SourceID
	dst[2] = h.DestID
	dst[3] = h.NextHop
	dst[4] = h.PrevHop
	dst[5] = h.HopCount
	dst[6] = h.TTL
	binary.LittleEndian.PutUint16(dst[7:9], h.SequenceNum)
}

// ParseHeader 从 raw 解析网格帧头
func ParseHeader(raw []byte) (Header, error) {
	if len(raw) < HeaderSize {
		return Header{}, ErrShortFrame
	}
	return Header{
		Type:        FrameType(raw[0]),
		SourceID:    raw[1],
		DestID:      raw[2],
		NextHop:     raw[3],
		PrevHop:     raw[4],
		HopCount:    raw[5],
		TTL:         raw[6],
		SequenceNum: binary.LittleEndian.Uint16(raw[7:9]),
	}, nil
}
