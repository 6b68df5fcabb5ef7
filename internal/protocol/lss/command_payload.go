package lss

import (
	"encoding/binary"
	"math"
)

// 命令数据区编解码。
// 每个 CMD_SET_* 的数据区布局与节点固件逐字节对齐（小端），
// 编码函数产出下行数据区，解码函数在节点侧还原。

// 遥测间隔允许范围（毫秒）
const (
	IntervalMinMs = 1000
	IntervalMaxMs = 3600000
)

// EncodeInterval 编码 CMD_SET_INTERVAL 数据区：uint32 毫秒
func EncodeInterval(intervalMs uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, intervalMs)
	return b
}

// DecodeInterval 解码 CMD_SET_INTERVAL 数据区
func DecodeInterval(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, ErrShort
	}
	return binary.LittleEndian.Uint32(data[0:4]), nil
}

// EncodeLocation 编码 CMD_SET_LOCATION 数据区：NUL结尾的location后跟NUL结尾的zone
func EncodeLocation(location, zone string) []byte {
	loc := []byte(location)
	if len(loc) > LocationMaxLen-1 {
		loc = loc[:LocationMaxLen-1]
	}
	zn := []byte(zone)
	if len(zn) > ZoneMaxLen-1 {
		zn = zn[:ZoneMaxLen-1]
	}
	out := make([]byte, 0, len(loc)+len(zn)+2)
	out = append(out, loc...)
	out = append(out, 0)
	out = append(out, zn...)
	out = append(out, 0)
	return out
}

// DecodeLocation 解码 CMD_SET_LOCATION 数据区。
// zone 缺失时返回空字符串，由调用方决定是否保留旧值。
func DecodeLocation(data []byte) (location, zone string) {
	i := 0
	for i < len(data) && data[i] != 0 {
		i++
	}
	location = string(data[:i])
	if i+1 < len(data) {
		rest := data[i+1:]
		j := 0
		for j < len(rest) && rest[j] != 0 {
			j++
		}
		zone = string(rest[:j])
	}
	return location, zone
}

// EncodeFloatPair 编码两个连续的 float32（温度阈值、电量阈值共用）
func EncodeFloatPair(a, b float32) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint32(out[0:4], math.Float32bits(a))
	binary.LittleEndian.PutUint32(out[4:8], math.Float32bits(b))
	return out
}

// DecodeFloatPair 解码两个连续的 float32
func DecodeFloatPair(data []byte) (a, b float32, err error) {
	if len(data) < 8 {
		return 0, 0, ErrShort
	}
	a = math.Float32frombits(binary.LittleEndian.Uint32(data[0:4]))
	b = math.Float32frombits(binary.LittleEndian.Uint32(data[4:8]))
	return a, b, nil
}

// EncodeMeshConfig 编码 CMD_SET_MESH_CONFIG 数据区：单字节开关
func EncodeMeshConfig(enabled bool) []byte {
	if enabled {
		return []byte{1}
	}
	return []byte{0}
}

// DecodeMeshConfig 解码 CMD_SET_MESH_CONFIG 数据区
func DecodeMeshConfig(data []byte) (bool, error) {
	if len(data) < 1 {
		return false, ErrShort
	}
	return data[0] != 0, nil
}

// EncodeLoRaParams 编码 CMD_SET_LORA_PARAMS 数据区：
// float32 频率(MHz) + SF(1) + 保留字节(1) + 发射功率(1)
func EncodeLoRaParams(frequency float32, sf, txPower uint8) []byte {
	out := make([]byte, 7)
	binary.LittleEndian.PutUint32(out[0:4], math.Float32bits(frequency))
	out[4] = sf
	out[5] = 0
	out[6] = txPower
	return out
}

// DecodeLoRaParams 解码 CMD_SET_LORA_PARAMS 数据区
func DecodeLoRaParams(data []byte) (frequency float32, sf, txPower uint8, err error) {
	if len(data) < 7 {
		return 0, 0, 0, ErrShort
	}
	frequency = math.Float32frombits(binary.LittleEndian.Uint32(data[0:4]))
	return frequency, data[4], data[6], nil
}

// EncodeTimeSync 编码 CMD_TIME_SYNC / CMD_BASE_WELCOME 数据区：
// uint32 UTC秒 + int16 时区偏移（分钟）
func EncodeTimeSync(utcEpoch uint32, tzOffsetMin int16) []byte {
	out := make([]byte, 6)
	binary.LittleEndian.PutUint32(out[0:4], utcEpoch)
	binary.LittleEndian.PutUint16(out[4:6], uint16(tzOffsetMin))
	return out
}

// DecodeTimeSync 解码 CMD_TIME_SYNC / CMD_BASE_WELCOME 数据区
func DecodeTimeSync(data []byte) (utcEpoch uint32, tzOffsetMin int16, err error) {
	if len(data) < 6 {
		return 0, 0, ErrShort
	}
	utcEpoch = binary.LittleEndian.Uint32(data[0:4])
	tzOffsetMin = int16(binary.LittleEndian.Uint16(data[4:6]))
	return utcEpoch, tzOffsetMin, nil
}
