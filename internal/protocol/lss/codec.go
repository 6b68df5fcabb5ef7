package lss

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	ErrShort         = errors.New("buffer too short")
	ErrSyncMismatch  = errors.New("sync word mismatch")
	ErrCRCMismatch   = errors.New("crc mismatch")
	ErrTooManyValues = errors.New("too many sensor values")
	ErrDataTooLong   = errors.New("command data too long")
	ErrUnknownFrame  = errors.New("unrecognised frame")
)

// MultiSensorSize 返回 pkt 序列化后的总字节数
func MultiSensorSize(pkt *MultiSensorPacket) int {
	return MultiSensorHeaderSize + len(pkt.Values)*SensorValueSize + 2
}

// SerializeMultiSensor 将多传感器帧序列化到 buf，返回写入字节数。
// buf 容量不足或值条目超过上限时返回错误，buf 内容未定义。
func SerializeMultiSensor(pkt *MultiSensorPacket, buf []byte) (int, error) {
	if len(pkt.Values) > MaxSensorValues {
		return 0, ErrTooManyValues
	}
	need := MultiSensorSize(pkt)
	if len(buf) < need {
		return 0, ErrShort
	}

	binary.LittleEndian.PutUint16(buf[0:2], SyncMultiSensor)
	binary.LittleEndian.PutUint16(buf[2:4], pkt.NetworkID)
	buf[4] = uint8(PacketMultiSensor)
	buf[5] = pkt.SensorID
	buf[6] = uint8(len(pkt.Values))
	buf[7] = pkt.BatteryPercent
	buf[8] = pkt.PowerState
	buf[9] = pkt.LastCommandSeq
	buf[10] = pkt.AckStatus
	buf[11] = 0 // pad
	putNulString(buf[12:44], pkt.Location)
	putNulString(buf[44:60], pkt.Zone)

	off := MultiSensorHeaderSize
	for _, v := range pkt.Values {
		buf[off] = uint8(v.Type)
		binary.LittleEndian.PutUint32(buf[off+1:off+5], math.Float32bits(v.Value))
		off += SensorValueSize
	}

	crc := CRC16(buf[:off])
	binary.LittleEndian.PutUint16(buf[off:off+2], crc)
	return off + 2, nil
}

// DeserializeMultiSensor 从 raw 解析多传感器帧。
// 同步字、长度、值条目数、CRC任一不符即返回错误，不产生副作用。
func DeserializeMultiSensor(raw []byte) (*MultiSensorPacket, error) {
	if len(raw) < MultiSensorHeaderSize+2 {
		return nil, ErrShort
	}
	if binary.LittleEndian.Uint16(raw[0:2]) != SyncMultiSensor {
		return nil, ErrSyncMismatch
	}
	count := int(raw[6])
	if count > MaxSensorValues {
		return nil, ErrTooManyValues
	}
	payloadEnd := MultiSensorHeaderSize + count*SensorValueSize
	if len(raw) < payloadEnd+2 {
		return nil, ErrShort
	}
	received := binary.LittleEndian.Uint16(raw[payloadEnd : payloadEnd+2])
	if CRC16(raw[:payloadEnd]) != received {
		return nil, ErrCRCMismatch
	}

	pkt := &MultiSensorPacket{
		NetworkID:      binary.LittleEndian.Uint16(raw[2:4]),
		SensorID:       raw[5],
		BatteryPercent: raw[7],
		PowerState:     raw[8],
		LastCommandSeq: raw[9],
		AckStatus:      raw[10],
		Location:       trimNul(raw[12:44]),
		Zone:           trimNul(raw[44:60]),
		Values:         make([]SensorValue, 0, count),
	}
	off := MultiSensorHeaderSize
	for i := 0; i < count; i++ {
		pkt.Values = append(pkt.Values, SensorValue{
			Type:  ValueType(raw[off]),
			Value: math.Float32frombits(binary.LittleEndian.Uint32(raw[off+1 : off+5])),
		})
		off += SensorValueSize
	}
	return pkt, nil
}

// SerializeCommand 将命令帧序列化为固定长度的字节串
func SerializeCommand(pkt *CommandPacket) ([]byte, error) {
	if len(pkt.Data) > CommandDataSize {
		return nil, ErrDataTooLong
	}
	buf := make([]byte, CommandPacketSize)
	binary.LittleEndian.PutUint16(buf[0:2], SyncCommand)
	buf[2] = uint8(pkt.CommandType)
	buf[3] = pkt.TargetSensorID
	buf[4] = pkt.SequenceNumber
	buf[5] = uint8(len(pkt.Data))
	buf[6] = 0 // pad
	copy(buf[7:7+CommandDataSize], pkt.Data)
	crc := CRC16(buf[:CommandPacketSize-2])
	binary.LittleEndian.PutUint16(buf[CommandPacketSize-2:], crc)
	return buf, nil
}

// DeserializeCommand 从 raw 解析命令帧（固定总长，CRC覆盖尾部uint16之前的全部字节）
func DeserializeCommand(raw []byte) (*CommandPacket, error) {
	if len(raw) < CommandPacketSize {
		return nil, ErrShort
	}
	if binary.LittleEndian.Uint16(raw[0:2]) != SyncCommand {
		return nil, ErrSyncMismatch
	}
	crcEnd := CommandPacketSize - 2
	received := binary.LittleEndian.Uint16(raw[crcEnd:CommandPacketSize])
	if CRC16(raw[:crcEnd]) != received {
		return nil, ErrCRCMismatch
	}
	dataLen := int(raw[5])
	if dataLen > CommandDataSize {
		dataLen = CommandDataSize
	}
	data := make([]byte, dataLen)
	copy(data, raw[7:7+dataLen])
	return &CommandPacket{
		CommandType:    CommandType(raw[2]),
		TargetSensorID: raw[3],
		SequenceNumber: raw[4],
		Data:           data,
	}, nil
}

// SerializeAck 将回执帧序列化为固定长度的字节串
func SerializeAck(pkt *AckPacket) ([]byte, error) {
	if len(pkt.Data) > CommandDataSize {
		return nil, ErrDataTooLong
	}
	buf := make([]byte, AckPacketSize)
	binary.LittleEndian.PutUint16(buf[0:2], SyncCommand)
	buf[2] = uint8(pkt.CommandType)
	buf[3] = pkt.SensorID
	buf[4] = pkt.SequenceNumber
	buf[5] = pkt.StatusCode
	buf[6] = uint8(len(pkt.Data))
	buf[7] = 0 // pad
	copy(buf[8:8+CommandDataSize], pkt.Data)
	crc := CRC16(buf[:AckPacketSize-2])
	binary.LittleEndian.PutUint16(buf[AckPacketSize-2:], crc)
	return buf, nil
}

// DeserializeAck 从 raw 解析 ACK / NACK 回执帧
func DeserializeAck(raw []byte) (*AckPacket, error) {
	if len(raw) < AckPacketSize {
		return nil, ErrShort
	}
	if binary.LittleEndian.Uint16(raw[0:2]) != SyncCommand {
		return nil, ErrSyncMismatch
	}
	crcEnd := AckPacketSize - 2
	received := binary.LittleEndian.Uint16(raw[crcEnd:AckPacketSize])
	if CRC16(raw[:crcEnd]) != received {
		return nil, ErrCRCMismatch
	}
	dataLen := int(raw[6])
	if dataLen > CommandDataSize {
		dataLen = CommandDataSize
	}
	data := make([]byte, dataLen)
	copy(data, raw[8:8+dataLen])
	return &AckPacket{
		CommandType:    CommandType(raw[2]),
		SensorID:       raw[3],
		SequenceNumber: raw[4],
		StatusCode:     raw[5],
		Data:           data,
	}, nil
}

// BuildAck 构造并序列化一个数据区为空的 ACK / NACK 回执
func BuildAck(kind CommandType, sensorID, seq, statusCode uint8) ([]byte, error) {
	if !kind.IsAck() {
		return nil, ErrUnknownFrame
	}
	return SerializeAck(&AckPacket{
		CommandType:    kind,
		SensorID:       sensorID,
		SequenceNumber: seq,
		StatusCode:     statusCode,
	})
}

// BuildCommand 构造并序列化一个下行命令帧
func BuildCommand(cmd CommandType, targetID, seq uint8, data []byte) ([]byte, error) {
	return SerializeCommand(&CommandPacket{
		CommandType:    cmd,
		TargetSensorID: targetID,
		SequenceNumber: seq,
		Data:           data,
	})
}

// SerializeLegacy 序列化 v1 遗留遥测帧（仅测试与兼容工具使用）
func SerializeLegacy(pkt *LegacyPacket) []byte {
	buf := make([]byte, LegacyPacketSize)
	binary.LittleEndian.PutUint16(buf[0:2], SyncLegacy)
	buf[2] = pkt.SensorID
	binary.LittleEndian.PutUint16(buf[3:5], pkt.NetworkID)
	binary.LittleEndian.PutUint32(buf[5:9], math.Float32bits(pkt.Temperature))
	binary.LittleEndian.PutUint32(buf[9:13], math.Float32bits(pkt.Humidity))
	buf[13] = pkt.BatteryPercent
	buf[14] = uint8(pkt.RSSI)
	binary.LittleEndian.PutUint32(buf[15:19], math.Float32bits(pkt.SNR))
	return buf
}

// DeserializeLegacy 解析 v1 遗留遥测帧。遗留帧没有CRC，同步字是唯一防线。
func DeserializeLegacy(raw []byte) (*LegacyPacket, error) {
	if len(raw) < LegacyPacketSize {
		return nil, ErrShort
	}
	if binary.LittleEndian.Uint16(raw[0:2]) != SyncLegacy {
		return nil, ErrSyncMismatch
	}
	return &LegacyPacket{
		SensorID:       raw[2],
		NetworkID:      binary.LittleEndian.Uint16(raw[3:5]),
		Temperature:    math.Float32frombits(binary.LittleEndian.Uint32(raw[5:9])),
		Humidity:       math.Float32frombits(binary.LittleEndian.Uint32(raw[9:13])),
		BatteryPercent: raw[13],
		RSSI:           int8(raw[14]),
		SNR:            math.Float32frombits(binary.LittleEndian.Uint32(raw[15:19])),
	}, nil
}

// DetectPacket 读取帧首两字节判定帧族。
// 0xCDEF 需再看第三字节区分命令与回执；无法识别时返回 ErrUnknownFrame。
func DetectPacket(raw []byte) (PacketType, error) {
	if len(raw) < 2 {
		return 0, ErrShort
	}
	switch binary.LittleEndian.Uint16(raw[0:2]) {
	case SyncLegacy:
		if len(raw) >= LegacyPacketSize {
			return PacketLegacy, nil
		}
		return 0, ErrUnknownFrame
	case SyncMultiSensor:
		return PacketMultiSensor, nil
	case SyncCommand:
		if len(raw) >= 3 && CommandType(raw[2]).IsAck() {
			return PacketAck, nil
		}
		return PacketConfig, nil
	}
	return 0, ErrUnknownFrame
}
