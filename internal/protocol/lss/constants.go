package lss

// LSS 协议常量定义
// 线上格式：全部小端、紧凑布局（packed），与客户端节点固件逐字节对齐。
// 任何改动都是双端同步改动 —— 基站与节点必须一起部署。

// 应用层同步字（帧首两字节，小端 uint16）
const (
	SyncLegacy      uint16 = 0x1234 // v1 遗留遥测帧
	SyncMultiSensor uint16 = 0xABCD // 多传感器遥测帧（v2.9+）
	SyncCommand     uint16 = 0xCDEF // 命令帧 / ACK帧（按 commandType 区分）
)

// PacketType 帧族分类结果
type PacketType uint8

const (
	PacketLegacy      PacketType = 0 // v1 SensorData，仅向后兼容
	PacketMultiSensor PacketType = 1 // MultiSensorHeader + 值条目
	PacketConfig      PacketType = 2 // 下行命令
	PacketAck         PacketType = 3 // ACK / NACK 回执
)

// CommandType 命令码
type CommandType uint8

const (
	CmdPing             CommandType = 0x00
	CmdGetConfig        CommandType = 0x01
	CmdSetInterval      CommandType = 0x02
	CmdSetLocation      CommandType = 0x03
	CmdSetTempThresh    CommandType = 0x04
	CmdSetBatteryThresh CommandType = 0x05
	CmdSetMeshConfig    CommandType = 0x06
	CmdRestart          CommandType = 0x07
	CmdFactoryReset     CommandType = 0x08
	CmdSetLoRaParams    CommandType = 0x09
	CmdTimeSync         CommandType = 0x0A
	CmdSensorAnnounce   CommandType = 0x0B
	CmdBaseWelcome      CommandType = 0x0C
	CmdAck              CommandType = 0xA0
	CmdNack             CommandType = 0xA1
)

// CommandNames 命令码到可读名称的映射（日志与API使用）
var CommandNames = map[CommandType]string{
	CmdPing:             "CMD_PING",
	CmdGetConfig:        "CMD_GET_CONFIG",
	CmdSetInterval:      "CMD_SET_INTERVAL",
	CmdSetLocation:      "CMD_SET_LOCATION",
	CmdSetTempThresh:    "CMD_SET_TEMP_THRESH",
	CmdSetBatteryThresh: "CMD_SET_BATTERY_THRESH",
	CmdSetMeshConfig:    "CMD_SET_MESH_CONFIG",
	CmdRestart:          "CMD_RESTART",
	CmdFactoryReset:     "CMD_FACTORY_RESET",
	CmdSetLoRaParams:    "CMD_SET_LORA_PARAMS",
	CmdTimeSync:         "CMD_TIME_SYNC",
	CmdSensorAnnounce:   "CMD_SENSOR_ANNOUNCE",
	CmdBaseWelcome:      "CMD_BASE_WELCOME",
	CmdAck:              "CMD_ACK",
	CmdNack:             "CMD_NACK",
}

// Name 返回命令码的可读名称，未知命令码返回十六进制形式
func (c CommandType) Name() string {
	if n, ok := CommandNames[c]; ok {
		return n
	}
	return "0x" + hexByte(uint8(c))
}

// IsAck 判断是否为回执命令码（CMD_ACK / CMD_NACK）
func (c CommandType) IsAck() bool {
	return c == CmdAck || c == CmdNack
}

func hexByte(b uint8) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[b>>4], digits[b&0x0F]})
}

// ValueType 传感器测量值类型（SensorValue.Type）
type ValueType uint8

const (
	ValueTemperature           ValueType = 0
	ValueHumidity              ValueType = 1
	ValuePressure              ValueType = 2
	ValueLight                 ValueType = 3
	ValueVoltage               ValueType = 4
	ValueCurrent               ValueType = 5
	ValuePower                 ValueType = 6
	ValueEnergy                ValueType = 7
	ValueGasResistance         ValueType = 8
	ValueBattery               ValueType = 9
	ValueSignalStrength        ValueType = 10
	ValueMoisture              ValueType = 11
	ValueGeneric               ValueType = 12
	ValueThermistorTemperature ValueType = 13
)

// valueNames 测量类型名称（MQTT主题、API字段名）
var valueNames = map[ValueType]string{
	ValueTemperature:           "temperature",
	ValueHumidity:              "humidity",
	ValuePressure:              "pressure",
	ValueLight:                 "light",
	ValueVoltage:               "voltage",
	ValueCurrent:               "current",
	ValuePower:                 "power",
	ValueEnergy:                "energy",
	ValueGasResistance:         "gas_resistance",
	ValueBattery:               "battery",
	ValueSignalStrength:        "signal_strength",
	ValueMoisture:              "moisture",
	ValueGeneric:               "generic",
	ValueThermistorTemperature: "thermistor_temperature",
}

// valueUnits 测量类型单位（仪表盘展示）
var valueUnits = map[ValueType]string{
	ValueTemperature:           "°C",
	ValueHumidity:              "%RH",
	ValuePressure:              "hPa",
	ValueLight:                 "lx",
	ValueVoltage:               "V",
	ValueCurrent:               "mA",
	ValuePower:                 "mW",
	ValueEnergy:                "Wh",
	ValueGasResistance:         "Ω",
	ValueBattery:               "%",
	ValueSignalStrength:        "dBm",
	ValueMoisture:              "%",
	ValueGeneric:               "",
	ValueThermistorTemperature: "°C",
}

// Name 返回测量类型名称
func (v ValueType) Name() string {
	if n, ok := valueNames[v]; ok {
		return n
	}
	return "type_" + hexByte(uint8(v))
}

// Unit 返回测量类型单位
func (v ValueType) Unit() string {
	return valueUnits[v]
}

// 节点地址空间
const (
	BaseStationID uint8 = 0   // 协调者（基站）固定为节点0
	BroadcastID   uint8 = 255 // 广播地址
)

// 各帧族固定尺寸（字节）
const (
	// MultiSensorHeaderSize 多传感器帧头：sync(2)+network(2)+type(1)+sensor(1)+
	// count(1)+battery(1)+power(1)+lastSeq(1)+ackStatus(1)+pad(1)+location(32)+zone(16)
	MultiSensorHeaderSize = 60
	// SensorValueSize 单个值条目：type(1)+float32(4)
	SensorValueSize = 5
	// MaxSensorValues 单帧最多携带的值条目数
	MaxSensorValues = 16

	// CommandDataSize 命令帧数据区固定容量
	CommandDataSize = 192
	// CommandPacketSize 命令帧总长：sync(2)+cmd(1)+target(1)+seq(1)+dataLen(1)+pad(1)+data(192)+crc(2)
	CommandPacketSize = 201
	// AckPacketSize 回执帧总长：sync(2)+cmd(1)+sensor(1)+seq(1)+status(1)+dataLen(1)+pad(1)+data(192)+crc(2)
	AckPacketSize = 202

	// LegacyPacketSize v1 遗留帧：sync(2)+sensor(1)+network(2)+temp(4)+hum(4)+battery(1)+rssi(1)+snr(4)
	LegacyPacketSize = 19

	// LocationMaxLen / ZoneMaxLen 位置与分区字符串容量（含NUL终止符）
	LocationMaxLen = 32
	ZoneMaxLen     = 16
)
