package radio

// RadioHead 兼容层。
// 基站的 adafruit_rfm9x 驱动在每帧前部添加4字节路由头
// [dest, node, id, flags]；节点固件不发这个头。接收方在偏移0识别
// 失败且长度大于4时，应在偏移4重试识别（见客户端运行时）。

// RadioHeadLen RadioHead路由头长度
const RadioHeadLen = 4

// RadioHead 4字节路由头字段
type RadioHead struct {
	Dest  uint8
	Node  uint8
	ID    uint8
	Flags uint8
}

// PrependRadioHead 在 payload 前添加RadioHead头（基站发送路径）
func PrependRadioHead(h RadioHead, payload []byte) []byte {
	out := make([]byte, RadioHeadLen+len(payload))
	out[0] = h.Dest
	out[1] = h.Node
	out[2] = h.ID
	out[3] = h.Flags
	copy(out[RadioHeadLen:], payload)
	return out
}
