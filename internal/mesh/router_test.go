package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock 可推进的毫秒时钟
type fakeClock struct{ ms uint32 }

func (c *fakeClock) now() uint32 { return c.ms }

func (c *fakeClock) advance(ms uint32) { c.ms += ms }

func newTestRouter(nodeID uint8) (*Router, *fakeClock) {
	clk := &fakeClock{ms: 1000}
	return NewRouter(nodeID, true, clk.now), clk
}

func frame(h Header, payload []byte) []byte {
	out := make([]byte, HeaderSize+len(payload))
	h.encode(out)
	copy(out[HeaderSize:], payload)
	return out
}

func TestReceiveDeliverForwardDrop(t *testing.T) {
	r, _ := newTestRouter(5)
	payload := []byte{0xAA, 0xBB}

	tests := []struct {
		name    string
		hdr     Header
		verdict Verdict
	}{
		{"data for us", Header{Type: FrameData, SourceID: 1, DestID: 5, PrevHop: 1, HopCount: 0, TTL: 5}, Delivered},
		{"data for another node", Header{Type: FrameData, SourceID: 1, DestID: 3, PrevHop: 1, HopCount: 0, TTL: 5}, Forward},
		{"hop budget exhausted", Header{Type: FrameData, SourceID: 1, DestID: 5, PrevHop: 1, HopCount: 5, TTL: 1}, Dropped},
		{"broadcast", Header{Type: FrameData, SourceID: 1, DestID: 255, PrevHop: 1, HopCount: 0, TTL: 5}, Delivered},
		{"rreq addressed to us", Header{Type: FrameRouteRequest, SourceID: 2, DestID: 5, PrevHop: 2, HopCount: 0, TTL: 5}, Delivered},
		{"rreq for someone else", Header{Type: FrameRouteRequest, SourceID: 2, DestID: 9, PrevHop: 2, HopCount: 0, TTL: 5}, Dropped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, got := r.Receive(frame(tt.hdr, payload))
			assert.Equal(t, tt.verdict, verdict)
			if tt.verdict == Delivered {
				assert.Equal(t, payload, got)
			}
		})
	}
}

func TestReceiveShortFrameDropped(t *testing.T) {
	r, _ := newTestRouter(5)
	verdict, _ := r.Receive([]byte{0, 1, 2})
	assert.Equal(t, Dropped, verdict)
}

func TestBeaconLearnsNeighbor(t *testing.T) {
	r, _ := newTestRouter(5)
	beacon := frame(Header{Type: FrameNeighborBeacon, SourceID: 2, DestID: 255,
		NextHop: 255, PrevHop: 2, HopCount: 0, TTL: 1}, nil)

	verdict, _ := r.Receive(beacon)
	assert.Equal(t, Dropped, verdict, "beacons never reach the upper layer")
	assert.Equal(t, uint8(2), r.NextHopFor(2))
}

func TestReceiveLearnsRouteFromPrevHop(t *testing.T) {
	r, _ := newTestRouter(0)
	// 节点7的数据帧经节点3中继到达：到7的路由应指向3
	data := frame(Header{Type: FrameData, SourceID: 7, DestID: 0,
		PrevHop: 3, HopCount: 1, TTL: 4}, []byte{1})
	verdict, _ := r.Receive(data)
	assert.Equal(t, Delivered, verdict)
	assert.Equal(t, uint8(3), r.NextHopFor(7))
}

func TestUpdateRouteLastWriterWins(t *testing.T) {
	r, _ := newTestRouter(0)
	r.UpdateRoute(9, 4, 2)
	assert.Equal(t, uint8(4), r.NextHopFor(9))
	// 后写覆盖，即使跳数更差
	r.UpdateRoute(9, 6, 4)
	assert.Equal(t, uint8(6), r.NextHopFor(9))
}

func TestNextHopFallsBackToBroadcast(t *testing.T) {
	r, _ := newTestRouter(0)
	assert.Equal(t, uint8(255), r.NextHopFor(42))
}

func TestEvictStaleRoutes(t *testing.T) {
	r, clk := newTestRouter(0)
	r.UpdateRoute(2, 2, 1)
	clk.advance(RouteTimeoutMs + 1)
	r.EvictStaleRoutes()
	assert.Equal(t, uint8(255), r.NextHopFor(2))
	assert.Equal(t, 0, r.RouteCount())
}

func TestRouteTableEvictsOldestWhenFull(t *testing.T) {
	r, clk := newTestRouter(0)
	for i := 0; i < MaxRoutes; i++ {
		r.UpdateRoute(uint8(10+i), uint8(10+i), 1)
		clk.advance(10)
	}
	require.Equal(t, MaxRoutes, r.RouteCount())
	// 表满后插入新目的地：最旧的(dest=10)被挤出
	r.UpdateRoute(99, 99, 1)
	assert.Equal(t, uint8(99), r.NextHopFor(99))
	assert.Equal(t, uint8(255), r.NextHopFor(10))
	assert.Equal(t, uint8(11), r.NextHopFor(11))
}

func TestTickBeaconInterval(t *testing.T) {
	r, clk := newTestRouter(5)

	b := r.Tick()
	require.NotNil(t, b, "first tick right after startup emits a beacon")
	h, err := ParseHeader(b)
	require.NoError(t, err)
	assert.Equal(t, FrameNeighborBeacon, h.Type)
	assert.Equal(t, uint8(5), h.SourceID)
	assert.Equal(t, uint8(255), h.DestID)
	assert.Equal(t, uint8(1), h.TTL)
	assert.Equal(t, uint8(0), h.HopCount)

	// 间隔内再次tick不产出
	clk.advance(BeaconIntervalMs / 2)
	assert.Nil(t, r.Tick())

	clk.advance(BeaconIntervalMs)
	assert.NotNil(t, r.Tick())
}

func TestTickClockWraparound(t *testing.T) {
	clk := &fakeClock{ms: 0xFFFFF000}
	r := NewRouter(5, true, clk.now)
	require.NotNil(t, r.Tick())
	// 时钟回绕跨过0：无符号减法仍然测得正确的流逝时间
	clk.advance(BeaconIntervalMs + 0x2000)
	assert.NotNil(t, r.Tick())
}

func TestWrapHeader(t *testing.T) {
	r, _ := newTestRouter(5)
	r.UpdateRoute(0, 3, 2)

	payload := []byte{0xDE, 0xAD}
	out := r.Wrap(0, payload)
	require.Len(t, out, HeaderSize+2)
	h, err := ParseHeader(out)
	require.NoError(t, err)
	assert.Equal(t, FrameData, h.Type)
	assert.Equal(t, uint8(5), h.SourceID)
	assert.Equal(t, uint8(0), h.DestID)
	assert.Equal(t, uint8(3), h.NextHop)
	assert.Equal(t, uint8(5), h.PrevHop)
	assert.Equal(t, uint8(0), h.HopCount)
	assert.Equal(t, uint8(MaxHops), h.TTL)
	assert.Equal(t, payload, out[HeaderSize:])

	// 广播目的地的下一跳恒为255
	bc := r.Wrap(255, payload)
	hb, _ := ParseHeader(bc)
	assert.Equal(t, uint8(255), hb.NextHop)

	// 序列号单调递增
	h2, _ := ParseHeader(r.Wrap(0, payload))
	assert.Equal(t, h.SequenceNum+2, h2.SequenceNum)
}

func TestForwardFrame(t *testing.T) {
	r, _ := newTestRouter(4)
	raw := frame(Header{Type: FrameData, SourceID: 1, DestID: 9, PrevHop: 1,
		HopCount: 1, TTL: 4, SequenceNum: 7}, []byte{0x01})

	fwd := r.ForwardFrame(raw)
	require.NotNil(t, fwd)
	h, err := ParseHeader(fwd)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), h.HopCount)
	assert.Equal(t, uint8(4), h.PrevHop)
	assert.Equal(t, uint8(3), h.TTL)
	assert.Equal(t, uint16(7), h.SequenceNum)
	assert.Equal(t, raw[HeaderSize:], fwd[HeaderSize:])

	// TTL耗尽不再转发
	dead := frame(Header{Type: FrameData, SourceID: 1, DestID: 9, PrevHop: 1,
		HopCount: 4, TTL: 1}, nil)
	assert.Nil(t, r.ForwardFrame(dead))
}
