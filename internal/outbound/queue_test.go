package outbound

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lss-net/lss/internal/protocol/lss"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestQueue() (*Queue, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1754400000, 0)}
	return NewQueue(clk.now), clk
}

func TestEnqueueAssignsSequencePerNode(t *testing.T) {
	q, _ := newTestQueue()

	_, s1 := q.Enqueue(3, lss.CmdPing, nil)
	_, s2 := q.Enqueue(3, lss.CmdPing, nil)
	_, s3 := q.Enqueue(4, lss.CmdPing, nil)
	assert.Equal(t, uint8(1), s1)
	assert.Equal(t, uint8(2), s2)
	assert.Equal(t, uint8(1), s3, "sequence counters are per node")
}

func TestSequenceWrapsSkippingZero(t *testing.T) {
	q, _ := newTestQueue()
	var last uint8
	for i := 0; i < 256; i++ {
		_, last = q.Enqueue(1, lss.CmdPing, nil)
		assert.NotZero(t, last, "zero is the no-piggyback sentinel and is never assigned")
	}
	// 256次取号后回绕，永远跳过0
	_, s := q.Enqueue(1, lss.CmdPing, nil)
	assert.Equal(t, uint8(2), s)
}

func TestAckCompletesCommand(t *testing.T) {
	q, _ := newTestQueue()
	h, seq := q.Enqueue(3, lss.CmdSetInterval, lss.EncodeInterval(15000))

	cmd := q.NextDue()
	require.NotNil(t, cmd)
	q.MarkSent(cmd.Handle)

	st, ok := q.Status(h)
	require.True(t, ok)
	assert.Equal(t, StateInFlight, st.State)

	require.True(t, q.ProcessAck(3, seq, true, 0))
	st, _ = q.Status(h)
	assert.Equal(t, StateAcked, st.State)
	assert.Equal(t, uint8(0), st.StatusCode)

	assert.Nil(t, q.NextDue(), "acked command never retransmits")
}

func TestNackRecordsStatusCode(t *testing.T) {
	q, _ := newTestQueue()
	h, seq := q.Enqueue(3, lss.CmdSetInterval, lss.EncodeInterval(50))
	q.MarkSent(q.NextDue().Handle)

	require.True(t, q.ProcessAck(3, seq, false, 1))
	st, _ := q.Status(h)
	assert.Equal(t, StateNacked, st.State)
	assert.Equal(t, uint8(1), st.StatusCode)
}

func TestAckMatchRequiresNodeAndSeq(t *testing.T) {
	q, _ := newTestQueue()
	_, seq := q.Enqueue(3, lss.CmdPing, nil)
	q.MarkSent(q.NextDue().Handle)

	assert.False(t, q.ProcessAck(4, seq, true, 0), "wrong node")
	assert.False(t, q.ProcessAck(3, seq+1, true, 0), "wrong sequence")
	assert.True(t, q.ProcessAck(3, seq, true, 0))
}

func TestRetryScheduleAndTimeout(t *testing.T) {
	q, clk := newTestQueue()
	h, _ := q.Enqueue(3, lss.CmdPing, nil)

	var results []State
	q.SetResultFunc(func(_ *PendingCommand, s State) { results = append(results, s) })

	// 三次投递，每次间隔12秒
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		cmd := q.NextDue()
		require.NotNil(t, cmd, "attempt %d due", attempt)
		q.MarkSent(cmd.Handle)
		assert.Nil(t, q.NextDue(), "nothing due inside the retry window")
		clk.advance(RetryTimeout + time.Second)
	}

	// 预算耗尽：转为超时终态，不再投递
	assert.Nil(t, q.NextDue())
	st, _ := q.Status(h)
	assert.Equal(t, StateTimeout, st.State)
	assert.Equal(t, MaxAttempts, st.Attempts)
	assert.Equal(t, []State{StateTimeout}, results)
}

func TestPiggybackAckEquivalentToExplicit(t *testing.T) {
	q, clk := newTestQueue()
	h, seq := q.Enqueue(3, lss.CmdSetInterval, lss.EncodeInterval(15000))
	q.MarkSent(q.NextDue().Handle)

	// t=6s：遥测帧头携带 lastCommandSeq=seq, ackStatus=0
	clk.advance(6 * time.Second)
	require.True(t, q.ProcessPiggybackAck(3, seq, 0))

	st, _ := q.Status(h)
	assert.Equal(t, StateAcked, st.State)
	assert.Equal(t, 1, st.Attempts, "no further transmit after piggyback ack")
	assert.Nil(t, q.NextDue())
}

func TestPiggybackZeroSeqIgnored(t *testing.T) {
	q, _ := newTestQueue()
	q.Enqueue(3, lss.CmdPing, nil)
	q.MarkSent(q.NextDue().Handle)
	assert.False(t, q.ProcessPiggybackAck(3, 0, 0))
}

func TestSameNodeCommandsSerialized(t *testing.T) {
	q, _ := newTestQueue()
	q.Enqueue(3, lss.CmdPing, nil)
	q.Enqueue(3, lss.CmdGetConfig, nil)
	q.Enqueue(5, lss.CmdPing, nil)

	first := q.NextDue()
	require.NotNil(t, first)
	assert.Equal(t, lss.CmdPing, first.CommandType)
	q.MarkSent(first.Handle)

	// 节点3已有在途命令：下一条到期的是节点5的
	second := q.NextDue()
	require.NotNil(t, second)
	assert.Equal(t, uint8(5), second.NodeID)
	q.MarkSent(second.Handle)

	assert.Nil(t, q.NextDue())

	// 节点3的在途命令完成后，同节点的下一条才放行
	require.True(t, q.ProcessAck(3, first.SequenceNumber, true, 0))
	third := q.NextDue()
	require.NotNil(t, third)
	assert.Equal(t, lss.CmdGetConfig, third.CommandType)
}

func TestCancel(t *testing.T) {
	q, _ := newTestQueue()
	h, _ := q.Enqueue(3, lss.CmdPing, nil)

	require.True(t, q.Cancel(h))
	st, _ := q.Status(h)
	assert.Equal(t, StateCanceled, st.State)
	assert.Nil(t, q.NextDue())
	assert.False(t, q.Cancel(h), "terminal commands cannot be canceled again")
}

func TestPendingAndPurge(t *testing.T) {
	q, _ := newTestQueue()
	h1, _ := q.Enqueue(3, lss.CmdPing, nil)
	q.Enqueue(4, lss.CmdPing, nil)

	assert.Len(t, q.Pending(), 2)
	require.True(t, q.Cancel(h1))
	assert.Len(t, q.Pending(), 1)

	assert.Equal(t, 1, q.PurgeCompleted())
	_, ok := q.Status(h1)
	assert.False(t, ok, "purged handle no longer resolves")
}

func TestStatusUnknownHandle(t *testing.T) {
	q, _ := newTestQueue()
	_, ok := q.Status([16]byte{0xFF})
	assert.False(t, ok)
}
