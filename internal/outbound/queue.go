// Package outbound 实现基站的下行命令可靠层：
// 带重试预算与超时的FIFO命令队列、显式/捎带回执的关联匹配。
package outbound

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lss-net/lss/internal/protocol/lss"
)

const (
	// MaxAttempts 每条命令最多投递次数
	MaxAttempts = 3
	// RetryTimeout 两次投递之间等待回执的时间
	RetryTimeout = 12 * time.Second
)

// State 命令处置状态
type State string

const (
	StatePending  State = "pending"   // 尚未尝试投递
	StateInFlight State = "in-flight" // 已投递，等待回执
	StateAcked    State = "acked"
	StateNacked   State = "nacked"
	StateTimeout  State = "timeout"
	StateCanceled State = "canceled"
)

// Terminal 判断状态是否为终态
func (s State) Terminal() bool {
	switch s {
	case StateAcked, StateNacked, StateTimeout, StateCanceled:
		return true
	}
	return false
}

// Status 通过句柄查询到的命令状态快照
type Status struct {
	State      State           `json:"state"`
	StatusCode uint8           `json:"status_code"`
	NodeID     uint8           `json:"node_id"`
	Command    lss.CommandType `json:"command_type"`
	Sequence   uint8           `json:"sequence_number"`
	Attempts   int             `json:"attempts"`
}

// PendingCommand 等待投递到节点的一条命令
type PendingCommand struct {
	Handle         uuid.UUID
	NodeID         uint8
	CommandType    lss.CommandType
	SequenceNumber uint8
	Data           []byte
	EnqueuedAt     time.Time
	Attempts       int
	LastAttemptAt  time.Time

	state      State
	statusCode uint8
}

// Raw 序列化为待发射的命令帧
func (c *PendingCommand) Raw() ([]byte, error) {
	return lss.BuildCommand(c.CommandType, c.NodeID, c.SequenceNumber, c.Data)
}

// ResultFunc 命令进入终态时的回调（指标与日志挂接点）
type ResultFunc func(cmd *PendingCommand, state State)

// Queue 线程安全的下行命令队列。
// 入队即分配句柄与逐节点单调序列号（模256，跳过0：0是遥测头里
// "无捎带回执"的哨兵值）。同一节点同一时刻只有一条命令在途。
type Queue struct {
	mu       sync.Mutex
	queue    []*PendingCommand
	seq      map[uint8]uint8 // 节点 → 下一个序列号
	now      func() time.Time
	onResult ResultFunc
}

// NewQueue 创建队列；now 可注入（测试）
func NewQueue(now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	return &Queue{seq: make(map[uint8]uint8), now: now}
}

// SetResultFunc 注册终态回调
func (q *Queue) SetResultFunc(fn ResultFunc) {
	q.mu.Lock()
	q.onResult = fn
	q.mu.Unlock()
}

// Enqueue 追加一条命令，返回查询句柄与分配的序列号
func (q *Queue) Enqueue(nodeID uint8, cmd lss.CommandType, data []byte) (uuid.UUID, uint8) {
	q.mu.Lock()
	defer q.mu.Unlock()

	seq := q.nextSeqLocked(nodeID)
	c := &PendingCommand{
		Handle:         uuid.New(),
		NodeID:         nodeID,
		CommandType:    cmd,
		SequenceNumber: seq,
		Data:           append([]byte(nil), data...),
		EnqueuedAt:     q.now(),
		state:          StatePending,
	}
	q.queue = append(q.queue, c)
	return c.Handle, seq
}

// NextDue 返回下一条到期待投递的命令，没有则返回nil。
// 到期条件：从未投递（且同节点无在途命令），或上次投递已超过
// RetryTimeout 且还有重试预算。预算耗尽的在途命令就地转为超时终态。
func (q *Queue) NextDue() *PendingCommand {
	now := q.now()
	q.mu.Lock()
	defer q.mu.Unlock()

	inflight := make(map[uint8]bool)
	for _, c := range q.queue {
		if c.state == StateInFlight && now.Sub(c.LastAttemptAt) < RetryTimeout {
			inflight[c.NodeID] = true
		}
	}

	for _, c := range q.queue {
		switch c.state {
		case StatePending:
			if inflight[c.NodeID] {
				continue
			}
			return c
		case StateInFlight:
			if now.Sub(c.LastAttemptAt) < RetryTimeout {
				continue
			}
			if c.Attempts >= MaxAttempts {
				c.state = StateTimeout
				q.fireLocked(c)
				continue
			}
			return c
		}
	}
	return nil
}

// MarkSent 记录一次投递
func (q *Queue) MarkSent(handle uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if c := q.findLocked(handle); c != nil && !c.state.Terminal() {
		c.Attempts++
		c.LastAttemptAt = q.now()
		c.state = StateInFlight
	}
}

// ProcessAck 关联一条显式回执。(nodeID, seq) 匹配在途命令时记录
// 处置结果并返回true。
func (q *Queue) ProcessAck(nodeID, seq uint8, success bool, statusCode uint8) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, c := range q.queue {
		if c.state.Terminal() || c.NodeID != nodeID || c.SequenceNumber != seq {
			continue
		}
		if success {
			c.state = StateAcked
		} else {
			c.state = StateNacked
		}
		c.statusCode = statusCode
		q.fireLocked(c)
		return true
	}
	return false
}

// ProcessPiggybackAck 处理遥测帧头里捎带的回执。
// lastCmdSeq 为0表示节点没有待报告的命令结果。
func (q *Queue) ProcessPiggybackAck(nodeID, lastCmdSeq, ackStatus uint8) bool {
	if lastCmdSeq == 0 {
		return false
	}
	return q.ProcessAck(nodeID, lastCmdSeq, ackStatus == 0, ackStatus)
}

// Cancel 显式取消一条未完成的命令
func (q *Queue) Cancel(handle uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	c := q.findLocked(handle)
	if c == nil || c.state.Terminal() {
		return false
	}
	c.state = StateCanceled
	q.fireLocked(c)
	return true
}

// Status 通过句柄查询状态；句柄未知时第二个返回值为false
func (q *Queue) Status(handle uuid.UUID) (Status, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	c := q.findLocked(handle)
	if c == nil {
		return Status{}, false
	}
	return q.statusLocked(c), true
}

// Pending 返回所有未到终态命令的状态快照（API用）
func (q *Queue) Pending() []Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Status, 0)
	for _, c := range q.queue {
		if !c.state.Terminal() {
			out = append(out, q.statusLocked(c))
		}
	}
	return out
}

// PurgeCompleted 移除终态条目，返回移除数量
func (q *Queue) PurgeCompleted() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.queue[:0]
	removed := 0
	for _, c := range q.queue {
		if c.state.Terminal() {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	q.queue = kept
	return removed
}

func (q *Queue) statusLocked(c *PendingCommand) Status {
	return Status{
		State:      c.state,
		StatusCode: c.statusCode,
		NodeID:     c.NodeID,
		Command:    c.CommandType,
		Sequence:   c.SequenceNumber,
		Attempts:   c.Attempts,
	}
}

func (q *Queue) findLocked(handle uuid.UUID) *PendingCommand {
	for _, c := range q.queue {
		if c.Handle == handle {
			return c
		}
	}
	return nil
}

func (q *Queue) fireLocked(c *PendingCommand) {
	if q.onResult != nil {
		q.onResult(c, c.state)
	}
}

// nextSeqLocked 逐节点单调序列号，模256回绕并跳过0
func (q *Queue) nextSeqLocked(nodeID uint8) uint8 {
	s := q.seq[nodeID]
	if s == 0 {
		s = 1
	}
	q.seq[nodeID] = s + 1 // uint8自然回绕；回绕到0时下次取号重新落到1
	return s
}
