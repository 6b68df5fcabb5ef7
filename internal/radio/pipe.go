package radio

import (
	"errors"
	"sync"
)

// 进程内广播介质：同一个Hub上的所有链路互相可见，
// 发送方自己收不到自己的帧（半双工电台的行为）。
// 测试与单机仿真使用。

var ErrClosed = errors.New("link closed")

// Hub 模拟一段共享空口
type Hub struct {
	mu    sync.Mutex
	links []*PipeLink
}

// NewHub 创建空口
func NewHub() *Hub {
	return &Hub{}
}

// NewLink 在空口上挂一个新电台
func (h *Hub) NewLink(name string) *PipeLink {
	l := &PipeLink{hub: h, name: name}
	h.mu.Lock()
	h.links = append(h.links, l)
	h.mu.Unlock()
	return l
}

// PipeLink Hub上的一个端点
type PipeLink struct {
	hub    *Hub
	name   string
	mu     sync.Mutex
	onRecv func([]byte)
	closed bool
}

// Transmit 向空口上的其他端点广播一帧
func (l *PipeLink) Transmit(frame []byte) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if len(frame) > MaxPayload {
		frame = frame[:MaxPayload]
	}

	l.hub.mu.Lock()
	peers := make([]*PipeLink, 0, len(l.hub.links))
	for _, p := range l.hub.links {
		if p != l {
			peers = append(peers, p)
		}
	}
	l.hub.mu.Unlock()

	cp := append([]byte(nil), frame...)
	for _, p := range peers {
		p.deliver(cp)
	}
	return nil
}

// SetReceiveHandler 注册收帧回调
func (l *PipeLink) SetReceiveHandler(fn func([]byte)) {
	l.mu.Lock()
	l.onRecv = fn
	l.mu.Unlock()
}

// Close 关闭端点，之后的发送返回 ErrClosed，不再收帧
func (l *PipeLink) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

func (l *PipeLink) deliver(frame []byte) {
	l.mu.Lock()
	fn := l.onRecv
	closed := l.closed
	l.mu.Unlock()
	if closed || fn == nil {
		return
	}
	// 在发送方调用 Transmit 的goroutine里同步交付，收帧方只置位与拷贝
	fn(frame)
}
