package radio

import (
	"fmt"
	"net"
	"sync"
)

// UDPLink 用UDP数据报承载LoRa帧，供多进程台架联调：
// 基站进程与若干节点进程各持一个端点，报文边界即帧边界。
type UDPLink struct {
	conn *net.UDPConn
	peer *net.UDPAddr

	mu     sync.Mutex
	onRecv func([]byte)
	done   chan struct{}
}

// NewUDPLink 监听 listenAddr，向 peerAddr 发送。
// peerAddr 为空时，向第一个收到的报文的来源回发。
func NewUDPLink(listenAddr, peerAddr string) (*UDPLink, error) {
	laddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve listen addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}

	l := &UDPLink{conn: conn, done: make(chan struct{})}
	if peerAddr != "" {
		if l.peer, err = net.ResolveUDPAddr("udp", peerAddr); err != nil {
			conn.Close()
			return nil, fmt.Errorf("resolve peer addr: %w", err)
		}
	}
	go l.readLoop()
	return l, nil
}

// LocalAddr 返回实际监听地址
func (l *UDPLink) LocalAddr() net.Addr { return l.conn.LocalAddr() }

// Transmit 发送一帧
func (l *UDPLink) Transmit(frame []byte) error {
	if len(frame) > MaxPayload {
		frame = frame[:MaxPayload]
	}
	l.mu.Lock()
	peer := l.peer
	l.mu.Unlock()
	if peer == nil {
		return fmt.Errorf("no peer known yet")
	}
	_, err := l.conn.WriteToUDP(frame, peer)
	return err
}

// SetReceiveHandler 注册收帧回调
func (l *UDPLink) SetReceiveHandler(fn func([]byte)) {
	l.mu.Lock()
	l.onRecv = fn
	l.mu.Unlock()
}

// Close 关闭链路
func (l *UDPLink) Close() error {
	close(l.done)
	return l.conn.Close()
}

func (l *UDPLink) readLoop() {
	buf := make([]byte, MaxPayload)
	for {
		n, addr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-l.done:
				return
			default:
				continue
			}
		}
		l.mu.Lock()
		if l.peer == nil {
			l.peer = addr
		}
		fn := l.onRecv
		l.mu.Unlock()
		if fn != nil {
			fn(append([]byte(nil), buf[:n]...))
		}
	}
}
