package outbound

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lss-net/lss/internal/logging"
	"github.com/lss-net/lss/internal/metrics"
	"github.com/lss-net/lss/internal/protocol/lss"
	"github.com/lss-net/lss/internal/radio"
)

// Worker 下行队列消费者：按节流速率把到期命令送上空口。
// 基站驱动在每帧前添加RadioHead路由头（dest=目标节点，node=基站）。
type Worker struct {
	Queue   *Queue
	Link    radio.Link
	Logger  *zap.Logger
	Metrics *metrics.AppMetrics // 可为nil

	// Interval 队列轮询周期
	Interval time.Duration
	// Limiter 发射节流，避免长SF下挤占空口
	Limiter *rate.Limiter
}

// NewWorker 创建Worker（默认50ms轮询、每秒2帧节流）
func NewWorker(queue *Queue, link radio.Link, logger *zap.Logger) *Worker {
	return &Worker{
		Queue:    queue,
		Link:     link,
		Logger:   logger,
		Interval: 50 * time.Millisecond,
		Limiter:  rate.NewLimiter(rate.Limit(2), 1),
	}
}

// Run 消费循环，直到 ctx 取消
func (w *Worker) Run(ctx context.Context) {
	w.Logger.Info("outbound worker started")
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("outbound worker stopping")
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick 处理一条到期命令（没有则立即返回）。测试可直接驱动。
func (w *Worker) Tick(ctx context.Context) {
	cmd := w.Queue.NextDue()
	if cmd == nil {
		w.Queue.PurgeCompleted()
		return
	}

	if w.Limiter != nil {
		if err := w.Limiter.Wait(ctx); err != nil {
			return
		}
	}

	raw, err := cmd.Raw()
	if err != nil {
		logging.ForNode(w.Logger, cmd.NodeID).Error("command serialize failed",
			zap.String("cmd", cmd.CommandType.Name()),
			zap.Error(err))
		w.Queue.Cancel(cmd.Handle)
		return
	}

	// RadioHead目的字节设为目标节点，节点侧在偏移4剥掉这个头
	frame := radio.PrependRadioHead(radio.RadioHead{
		Dest: cmd.NodeID,
		Node: lss.BaseStationID,
		ID:   cmd.SequenceNumber,
	}, raw)

	attempt := cmd.Attempts + 1
	if err := w.Link.Transmit(frame); err != nil {
		logging.ForNode(w.Logger, cmd.NodeID).Warn("command transmit failed", zap.Error(err))
		return
	}
	w.Queue.MarkSent(cmd.Handle)
	if w.Metrics != nil {
		w.Metrics.CommandsSent.Inc()
	}
	logging.ForNode(w.Logger, cmd.NodeID).Debug("command sent",
		zap.String("cmd", cmd.CommandType.Name()),
		zap.Uint8("seq", cmd.SequenceNumber),
		zap.Int("attempt", attempt))
}
