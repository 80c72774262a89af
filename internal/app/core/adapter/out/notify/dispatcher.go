package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-balance-desk/internal/app/core/domain"
	"github.com/JoeShih716/go-balance-desk/internal/app/core/usecase"
)

var (
	// ErrQueueFull 佇列已滿，通知被丟棄
	ErrQueueFull = errors.New("notification queue is full")
	// ErrDispatcherClosed Dispatcher 已關閉
	ErrDispatcherClosed = errors.New("notification dispatcher is closed")
)

// DefaultQueueSize 預設佇列長度
const DefaultQueueSize = 1000

// Sink 通知的實際送出端 (Kafka / Email / Log)
type Sink interface {
	Name() string
	Send(ctx context.Context, n domain.Notification) error
}

// Dispatcher 非同步通知分派器
//
// Notify(不等待) -> Channel -> Run Loop (單一 goroutine) -> 依序交給每個 Sink
//
// 任何 Sink 失敗只記 log，不會影響其它 Sink，也不會回到呼叫端。
type Dispatcher struct {
	sinks   []Sink
	logger  *zap.Logger
	timeout time.Duration
	// 輸送帶 負責接收通知
	queue chan domain.Notification

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
	done   chan struct{}
	start  sync.Once
}

// NewDispatcher 建立 Dispatcher，需呼叫 Start 才會開始送出
//
// 參數:
//
//	logger: zap logger
//	queueSize: 佇列長度 (<= 0 使用 DefaultQueueSize)
//	timeout: 每個 Sink 單次送出的逾時
//	sinks: 送出端
func NewDispatcher(logger *zap.Logger, queueSize int, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		sinks:   sinks,
		logger:  logger,
		timeout: timeout,
		queue:   make(chan domain.Notification, queueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Notify 放入佇列，永遠不阻塞
// 佇列滿時回傳 ErrQueueFull，通知被丟棄
func (d *Dispatcher) Notify(ctx context.Context, n domain.Notification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start 啟動分派迴圈 (非同步)
func (d *Dispatcher) Start(ctx context.Context) {
	d.start.Do(func() {
		go d.run(ctx)
	})
}

// Close 停止接收新通知，送完佇列中剩下的後返回
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	// 從未 Start 的話，由這裡負責送完
	d.start.Do(func() {
		close(d.done)
		d.drain(context.Background())
	})
	close(d.stop)
	<-d.done
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			// 收到關閉信號，把剩下的通知處理完
			d.drain(context.WithoutCancel(ctx))
			return
		case <-d.stop:
			d.drain(context.WithoutCancel(ctx))
			return
		case n := <-d.queue:
			d.deliver(ctx, n)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case n := <-d.queue:
			d.deliver(ctx, n)
		default:
			return
		}
	}
}

// deliver 交給每個 Sink
func (d *Dispatcher) deliver(ctx context.Context, n domain.Notification) {
	for _, sink := range d.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := sink.Send(sendCtx, n)
		cancel()
		if err != nil {
			d.logger.Error("Failed to deliver notification",
				zap.String("sink", sink.Name()),
				zap.String("type", string(n.Type)),
				zap.String("email", n.Identity),
				zap.Error(err))
		}
	}
}

var _ usecase.Notifier = (*Dispatcher)(nil)
