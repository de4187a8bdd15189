package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"rakhi_store/pkg/logger"

	"go.uber.org/zap"
)

var ErrPoolStopped = errors.New("worker pool stopped")

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent 标记不需要重试的错误
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent 是否为不可重试错误
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Task 异步任务
type Task struct {
	Name    string // 任务类型，用于日志
	Key     string // 业务键，例如订单号
	Run     func(ctx context.Context) error
	Retry   int         // 已重试次数
	Payload interface{} // 原始业务数据，死信回调中使用
}

// DeadLetterFunc 任务最终失败时调用
type DeadLetterFunc func(task Task, err error)

// Options 工作池参数
type Options struct {
	Workers      int
	QueueSize    int
	MaxRetry     int
	RetryDelay   time.Duration // 第 n 次重试前等待 n*RetryDelay
	TaskTimeout  time.Duration
	OnDeadLetter DeadLetterFunc
}

// WorkerPool 固定数量的 worker + 重试队列
type WorkerPool struct {
	taskQueue  chan Task
	retryQueue chan Task
	opts       Options

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started int32
	stopped int32
}

func NewWorkerPool(opts Options) *WorkerPool {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.MaxRetry < 0 {
		opts.MaxRetry = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		taskQueue:  make(chan Task, opts.QueueSize),
		retryQueue: make(chan Task, opts.QueueSize/2+1),
		opts:       opts,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (p *WorkerPool) Start() {
	if !atomic.CompareAndSwapInt32(&p.started, 0, 1) {
		return
	}
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	// 启动重试处理协程
	p.wg.Add(1)
	go p.retryWorker()
	logger.Log.Info("Worker pool started", zap.Int("workers", p.opts.Workers))
}

// Stop 停止接收任务，等待进行中的任务结束
// 队列中尚未执行的任务会在 worker 退出前执行完，重试队列中的任务进入死信
func (p *WorkerPool) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&p.stopped, 0, 1) {
		return nil
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Log.Info("Worker pool stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddTask 入队，队列已满或已停止时任务直接进入死信
func (p *WorkerPool) AddTask(task Task) error {
	if atomic.LoadInt32(&p.stopped) == 1 {
		p.deadLetter(task, ErrPoolStopped)
		return ErrPoolStopped
	}
	select {
	case p.taskQueue <- task:
		return nil
	default:
		err := errors.New("task queue full")
		logger.Log.Warn("Worker pool queue full, dropping task", zap.String("task", task.Name), zap.String("key", task.Key))
		p.deadLetter(task, err)
		return err
	}
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.taskQueue:
			p.process(id, task)
		case <-p.ctx.Done():
			p.drain()
			return
		}
	}
}

// drain 停止后执行队列中剩余的任务，不再重试
func (p *WorkerPool) drain() {
	for {
		select {
		case task := <-p.taskQueue:
			if err := p.run(task); err != nil {
				p.deadLetter(task, err)
			}
		default:
			return
		}
	}
}

func (p *WorkerPool) process(id int, task Task) {
	err := p.run(task)
	if err == nil {
		return
	}

	logger.Log.Warn("Task failed",
		zap.Int("worker", id),
		zap.String("task", task.Name),
		zap.String("key", task.Key),
		zap.Int("retry", task.Retry),
		zap.Error(err))

	// 如果未达到最大重试次数，加入重试队列
	if IsPermanent(err) || task.Retry >= p.opts.MaxRetry {
		p.deadLetter(task, err)
		return
	}
	task.Retry++
	select {
	case p.retryQueue <- task:
	default:
		logger.Log.Warn("Retry queue full, task dropped", zap.String("task", task.Name), zap.String("key", task.Key))
		p.deadLetter(task, err)
	}
}

func (p *WorkerPool) run(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("Task panicked", zap.String("task", task.Name), zap.Any("panic", r))
			err = errors.New("task panicked")
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.TaskTimeout)
	defer cancel()
	return task.Run(ctx)
}

func (p *WorkerPool) retryWorker() {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.retryQueue:
			// 延迟重试，避免立即重试
			timer := time.NewTimer(time.Duration(task.Retry) * p.opts.RetryDelay)
			select {
			case <-timer.C:
			case <-p.ctx.Done():
				timer.Stop()
				p.deadLetter(task, ErrPoolStopped)
				p.drainRetries()
				return
			}
			if p.ctx.Err() != nil {
				p.deadLetter(task, ErrPoolStopped)
				continue
			}
			select {
			case p.taskQueue <- task:
			default:
				logger.Log.Warn("Main queue full, retry dropped", zap.String("task", task.Name), zap.String("key", task.Key))
				p.deadLetter(task, errors.New("task queue full"))
			}
		case <-p.ctx.Done():
			p.drainRetries()
			return
		}
	}
}

func (p *WorkerPool) drainRetries() {
	for {
		select {
		case task := <-p.retryQueue:
			p.deadLetter(task, ErrPoolStopped)
		default:
			return
		}
	}
}

func (p *WorkerPool) deadLetter(task Task, err error) {
	logger.Log.Error("Task failed permanently",
		zap.String("task", task.Name),
		zap.String("key", task.Key),
		zap.Int("retry", task.Retry),
		zap.Error(err))
	if p.opts.OnDeadLetter != nil {
		p.opts.OnDeadLetter(task, err)
	}
}
