package worker

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"lookup-bench/internal/logger"
)

// Job はバックグラウンドで実行するジョブを表す
type Job func()

// PoolConfig はワーカープールの設定
type PoolConfig struct {
	Name        string // ログ用の名前
	NumWorkers  int    // ワーカー数（0でCPU数）
	QueueFactor int    // キューサイズ = NumWorkers * QueueFactor
	LockThreads bool   // 各ワーカーを専用OSスレッドに固定する
}

// DefaultPoolConfig はデフォルト設定を返す
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Name:        "bg",
		NumWorkers:  0, // CPU数
		QueueFactor: 64,
	}
}

// Pool はバックグラウンド実行コンテキストのプール
type Pool struct {
	name        string
	numWorkers  int
	lockThreads bool
	jobs        chan Job
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	stopping    atomic.Bool
	executed    atomic.Uint64
	mu          sync.Mutex
}

// NewPool は新しいワーカープールを作成する
// numWorkers が 0 の場合は CPU 数を使用
func NewPool(numWorkers int) *Pool {
	config := DefaultPoolConfig()
	config.NumWorkers = numWorkers
	return NewPoolWithConfig(config)
}

// NewPoolWithConfig は設定を指定してワーカープールを作成する
func NewPoolWithConfig(config PoolConfig) *Pool {
	numWorkers := config.NumWorkers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	queueFactor := config.QueueFactor
	if queueFactor <= 0 {
		queueFactor = 64
	}
	name := config.Name
	if name == "" {
		name = "bg"
	}
	return &Pool{
		name:        name,
		numWorkers:  numWorkers,
		lockThreads: config.LockThreads,
		jobs:        make(chan Job, numWorkers*queueFactor),
	}
}

// Start はワーカープールを起動する
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.started = true
	p.stopping.Store(false)

	for i := range p.numWorkers {
		p.wg.Add(1)
		go p.worker(i)
	}

	logger.Info(p.name, "Worker pool started with %d workers", p.numWorkers)
}

// worker は個々のワーカーゴルーチン
func (p *Pool) worker(_ int) {
	defer p.wg.Done()

	if p.lockThreads {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			job()
			p.executed.Add(1)
		}
	}
}

// Submit はジョブをキューに入れる。キューが満杯なら待たずに false を返す
func (p *Pool) Submit(job Job) bool {
	if _, ok := p.accepting(); !ok {
		return false
	}

	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

// SubmitWait はジョブを送信し、キューに空きがなければブロックする
func (p *Pool) SubmitWait(job Job) bool {
	ctx, ok := p.accepting()
	if !ok {
		return false
	}

	select {
	case <-ctx.Done():
		return false
	case p.jobs <- job:
		return true
	}
}

// accepting はジョブを受け付け可能かを返す
func (p *Pool) accepting() (context.Context, bool) {
	if p.stopping.Load() {
		return nil, false
	}

	p.mu.Lock()
	ctx := p.ctx
	p.mu.Unlock()
	if ctx == nil {
		return nil, false
	}

	return ctx, ctx.Err() == nil
}

// Stop はワーカープールを停止する
// キューに残ったジョブは実行されずに破棄される。
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.stopping.Store(true)
	p.cancel()
	p.wg.Wait()

	p.mu.Lock()
	p.started = false
	p.mu.Unlock()

	logger.Info(p.name, "Worker pool stopped (%d jobs executed)", p.executed.Load())
}

// NumWorkers はワーカー数を返す
func (p *Pool) NumWorkers() int {
	return p.numWorkers
}

// QueueSize は現在のキューサイズを返す
func (p *Pool) QueueSize() int {
	return len(p.jobs)
}

// Executed は実行済みジョブ数を返す
func (p *Pool) Executed() uint64 {
	return p.executed.Load()
}
