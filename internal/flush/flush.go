// Package flush implements blockchain.DbFlushManager: a bounded queue and
// a single background goroutine that runs the store-block tasks
// blockchain.BlockChain submits (block, receipt index, prune
// notification; the repository is committed by the importer before a
// task is queued), so the importer's critical section does not wait on
// that disk I/O unless the queue is full. Grounded on work/worker.go's
// background-goroutine-plus-channel idiom (the same shape as its txsCh/chainHeadCh
// event loop), generalized from mining-task dispatch to flush-task
// dispatch.
package flush

import (
	"errors"
	"sync"

	"github.com/relayix/chaincore/blockchain"
	"github.com/relayix/chaincore/log"
	"github.com/relayix/chaincore/metrics"
)

var logger = log.NewModuleLogger(log.Flush)

var queueDepthGauge = metrics.NewRegisteredGauge("flush/queue/depth", nil)

// ErrClosed is returned by FlushSync once Stop has been called.
var ErrClosed = errors.New("flush: manager closed")

// Manager is the default blockchain.DbFlushManager: a bounded channel of
// pending tasks drained by exactly one goroutine, in arrival order.
type Manager struct {
	tasks chan blockchain.FlushTask

	mu     sync.Mutex
	err    error
	closed bool
	done   chan struct{}

	// barrierCh carries FlushSync's reply channels: the consumer drains
	// the queue and then closes the reply, letting FlushSync wait without
	// racing the consumer.
	barrierCh chan chan struct{}
}

var _ blockchain.DbFlushManager = (*Manager)(nil)

// New starts the background flusher with a queue bounded at depth.
func New(depth int) *Manager {
	m := &Manager{
		tasks:     make(chan blockchain.FlushTask, depth),
		done:      make(chan struct{}),
		barrierCh: make(chan chan struct{}),
	}
	go m.run()
	return m
}

func (m *Manager) run() {
	for {
		select {
		case task, ok := <-m.tasks:
			if !ok {
				return
			}
			m.execute(task)
			queueDepthGauge.Update(int64(len(m.tasks)))
		case reply := <-m.barrierCh:
			m.drainLocked()
			close(reply)
		case <-m.done:
			m.drainLocked()
			return
		}
	}
}

func (m *Manager) drainLocked() {
	for {
		select {
		case task, ok := <-m.tasks:
			if !ok {
				return
			}
			m.execute(task)
		default:
			return
		}
	}
}

func (m *Manager) execute(task blockchain.FlushTask) {
	if err := task(); err != nil {
		logger.Error("flush task failed", "err", err)
		m.mu.Lock()
		if m.err == nil {
			m.err = err
		}
		m.mu.Unlock()
	}
}

// Commit enqueues task for asynchronous execution. If the queue is full
// the call blocks, applying backpressure to the importer rather than
// growing memory unboundedly — spec.md §5 names this as the deliberate
// tradeoff of a bounded queue.
func (m *Manager) Commit(task blockchain.FlushTask) {
	select {
	case m.tasks <- task:
	case <-m.done:
	}
}

// FlushSync blocks until every task enqueued before this call has run,
// and returns the first error any of them produced (then clears it).
func (m *Manager) FlushSync() error {
	reply := make(chan struct{})
	select {
	case m.barrierCh <- reply:
		<-reply
	case <-m.done:
		return ErrClosed
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.err
	m.err = nil
	return err
}

// Stop signals the background goroutine to drain and exit. Safe to call
// once; subsequent Commit calls are no-ops.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()
	close(m.done)
}
