package blockchain

import (
	"github.com/relayix/chaincore/blockchain/types"
	"github.com/relayix/chaincore/metrics"
)

var dispatchQueueGauge = metrics.NewRegisteredGauge("blockchain/dispatch/queued", nil)

// dispatchQueueDepth bounds the event channel, spec.md §5 "Concurrency
// model": a single consumer drains block-import notifications so a slow
// listener (e.g. Kafka) cannot block the writer holding BlockChain.mu.
const dispatchQueueDepth = 256

type event struct {
	summary *types.BlockSummary
	isBest  bool
}

// eventDispatcher is the single-consumer bounded dispatch queue spec.md
// §5 requires between block import and the EthereumListener/PendingPool
// collaborators: the importer enqueues and returns immediately, and one
// goroutine delivers events in order.
type eventDispatcher struct {
	listener EthereumListener
	pool     PendingPool

	events chan event
	done   chan struct{}
}

func newEventDispatcher(listener EthereumListener, pool PendingPool) *eventDispatcher {
	d := &eventDispatcher{
		listener: listener,
		pool:     pool,
		events:   make(chan event, dispatchQueueDepth),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// enqueue is non-blocking as long as the queue has headroom; a full
// queue means the consumer has fallen far behind and the event is
// dropped rather than stalling the importer, logged so the operator can
// see it happening.
func (d *eventDispatcher) enqueue(summary *types.BlockSummary, isBest bool) {
	select {
	case d.events <- event{summary: summary, isBest: isBest}:
		dispatchQueueGauge.Update(int64(len(d.events)))
	default:
		logger.Warn("event dispatch queue full, dropping notification",
			"number", summary.Block.NumberU64(), "isBest", isBest)
	}
}

func (d *eventDispatcher) run() {
	for {
		select {
		case ev := <-d.events:
			d.deliver(ev)
		case <-d.done:
			d.drain()
			return
		}
	}
}

func (d *eventDispatcher) drain() {
	for {
		select {
		case ev := <-d.events:
			d.deliver(ev)
		default:
			return
		}
	}
}

func (d *eventDispatcher) deliver(ev event) {
	if d.listener != nil {
		d.listener.OnBlock(ev.summary, ev.isBest)
	}
	if ev.isBest && d.pool != nil {
		d.pool.ProcessBest(ev.summary.Block)
	}
}

func (d *eventDispatcher) stop() {
	close(d.done)
}
