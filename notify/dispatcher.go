package notify

import (
	"context"
	"sync"
	"time"

	"salvage-radar/metrics"
	"salvage-radar/models"
	"salvage-radar/utils"
)

const sendTimeout = 30 * time.Second

type job struct {
	offer    *models.Offer
	analysis *models.Analysis
}

// Dispatcher delivers notifications on a background goroutine so the
// pipeline never waits on the notifier. When the queue is full the
// notification is dropped.
type Dispatcher struct {
	notifier Notifier
	queue    chan job
	done     chan struct{}
	logger   *utils.Logger
	metrics  *metrics.Metrics

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts a Dispatcher with a queue of queueSize entries.
func NewDispatcher(n Notifier, queueSize int, logger *utils.Logger, m *metrics.Metrics) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	d := &Dispatcher{
		notifier: n,
		queue:    make(chan job, queueSize),
		done:     make(chan struct{}),
		logger:   logger,
		metrics:  m,
	}
	go d.run()
	return d
}

// Enqueue schedules a notification and reports whether it was accepted.
func (d *Dispatcher) Enqueue(offer *models.Offer, analysis *models.Analysis) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return false
	}
	select {
	case d.queue <- job{offer: offer, analysis: analysis}:
		return true
	default:
		d.logger.Warn("[notify] Queue full, dropping notification for lot %s", offer.LotNumber)
		d.metrics.NotificationDropped()
		return false
	}
}

// Close stops accepting notifications and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for j := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := d.notifier.Notify(ctx, j.offer, j.analysis)
		cancel()

		d.metrics.Notification(err == nil)
		if err != nil {
			d.logger.Error("[notify] Lot %s: %v", j.offer.LotNumber, err)
			continue
		}
		d.logger.Info("[notify] Hot offer sent: lot %s", j.offer.LotNumber)
	}
}
