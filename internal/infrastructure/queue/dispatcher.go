package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/99minutos/courier-tracking/internal/core/ports"
	"github.com/99minutos/courier-tracking/internal/pkg/metrics"
)

const (
	defaultWorkers = 8
	channelBuffer  = 256
)

// Ingestor consumes device samples. ports.TrackingService satisfies it.
type Ingestor interface {
	IngestSample(ctx context.Context, in ports.SampleInput) error
}

// Dispatcher routes device samples to a fixed set of workers using consistent
// hashing on the delivery ID, guaranteeing per-delivery sample ordering.
type Dispatcher struct {
	workers  []chan ports.SampleInput
	ingestor Ingestor
	log      zerolog.Logger
	wg       sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, ingestor Ingestor, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers:  make([]chan ports.SampleInput, numWorkers),
		ingestor: ingestor,
		log:      log.With().Str("component", "dispatcher").Logger(),
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.SampleInput, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Wait blocks until every worker has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Enqueue sends a sample to the worker responsible for its delivery. It
// blocks while that worker's buffer is full, until ctx is done.
func (d *Dispatcher) Enqueue(ctx context.Context, sample ports.SampleInput) error {
	idx := d.shardIndex(sample.DeliveryID)
	select {
	case d.workers[idx] <- sample:
		metrics.SamplesQueueDepth.WithLabelValues(strconv.Itoa(idx)).Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnqueueBatch enqueues multiple samples preserving per-delivery ordering.
func (d *Dispatcher) EnqueueBatch(ctx context.Context, samples []ports.SampleInput) error {
	for _, s := range samples {
		if err := d.Enqueue(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// shardIndex maps a delivery ID deterministically to a worker index.
func (d *Dispatcher) shardIndex(deliveryID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(deliveryID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.SampleInput) {
	defer d.wg.Done()
	depth := metrics.SamplesQueueDepth.WithLabelValues(strconv.Itoa(id))
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-ch:
			if !ok {
				return
			}
			depth.Dec()
			if err := d.ingestor.IngestSample(ctx, sample); err != nil {
				d.log.Error().Err(err).
					Str("delivery_id", sample.DeliveryID).
					Int("worker_id", id).
					Msg("sample ingestion failed")
			}
		}
	}
}
