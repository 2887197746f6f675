package ingestion

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"courier-sync/internal/parcel/model"
	"courier-sync/internal/realtime"
)

// TrackingStore persists validated fixes in batches.
type TrackingStore interface {
	BatchInsertTrackingPoints(ctx context.Context, records []TrackingRecord) error
}

// FixCache retains the latest fix per parcel for fast tracking lookups.
type FixCache interface {
	StoreLatestFix(ctx context.Context, event model.TrackingEvent) error
}

// Broadcaster pushes events to realtime subscribers. Satisfied by
// *realtime.Hub.
type Broadcaster interface {
	Broadcast(room, event string, payload interface{})
}

// Processor consumes agent GPS fixes, fans them out to realtime
// subscribers and the latest-fix cache, and batches them into the store.
type Processor struct {
	store TrackingStore
	cache FixCache
	hub   Broadcaster

	buffer []TrackingRecord

	batchSize    int
	batchTimeout time.Duration
	workerCount  int
	bufferSize   int

	trackingChan chan *TrackingMessage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex

	// Intake guard: Stop takes the write lock, so no send can race the
	// channel close.
	stopMu  sync.RWMutex
	stopped bool

	metrics *MetricsTracker
	log     *zap.Logger
}

// NewProcessor creates a new tracking feed processor.
func NewProcessor(store TrackingStore, cache FixCache, hub Broadcaster, batchSize, workerCount, bufferSize int, batchTimeout time.Duration, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Processor{
		store:        store,
		cache:        cache,
		hub:          hub,
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		workerCount:  workerCount,
		bufferSize:   bufferSize,
		buffer:       make([]TrackingRecord, 0, batchSize),
		trackingChan: make(chan *TrackingMessage, bufferSize),
		ctx:          ctx,
		cancel:       cancel,
		metrics:      NewMetricsTracker(),
		log:          log,
	}
}

// Start starts the processor workers
func (p *Processor) Start() {
	p.log.Info("starting tracking processor",
		zap.Int("workers", p.workerCount),
		zap.Int("batch_size", p.batchSize),
		zap.Duration("batch_timeout", p.batchTimeout))

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.trackingWorker(i)
	}

	p.wg.Add(1)
	go p.batchFlusher()
}

// Stop stops the processor and flushes buffered records. Safe to call
// while producers are still submitting; late fixes are dropped.
func (p *Processor) Stop() {
	p.stopMu.Lock()
	if p.stopped {
		p.stopMu.Unlock()
		return
	}
	p.stopped = true
	p.stopMu.Unlock()

	p.log.Info("stopping tracking processor")

	p.cancel()
	close(p.trackingChan)
	p.wg.Wait()
	p.flushBatch()
}

// ProcessTrackingMessage queues a fix for processing. Messages arriving
// while the buffer is full are dropped; the live feed favors fresh fixes
// over completeness.
func (p *Processor) ProcessTrackingMessage(msg *TrackingMessage) {
	p.stopMu.RLock()
	defer p.stopMu.RUnlock()

	if p.stopped {
		return
	}

	select {
	case p.trackingChan <- msg:
		p.metrics.Update(func(m *IngestMetrics) {
			m.MessagesReceived++
			m.BufferSize = len(p.trackingChan)
		})
	default:
		p.log.Warn("tracking buffer full, dropping fix", zap.String("parcel_id", msg.ParcelID))
		p.metrics.Update(func(m *IngestMetrics) {
			m.MessagesFailed++
		})
	}
}

func (p *Processor) trackingWorker(id int) {
	defer p.wg.Done()

	for {
		select {
		case msg, ok := <-p.trackingChan:
			if !ok {
				return
			}

			start := time.Now()

			if err := p.processMessage(msg); err != nil {
				p.log.Warn("failed to process tracking fix",
					zap.Int("worker", id), zap.Error(err))
				p.metrics.Update(func(m *IngestMetrics) {
					m.MessagesFailed++
				})
			} else {
				p.metrics.Update(func(m *IngestMetrics) {
					m.MessagesProcessed++
					m.LastProcessedAt = time.Now()

					processingTime := time.Since(start)
					if m.AverageProcessingTime == 0 {
						m.AverageProcessingTime = processingTime
					} else {
						m.AverageProcessingTime = (m.AverageProcessingTime + processingTime) / 2
					}
				})
			}

		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Processor) processMessage(msg *TrackingMessage) error {
	if err := ValidateTrackingMessage(msg); err != nil {
		return err
	}

	record, err := recordFromMessage(msg)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.buffer = append(p.buffer, record)
	shouldFlush := len(p.buffer) >= p.batchSize
	p.mu.Unlock()

	if shouldFlush {
		p.flushBatch()
	}

	event := model.TrackingEvent{
		ParcelID:  msg.ParcelID,
		AgentID:   msg.AgentID,
		Lat:       msg.Latitude,
		Lng:       msg.Longitude,
		Speed:     msg.Speed,
		Heading:   msg.Heading,
		CreatedAt: msg.Timestamp,
	}

	if p.hub != nil {
		p.hub.Broadcast(realtime.RoomName(realtime.RoomParcel, msg.ParcelID), model.EventParcelTracking, event)
		p.metrics.Update(func(m *IngestMetrics) {
			m.EventsBroadcast++
		})
	}

	if p.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := p.cache.StoreLatestFix(ctx, event); err != nil {
			// The cache is an accelerator; a miss falls back to the store.
			p.log.Debug("failed to cache latest fix", zap.Error(err))
		}
	}

	return nil
}

// batchFlusher periodically flushes the batch
func (p *Processor) batchFlusher() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.batchTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.flushBatch()
		case <-p.ctx.Done():
			return
		}
	}
}

// flushBatch writes buffered records to the store.
func (p *Processor) flushBatch() {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}

	batch := make([]TrackingRecord, len(p.buffer))
	copy(batch, p.buffer)
	p.buffer = p.buffer[:0]
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	if err := p.store.BatchInsertTrackingPoints(ctx, batch); err != nil {
		p.log.Error("failed to insert tracking batch",
			zap.Int("size", len(batch)), zap.Error(err))
		p.metrics.Update(func(m *IngestMetrics) {
			m.MessagesFailed += int64(len(batch))
		})
	} else {
		p.log.Info("inserted tracking batch",
			zap.Int("size", len(batch)), zap.Duration("took", time.Since(start)))
		p.metrics.Update(func(m *IngestMetrics) {
			m.RecordsInserted += int64(len(batch))
		})
	}
}

// GetMetrics returns current metrics
func (p *Processor) GetMetrics() IngestMetrics {
	return p.metrics.Snapshot()
}
