// Package async wraps a usage.Store with non-blocking queued writes so
// recording analytics never delays the execute response.
package async

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/paylessai/payless-gateway/internal/usage"
)

// Store wraps a usage.Store with asynchronous batch writes. Records are
// queued in memory and written in batches to keep recording off the
// request path.
// WARNING: queued records may be lost if the process crashes before a
// flush; acceptable for analytics rows, never for ledger entries.
type Store struct {
	underlying    usage.Store
	recordChan    chan usage.Record
	batchSize     int
	flushInterval time.Duration
	wg            sync.WaitGroup
	stopChan      chan struct{}
	logger        *log.Logger
}

// Config configures the async usage writer.
type Config struct {
	BatchSize     int           // maximum records per batch (default: 100)
	FlushInterval time.Duration // maximum time between flushes (default: 1s)
	ChannelBuffer int           // queue size (default: 10000)
	Logger        *log.Logger   // optional diagnostics
}

// New wraps an existing usage store with async writing.
func New(underlying usage.Store, cfg Config) *Store {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 1 * time.Second
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = 10000
	}

	s := &Store{
		underlying:    underlying,
		recordChan:    make(chan usage.Record, cfg.ChannelBuffer),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		stopChan:      make(chan struct{}),
		logger:        cfg.Logger,
	}

	s.wg.Add(1)
	go s.batchWriter()
	return s
}

func (s *Store) batchWriter() {
	defer s.wg.Done()

	batch := make([]usage.Record, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx := context.Background()
		for _, rec := range batch {
			if err := s.underlying.Record(ctx, rec); err != nil && s.logger != nil {
				s.logger.Printf("[async-usage] write failed: %v", err)
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec := <-s.recordChan:
			batch = append(batch, rec)
			if len(batch) >= s.batchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-s.stopChan:
			// Drain whatever is still queued before shutting down. The
			// channel stays open so a racing Record cannot panic on send.
			for {
				select {
				case rec := <-s.recordChan:
					batch = append(batch, rec)
					if len(batch) >= s.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Record queues a usage row without blocking. When the queue is full the
// record is dropped; analytics loss is preferred over blocking a response.
func (s *Store) Record(ctx context.Context, rec usage.Record) error {
	select {
	case <-s.stopChan:
		// Shutting down; the writer may already have drained.
		return nil
	default:
	}
	select {
	case s.recordChan <- rec:
		return nil
	default:
		if s.logger != nil {
			s.logger.Printf("[async-usage] WARNING: queue full, dropping record")
		}
		return nil
	}
}

// ListRecent delegates to the underlying store.
func (s *Store) ListRecent(ctx context.Context, userID string, limit int) ([]usage.Record, error) {
	return s.underlying.ListRecent(ctx, userID, limit)
}

// Close flushes queued records and closes the underlying store.
func (s *Store) Close() error {
	close(s.stopChan)
	s.wg.Wait()
	return s.underlying.Close()
}
