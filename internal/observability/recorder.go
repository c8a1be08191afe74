package observability

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"executiond/pkg/model"
)

const defaultMaxQueueSize = 10000

// Recorder converts commands/events into durable Records without ever
// back-pressuring the trading path: Record offers to a bounded queue and
// drops on overflow; a single background writer drains it into the sink.
type Recorder struct {
	queue   chan queuedItem
	sink    Sink
	logger  *slog.Logger
	metrics *Metrics

	mu             sync.Mutex
	droppedCount   int64
	failedCount    int64
	firstFailureAt *time.Time
	lastFailureAt  *time.Time

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

type queuedItem struct {
	kind          string
	stage         string
	msg           any
	correlationID string
}

// NewRecorder starts the background writer and returns a ready Recorder.
// maxQueueSize <= 0 defaults to 10000. metrics may be nil.
func NewRecorder(sink Sink, maxQueueSize int, logger *slog.Logger, metrics *Metrics) *Recorder {
	if maxQueueSize <= 0 {
		maxQueueSize = defaultMaxQueueSize
	}
	r := &Recorder{
		queue:   make(chan queuedItem, maxQueueSize),
		sink:    sink,
		logger:  logger.With("component", "observability_recorder"),
		metrics: metrics,
		done:    make(chan struct{}),
	}
	r.wg.Add(1)
	go r.runWriter()
	return r
}

// Record is the non-blocking submission path. kind is "command", "event", or
// "error"; stage names where in the pipeline the message was produced
// (e.g. "portfolio_manager", "execution_engine"). correlationID overrides
// the id derived from the message when non-empty.
func (r *Recorder) Record(kind, stage string, msg any, correlationID string) {
	item := queuedItem{kind: kind, stage: stage, msg: msg, correlationID: correlationID}
	select {
	case r.queue <- item:
		if r.metrics != nil {
			r.metrics.SetQueueDepth(len(r.queue))
		}
	default:
		r.recordFailure(true)
	}
}

func (r *Recorder) runWriter() {
	defer r.wg.Done()
	for {
		select {
		case item := <-r.queue:
			r.write(item)
		case <-r.done:
			r.drain()
			return
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case item := <-r.queue:
			r.write(item)
		default:
			return
		}
	}
}

func (r *Recorder) write(item queuedItem) {
	record, err := r.buildRecord(item)
	if err != nil {
		r.logger.Error("building observability record", "err", err)
		r.recordFailure(false)
		return
	}
	if err := r.sink.Write(record); err != nil {
		r.logger.Error("writing observability record", "err", err)
		r.recordFailure(false)
	}
}

func (r *Recorder) buildRecord(item queuedItem) (Record, error) {
	summary, err := toStructuralMap(item.msg)
	if err != nil {
		return Record{}, fmt.Errorf("dumping message for recording: %w", err)
	}
	summary = redactSecrets(summary)
	summary = projectRequestAllowList(summary, model.RequestAllowList)

	tradeID, venueOrderID := model.CorrelationFields(item.msg)
	correlationID := item.correlationID
	if correlationID == "" {
		correlationID = tradeID
	}
	if correlationID == "" {
		correlationID = venueOrderID
	}

	occurredAt := time.Now().UTC()
	if ts, ok := model.TimestampOf(item.msg); ok {
		occurredAt = ts
	}

	return Record{
		Kind:          item.kind,
		EventType:     typeLabel(item.msg),
		Stage:         item.stage,
		CorrelationID: correlationID,
		TradeID:       tradeID,
		VenueOrderID:  venueOrderID,
		OccurredAt:    occurredAt,
		LoggedAt:      time.Now().UTC(),
		Summary:       summary,
	}, nil
}

func (r *Recorder) recordFailure(dropped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if dropped {
		r.droppedCount++
	} else {
		r.failedCount++
	}
	if r.firstFailureAt == nil {
		r.firstFailureAt = &now
	}
	r.lastFailureAt = &now
	if r.metrics != nil {
		if dropped {
			r.metrics.IncDropped()
		} else {
			r.metrics.IncFailed()
		}
	}
}

// DegradedStatus reports the recorder's cumulative drop/failure health.
func (r *Recorder) DegradedStatus() DegradedStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return DegradedStatus{
		DroppedCount:   r.droppedCount,
		FailedCount:    r.failedCount,
		FirstFailureAt: r.firstFailureAt,
		LastFailureAt:  r.lastFailureAt,
	}
}

// Close signals the writer to drain the queue, awaits it, then closes the
// sink. Idempotent.
func (r *Recorder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
		err = r.sink.Close()
	})
	return err
}

func typeLabel(msg any) string {
	full := fmt.Sprintf("%T", msg)
	if idx := strings.LastIndex(full, "."); idx >= 0 {
		return full[idx+1:]
	}
	return full
}
