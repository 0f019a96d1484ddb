package session

import (
	"bufio"
	"encoding/json"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultEventBufferSize     = 1024
	DefaultMaxEventsPerSec     = 1000
	DefaultMaxEventsPerSession = 50
	BatchFlushSize             = 64
	BatchFlushInterval         = 100 * time.Millisecond
	SessionLimiterCleanup      = 5 * time.Minute
)

// EventLogOptions configures an EventLog. Zero values fall back to defaults.
type EventLogOptions struct {
	BufferSize          int
	MaxEventsPerSec     int
	MaxEventsPerSession int
}

// EventLog is a bounded, rate-limited event log with an async JSONL writer.
//
// When the buffer is full the oldest pending event is dropped.
type EventLog struct {
	opts EventLogOptions

	mu      sync.Mutex
	buffer  []Event
	head    int // index of the oldest pending event
	pending int
	seq     uint64

	globalLimiter   *rate.Limiter
	sessionLimiters sync.Map // map[string]*sessionLimiterEntry

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	out    *bufio.Writer
	closer io.Closer
	outMu  sync.Mutex

	droppedCount atomic.Uint64
	totalCount   atomic.Uint64
	writtenCount atomic.Uint64
}

type sessionLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64 // unix nano
}

// NewEventLog creates a stopped event log.
func NewEventLog(opts EventLogOptions) *EventLog {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultEventBufferSize
	}
	if opts.MaxEventsPerSec <= 0 {
		opts.MaxEventsPerSec = DefaultMaxEventsPerSec
	}
	if opts.MaxEventsPerSession <= 0 {
		opts.MaxEventsPerSession = DefaultMaxEventsPerSession
	}
	return &EventLog{
		opts:          opts,
		buffer:        make([]Event, opts.BufferSize),
		globalLimiter: rate.NewLimiter(rate.Limit(opts.MaxEventsPerSec), burst(opts.MaxEventsPerSec)),
		stopChan:      make(chan struct{}),
	}
}

func burst(perSec int) int {
	if b := perSec / 10; b > 0 {
		return b
	}
	return 1
}

// Start opens filePath for append and begins writing. An empty path keeps
// events in memory only.
func (el *EventLog) Start(filePath string) error {
	if filePath == "" || el.running.Load() {
		return el.StartWriter(nil)
	}
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	el.closer = file
	return el.StartWriter(file)
}

// StartWriter begins writing batches to w (may be nil).
func (el *EventLog) StartWriter(w io.Writer) error {
	if !el.running.CompareAndSwap(false, true) {
		return nil
	}
	if w != nil {
		el.out = bufio.NewWriter(w)
	}

	el.writerWg.Add(2)
	go el.writerLoop()
	go el.cleanupLoop()
	return nil
}

// Stop flushes pending events and closes the output.
func (el *EventLog) Stop() {
	el.stopOnce.Do(func() {
		if !el.running.Load() {
			return
		}
		close(el.stopChan)
		el.writerWg.Wait()
		el.running.Store(false)

		el.outMu.Lock()
		defer el.outMu.Unlock()
		if el.out != nil {
			el.out.Flush()
		}
		if el.closer != nil {
			el.closer.Close()
		}
	})
}

// Emit queues an event. Returns false if rate limited or the log is stopped.
func (el *EventLog) Emit(event Event) bool {
	if !el.running.Load() {
		return false
	}

	if !el.globalLimiter.Allow() {
		el.droppedCount.Add(1)
		return false
	}
	if event.SessionID != "" && !el.sessionLimiter(event.SessionID).Allow() {
		el.droppedCount.Add(1)
		return false
	}

	el.mu.Lock()
	size := len(el.buffer)
	if el.pending == size {
		el.head = (el.head + 1) % size
		el.pending--
		el.droppedCount.Add(1)
	}
	el.seq++
	event.Sequence = el.seq
	el.buffer[(el.head+el.pending)%size] = event
	el.pending++
	el.mu.Unlock()

	el.totalCount.Add(1)
	return true
}

// EmitSimple builds and queues an event.
func (el *EventLog) EmitSimple(eventType EventType, sessionID string, payload any) bool {
	return el.Emit(NewEvent(eventType, sessionID, payload))
}

func (el *EventLog) sessionLimiter(sessionID string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := el.sessionLimiters.Load(sessionID); ok {
		entry := v.(*sessionLimiterEntry)
		entry.lastUsed.Store(now)
		return entry.limiter
	}

	entry := &sessionLimiterEntry{
		limiter: rate.NewLimiter(rate.Limit(el.opts.MaxEventsPerSession), burst(el.opts.MaxEventsPerSession)),
	}
	entry.lastUsed.Store(now)
	actual, _ := el.sessionLimiters.LoadOrStore(sessionID, entry)
	return actual.(*sessionLimiterEntry).limiter
}

// Forget drops the per-session limiter for a finished session.
func (el *EventLog) Forget(sessionID string) {
	el.sessionLimiters.Delete(sessionID)
}

func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, BatchFlushSize)

	for {
		select {
		case <-el.stopChan:
			for {
				batch = el.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				el.flushBatch(batch)
			}
		case <-ticker.C:
			batch = el.collectBatch(batch[:0])
			if len(batch) > 0 {
				el.flushBatch(batch)
			}
		}
	}
}

func (el *EventLog) cleanupLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(SessionLimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-el.stopChan:
			return
		case <-ticker.C:
			el.cleanupSessionLimiters()
		}
	}
}

func (el *EventLog) cleanupSessionLimiters() {
	cutoff := time.Now().Add(-SessionLimiterCleanup).UnixNano()
	el.sessionLimiters.Range(func(key, value any) bool {
		if value.(*sessionLimiterEntry).lastUsed.Load() < cutoff {
			el.sessionLimiters.Delete(key)
		}
		return true
	})
}

// collectBatch drains up to BatchFlushSize pending events.
func (el *EventLog) collectBatch(batch []Event) []Event {
	el.mu.Lock()
	defer el.mu.Unlock()

	size := len(el.buffer)
	for el.pending > 0 && len(batch) < BatchFlushSize {
		batch = append(batch, el.buffer[el.head])
		el.buffer[el.head] = Event{}
		el.head = (el.head + 1) % size
		el.pending--
	}
	return batch
}

// flushBatch appends events as newline-delimited JSON
func (el *EventLog) flushBatch(batch []Event) {
	el.outMu.Lock()
	defer el.outMu.Unlock()

	if el.out == nil {
		return
	}

	for _, event := range batch {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		el.out.Write(data)
		el.out.WriteByte('\n')
	}
	if err := el.out.Flush(); err != nil {
		log.Printf("⚠️ Event log write failed: %v", err)
		return
	}
	el.writtenCount.Add(uint64(len(batch)))
}

// EventLogStats is a point-in-time view for monitoring.
type EventLogStats struct {
	Total   uint64 `json:"total"`
	Dropped uint64 `json:"dropped"`
	Written uint64 `json:"written"`
	Pending int    `json:"pending"`
	Running bool   `json:"running"`
}

// Stats returns counters for monitoring.
func (el *EventLog) Stats() EventLogStats {
	el.mu.Lock()
	pending := el.pending
	el.mu.Unlock()

	return EventLogStats{
		Total:   el.totalCount.Load(),
		Dropped: el.droppedCount.Load(),
		Written: el.writtenCount.Load(),
		Pending: pending,
		Running: el.running.Load(),
	}
}
