package otel

// Goroutine safety:
// drain is the only reader of l.ch and the only writer to l.w.
// Logger.mu guards the ring pointer alone; drain releases it before Push.

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/abelbrown/topicstream/internal/logging"
)

// queueSize is the capacity of the async write channel.
const queueSize = 4096

// DefaultFile is the events file name inside the topicstream directory.
const DefaultFile = "events.jsonl"

// entry carries the encoded line for disk and the Event for the ring, so
// fields hidden from JSON (Dur) survive in memory.
type entry struct {
	data []byte
	ev   Event
}

// Logger writes events as JSONL through an async background writer.
// Safe for concurrent use.
type Logger struct {
	mu        sync.Mutex
	ring      *RingBuffer
	sessionID string
	ch        chan entry
	w         io.Writer
	file      *os.File // set by Open
	dropped   atomic.Uint64
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewLogger creates a Logger writing to w and starts its drain goroutine.
// Call Close to flush.
func NewLogger(w io.Writer) *Logger {
	l := &Logger{
		sessionID: uuid.NewString()[:8],
		ch:        make(chan entry, queueSize),
		w:         w,
		done:      make(chan struct{}),
	}
	go l.drain()
	return l
}

// Open appends to the events file at path, creating its directory.
func Open(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("otel: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("otel: open %s: %w", path, err)
	}
	l := NewLogger(f)
	l.file = f
	return l, nil
}

// NewNullLogger creates a Logger that discards output.
func NewNullLogger() *Logger {
	return NewLogger(io.Discard)
}

// SessionID identifies this process in every event it writes.
func (l *Logger) SessionID() string { return l.sessionID }

func (l *Logger) drain() {
	defer close(l.done)
	for e := range l.ch {
		if _, err := l.w.Write(e.data); err != nil {
			l.dropped.Add(1)
		}

		l.mu.Lock()
		rb := l.ring
		l.mu.Unlock()

		if rb != nil {
			rb.Push(e.ev)
		}
	}
}

// Emit queues an event. Time defaults to now and SessionID is stamped.
// Never blocks: when the queue is full or the logger is closed the event
// is counted as dropped.
func (l *Logger) Emit(e Event) {
	// Close may win the race between the closed check and the send.
	defer func() {
		if recover() != nil {
			l.dropped.Add(1)
		}
	}()

	if l.closed.Load() {
		l.dropped.Add(1)
		return
	}

	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	e.SessionID = l.sessionID

	data, err := json.Marshal(e)
	if err != nil {
		l.dropped.Add(1)
		return
	}
	data = append(data, '\n')

	select {
	case l.ch <- entry{data: data, ev: e}:
	default:
		l.dropped.Add(1)
	}
}

// Info emits an info-level event.
func (l *Logger) Info(kind EventKind, comp string, msg string) {
	l.Emit(Event{Level: LevelInfo, Kind: kind, Comp: comp, Msg: msg})
}

// Warn emits a warn-level event.
func (l *Logger) Warn(kind EventKind, comp string, msg string) {
	l.Emit(Event{Level: LevelWarn, Kind: kind, Comp: comp, Msg: msg})
}

// Error emits an error-level event. A nil err is written as "".
func (l *Logger) Error(kind EventKind, comp string, err error) {
	var msg string
	if err != nil {
		msg = err.Error()
	}
	l.Emit(Event{Level: LevelError, Kind: kind, Comp: comp, Err: msg})
}

// Run returns a Scope that stamps every event with one run's identity.
func (l *Logger) Run(runID, model string, threshold float64) *Scope {
	return &Scope{l: l, runID: runID, model: model, threshold: threshold}
}

// SetRingBuffer attaches a ring buffer for live inspection.
func (l *Logger) SetRingBuffer(rb *RingBuffer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ring = rb
}

// Dropped returns the number of events dropped since creation.
func (l *Logger) Dropped() uint64 {
	return l.dropped.Load()
}

// Close flushes pending events and stops the drain goroutine. Emit calls
// racing with Close are dropped. Idempotent.
func (l *Logger) Close() {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.ch)
		<-l.done

		if l.file != nil {
			l.file.Close()
		}
		if d := l.dropped.Load(); d > 0 {
			logging.Warn("Telemetry events dropped", "count", d, "session", l.sessionID)
		}
	})
}

// Scope is a Logger bound to one (run, model, threshold).
type Scope struct {
	l         *Logger
	runID     string
	model     string
	threshold float64
}

// Emit stamps e with the scope's run fields and forwards it.
func (s *Scope) Emit(e Event) {
	if s == nil || s.l == nil {
		return
	}
	e.RunID = s.runID
	if e.Model == "" {
		e.Model = s.model
	}
	if e.Threshold == 0 {
		e.Threshold = s.threshold
	}
	s.l.Emit(e)
}
