package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Wikid82/sentinel/internal/logger"
	"github.com/Wikid82/sentinel/internal/models"
	"github.com/Wikid82/sentinel/internal/sentinel"
)

// DefaultDecisionBuffer is the queue depth of a DecisionWriter.
const DefaultDecisionBuffer = 256

// DecisionWriter records engine blocks in the database off the request path.
// When the queue is full new decisions are dropped, never waited on.
type DecisionWriter struct {
	db  *gorm.DB
	ch  chan models.SecurityDecision
	now func() time.Time

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Int64
}

// NewDecisionWriter starts the background writer.
func NewDecisionWriter(db *gorm.DB, buffer int) *DecisionWriter {
	if buffer <= 0 {
		buffer = DefaultDecisionBuffer
	}
	w := &DecisionWriter{
		db:   db,
		ch:   make(chan models.SecurityDecision, buffer),
		now:  time.Now,
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *DecisionWriter) run() {
	defer close(w.done)
	for d := range w.ch {
		if err := w.db.Create(&d).Error; err != nil {
			logger.Log().WithError(err).WithField("ip", d.IP).Warn("sentinel: decision not written")
		}
	}
}

// Write queues d. It reports false if the writer is closed or full.
func (w *DecisionWriter) Write(d models.SecurityDecision) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	select {
	case w.ch <- d:
		return true
	default:
		if n := w.dropped.Add(1); n == 1 || n%100 == 0 {
			logger.Log().WithField("dropped", n).Warn("sentinel: decision queue full")
		}
		return false
	}
}

// Dropped returns how many decisions were discarded because the queue was full.
func (w *DecisionWriter) Dropped() int64 {
	return w.dropped.Load()
}

// Blocked implements sentinel.Reporter.
func (w *DecisionWriter) Blocked(_ context.Context, d sentinel.Decision) {
	w.Write(decisionRecord(d, w.now()))
}

// Close stops accepting decisions and waits for the queue to drain.
func (w *DecisionWriter) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
	w.mu.Unlock()
	<-w.done
}

func decisionRecord(d sentinel.Decision, now time.Time) models.SecurityDecision {
	source := models.EventSourceAuto
	switch d.Reason {
	case sentinel.ReasonIntel:
		source = "intel"
	case sentinel.ReasonBlockListed:
		source = "blocklist"
	}
	rec := models.SecurityDecision{
		UUID:      uuid.NewString(),
		Source:    source,
		Action:    "block",
		IP:        d.IP,
		Host:      d.Host,
		Category:  d.Match.Category,
		Pattern:   d.Match.Signature,
		CreatedAt: now,
	}
	if d.Reason == sentinel.ReasonThreshold {
		rec.Details = fmt.Sprintf("%d events", d.Count)
	}
	return rec
}

// Reporters fans a block out to several reporters.
type Reporters []sentinel.Reporter

// Blocked implements sentinel.Reporter.
func (rs Reporters) Blocked(ctx context.Context, d sentinel.Decision) {
	for _, r := range rs {
		if r != nil {
			r.Blocked(ctx, d)
		}
	}
}
