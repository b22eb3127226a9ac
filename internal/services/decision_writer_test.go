package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/sentinel/internal/models"
	"github.com/Wikid82/sentinel/internal/sentinel"
)

func TestDecisionWriter_WritesAndDrains(t *testing.T) {
	db := setupSentinelTestDB(t)
	w := NewDecisionWriter(db, 16)

	w.Blocked(context.Background(), sentinel.Decision{
		Verdict: sentinel.VerdictBlock,
		Reason:  sentinel.ReasonThreshold,
		IP:      "203.0.113.1",
		Host:    "example.com",
		Count:   6,
		Match:   sentinel.Match{Category: "xss", Signature: "<script"},
	})
	w.Blocked(context.Background(), sentinel.Decision{
		Verdict: sentinel.VerdictBlock,
		Reason:  sentinel.ReasonBlockListed,
		IP:      "203.0.113.2",
	})
	w.Close()

	var rows []models.SecurityDecision
	require.NoError(t, db.Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, models.EventSourceAuto, rows[0].Source)
	assert.Equal(t, "xss", rows[0].Category)
	assert.Equal(t, "<script", rows[0].Pattern)
	assert.Equal(t, "6 events", rows[0].Details)
	assert.Equal(t, "blocklist", rows[1].Source)
	assert.NotEmpty(t, rows[1].UUID)
}

func TestDecisionWriter_WriteAfterClose(t *testing.T) {
	db := setupSentinelTestDB(t)
	w := NewDecisionWriter(db, 1)
	w.Close()
	w.Close()

	assert.False(t, w.Write(models.SecurityDecision{IP: "192.0.2.1"}))
}

func TestDecisionWriter_DropsWhenFull(t *testing.T) {
	w := &DecisionWriter{ch: make(chan models.SecurityDecision, 1), done: make(chan struct{})}

	assert.True(t, w.Write(models.SecurityDecision{IP: "192.0.2.1"}))
	assert.False(t, w.Write(models.SecurityDecision{IP: "192.0.2.2"}))
	assert.Equal(t, int64(1), w.Dropped())
}

type countingReporter struct{ n int }

func (c *countingReporter) Blocked(context.Context, sentinel.Decision) { c.n++ }

func TestReporters_FanOut(t *testing.T) {
	a, b := &countingReporter{}, &countingReporter{}
	rs := Reporters{a, nil, b}
	rs.Blocked(context.Background(), sentinel.Decision{})
	assert.Equal(t, 1, a.n)
	assert.Equal(t, 1, b.n)
}
