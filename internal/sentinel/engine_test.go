package sentinel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/sentinel/internal/models"
	"github.com/Wikid82/sentinel/internal/store"
)

type recordingReporter struct {
	blocked []Decision
}

func (r *recordingReporter) Blocked(_ context.Context, d Decision) {
	r.blocked = append(r.blocked, d)
}

type stubIntel struct {
	blocked map[string]bool
	err     error
}

func (s stubIntel) IsBlocked(_ context.Context, ip string) (bool, error) {
	return s.blocked[ip], s.err
}

func (stubIntel) Refresh(context.Context) error { return nil }

type countryTable map[string]string

func (c countryTable) Country(ip string) string { return c[ip] }

func newTestEngine(t *testing.T, mutate func(*models.SentinelConfig), opts ...Option) (*Engine, *store.Stores) {
	t.Helper()
	stores, err := store.Open(t.TempDir())
	require.NoError(t, err)
	if mutate != nil {
		_, err = stores.Config.Update(func(c *models.SentinelConfig) error {
			mutate(c)
			return nil
		})
		require.NoError(t, err)
	}
	return New(stores.Config, stores.State, stores.Events, opts...), stores
}

func attack(ip string) Request {
	return Request{
		Method:     "GET",
		URI:        "/wp-login.php",
		UserAgent:  "Mozilla/5.0",
		Host:       "example.com:443",
		RemoteAddr: ip + ":5555",
	}
}

func seedEvents(t *testing.T, stores *store.Stores, ip string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, stores.Events.Append(models.ThreatEvent{
			ID:        fmt.Sprintf("threat_seed%d", i),
			IPAddress: ip,
		}))
	}
}

func TestInspect_NoMatchAllows(t *testing.T) {
	e, stores := newTestEngine(t, nil)

	d := e.Inspect(context.Background(), Request{Method: "GET", URI: "/about", RemoteAddr: "192.0.2.1:1"})
	assert.Equal(t, VerdictAllow, d.Verdict)
	assert.Equal(t, ReasonNoMatch, d.Reason)
	assert.Equal(t, "192.0.2.1", d.IP)
	assert.Zero(t, stores.Events.Len())
}

func TestInspect_FirstHitIsLogged(t *testing.T) {
	now := time.Date(2026, 2, 2, 2, 2, 2, 0, time.UTC)
	e, stores := newTestEngine(t, nil,
		WithClock(func() time.Time { return now }),
		WithCountryLookup(countryTable{"203.0.113.10": "NL"}))

	d := e.Inspect(context.Background(), attack("203.0.113.10"))
	assert.Equal(t, VerdictLogOnly, d.Verdict)
	assert.Equal(t, ReasonBelowThreshold, d.Reason)
	assert.Equal(t, 1, d.Count)
	require.NotNil(t, d.Event)

	events := stores.Events.All()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Regexp(t, `^threat_[0-9a-f]{16}$`, ev.ID)
	assert.Equal(t, stores.Config.Current().SiteID, ev.SiteID)
	assert.True(t, now.Equal(ev.Timestamp))
	assert.Equal(t, "wp_admin_scan", ev.ThreatCategory)
	assert.Equal(t, "/wp-login.php", ev.MatchedPattern)
	assert.Equal(t, models.ConfidenceMedium, ev.Confidence)
	assert.Equal(t, models.EventSourceAuto, ev.Source)
	assert.Equal(t, "203.0.113.10", ev.IPAddress)
	assert.Equal(t, "Mozilla/5.0", ev.UserAgent)
	assert.Equal(t, "/wp-login.php", ev.RequestURL)
	assert.Equal(t, "GET", ev.RequestMethod)
	assert.Equal(t, "example.com", ev.Domain)
	assert.Equal(t, "NL", ev.Country)
}

func TestInspect_ThresholdBoundary(t *testing.T) {
	e, stores := newTestEngine(t, nil)

	seedEvents(t, stores, "203.0.113.20", 3)
	d := e.Inspect(context.Background(), attack("203.0.113.20"))
	assert.Equal(t, VerdictLogOnly, d.Verdict)
	assert.Equal(t, BlockThreshold-1, d.Count)

	d = e.Inspect(context.Background(), attack("203.0.113.20"))
	assert.Equal(t, VerdictBlock, d.Verdict)
	assert.Equal(t, ReasonThreshold, d.Reason)
	assert.Equal(t, BlockThreshold, d.Count)
}

func TestInspect_FifthAndSixthRequestsBlock(t *testing.T) {
	rep := &recordingReporter{}
	e, stores := newTestEngine(t, nil, WithReporter(rep))

	var verdicts []Verdict
	for i := 0; i < 6; i++ {
		verdicts = append(verdicts, e.Inspect(context.Background(), attack("203.0.113.10")).Verdict)
	}
	assert.Equal(t, []Verdict{
		VerdictLogOnly, VerdictLogOnly, VerdictLogOnly, VerdictLogOnly,
		VerdictBlock, VerdictBlock,
	}, verdicts)
	assert.Equal(t, 6, stores.Events.CountByIP("203.0.113.10"))
	require.Len(t, rep.blocked, 2)
	assert.Equal(t, 6, rep.blocked[1].Count)
}

func TestInspect_CountsArePerIP(t *testing.T) {
	e, stores := newTestEngine(t, nil)
	seedEvents(t, stores, "203.0.113.30", 10)

	d := e.Inspect(context.Background(), attack("203.0.113.31"))
	assert.Equal(t, VerdictLogOnly, d.Verdict)
	assert.Equal(t, 1, d.Count)
}

func TestInspect_AllowListShortCircuits(t *testing.T) {
	e, stores := newTestEngine(t, func(c *models.SentinelConfig) {
		c.AllowList.IPs = []string{"203.0.113.40"}
	})
	seedEvents(t, stores, "203.0.113.40", 10)

	d := e.Inspect(context.Background(), attack("203.0.113.40"))
	assert.Equal(t, VerdictAllow, d.Verdict)
	assert.Equal(t, ReasonAllowListed, d.Reason)
	assert.Equal(t, 10, stores.Events.Len())
}

func TestInspect_BlockListAndIntel(t *testing.T) {
	intel := stubIntel{blocked: map[string]bool{"198.51.100.9": true}}
	rep := &recordingReporter{}
	e, stores := newTestEngine(t, nil, WithIntel(intel), WithReporter(rep))

	_, err := stores.State.Update(func(st *models.LocalState) error {
		st.Blocklists.IPs = []string{"198.51.100.8"}
		return nil
	})
	require.NoError(t, err)

	benign := Request{Method: "GET", URI: "/", RemoteAddr: "198.51.100.8:1"}
	d := e.Inspect(context.Background(), benign)
	assert.Equal(t, VerdictBlock, d.Verdict)
	assert.Equal(t, ReasonBlockListed, d.Reason)

	benign.RemoteAddr = "198.51.100.9:1"
	d = e.Inspect(context.Background(), benign)
	assert.Equal(t, VerdictBlock, d.Verdict)
	assert.Equal(t, ReasonIntel, d.Reason)

	assert.Zero(t, stores.Events.Len())
	assert.Len(t, rep.blocked, 2)
}

func TestInspect_IntelErrorIgnored(t *testing.T) {
	e, _ := newTestEngine(t, nil, WithIntel(stubIntel{err: errors.New("down")}))

	d := e.Inspect(context.Background(), Request{URI: "/", RemoteAddr: "192.0.2.8:1"})
	assert.Equal(t, VerdictAllow, d.Verdict)
}

func TestInspect_LoggingDisabled(t *testing.T) {
	e, stores := newTestEngine(t, func(c *models.SentinelConfig) { c.LogThreats = false })
	seedEvents(t, stores, "203.0.113.50", 4)

	d := e.Inspect(context.Background(), attack("203.0.113.50"))
	assert.Equal(t, VerdictLogOnly, d.Verdict)
	assert.Nil(t, d.Event)
	assert.Equal(t, 4, stores.Events.Len())
}

func TestInspect_BlockingDisabled(t *testing.T) {
	e, stores := newTestEngine(t, func(c *models.SentinelConfig) { c.BlockThreats = false })
	seedEvents(t, stores, "203.0.113.60", 20)

	d := e.Inspect(context.Background(), attack("203.0.113.60"))
	assert.Equal(t, VerdictLogOnly, d.Verdict)
	assert.Equal(t, ReasonBlockingDisabled, d.Reason)
	assert.Equal(t, 21, stores.Events.Len())
}

func TestInspect_DecodesPercentEncoding(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	d := e.Inspect(context.Background(), Request{URI: "/search?q=%3Cscript%3E", RemoteAddr: "192.0.2.9:1"})
	assert.Equal(t, "xss_attempt", d.Match.Category)

	// malformed escapes fall back to the raw uri
	d = e.Inspect(context.Background(), Request{URI: "/%zz/wp-admin", RemoteAddr: "192.0.2.9:1"})
	assert.Equal(t, "wp_admin_scan", d.Match.Category)
}

func TestInspect_TruncatesLongFields(t *testing.T) {
	e, stores := newTestEngine(t, nil)
	long := make([]byte, 4*maxFieldLen)
	for i := range long {
		long[i] = 'a'
	}
	req := attack("192.0.2.10")
	req.URI = "/wp-admin/" + string(long)
	req.UserAgent = string(long)
	e.Inspect(context.Background(), req)

	ev := stores.Events.All()[0]
	assert.Len(t, ev.RequestURL, maxFieldLen)
	assert.Len(t, ev.UserAgent, maxFieldLen)
}

func TestInspect_CancelledContextStillRecords(t *testing.T) {
	e, stores := newTestEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := e.Inspect(ctx, attack("192.0.2.11"))
	assert.Equal(t, VerdictLogOnly, d.Verdict)
	assert.Equal(t, 1, stores.Events.Len())
}

type panickingConfig struct{}

func (panickingConfig) Current() *models.SentinelConfig { panic("boom") }

type failingLog struct{ appended int }

func (f *failingLog) Append(models.ThreatEvent) error {
	f.appended++
	return errors.New("disk full")
}

func (f *failingLog) CountByIP(string) int { return f.appended }

func TestInspect_PanicFailsOpen(t *testing.T) {
	stores, err := store.Open(t.TempDir())
	require.NoError(t, err)
	e := New(panickingConfig{}, stores.State, stores.Events)

	d := e.Inspect(context.Background(), attack("192.0.2.12"))
	assert.Equal(t, VerdictAllow, d.Verdict)
	assert.Equal(t, ReasonInternalError, d.Reason)
}

func TestInspect_StorageFailureStillDecides(t *testing.T) {
	stores, err := store.Open(t.TempDir())
	require.NoError(t, err)
	log := &failingLog{}
	e := New(stores.Config, stores.State, log)

	d := e.Inspect(context.Background(), attack("192.0.2.13"))
	assert.Equal(t, VerdictLogOnly, d.Verdict)
	assert.Equal(t, 1, log.appended)
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "ALLOW", VerdictAllow.String())
	assert.Equal(t, "LOG_ONLY", VerdictLogOnly.String())
	assert.Equal(t, "BLOCK", VerdictBlock.String())
}

func TestInspect_HandEditedListsMatchCanonicalIPs(t *testing.T) {
	stores, err := store.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(stores.Config.Path(),
		[]byte(`{"allow_list": {"ips": ["2001:DB8::1"]}}`), 0o644))
	require.NoError(t, os.WriteFile(stores.State.Path(),
		[]byte(`{"blocklists": {"ips": ["::ffff:198.51.100.7", "not-an-ip"]}}`), 0o644))
	e := New(stores.Config, stores.State, stores.Events)

	d := e.Inspect(context.Background(), Request{Method: "GET", URI: "/wp-admin/", RemoteAddr: "[2001:db8::1]:443"})
	assert.Equal(t, VerdictAllow, d.Verdict)
	assert.Equal(t, ReasonAllowListed, d.Reason)

	d = e.Inspect(context.Background(), Request{Method: "GET", URI: "/", RemoteAddr: "198.51.100.7:1"})
	assert.Equal(t, VerdictBlock, d.Verdict)
	assert.Equal(t, ReasonBlockListed, d.Reason)

	assert.Equal(t, []string{"198.51.100.7"}, stores.State.Current().Blocklists.IPs)
	assert.Zero(t, stores.Events.Len())
}
