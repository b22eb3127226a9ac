// Package sentinel is the inline request-threat engine: it resolves the client
// address, classifies the request against the signature catalog, records hits
// and decides whether the request may continue.
package sentinel

import (
	"context"
	"encoding/hex"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/Wikid82/sentinel/internal/logger"
	"github.com/Wikid82/sentinel/internal/metrics"
	"github.com/Wikid82/sentinel/internal/models"
	"github.com/Wikid82/sentinel/internal/util"
)

// BlockThreshold is the number of logged events from one IP at which the
// engine starts serving hard blocks.
const BlockThreshold = 5

// maxFieldLen caps user-controlled strings copied into events.
const maxFieldLen = 1024

// Verdict is the outcome of one inspection.
type Verdict int

const (
	VerdictAllow Verdict = iota
	VerdictLogOnly
	VerdictBlock
)

func (v Verdict) String() string {
	switch v {
	case VerdictLogOnly:
		return "LOG_ONLY"
	case VerdictBlock:
		return "BLOCK"
	default:
		return "ALLOW"
	}
}

// Decision reasons.
const (
	ReasonNoMatch          = "no_match"
	ReasonAllowListed      = "allowlist"
	ReasonBlockListed      = "blocklist"
	ReasonIntel            = "intel"
	ReasonBlockingDisabled = "blocking_disabled"
	ReasonBelowThreshold   = "below_threshold"
	ReasonThreshold        = "threshold"
	ReasonInternalError    = "internal_error"
)

// Request is the part of an inbound request the engine looks at.
type Request struct {
	Method     string
	URI        string // path plus raw query
	UserAgent  string
	Host       string
	RemoteAddr string
	Header     http.Header
}

// RequestFromHTTP extracts a Request from r.
func RequestFromHTTP(r *http.Request) Request {
	uri := r.RequestURI
	if uri == "" && r.URL != nil {
		uri = r.URL.RequestURI()
	}
	return Request{
		Method:     r.Method,
		URI:        uri,
		UserAgent:  r.UserAgent(),
		Host:       r.Host,
		RemoteAddr: r.RemoteAddr,
		Header:     r.Header,
	}
}

// Decision is the verdict plus what led to it.
type Decision struct {
	Verdict Verdict
	Reason  string
	IP      string
	Host    string
	Match   Match
	Count   int
	Event   *models.ThreatEvent
}

// ConfigSource provides the current configuration snapshot.
type ConfigSource interface {
	Current() *models.SentinelConfig
}

// StateSource provides the current local state snapshot.
type StateSource interface {
	Current() *models.LocalState
}

// EventLog is the append side of the event store plus the per-IP counter.
type EventLog interface {
	Append(ev models.ThreatEvent) error
	CountByIP(ip string) int
}

// CountryLookup resolves an IP to an ISO country code, or "".
type CountryLookup interface {
	Country(ip string) string
}

// Reporter is told about every hard block. Implementations must return
// quickly; they run on the request path.
type Reporter interface {
	Blocked(ctx context.Context, d Decision)
}

// Option configures an Engine.
type Option func(*Engine)

// WithIntel sets the external block-decision source.
func WithIntel(src IntelSource) Option {
	return func(e *Engine) {
		if src != nil {
			e.intel = src
		}
	}
}

// WithCountryLookup enables country enrichment of new events.
func WithCountryLookup(geo CountryLookup) Option {
	return func(e *Engine) { e.geo = geo }
}

// WithReporter sets the block reporter.
func WithReporter(r Reporter) Option {
	return func(e *Engine) { e.reporter = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine is the mitigation controller. It is safe for concurrent use.
type Engine struct {
	config   ConfigSource
	state    StateSource
	events   EventLog
	intel    IntelSource
	geo      CountryLookup
	reporter Reporter
	now      func() time.Time
}

// New returns an Engine reading from the given stores.
func New(config ConfigSource, state StateSource, events EventLog, opts ...Option) *Engine {
	e := &Engine{
		config: config,
		state:  state,
		events: events,
		intel:  NoopIntel{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Inspect runs the allow/log/block state machine for one request. It never
// fails: an internal error or panic resolves to VerdictAllow. Bookkeeping is
// detached from ctx cancellation so a client disconnect cannot drop an event.
func (e *Engine) Inspect(ctx context.Context, req Request) (d Decision) {
	ctx = context.WithoutCancel(ctx)
	metrics.IncRequest()

	defer func() {
		if r := recover(); r != nil {
			metrics.IncInternalError()
			logger.Log().WithFields(map[string]interface{}{
				"source": "sentinel",
				"path":   util.SanitizeForLog(util.Truncate(req.URI, 200)),
			}).Errorf("sentinel: inspection failed, allowing request: %v", r)
			d = Decision{Verdict: VerdictAllow, Reason: ReasonInternalError, IP: d.IP, Host: d.Host}
		}
	}()

	d = e.inspect(ctx, req)
	e.observe(ctx, d)
	return d
}

func (e *Engine) inspect(ctx context.Context, req Request) Decision {
	ip := resolveClientIP(req.Header, req.RemoteAddr)
	d := Decision{Verdict: VerdictAllow, Reason: ReasonNoMatch, IP: ip, Host: RequestDomain(req.Host)}

	cfg := e.config.Current()
	if cfg.AllowList.Contains(ip) {
		d.Reason = ReasonAllowListed
		return d
	}

	if st := e.state.Current(); st != nil && st.IsBlocked(ip) {
		d.Verdict, d.Reason = VerdictBlock, ReasonBlockListed
		return d
	}

	blocked, err := e.intel.IsBlocked(ctx, ip)
	if err != nil {
		logger.Log().WithError(err).WithField("ip", ip).Debug("sentinel: intel lookup failed")
	} else if blocked {
		d.Verdict, d.Reason = VerdictBlock, ReasonIntel
		return d
	}

	m, ok := Classify(inspectionTarget(req.URI), req.UserAgent, cfg.ThreatCategories)
	if !ok {
		return d
	}
	d.Match = m

	if cfg.LogThreats {
		ev := e.newEvent(cfg, req, ip, m)
		if err := e.events.Append(ev); err != nil {
			metrics.IncStorageError()
			logger.Log().WithError(err).Warn("sentinel: could not persist threat event")
		}
		d.Event = &ev
	}

	if !cfg.BlockThreats {
		d.Verdict, d.Reason = VerdictLogOnly, ReasonBlockingDisabled
		return d
	}

	d.Count = e.events.CountByIP(ip)
	if d.Count >= BlockThreshold {
		d.Verdict, d.Reason = VerdictBlock, ReasonThreshold
		return d
	}
	d.Verdict, d.Reason = VerdictLogOnly, ReasonBelowThreshold
	return d
}

func (e *Engine) observe(ctx context.Context, d Decision) {
	switch d.Verdict {
	case VerdictAllow:
		if d.Reason == ReasonAllowListed {
			metrics.IncAllowlisted()
		}
		return
	case VerdictLogOnly:
		metrics.IncLogged()
	case VerdictBlock:
		metrics.IncBlocked(d.Reason)
	}
	if d.Match.Category != "" {
		metrics.IncThreat(d.Match.Category)
	}

	entry := logger.Log().WithFields(map[string]interface{}{
		"source":   "sentinel",
		"decision": d.Verdict.String(),
		"reason":   d.Reason,
		"ip":       util.SanitizeForLog(d.IP),
		"category": d.Match.Category,
		"count":    d.Count,
	})
	if d.Verdict == VerdictBlock {
		entry.Warn("Sentinel blocked request")
		if e.reporter != nil {
			e.reporter.Blocked(ctx, d)
		}
		return
	}
	entry.Info("Sentinel logged request")
}

func (e *Engine) newEvent(cfg *models.SentinelConfig, req Request, ip string, m Match) models.ThreatEvent {
	ev := models.ThreatEvent{
		ID:             NewEventID(),
		SiteID:         cfg.SiteID,
		Timestamp:      e.now().UTC(),
		ThreatCategory: m.Category,
		MatchedPattern: m.Signature,
		Confidence:     models.ConfidenceMedium,
		Source:         models.EventSourceAuto,
		IPAddress:      ip,
		UserAgent:      util.Truncate(req.UserAgent, maxFieldLen),
		RequestURL:     util.Truncate(req.URI, maxFieldLen),
		RequestMethod:  req.Method,
		Domain:         RequestDomain(req.Host),
	}
	if e.geo != nil {
		ev.Country = e.geo.Country(ip)
	}
	return ev
}

// inspectionTarget is the request URI with percent-encoding removed, so that
// encoded payloads match their literal signatures.
func inspectionTarget(uri string) string {
	if decoded, err := url.QueryUnescape(uri); err == nil {
		return decoded
	}
	return uri
}

// NewEventID returns a "threat_" + 16 hex character identifier.
func NewEventID() string {
	u := uuid.New()
	return "threat_" + hex.EncodeToString(u[:8])
}
