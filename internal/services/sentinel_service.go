package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Wikid82/sentinel/internal/logger"
	"github.com/Wikid82/sentinel/internal/models"
	"github.com/Wikid82/sentinel/internal/sentinel"
	"github.com/Wikid82/sentinel/internal/store"
	"github.com/Wikid82/sentinel/internal/util"
)

var (
	ErrMissingIP = errors.New("missing IP address")
	ErrInvalidIP = errors.New("invalid IP address")
)

// Manual block event fields.
const (
	ManualBlockCategory = "manual_block"
	ManualBlockPattern  = "admin_manual"
	ManualBlockMethod   = "MANUAL"
	ManualBlockAgent    = "(manual admin action)"
	ManualBlockURL      = "/api/v1/sentinel/blocked"
)

// ValidationError is returned for operator input that cannot be applied.
// Nothing is changed when it is returned.
type ValidationError struct {
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ActionMeta identifies who performed an operator action and from where.
type ActionMeta struct {
	Actor string
	Host  string
}

func (m ActionMeta) actor() string {
	if m.Actor == "" {
		return "admin"
	}
	return m.Actor
}

// ManualBlockNotifier is told about operator blocks.
type ManualBlockNotifier interface {
	NotifyManualBlock(ip, actor string)
}

// SentinelService is the admin control plane over the Sentinel stores.
type SentinelService struct {
	config   *store.ConfigStore
	state    *store.StateStore
	events   *store.EventStore
	db       *gorm.DB
	notifier ManualBlockNotifier
	now      func() time.Time
}

// NewSentinelService returns a control plane over stores. db is optional; when
// set, operator actions and manual decisions are written to it.
func NewSentinelService(stores *store.Stores, db *gorm.DB) *SentinelService {
	return &SentinelService{
		config: stores.Config,
		state:  stores.State,
		events: stores.Events,
		db:     db,
		now:    time.Now,
	}
}

// SetNotifier sets the manual block notifier.
func (s *SentinelService) SetNotifier(n ManualBlockNotifier) {
	s.notifier = n
}

func validateIP(raw, verb string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", &ValidationError{Field: "ip", Message: "Missing IP.", Err: ErrMissingIP}
	}
	ip, ok := sentinel.NormalizeIP(raw)
	if !ok {
		return "", &ValidationError{
			Field:   "ip",
			Value:   raw,
			Message: fmt.Sprintf("Provide a valid IPv4 or IPv6 to %s.", verb),
			Err:     ErrInvalidIP,
		}
	}
	return ip, nil
}

// BlockIP adds ip to the block-list. The first time an IP is blocked a
// manual ThreatEvent is logged; re-blocking is a no-op that reports false.
func (s *SentinelService) BlockIP(raw string, meta ActionMeta) (bool, error) {
	ip, err := validateIP(raw, "block")
	if err != nil {
		return false, err
	}

	added := false
	if _, err := s.state.Update(func(st *models.LocalState) error {
		if st.IsBlocked(ip) {
			return nil
		}
		st.Blocklists.IPs = append(st.Blocklists.IPs, ip)
		added = true
		return nil
	}); err != nil {
		return false, fmt.Errorf("save block-list: %w", err)
	}
	if !added {
		return false, nil
	}

	if err := s.events.Append(s.manualEvent(ip, meta)); err != nil {
		logger.Log().WithError(err).WithField("ip", ip).Warn("sentinel: manual block event not persisted")
	}
	s.audit(meta, "block_ip", ip, "")
	s.recordDecision(ip, meta)
	if s.notifier != nil {
		s.notifier.NotifyManualBlock(ip, meta.actor())
	}
	return true, nil
}

// UnblockIP removes ip from the block-list. It never logs an event.
func (s *SentinelService) UnblockIP(raw string, meta ActionMeta) (bool, error) {
	ip, err := validateIP(raw, "unblock")
	if err != nil {
		return false, err
	}
	removed := false
	if _, err := s.state.Update(func(st *models.LocalState) error {
		st.Blocklists.IPs, removed = without(st.Blocklists.IPs, ip)
		return nil
	}); err != nil {
		return false, fmt.Errorf("save block-list: %w", err)
	}
	if removed {
		s.audit(meta, "unblock_ip", ip, "")
	}
	return removed, nil
}

// AllowIP adds ip to the allow-list.
func (s *SentinelService) AllowIP(raw string, meta ActionMeta) (bool, error) {
	ip, err := validateIP(raw, "allow")
	if err != nil {
		return false, err
	}
	added := false
	if _, err := s.config.Update(func(cfg *models.SentinelConfig) error {
		if cfg.AllowList.Contains(ip) {
			return nil
		}
		cfg.AllowList.IPs = append(cfg.AllowList.IPs, ip)
		added = true
		return nil
	}); err != nil {
		return false, fmt.Errorf("save allow-list: %w", err)
	}
	if added {
		s.audit(meta, "allow_ip", ip, "")
	}
	return added, nil
}

// UnallowIP removes ip from the allow-list. It never logs an event.
func (s *SentinelService) UnallowIP(raw string, meta ActionMeta) (bool, error) {
	ip, err := validateIP(raw, "unallow")
	if err != nil {
		return false, err
	}
	removed := false
	if _, err := s.config.Update(func(cfg *models.SentinelConfig) error {
		cfg.AllowList.IPs, removed = without(cfg.AllowList.IPs, ip)
		return nil
	}); err != nil {
		return false, fmt.Errorf("save allow-list: %w", err)
	}
	if removed {
		s.audit(meta, "unallow_ip", ip, "")
	}
	return removed, nil
}

// ForceResync flags the intel sync job to run on its next tick. It changes no
// classification state.
func (s *SentinelService) ForceResync(meta ActionMeta) (time.Time, error) {
	ts := s.now().UTC().Truncate(time.Second)
	if _, err := s.state.Update(func(st *models.LocalState) error {
		st.LastManualResync = &ts
		return nil
	}); err != nil {
		return time.Time{}, fmt.Errorf("save resync marker: %w", err)
	}
	s.audit(meta, "force_resync", "", ts.Format(time.RFC3339))
	return ts, nil
}

func without(list []string, v string) ([]string, bool) {
	out := make([]string, 0, len(list))
	removed := false
	for _, item := range list {
		if c, ok := util.CanonicalIP(item); item == v || (ok && c == v) {
			removed = true
			continue
		}
		out = append(out, item)
	}
	return out, removed
}

func (s *SentinelService) manualEvent(ip string, meta ActionMeta) models.ThreatEvent {
	cfg := s.config.Current()
	siteID := cfg.SiteID
	if siteID == "" {
		siteID = "site_manual"
	}
	return models.ThreatEvent{
		ID:             sentinel.NewEventID(),
		SiteID:         siteID,
		Timestamp:      s.now().UTC(),
		ThreatCategory: ManualBlockCategory,
		MatchedPattern: ManualBlockPattern,
		Confidence:     models.ConfidenceHigh,
		Source:         models.EventSourceAdmin,
		IPAddress:      ip,
		UserAgent:      ManualBlockAgent,
		RequestURL:     ManualBlockURL,
		RequestMethod:  ManualBlockMethod,
		Domain:         sentinel.RequestDomain(meta.Host),
	}
}

func (s *SentinelService) audit(meta ActionMeta, action, target, details string) {
	if s.db == nil {
		return
	}
	entry := &models.SecurityAudit{
		UUID:      uuid.NewString(),
		Actor:     meta.actor(),
		Action:    "sentinel." + action,
		Target:    target,
		Details:   details,
		CreatedAt: s.now(),
	}
	if err := s.db.Create(entry).Error; err != nil {
		logger.Log().WithError(err).WithField("action", action).Warn("sentinel: audit entry not written")
	}
}

func (s *SentinelService) recordDecision(ip string, meta ActionMeta) {
	if s.db == nil {
		return
	}
	d := &models.SecurityDecision{
		UUID:      uuid.NewString(),
		Source:    models.EventSourceAdmin,
		Action:    "block",
		IP:        ip,
		Host:      sentinel.RequestDomain(meta.Host),
		Category:  ManualBlockCategory,
		Pattern:   ManualBlockPattern,
		Details:   "blocked by " + meta.actor(),
		CreatedAt: s.now(),
	}
	if err := s.db.Create(d).Error; err != nil {
		logger.Log().WithError(err).WithField("ip", ip).Warn("sentinel: decision not written")
	}
}

// Status is the dashboard summary.
type Status struct {
	SiteID           string     `json:"site_id"`
	DataVersion      string     `json:"data_version"`
	TotalEvents      int        `json:"total_events"`
	BlockedCount     int        `json:"blocked_count"`
	AllowedCount     int        `json:"allowed_count"`
	LastSeen         *time.Time `json:"last_seen"`
	LogThreats       bool       `json:"log_threats"`
	BlockThreats     bool       `json:"block_threats"`
	BlockThreshold   int        `json:"block_threshold"`
	Categories       []string   `json:"categories"`
	InstallDate      time.Time  `json:"install_date"`
	LastSync         *time.Time `json:"last_sync"`
	LastManualResync *time.Time `json:"last_manual_resync"`
}

// Status summarizes the stores for the dashboard.
func (s *SentinelService) Status() Status {
	cfg := s.config.Current()
	st := s.state.Current()

	siteID := cfg.SiteID
	if siteID == "" {
		siteID = "site-unknown"
	}
	out := Status{
		SiteID:           siteID,
		DataVersion:      st.DataVersion,
		TotalEvents:      s.events.Len(),
		BlockedCount:     len(st.Blocklists.IPs),
		AllowedCount:     len(cfg.AllowList.IPs),
		LogThreats:       cfg.LogThreats,
		BlockThreats:     cfg.BlockThreats,
		BlockThreshold:   sentinel.BlockThreshold,
		Categories:       cfg.ThreatCategories.Names(),
		InstallDate:      st.InstallDate,
		LastSync:         st.LastSync,
		LastManualResync: st.LastManualResync,
	}
	if last, ok := s.events.LastSeen(); ok {
		out.LastSeen = &last
	}
	return out
}

// RecentEvents returns the newest events first.
func (s *SentinelService) RecentEvents(limit int) []models.ThreatEvent {
	return s.events.Recent(limit)
}

// TopIPs returns the IPs with the most events.
func (s *SentinelService) TopIPs(n int) []store.KeyCount {
	return s.events.TopIPs(n)
}

// TopCategories returns the categories with the most events.
func (s *SentinelService) TopCategories(n int) []store.KeyCount {
	return s.events.TopCategories(n)
}

// BlockedIPs returns the block-list sorted.
func (s *SentinelService) BlockedIPs() []string {
	return sortedCopy(s.state.Current().Blocklists.IPs)
}

// AllowedIPs returns the allow-list sorted.
func (s *SentinelService) AllowedIPs() []string {
	return sortedCopy(s.config.Current().AllowList.IPs)
}

func sortedCopy(in []string) []string {
	out := append([]string{}, in...)
	sort.Strings(out)
	return out
}

// ListAudit returns operator actions, newest first.
func (s *SentinelService) ListAudit(limit int) ([]models.SecurityAudit, error) {
	var res []models.SecurityAudit
	if s.db == nil {
		return res, nil
	}
	q := s.db.Order("created_at desc").Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

// ListDecisions returns recorded hard blocks, newest first.
func (s *SentinelService) ListDecisions(limit int) ([]models.SecurityDecision, error) {
	var res []models.SecurityDecision
	if s.db == nil {
		return res, nil
	}
	q := s.db.Order("created_at desc").Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}
