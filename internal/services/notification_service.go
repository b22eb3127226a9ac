package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/containrrr/shoutrrr"

	"github.com/Wikid82/sentinel/internal/logger"
	"github.com/Wikid82/sentinel/internal/sentinel"
	"github.com/Wikid82/sentinel/internal/util"
)

const (
	// DefaultNotifyCooldown is how long an IP stays quiet after a notification.
	DefaultNotifyCooldown = time.Hour
	// maxTrackedIPs bounds the cooldown table; it is reset when full.
	maxTrackedIPs = 10000
)

// NotificationService pushes block notifications to shoutrrr URLs. Sends run
// in the background and are rate limited per IP.
type NotificationService struct {
	urls     []string
	cooldown time.Duration
	send     func(url, message string) error
	now      func() time.Time

	mu         sync.Mutex
	notified   map[string]time.Time
	lastPrune  time.Time
	maxTracked int
	wg         sync.WaitGroup
}

// NewNotificationService returns a notifier for urls. Blank entries are dropped.
func NewNotificationService(urls []string) *NotificationService {
	clean := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			clean = append(clean, normalizeURL(u))
		}
	}
	return &NotificationService{
		urls:     clean,
		cooldown: DefaultNotifyCooldown,
		send:     shoutrrr.Send,
		now:      time.Now,
		notified:   make(map[string]time.Time),
		maxTracked: maxTrackedIPs,
	}
}

var discordWebhookRegex = regexp.MustCompile(`^https://discord(?:app)?\.com/api/webhooks/(\d+)/([a-zA-Z0-9_-]+)`)

// normalizeURL turns a plain Discord webhook URL into its shoutrrr form.
func normalizeURL(rawURL string) string {
	matches := discordWebhookRegex.FindStringSubmatch(rawURL)
	if len(matches) == 3 {
		return fmt.Sprintf("discord://%s@%s", matches[2], matches[1])
	}
	return rawURL
}

// Enabled reports whether any destination is configured.
func (n *NotificationService) Enabled() bool {
	return n != nil && len(n.urls) > 0
}

// Blocked implements sentinel.Reporter.
func (n *NotificationService) Blocked(_ context.Context, d sentinel.Decision) {
	if !n.Enabled() {
		return
	}
	title := "Sentinel blocked " + d.IP
	var body string
	switch d.Reason {
	case sentinel.ReasonThreshold:
		body = fmt.Sprintf("%d threat events from %s; last match %s (%q) on %s.",
			d.Count, d.IP, d.Match.Category, d.Match.Signature, d.Host)
	default:
		body = fmt.Sprintf("Request from %s on %s blocked (%s).", d.IP, d.Host, d.Reason)
	}
	n.dispatch(d.IP, title, body)
}

// NotifyManualBlock reports an operator block.
func (n *NotificationService) NotifyManualBlock(ip, actor string) {
	if !n.Enabled() {
		return
	}
	n.dispatch(ip, "Sentinel blocked "+ip, fmt.Sprintf("%s added %s to the block-list.", actor, ip))
}

func (n *NotificationService) dispatch(ip, title, body string) {
	now := n.now()
	n.mu.Lock()
	if last, ok := n.notified[ip]; ok && now.Sub(last) < n.cooldown {
		n.mu.Unlock()
		return
	}
	n.pruneLocked(now)
	n.notified[ip] = now
	n.mu.Unlock()

	msg := util.SanitizeForLog(title) + "\n\n" + util.SanitizeForLog(body)
	for _, u := range n.urls {
		n.wg.Add(1)
		go func(url string) {
			defer n.wg.Done()
			if err := n.send(url, msg); err != nil {
				logger.Log().WithError(err).WithField("ip", ip).Warn("sentinel: failed to send notification")
			}
		}(u)
	}
}

// pruneLocked drops entries whose cooldown has expired, at most once per
// cooldown period unless the table is full.
func (n *NotificationService) pruneLocked(now time.Time) {
	full := len(n.notified) >= n.maxTracked
	if !full && now.Sub(n.lastPrune) < n.cooldown {
		return
	}
	n.lastPrune = now
	for ip, last := range n.notified {
		if now.Sub(last) >= n.cooldown {
			delete(n.notified, ip)
		}
	}
	if len(n.notified) >= n.maxTracked {
		n.notified = make(map[string]time.Time)
	}
}

// Wait blocks until in-flight sends finish.
func (n *NotificationService) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}
