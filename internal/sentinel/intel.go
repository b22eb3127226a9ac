package sentinel

import "context"

// IntelSource is the extension point for externally sourced block decisions.
// The engine consults IsBlocked on every non allow-listed request; an error is
// treated as "not blocked". Refresh is driven by the intel sync job.
type IntelSource interface {
	IsBlocked(ctx context.Context, ip string) (bool, error)
	Refresh(ctx context.Context) error
}

// NoopIntel never blocks and never refreshes anything.
type NoopIntel struct{}

func (NoopIntel) IsBlocked(context.Context, string) (bool, error) { return false, nil }

func (NoopIntel) Refresh(context.Context) error { return nil }
