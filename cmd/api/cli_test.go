package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/sentinel/internal/services"
	"github.com/Wikid82/sentinel/internal/store"
)

func newCLIService(t *testing.T) (*services.SentinelService, *store.Stores) {
	t.Helper()
	stores, err := store.Open(t.TempDir())
	require.NoError(t, err)
	return services.NewSentinelService(stores, nil), stores
}

func TestIsCommand(t *testing.T) {
	for _, c := range []string{"block", "unblock", "allow", "unallow", "resync", "stats"} {
		assert.True(t, isCommand(c), c)
	}
	assert.False(t, isCommand("serve"))
	assert.False(t, isCommand("reset-password"))
}

func TestRunCommand_BlockAndUnblock(t *testing.T) {
	svc, stores := newCLIService(t)
	out := &bytes.Buffer{}

	require.NoError(t, runCommand(out, []string{"block", "203.0.113.3"}, svc))
	assert.Contains(t, out.String(), "block 203.0.113.3: done")
	assert.True(t, stores.State.Current().IsBlocked("203.0.113.3"))

	out.Reset()
	require.NoError(t, runCommand(out, []string{"block", "203.0.113.3"}, svc))
	assert.Contains(t, out.String(), "no change")

	require.NoError(t, runCommand(out, []string{"unblock", "203.0.113.3"}, svc))
	assert.False(t, stores.State.Current().IsBlocked("203.0.113.3"))
}

func TestRunCommand_Errors(t *testing.T) {
	svc, _ := newCLIService(t)
	out := &bytes.Buffer{}

	assert.ErrorIs(t, runCommand(out, nil, svc), errUsage)
	assert.ErrorIs(t, runCommand(out, []string{"allow"}, svc), errUsage)
	assert.ErrorIs(t, runCommand(out, []string{"frobnicate"}, svc), errUsage)

	err := runCommand(out, []string{"allow", "not-an-ip"}, svc)
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
}

func TestRunCommand_ResyncAndStats(t *testing.T) {
	svc, stores := newCLIService(t)
	out := &bytes.Buffer{}

	require.NoError(t, runCommand(out, []string{"resync"}, svc))
	assert.Contains(t, out.String(), "resync requested at")
	assert.NotNil(t, stores.State.Current().LastManualResync)

	out.Reset()
	require.NoError(t, runCommand(out, []string{"stats"}, svc))
	var report map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Contains(t, report, "status")
	assert.Contains(t, report, "top_ips")
}
