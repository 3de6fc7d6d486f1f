package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/events"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("JOBSCOUT_CONFIG", "")
	t.Setenv("JOBSCOUT_CACHE_BACKEND", "memory")
	t.Setenv("JOBSCOUT_BROWSER_ENABLED", "false")
	t.Setenv("JOBSCOUT_PROXY_ENABLED", "false")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yml")

	out, err := run(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")

	out, err = run(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	t.Setenv("JOBSCOUT_MAX_PARALLEL", "7")
	out, err = run(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "max_parallel: 7")
	assert.Contains(t, out, "backend: memory")
}

func TestSourcesCommand(t *testing.T) {
	out, err := run(t, "sources")
	require.NoError(t, err)

	assert.Contains(t, out, "remoteok")
	assert.Contains(t, out, "ready")
	assert.Contains(t, out, "builtin")
	assert.Contains(t, out, "unsupported")
	assert.Less(t, bytes.Index([]byte(out), []byte("remoteok")), bytes.Index([]byte(out), []byte("builtin")))
}

func TestCacheClearCommand(t *testing.T) {
	out, err := run(t, "cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared the memory cache")
}

func TestBadEnvFails(t *testing.T) {
	t.Setenv("JOBSCOUT_MAX_RETRIES", "many")
	_, err := run(t, "sources")
	assert.Error(t, err)
}

func TestProgressHooks(t *testing.T) {
	hub := events.NewHub()
	ch := hub.Subscribe()
	hooks := progressHooks(hub)

	hooks.OnSourceStart("lever")
	hooks.OnSourceDone(domain.SourceOutcome{Source: "lever", Status: domain.StatusSuccess, Attempts: 1})

	started, done := <-ch.C, <-ch.C
	assert.Equal(t, events.TypeSourceStarted, started.Type)
	assert.Equal(t, events.TypeSourceFinished, done.Type)
	assert.JSONEq(t, `{"source":"lever","status":"success","attempts":1,"duration_ms":0}`, string(done.Data))
}
