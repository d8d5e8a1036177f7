package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/espalier/internal/config"
	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/internal/testutils"
	"github.com/aretw0/espalier/pkg/adapters/specfile"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/registry"
)

const ticketSpec = `
id: ticket
initial: open
states:
  open:
    on:
      CLOSE: closed
  closed: {}
`

const ticketSpecWithReopen = `
id: ticket
initial: open
states:
  open:
    on:
      CLOSE: closed
  closed:
    on:
      REOPEN: open
`

func testConfig(t *testing.T, store string) config.Config {
	return config.Config{
		Dir:      t.TempDir(),
		Specs:    testutils.SetupSpecDir(t, map[string]string{"ticket.yaml": ticketSpec}),
		Store:    store,
		LogLevel: "warn",
		LockTTL:  time.Second,
	}
}

func TestNewApp_Stores(t *testing.T) {
	for _, store := range []string{config.StoreMemory, config.StoreFile, config.StoreSQLite} {
		t.Run(store, func(t *testing.T) {
			app, err := NewApp(testConfig(t, store), WithLogger(logging.NewNop()))
			require.NoError(t, err)
			defer func() { assert.NoError(t, app.Close()) }()

			res, err := app.Service.Execute(context.Background(), domain.Command{
				EntityType: "ticket", EntityID: "T-1", Event: "CLOSE",
			})
			require.NoError(t, err)
			assert.Equal(t, "closed", res.To)

			state, err := app.Service.Query(context.Background(), "ticket", "T-1")
			require.NoError(t, err)
			assert.Equal(t, int64(1), state.Version)
		})
	}
}

func TestNewApp_EntityLockAndHooks(t *testing.T) {
	cfg := testConfig(t, config.StoreMemory)
	cfg.EntityLock = true

	var committed atomic.Int32
	app, err := NewApp(cfg, WithHooks(domain.LifecycleHooks{
		OnCommitted: func(context.Context, *domain.CommittedEvent) { committed.Add(1) },
	}))
	require.NoError(t, err)

	_, err = app.Service.Execute(context.Background(), domain.Command{
		EntityType: "ticket", EntityID: "T-1", Event: "CLOSE",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), committed.Load())
}

func TestNewApp_Errors(t *testing.T) {
	t.Run("missing specs directory", func(t *testing.T) {
		cfg := testConfig(t, config.StoreMemory)
		cfg.Specs = filepath.Join(t.TempDir(), "nope")
		_, err := NewApp(cfg)
		assert.Error(t, err)
	})

	t.Run("invalid specification", func(t *testing.T) {
		cfg := testConfig(t, config.StoreMemory)
		cfg.Specs = testutils.SetupSpecDir(t, map[string]string{"bad.yaml": "initial: nowhere\nstates:\n  open: {}\n"})
		_, err := NewApp(cfg)
		assert.Error(t, err)
	})

	t.Run("bad log level", func(t *testing.T) {
		cfg := testConfig(t, config.StoreMemory)
		cfg.LogLevel = "loud"
		_, err := NewApp(cfg)
		assert.Error(t, err)
	})

	t.Run("unknown store", func(t *testing.T) {
		_, _, err := OpenStore(config.Config{Store: "tape"})
		assert.ErrorContains(t, err, "unknown store")
	})
}

func TestFingerprint(t *testing.T) {
	dir := testutils.SetupSpecDir(t, map[string]string{"ticket.yaml": ticketSpec, "notes.txt": "ignored"})

	first, err := Fingerprint(dir)
	require.NoError(t, err)

	testutils.WriteSpec(t, dir, "notes.txt", "still ignored")
	same, err := Fingerprint(dir)
	require.NoError(t, err)
	assert.Equal(t, first, same)

	testutils.WriteSpec(t, dir, "ticket.yaml", ticketSpecWithReopen)
	changed, err := Fingerprint(dir)
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)

	_, err = Fingerprint(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestWatcher_ReloadsChangedSpecs(t *testing.T) {
	dir := testutils.SetupSpecDir(t, map[string]string{"ticket.yaml": ticketSpec})
	source := specfile.NewSource(dir)
	reg := registry.NewRegistry()
	require.NoError(t, LoadSpecs(reg, source, false))

	var reloads atomic.Int32
	w := &Watcher{
		Source:   source,
		Registry: reg,
		Interval: 10 * time.Millisecond,
		Logger:   logging.NewNop(),
		OnReload: func() { reloads.Add(1) },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Broken documents are skipped and the old version keeps serving.
	testutils.WriteSpec(t, dir, "ticket.yaml", "initial: nowhere\nstates:\n  open: {}\n")
	time.Sleep(50 * time.Millisecond)
	spec, err := reg.Get("ticket")
	require.NoError(t, err)
	_, ok := spec.State("open")
	assert.True(t, ok)
	assert.Equal(t, int32(0), reloads.Load())

	testutils.WriteSpec(t, dir, "ticket.yaml", ticketSpecWithReopen)
	require.Eventually(t, func() bool { return reloads.Load() > 0 }, 2*time.Second, 10*time.Millisecond)

	spec, err = reg.Get("ticket")
	require.NoError(t, err)
	closed, _ := spec.State("closed")
	require.Len(t, closed.On, 1)
	assert.Equal(t, "REOPEN", closed.On[0].Event)

	cancel()
	assert.NoError(t, <-done)
}

func TestReloadSpecs_SkipsBrokenDocuments(t *testing.T) {
	const beta = `
id: beta
initial: a
states:
  a:
    on:
      GO: b
  b: {}
`
	const betaWithC = `
id: beta
initial: a
states:
  a:
    on:
      GO: b
  b:
    on:
      GO: c
  c: {}
`
	dir := testutils.SetupSpecDir(t, map[string]string{"ticket.yaml": ticketSpec, "beta.yaml": beta})
	source := specfile.NewSource(dir)
	reg := registry.NewRegistry()
	require.NoError(t, LoadSpecs(reg, source, false))

	// One invalid spec sorting first, one unparsable file, one valid edit.
	testutils.WriteSpec(t, dir, "aaa.yaml", "id: aaa\ninitial: nowhere\nstates:\n  open: {}\n")
	testutils.WriteSpec(t, dir, "zzz.yaml", "id: [unterminated")
	testutils.WriteSpec(t, dir, "beta.yaml", betaWithC)

	replaced, errs := ReloadSpecs(reg, source)
	assert.Equal(t, 2, replaced)
	assert.Len(t, errs, 2)

	spec, err := reg.Get("beta")
	require.NoError(t, err)
	_, ok := spec.State("c")
	assert.True(t, ok, "valid edit applied despite broken siblings")

	_, err = reg.Get("aaa")
	assert.Error(t, err)

	err = LoadSpecs(reg, source, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spec aaa")
	assert.Contains(t, err.Error(), "zzz.yaml")
}

func TestNewApp_DataProtection(t *testing.T) {
	cfg := testConfig(t, config.StoreFile)
	cfg.Specs = testutils.SetupSpecDir(t, map[string]string{"ticket.yaml": ticketSpec + "context:\n  password: string?\n"})
	cfg.EncryptionKey = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
	cfg.MaskAuditFields = []string{"password"}

	app, err := NewApp(cfg, WithLogger(logging.NewNop()))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = app.Service.Execute(ctx, domain.Command{
		EntityType: "ticket", EntityID: "T-1", Event: "CLOSE",
		Data: domain.Context{"password": "hunter2"},
	})
	require.NoError(t, err)

	state, err := app.Service.Query(ctx, "ticket", "T-1")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", state.Context["password"])

	history, err := app.Service.History(ctx, "ticket", "T-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "***", history[0].Data["password"])

	raw, err := os.ReadFile(filepath.Join(cfg.EntitiesDir(), "ticket", "T-1.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hunter2")

	t.Run("bad key", func(t *testing.T) {
		cfg := testConfig(t, config.StoreMemory)
		cfg.EncryptionKey = "c2hvcnQ="
		_, err := NewApp(cfg, WithLogger(logging.NewNop()))
		assert.ErrorContains(t, err, "encryption key")
	})
}
