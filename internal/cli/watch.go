package cli

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/espalier/pkg/adapters/specfile"
	"github.com/aretw0/espalier/pkg/registry"
)

// DefaultWatchInterval is how often the specification directory is polled.
const DefaultWatchInterval = time.Second

// Watcher reloads specifications into a registry whenever the files change.
// A document that fails to load or validate is logged and the previous
// version keeps serving.
type Watcher struct {
	Source   *specfile.Source
	Registry *registry.Registry
	Interval time.Duration
	Logger   *slog.Logger

	// OnReload is called after a reload that replaced at least one specification. Optional.
	OnReload func()
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultWatchInterval
	}

	last, err := Fingerprint(w.Source.Dir)
	if err != nil {
		return err
	}
	w.Logger.Info("Starting Watcher", "path", w.Source.Dir, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("Stopping watcher")
			return nil
		case <-ticker.C:
		}

		current, err := Fingerprint(w.Source.Dir)
		if err != nil {
			w.Logger.Warn("Watcher scan failed", "err", err)
			continue
		}
		if current == last {
			continue
		}
		last = current

		w.Logger.Info("Change detected, reloading specifications", "path", w.Source.Dir)
		replaced, errs := ReloadSpecs(w.Registry, w.Source)
		for _, err := range errs {
			w.Logger.Error("Reload failed, keeping previous version", "err", err)
		}
		if replaced > 0 && w.OnReload != nil {
			w.OnReload()
		}
	}
}

// Fingerprint hashes the names and contents of the YAML documents in dir.
func Fingerprint(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	h := md5.New()
	for _, name := range names {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return "", err
		}
		_, _ = io.WriteString(h, name)
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
