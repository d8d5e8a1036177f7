package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/internal/config"
	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/pkg/adapters/file"
	"github.com/aretw0/espalier/pkg/adapters/memory"
	"github.com/aretw0/espalier/pkg/adapters/redis"
	"github.com/aretw0/espalier/pkg/adapters/specfile"
	"github.com/aretw0/espalier/pkg/adapters/sqlite"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/entitylock"
	"github.com/aretw0/espalier/pkg/persistence/middleware"
	"github.com/aretw0/espalier/pkg/ports"
	"github.com/aretw0/espalier/pkg/registry"
)

// App is a fully wired Service plus the collaborators the commands need directly.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *registry.Registry
	Source   *specfile.Source
	Store    ports.StateStore
	Service  *espalier.Service

	closers []io.Closer
}

type appOptions struct {
	logger  *slog.Logger
	hooks   []domain.LifecycleHooks
	catalog *specfile.Catalog
}

// Option configures NewApp.
type Option func(*appOptions)

// WithLogger overrides the logger derived from the configured level.
func WithLogger(logger *slog.Logger) Option {
	return func(o *appOptions) {
		o.logger = logger
	}
}

// WithHooks adds lifecycle hooks to the Service. Calls accumulate.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(o *appOptions) {
		o.hooks = append(o.hooks, hooks)
	}
}

// WithCatalog makes Go guards and actions available to specification files.
func WithCatalog(c *specfile.Catalog) Option {
	return func(o *appOptions) {
		o.catalog = c
	}
}

// NewApp initializes the Service with standard CLI conventions:
// specifications come from cfg.Specs and entities live in the configured store.
func NewApp(cfg config.Config, opts ...Option) (*App, error) {
	o := &appOptions{}
	for _, opt := range opts {
		opt(o)
	}

	// 1. Logger
	logger := o.logger
	if logger == nil {
		var err error
		if logger, err = NewLogger(cfg.LogLevel); err != nil {
			return nil, err
		}
	}

	app := &App{Config: cfg, Logger: logger}

	// 2. Specifications
	var loaderOpts []specfile.Option
	if o.catalog != nil {
		loaderOpts = append(loaderOpts, specfile.WithCatalog(o.catalog))
	}
	app.Source = specfile.NewSource(cfg.Specs, loaderOpts...)
	app.Registry = registry.NewRegistry(registry.WithLogger(logger))
	if err := LoadSpecs(app.Registry, app.Source, false); err != nil {
		return nil, err
	}

	// 3. Storage
	mws, err := storeMiddlewares(cfg)
	if err != nil {
		return nil, err
	}
	backend, closer, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		app.closers = append(app.closers, closer)
	}
	app.Store = middleware.Chain(backend, mws...)

	// 4. Service
	svcOpts := []espalier.Option{
		espalier.WithLogger(logger),
		espalier.WithHooks(domain.Combine(append([]domain.LifecycleHooks{debugHooks(logger)}, o.hooks...)...)),
	}
	if cfg.EntityLock {
		svcOpts = append(svcOpts, espalier.WithEntityLock(newEntityLock(cfg, backend, logger)))
	}
	app.Service = espalier.New(app.Registry, app.Store, svcOpts...)

	logger.Debug("service ready",
		"store", cfg.Store,
		"specs", cfg.Specs,
		"count", len(app.Registry.All()),
		"entity_lock", cfg.EntityLock,
	)
	return app, nil
}

// Close releases the store connections.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// OpenStore creates the storage provider named by cfg.Store, wrapped with the
// configured data-protection middlewares.
// The returned closer is nil for stores holding no connection.
func OpenStore(cfg config.Config) (ports.StateStore, io.Closer, error) {
	mws, err := storeMiddlewares(cfg)
	if err != nil {
		return nil, nil, err
	}
	store, closer, err := openBackend(cfg)
	if err != nil {
		return nil, nil, err
	}
	return middleware.Chain(store, mws...), closer, nil
}

func storeMiddlewares(cfg config.Config) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(cfg.MaskAuditFields) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.MaskAuditFields)
		if err != nil {
			return nil, fmt.Errorf("mask audit fields: %w", err)
		}
		mws = append(mws, pii)
	}
	if cfg.EncryptionKey != "" {
		active, err := middleware.ParseKey(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("encryption key: %w", err)
		}
		encCfg := middleware.EncryptionConfig{ActiveKey: active}
		for i, raw := range cfg.FallbackKeys {
			key, err := middleware.ParseKey(raw)
			if err != nil {
				return nil, fmt.Errorf("fallback key %d: %w", i, err)
			}
			encCfg.FallbackKeys = append(encCfg.FallbackKeys, key)
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(encCfg))
	}
	return mws, nil
}

func openBackend(cfg config.Config) (ports.StateStore, io.Closer, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return memory.NewStore(), nil, nil
	case config.StoreFile:
		return file.New(cfg.EntitiesDir()), nil, nil
	case config.StoreSQLite:
		path := cfg.DatabasePath()
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, store, nil
	case config.StoreRedis:
		opts := []redis.Option{redis.WithPrefix(cfg.RedisPrefix)}
		if cfg.RedisTTL > 0 {
			opts = append(opts, redis.WithTTL(cfg.RedisTTL))
		}
		store := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, opts...)
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// LoadSpecs reads every document of source into reg.
// With replace set, known ids are swapped in place (hot reload) and a broken
// document does not stop the others; see ReloadSpecs.
func LoadSpecs(reg *registry.Registry, source *specfile.Source, replace bool) error {
	if replace {
		_, errs := ReloadSpecs(reg, source)
		return errors.Join(errs...)
	}

	specs, err := source.LoadAll()
	if err != nil {
		return err
	}
	for _, spec := range specs {
		if err := reg.Register(spec); err != nil {
			return fmt.Errorf("spec %s: %w", spec.ID, err)
		}
	}
	return nil
}

// ReloadSpecs replaces every document of source that parses and validates.
// A failing document leaves its previous version registered. It returns the
// number of specifications replaced and one error per failed document.
func ReloadSpecs(reg *registry.Registry, source *specfile.Source) (int, []error) {
	specs, errs := source.Scan()
	replaced := 0
	for _, spec := range specs {
		if err := reg.Replace(spec); err != nil {
			errs = append(errs, fmt.Errorf("spec %s: %w", spec.ID, err))
			continue
		}
		replaced++
	}
	return replaced, errs
}

// newEntityLock serializes commands per entity. A Redis store shares its
// connection with a distributed locker so several processes agree.
func newEntityLock(cfg config.Config, store ports.StateStore, logger *slog.Logger) *entitylock.Manager {
	opts := []entitylock.Option{
		entitylock.WithLogger(logger),
		entitylock.WithTTL(cfg.LockTTL),
	}
	if rs, ok := store.(*redis.Store); ok {
		opts = append(opts, entitylock.WithLocker(redis.NewLocker(rs.Client(), rs.Prefix()+"lock:")))
	}
	return entitylock.NewManager(opts...)
}

// NewLogger creates the application logger for a level name.
// Logs go to Stderr so Stdout stays clean for command output.
func NewLogger(levelName string) (*slog.Logger, error) {
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	return logging.New(level), nil
}
