package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/aretw0/espalier/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// farFuture is the index score of entities that never expire (2100-01-01).
const farFuture = 4102444800

// Store implements ports.StateStore using Redis.
//
// Each entity is a JSON string key, its audit trail a list (newest first) and
// every entity type keeps a sorted-set index of its ids. Save runs as a
// WATCH/MULTI transaction so concurrent writers are detected as version conflicts.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for entities and their history.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "espalier:",
		ttl:    0, // No expiration by default
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Key components are query-escaped so a ':' inside a type or id cannot
// collide with the separator.
func (s *Store) key(entityType, entityID string) string {
	return s.prefix + "entity:" + url.QueryEscape(entityType) + ":" + url.QueryEscape(entityID)
}

func (s *Store) historyKey(entityType, entityID string) string {
	return s.prefix + "history:" + url.QueryEscape(entityType) + ":" + url.QueryEscape(entityID)
}

func (s *Store) indexKey(entityType string) string {
	return s.prefix + "index:" + url.QueryEscape(entityType)
}

// Save persists the state and pushes the audit entry in one transaction.
func (s *Store) Save(ctx context.Context, entityType, entityID string, state *domain.EntityState, audit *domain.AuditEntry) error {
	wrap := func(err error) error {
		return domain.NewStorageError(domain.OpSave, entityType, entityID, err)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return wrap(fmt.Errorf("failed to marshal state: %w", err))
	}
	var auditData []byte
	if audit != nil {
		if auditData, err = json.Marshal(audit); err != nil {
			return wrap(fmt.Errorf("failed to marshal audit entry: %w", err))
		}
	}

	key := s.key(entityType, entityID)
	historyKey := s.historyKey(entityType, entityID)

	// Score = Now + TTL, used for lazy pruning of the index.
	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = farFuture
	}

	txf := func(tx *backend.Tx) error {
		stored, err := s.version(ctx, tx, key)
		if err != nil {
			return err
		}
		if stored != state.Version-1 {
			return domain.ErrVersionConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			if auditData != nil {
				pipe.LPush(ctx, historyKey, auditData)
				if s.ttl > 0 {
					pipe.Expire(ctx, historyKey, s.ttl)
				}
			}
			pipe.ZAdd(ctx, s.indexKey(entityType), backend.Z{
				Score:  score,
				Member: entityID,
			})
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, key)
	if errors.Is(err, backend.TxFailedErr) {
		return wrap(domain.ErrVersionConflict)
	}
	if err != nil && !errors.Is(err, domain.ErrVersionConflict) {
		return wrap(fmt.Errorf("failed to save to redis: %w", err))
	}
	return wrap(err)
}

// version reads the stored version of a watched key; 0 when absent.
func (s *Store) version(ctx context.Context, tx *backend.Tx, key string) (int64, error) {
	val, err := tx.Get(ctx, key).Result()
	if errors.Is(err, backend.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var current struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal([]byte(val), &current); err != nil {
		return 0, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return current.Version, nil
}

// Load retrieves the state from Redis.
func (s *Store) Load(ctx context.Context, entityType, entityID string) (*domain.EntityState, error) {
	wrap := func(err error) error {
		return domain.NewStorageError(domain.OpLoad, entityType, entityID, err)
	}

	val, err := s.client.Get(ctx, s.key(entityType, entityID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, wrap(domain.ErrEntityNotFound)
		}
		return nil, wrap(fmt.Errorf("failed to get from redis: %w", err))
	}

	var state domain.EntityState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, wrap(fmt.Errorf("failed to unmarshal state: %w", err))
	}
	return &state, nil
}

// Query lists the entities of a type, ordered by id.
// Expired entities are pruned from the index lazily.
func (s *Store) Query(ctx context.Context, entityType string, filter domain.Filter) ([]*domain.EntityState, error) {
	wrap := func(err error) error {
		return domain.NewStorageError(domain.OpQuery, entityType, "", err)
	}
	indexKey := s.indexKey(entityType)

	// Lazy Cleanup: Remove expired ids from the index.
	now := float64(time.Now().Unix())
	if err := s.client.ZRemRangeByScore(ctx, indexKey, "-inf", fmt.Sprintf("%f", now)).Err(); err != nil {
		return nil, wrap(fmt.Errorf("failed to prune expired entities: %w", err))
	}

	ids, err := s.client.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, wrap(fmt.Errorf("failed to list entities: %w", err))
	}
	if len(ids) == 0 {
		return []*domain.EntityState{}, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(entityType, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, wrap(fmt.Errorf("failed to get from redis: %w", err))
	}

	matches := make([]*domain.EntityState, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // expired between ZRANGE and MGET
		}
		var state domain.EntityState
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			return nil, wrap(fmt.Errorf("failed to unmarshal state: %w", err))
		}
		if filter.Matches(&state) {
			matches = append(matches, &state)
		}
	}
	return domain.Page(matches, filter.Limit, filter.Offset), nil
}

// History returns the audit trail of an entity, newest first.
func (s *Store) History(ctx context.Context, entityType, entityID string, limit, offset int) ([]*domain.AuditEntry, error) {
	if offset < 0 {
		offset = 0
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(offset + limit - 1)
	}

	values, err := s.client.LRange(ctx, s.historyKey(entityType, entityID), int64(offset), stop).Result()
	if err != nil {
		return nil, domain.NewStorageError(domain.OpHistory, entityType, entityID, fmt.Errorf("failed to read history: %w", err))
	}

	entries := make([]*domain.AuditEntry, 0, len(values))
	for _, raw := range values {
		var entry domain.AuditEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, domain.NewStorageError(domain.OpHistory, entityType, entityID, fmt.Errorf("failed to unmarshal audit entry: %w", err))
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client so a Locker can share the connection.
func (s *Store) Client() *backend.Client {
	return s.client
}

// Prefix returns the key prefix.
func (s *Store) Prefix() string {
	return s.prefix
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
