package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aretw0/espalier/pkg/domain"
)

// Store implements ports.StateStore on SQLite.
//
// It expects an *sql.DB that uses a SQLite driver. Open returns one configured
// for the pure-Go "modernc.org/sqlite" driver.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database file at path and initializes the schema.
// The pool is limited to one connection: SQLite allows a single writer and
// ":memory:" databases are private to their connection.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}

	store, err := NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewStore initializes the required schema in the given database and returns a new Store.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS entities (
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			state_name TEXT NOT NULL,
			context TEXT NOT NULL,
			version INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (entity_type, entity_id)
		);
		CREATE INDEX IF NOT EXISTS entities_state ON entities (entity_type, state_name);
		CREATE TABLE IF NOT EXISTS audit_entries (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			event TEXT NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT,
			actor TEXT,
			data TEXT,
			result TEXT NOT NULL,
			error TEXT,
			duration_ns INTEGER NOT NULL,
			timestamp TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS audit_entity ON audit_entries (entity_type, entity_id, seq);`,
	)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

// Save upserts the state and appends the audit entry in one transaction.
func (s *Store) Save(ctx context.Context, entityType, entityID string, state *domain.EntityState, audit *domain.AuditEntry) error {
	wrap := func(err error) error {
		return domain.NewStorageError(domain.OpSave, entityType, entityID, err)
	}

	stateCtx, err := json.Marshal(state.Context)
	if err != nil {
		return wrap(fmt.Errorf("failed to marshal context: %w", err))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(err)
	}
	defer func() { _ = tx.Rollback() }()

	var stored int64
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM entities WHERE entity_type = ? AND entity_id = ?`,
		entityType, entityID,
	).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return wrap(err)
	}
	if stored != state.Version-1 {
		return wrap(domain.ErrVersionConflict)
	}

	var res sql.Result
	if stored == 0 {
		res, err = tx.ExecContext(ctx, `
			INSERT INTO entities (entity_type, entity_id, state_name, context, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			entityType, entityID, state.StateName, string(stateCtx), state.Version,
			formatTime(state.CreatedAt), formatTime(state.UpdatedAt),
		)
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE entities
			SET state_name = ?, context = ?, version = ?, created_at = ?, updated_at = ?
			WHERE entity_type = ? AND entity_id = ? AND version = ?`,
			state.StateName, string(stateCtx), state.Version,
			formatTime(state.CreatedAt), formatTime(state.UpdatedAt),
			entityType, entityID, stored,
		)
	}
	if err != nil {
		return wrap(err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return wrap(err)
	} else if affected != 1 {
		return wrap(domain.ErrVersionConflict)
	}

	if audit != nil {
		var data sql.NullString
		if len(audit.Data) > 0 {
			raw, err := json.Marshal(audit.Data)
			if err != nil {
				return wrap(fmt.Errorf("failed to marshal audit data: %w", err))
			}
			data = nullString(string(raw))
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO audit_entries (id, entity_type, entity_id, event, from_state, to_state, actor, data, result, error, duration_ns, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			audit.ID, entityType, entityID, audit.Event, audit.From,
			nullString(audit.To), nullString(audit.Actor), data,
			string(audit.Result), nullString(audit.Error),
			int64(audit.Duration), formatTime(audit.Timestamp),
		)
		if err != nil {
			return wrap(err)
		}
	}

	return wrap(tx.Commit())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner, entityType string) (*domain.EntityState, error) {
	var (
		state              domain.EntityState
		rawCtx             string
		createdAt, updated string
	)
	if err := row.Scan(&state.ID, &state.StateName, &rawCtx, &state.Version, &createdAt, &updated); err != nil {
		return nil, err
	}
	state.EntityType = entityType

	if err := json.Unmarshal([]byte(rawCtx), &state.Context); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context: %w", err)
	}
	var err error
	if state.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if state.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &state, nil
}

// Load retrieves the entity state.
func (s *Store) Load(ctx context.Context, entityType, entityID string) (*domain.EntityState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT entity_id, state_name, context, version, created_at, updated_at
		FROM entities
		WHERE entity_type = ? AND entity_id = ?`,
		entityType, entityID,
	)

	state, err := scanState(row, entityType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewStorageError(domain.OpLoad, entityType, entityID, domain.ErrEntityNotFound)
	}
	if err != nil {
		return nil, domain.NewStorageError(domain.OpLoad, entityType, entityID, err)
	}
	return state, nil
}

// limitOffset maps the domain paging convention onto SQLite's, where LIMIT -1 is unlimited.
func limitOffset(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Query lists the entities of a type, ordered by id.
func (s *Store) Query(ctx context.Context, entityType string, filter domain.Filter) ([]*domain.EntityState, error) {
	wrap := func(err error) error {
		return domain.NewStorageError(domain.OpQuery, entityType, "", err)
	}
	limit, offset := limitOffset(filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, state_name, context, version, created_at, updated_at
		FROM entities
		WHERE entity_type = ? AND (? = '' OR state_name = ?)
		ORDER BY entity_id
		LIMIT ? OFFSET ?`,
		entityType, filter.State, filter.State, limit, offset,
	)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	states := []*domain.EntityState{}
	for rows.Next() {
		state, err := scanState(rows, entityType)
		if err != nil {
			return nil, wrap(err)
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err)
	}
	return states, nil
}

// History returns the audit trail of an entity, newest first.
func (s *Store) History(ctx context.Context, entityType, entityID string, limit, offset int) ([]*domain.AuditEntry, error) {
	wrap := func(err error) error {
		return domain.NewStorageError(domain.OpHistory, entityType, entityID, err)
	}
	limit, offset = limitOffset(limit, offset)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event, from_state, to_state, actor, data, result, error, duration_ns, timestamp
		FROM audit_entries
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY seq DESC
		LIMIT ? OFFSET ?`,
		entityType, entityID, limit, offset,
	)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	entries := []*domain.AuditEntry{}
	for rows.Next() {
		var (
			entry                    domain.AuditEntry
			to, actor, data, failure sql.NullString
			result, timestamp        string
			durationNanos            int64
		)
		if err := rows.Scan(&entry.ID, &entry.Event, &entry.From, &to, &actor, &data, &result, &failure, &durationNanos, &timestamp); err != nil {
			return nil, wrap(err)
		}

		entry.EntityType = entityType
		entry.EntityID = entityID
		entry.To = to.String
		entry.Actor = actor.String
		entry.Error = failure.String
		entry.Result = domain.AuditResult(result)
		entry.Duration = time.Duration(durationNanos)
		if data.Valid {
			if err := json.Unmarshal([]byte(data.String), &entry.Data); err != nil {
				return nil, wrap(fmt.Errorf("failed to unmarshal audit data: %w", err))
			}
		}
		if entry.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, wrap(err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err)
	}
	return entries, nil
}
