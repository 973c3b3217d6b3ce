package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/edge-agent/internal/infrastructure/database"
)

// Store persists device credentials in SQLite.
//
// Rows are append-only; the most recent row is the active set. The
// device_credentials table is created by the embedded migrations.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Store struct {
	db       *database.DB
	certAuth func() bool
	now      func() time.Time

	mu       sync.Mutex
	follow   Source
	lastSeen *Credentials
}

// NewStore returns a Store over a migrated database.
// certAuth reports whether mutual TLS is currently active; nil means never.
func NewStore(db *database.DB, certAuth func() bool) *Store {
	return &Store{
		db:       db,
		certAuth: certAuth,
		now:      time.Now,
	}
}

// Credentials returns the most recently saved credentials, or nil in
// mutual-TLS mode.
//
// Returns:
//   - *Credentials: The active credentials
//   - error: ErrNotFound if nothing has been saved, or a query error
func (s *Store) Credentials(ctx context.Context) (*Credentials, error) {
	if s.certAuth != nil && s.certAuth() {
		return nil, nil
	}
	if err := s.importFollowed(ctx); err != nil {
		return nil, err
	}

	var c Credentials
	err := s.db.QueryRowContext(ctx, `
		SELECT tenant, username, password
		FROM device_credentials
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&c.Tenant, &c.Username, &c.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	return &c, nil
}

// Save records a new credential set, which becomes active immediately.
func (s *Store) Save(ctx context.Context, c Credentials) error {
	if c.Username == "" {
		return fmt.Errorf("saving credentials: username is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO device_credentials (tenant, username, password, updated_at)
		VALUES (?, ?, ?, ?)
	`, c.Tenant, c.Username, c.Password, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}
	return nil
}

// Sync saves c when the store is empty or c differs from the active set.
// Credentials without a username are ignored.
//
// Returns:
//   - bool: true if c was written
//   - error: If the check or the write fails
func (s *Store) Sync(ctx context.Context, c Credentials) (bool, error) {
	if c.Username == "" {
		return false, nil
	}

	var active Credentials
	err := s.db.QueryRowContext(ctx, `
		SELECT tenant, username, password
		FROM device_credentials
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&active.Tenant, &active.Username, &active.Password)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, fmt.Errorf("querying credentials: %w", err)
	case active == c:
		return false, nil
	}

	if err := s.Save(ctx, c); err != nil {
		return false, err
	}
	return true, nil
}

// Follow makes the store import credentials from src whenever the value
// src returns changes, for example after the config file is edited.
// A set saved directly with Save stays active until src changes again.
func (s *Store) Follow(src Source) {
	s.mu.Lock()
	s.follow = src
	s.lastSeen = nil
	s.mu.Unlock()
}

func (s *Store) importFollowed(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.follow == nil {
		return nil
	}

	c, err := s.follow.Credentials(ctx)
	if err != nil {
		return fmt.Errorf("reading followed credentials: %w", err)
	}
	if c == nil || (s.lastSeen != nil && *s.lastSeen == *c) {
		return nil
	}
	if _, err := s.Sync(ctx, *c); err != nil {
		return err
	}
	seen := *c
	s.lastSeen = &seen
	return nil
}
