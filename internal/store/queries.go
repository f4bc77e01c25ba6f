package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/blackwell-systems/appregistry/internal/identity"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Lookup returns the record registered under key.
func (s *Store) Lookup(ctx context.Context, key identity.Key) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookup(ctx, s.db, key)
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id int64) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, recordSelectSQL+" WHERE _id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("id %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get", err)
	}
	return rec, nil
}

// Insert registers a new identity with a zero launch count and returns its id.
func (s *Store) Insert(ctx context.Context, key identity.Key, title string, icon []byte) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := insert(ctx, s.db, NewRecord{Identity: key, Title: title, Icon: icon})
	if err != nil {
		return 0, err
	}
	s.publish(&ChangeRecord{AddedIDs: []int64{id}})
	return id, nil
}

// ListByPackage returns every record whose package segment equals pkg,
// ordered by id.
func (s *Store) ListByPackage(ctx context.Context, pkg string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listByPackage(ctx, s.db, pkg)
}

// ListAll returns every record ordered by id.
func (s *Store) ListAll(ctx context.Context) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAll(ctx, s.db)
}

// Count returns the number of registered identities.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM appinfos").Scan(&n); err != nil {
		return 0, storageErr("count", err)
	}
	return n, nil
}

// LaunchCount returns the launch count stored for key.
func (s *Store) LaunchCount(ctx context.Context, key identity.Key) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT launchcount FROM appinfos WHERE componentname = ?", key.String()).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return 0, storageErr("launch count", err)
	}
	return n, nil
}

// IncrementLaunchCount adds one launch to the record with the given id.
// A record that has vanished in the meantime is silently ignored.
func (s *Store) IncrementLaunchCount(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		"UPDATE appinfos SET launchcount = launchcount + 1 WHERE _id = ?", id)
	if err != nil {
		return storageErr("increment launch count", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storageErr("increment launch count", err)
	}
	if n == 0 {
		return nil
	}
	s.publish(&ChangeRecord{UpdatedIDs: []int64{id}})
	return nil
}

// DeleteByPackage removes every record of pkg in one transaction and
// returns the removed rows. A ChangeRecord naming the package is published
// even when nothing was stored for it.
func (s *Store) DeleteByPackage(ctx context.Context, pkg string) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx = context.WithoutCancel(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin delete", err)
	}
	defer tx.Rollback()

	removed, err := listByPackage(ctx, tx, pkg)
	if err != nil {
		return nil, err
	}

	lo, hi := packageRange(pkg)
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM appinfos WHERE componentname >= ? AND componentname < ?", lo, hi); err != nil {
		return nil, storageErr("delete package", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit delete", err)
	}

	s.publish(&ChangeRecord{RemovedPackage: pkg})
	return removed, nil
}

func lookup(ctx context.Context, q querier, key identity.Key) (*Record, error) {
	row := q.QueryRowContext(ctx, recordSelectSQL+" WHERE componentname = ?", key.String())
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("lookup", err)
	}
	return rec, nil
}

func insert(ctx context.Context, q querier, rec NewRecord) (int64, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO appinfos (componentname, title, icon, launchcount)
		 VALUES (?, ?, ?, 0)
		 ON CONFLICT(componentname) DO NOTHING`,
		rec.Identity.String(), rec.Title, nullableBlob(rec.Icon))
	if err != nil {
		return 0, storageErr("insert", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, storageErr("insert", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%s: %w", rec.Identity, ErrDuplicateIdentity)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, storageErr("insert", err)
	}
	return id, nil
}

func listByPackage(ctx context.Context, q querier, pkg string) ([]*Record, error) {
	lo, hi := packageRange(pkg)
	rows, err := q.QueryContext(ctx,
		recordSelectSQL+" WHERE componentname >= ? AND componentname < ? ORDER BY _id", lo, hi)
	if err != nil {
		return nil, storageErr("list package", err)
	}
	return collectRecords(rows, "list package")
}

func listAll(ctx context.Context, q querier) ([]*Record, error) {
	rows, err := q.QueryContext(ctx, recordSelectSQL+" ORDER BY _id")
	if err != nil {
		return nil, storageErr("list all", err)
	}
	return collectRecords(rows, "list all")
}

// packageRange returns the half-open identity range covering exactly the
// identities of pkg. '0' sorts directly after '/', so "com.a" never matches
// "com.ab/...".
func packageRange(pkg string) (lo, hi string) {
	return identity.PackagePrefix(pkg), pkg + "0"
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var (
		rec   Record
		name  string
		title sql.NullString
	)
	if err := sc.Scan(&rec.ID, &name, &title, &rec.Icon, &rec.LaunchCount); err != nil {
		return nil, err
	}
	key, err := identity.Parse(name)
	if err != nil {
		return nil, fmt.Errorf("stored identity %q: %w", name, err)
	}
	rec.Identity = key
	rec.Title = title.String
	if len(rec.Icon) == 0 {
		rec.Icon = nil
	}
	return &rec, nil
}

func collectRecords(rows *sql.Rows, op string) ([]*Record, error) {
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return records, nil
}

// nullableBlob stores an absent icon as NULL rather than an empty blob.
func nullableBlob(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
