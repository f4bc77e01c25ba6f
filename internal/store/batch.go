package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/blackwell-systems/appregistry/internal/identity"
)

// PlanFunc computes the batch that brings the stored snapshot in line with
// the live state. It runs with the write lock held.
type PlanFunc func(stored []*Record) (Batch, error)

// ApplyBatch executes the batch in one transaction. On any failure the
// transaction is rolled back, nothing is published and the error is returned;
// storage failures match ErrStorage.
func (s *Store) ApplyBatch(ctx context.Context, batch Batch) (*ChangeRecord, error) {
	if batch.Empty() {
		return &ChangeRecord{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx = context.WithoutCancel(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin batch", err)
	}
	defer tx.Rollback()

	change, err := applyBatch(ctx, tx, batch)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit batch", err)
	}

	s.publish(change)
	return change, nil
}

// Sync loads the records of pkg (every record when pkg is empty), asks plan
// for a batch and applies it, all under one write lock and one transaction.
// No other writer can interleave between the snapshot and the commit.
func (s *Store) Sync(ctx context.Context, pkg string, plan PlanFunc) (*ChangeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx = context.WithoutCancel(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin sync", err)
	}
	defer tx.Rollback()

	var stored []*Record
	if pkg == "" {
		stored, err = listAll(ctx, tx)
	} else {
		stored, err = listByPackage(ctx, tx, pkg)
	}
	if err != nil {
		return nil, err
	}

	batch, err := plan(stored)
	if err != nil {
		return nil, err
	}
	if batch.Empty() {
		return &ChangeRecord{}, nil
	}

	change, err := applyBatch(ctx, tx, batch)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit sync", err)
	}

	s.publish(change)
	return change, nil
}

func applyBatch(ctx context.Context, tx *sql.Tx, batch Batch) (*ChangeRecord, error) {
	change := &ChangeRecord{}

	for _, id := range batch.RemovedIDs {
		var name string
		err := tx.QueryRowContext(ctx, "SELECT componentname FROM appinfos WHERE _id = ?", id).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, storageErr("remove", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM appinfos WHERE _id = ?", id); err != nil {
			return nil, storageErr("remove", err)
		}
		key, err := identity.Parse(name)
		if err != nil {
			return nil, storageErr("remove", fmt.Errorf("stored identity %q: %w", name, err))
		}
		change.RemovedIdentities = append(change.RemovedIdentities, key)
	}

	for _, u := range batch.Updated {
		result, err := tx.ExecContext(ctx,
			"UPDATE appinfos SET title = ?, icon = ? WHERE _id = ?",
			u.Title, nullableBlob(u.Icon), u.ID)
		if err != nil {
			return nil, storageErr("update", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return nil, storageErr("update", err)
		}
		if n > 0 {
			change.UpdatedIDs = append(change.UpdatedIDs, u.ID)
		}
	}

	for _, rec := range batch.Added {
		if err := rec.Identity.Validate(); err != nil {
			return nil, fmt.Errorf("add %s: %w", rec.Identity, err)
		}
		id, err := insert(ctx, tx, rec)
		if errors.Is(err, ErrDuplicateIdentity) && batch.SkipDuplicates {
			continue
		}
		if err != nil {
			return nil, err
		}
		change.AddedIDs = append(change.AddedIDs, id)
	}

	sortKeys(change.RemovedIdentities)
	return change, nil
}
