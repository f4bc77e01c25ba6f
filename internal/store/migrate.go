package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/blackwell-systems/appregistry/internal/identity"
)

const schemaV1Staging = `
CREATE TABLE appinfos_v1 (
    _id INTEGER PRIMARY KEY AUTOINCREMENT,
    componentname TEXT NOT NULL,
    title TEXT,
    icon BLOB,
    launchcount INTEGER NOT NULL DEFAULT 0
);
`

type legacyRow struct {
	id    int64
	key   identity.Key
	title sql.NullString
	icon  []byte
	count int64
}

// migrateToV1 rebuilds a legacy launcher table. Identities are normalised,
// rows that do not parse are dropped, and rows that collapse onto the same
// identity are merged into the one with the lowest id with their launch
// counts summed. Callers hold s.mu.
func (s *Store) migrateToV1(ctx context.Context) error {
	cols, err := s.tableColumns(ctx, tableAppInfos)
	if err != nil {
		return err
	}
	if !cols[colID] || !cols[colIdentity] {
		return fmt.Errorf("legacy table %s lacks %s or %s", tableAppInfos, colID, colIdentity)
	}

	selectCols := []string{colID, colIdentity}
	for _, c := range []struct {
		name     string
		fallback string
	}{
		{colTitle, "NULL"},
		{colIcon, "NULL"},
		{colLaunchCount, "0"},
	} {
		if cols[c.name] {
			selectCols = append(selectCols, c.name)
		} else {
			selectCols = append(selectCols, c.fallback)
		}
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", strings.Join(selectCols, ", "), tableAppInfos, colID)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to read legacy rows: %w", err)
	}

	var (
		merged  []*legacyRow
		byKey   = make(map[identity.Key]*legacyRow)
		dropped int
	)
	for rows.Next() {
		var (
			id    int64
			name  sql.NullString
			title sql.NullString
			icon  []byte
			count sql.NullInt64
		)
		if err := rows.Scan(&id, &name, &title, &icon, &count); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan legacy row: %w", err)
		}

		key, err := identity.Parse(name.String)
		if !name.Valid || err != nil {
			dropped++
			s.logger.Warn("dropping legacy row with malformed identity",
				zap.Int64("id", id), zap.String("componentname", name.String))
			continue
		}

		n := count.Int64
		if n < 0 {
			n = 0
		}

		if existing, ok := byKey[key]; ok {
			existing.count += n
			if !existing.title.Valid || existing.title.String == "" {
				existing.title = title
			}
			if len(existing.icon) == 0 {
				existing.icon = icon
			}
			continue
		}
		row := &legacyRow{id: id, key: key, title: title, icon: icon, count: n}
		byKey[key] = row
		merged = append(merged, row)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to iterate legacy rows: %w", err)
	}
	rows.Close()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS appinfos_v1"); err != nil {
		return fmt.Errorf("failed to clear staging table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaV1Staging); err != nil {
		return fmt.Errorf("failed to create staging table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO appinfos_v1 (_id, componentname, title, icon, launchcount) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare migration insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range merged {
		if _, err := stmt.ExecContext(ctx, r.id, r.key.String(), r.title, nullableBlob(r.icon), r.count); err != nil {
			return fmt.Errorf("failed to copy row %d: %w", r.id, err)
		}
	}

	for _, q := range []string{
		"DROP INDEX IF EXISTS " + identityIndex,
		"DROP TABLE " + tableAppInfos,
		"ALTER TABLE appinfos_v1 RENAME TO " + tableAppInfos,
		"CREATE UNIQUE INDEX " + identityIndex + " ON " + tableAppInfos + "(" + colIdentity + ")",
	} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to swap migrated table: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	s.logger.Info("migrated legacy registry",
		zap.Int("kept", len(merged)), zap.Int("dropped", dropped))
	return nil
}

func (s *Store) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		cols[strings.ToLower(name)] = true
	}
	return cols, rows.Err()
}
