package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/smartcoat/coat"
	"github.com/teranos/smartcoat/errors"
)

// ChangeoverSet is a named changeover table with its chemical label set
type ChangeoverSet struct {
	ID        string                `json:"id"`
	Name      string                `json:"name"`
	Table     *coat.ChangeoverTable `json:"-"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// ChangeoverSetSummary is a listing row without the table payload
type ChangeoverSetSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Chemicals []string  `json:"chemicals"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SaveChangeoverSet creates or replaces the named changeover table. Defined
// pairs and forbidden marks are both persisted, so a loaded table costs and
// refuses exactly the transitions the saved one did.
func (s *Store) SaveChangeoverSet(ctx context.Context, name string, table *coat.ChangeoverTable) (*ChangeoverSet, error) {
	if name == "" {
		return nil, errors.Mark(errors.New("changeover set name must not be empty"), errors.ErrInvalidRequest)
	}
	if table == nil {
		return nil, errors.Mark(errors.Newf("changeover set %q has no table", name), errors.ErrInvalidRequest)
	}

	chemicals, err := json.Marshal(table.Chemicals())
	if err != nil {
		return nil, errors.Wrapf(err, "encode chemicals for changeover set %q", name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin save changeover set")
	}
	defer tx.Rollback()

	now := time.Now()
	set := &ChangeoverSet{Name: name, Table: table, CreatedAt: now, UpdatedAt: now}

	var existingID, createdAt string
	err = tx.QueryRowContext(ctx, "SELECT id, created_at FROM changeover_sets WHERE name = ?", name).
		Scan(&existingID, &createdAt)
	switch {
	case err == sql.ErrNoRows:
		set.ID = uuid.New().String()
		_, err = tx.ExecContext(ctx,
			"INSERT INTO changeover_sets (id, name, chemicals, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			set.ID, name, string(chemicals), timestamp(now), timestamp(now))
		if err != nil {
			return nil, errors.Wrapf(err, "insert changeover set %q", name)
		}
	case err != nil:
		return nil, errors.Wrapf(err, "look up changeover set %q", name)
	default:
		set.ID = existingID
		if set.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, errors.Wrapf(err, "parse created_at for changeover set %q", name)
		}
		if _, err = tx.ExecContext(ctx,
			"UPDATE changeover_sets SET chemicals = ?, updated_at = ? WHERE id = ?",
			string(chemicals), timestamp(now), set.ID); err != nil {
			return nil, errors.Wrapf(err, "update changeover set %q", name)
		}
		if _, err = tx.ExecContext(ctx, "DELETE FROM changeover_entries WHERE set_id = ?", set.ID); err != nil {
			return nil, errors.Wrapf(err, "clear entries for changeover set %q", name)
		}
	}

	for _, entry := range table.Entries() {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO changeover_entries (set_id, from_chemical, to_chemical, minutes, forbidden) VALUES (?, ?, ?, ?, 0)",
			set.ID, entry.From, entry.To, entry.Minutes)
		if err != nil {
			return nil, errors.Wrapf(err, "insert entry %s->%s for changeover set %q", entry.From, entry.To, name)
		}
	}
	for _, tr := range table.ForbiddenTransitions() {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO changeover_entries (set_id, from_chemical, to_chemical, minutes, forbidden) VALUES (?, ?, ?, 0, 1)",
			set.ID, tr.From, tr.To)
		if err != nil {
			return nil, errors.Wrapf(err, "insert forbidden %s->%s for changeover set %q", tr.From, tr.To, name)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrapf(err, "commit changeover set %q", name)
	}
	return set, nil
}

// GetChangeoverSet retrieves a changeover table by name
func (s *Store) GetChangeoverSet(ctx context.Context, name string) (*ChangeoverSet, error) {
	var set ChangeoverSet
	var chemicalsJSON, createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, chemicals, created_at, updated_at FROM changeover_sets WHERE name = ?", name).
		Scan(&set.ID, &set.Name, &chemicalsJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.Mark(errors.Newf("changeover set %q not found", name), errors.ErrNotFound)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get changeover set %q", name)
	}
	if set.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, errors.Wrapf(err, "parse created_at for changeover set %q", name)
	}
	if set.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, errors.Wrapf(err, "parse updated_at for changeover set %q", name)
	}

	var chemicals []string
	if err := json.Unmarshal([]byte(chemicalsJSON), &chemicals); err != nil {
		return nil, errors.Wrapf(err, "decode chemicals for changeover set %q", name)
	}
	table, err := coat.NewChangeoverTable(chemicals)
	if err != nil {
		return nil, errors.Wrapf(err, "rebuild changeover set %q", name)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT from_chemical, to_chemical, minutes, forbidden FROM changeover_entries WHERE set_id = ?",
		set.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "list entries for changeover set %q", name)
	}
	defer rows.Close()

	for rows.Next() {
		var from, to string
		var minutes, forbidden int
		if err := rows.Scan(&from, &to, &minutes, &forbidden); err != nil {
			return nil, errors.Wrapf(err, "scan entry for changeover set %q", name)
		}
		if forbidden != 0 {
			err = table.Forbid(from, to)
		} else {
			err = table.SetMinutes(from, to, minutes)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "rebuild changeover set %q", name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "iterate entries for changeover set %q", name)
	}

	set.Table = table
	return &set, nil
}

// ListChangeoverSets returns summaries of all stored tables, newest first
func (s *Store) ListChangeoverSets(ctx context.Context) ([]ChangeoverSetSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, chemicals, created_at, updated_at FROM changeover_sets ORDER BY updated_at DESC")
	if err != nil {
		return nil, errors.Wrap(err, "list changeover sets")
	}
	defer rows.Close()

	var sets []ChangeoverSetSummary
	for rows.Next() {
		var sum ChangeoverSetSummary
		var chemicalsJSON, createdAt, updatedAt string
		if err := rows.Scan(&sum.ID, &sum.Name, &chemicalsJSON, &createdAt, &updatedAt); err != nil {
			return nil, errors.Wrap(err, "scan changeover set summary")
		}
		if err := json.Unmarshal([]byte(chemicalsJSON), &sum.Chemicals); err != nil {
			return nil, errors.Wrapf(err, "decode chemicals for changeover set %q", sum.Name)
		}
		if sum.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, errors.Wrapf(err, "parse created_at for changeover set %q", sum.Name)
		}
		if sum.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
			return nil, errors.Wrapf(err, "parse updated_at for changeover set %q", sum.Name)
		}
		sets = append(sets, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate changeover sets")
	}
	return sets, nil
}

// DeleteChangeoverSet removes the named table and its entries
func (s *Store) DeleteChangeoverSet(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM changeover_sets WHERE name = ?", name)
	if err != nil {
		return errors.Wrapf(err, "delete changeover set %q", name)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "delete changeover set %q", name)
	}
	if affected == 0 {
		return errors.Mark(errors.Newf("changeover set %q not found", name), errors.ErrNotFound)
	}
	return nil
}
