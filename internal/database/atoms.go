package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/atomizerhq/atomizer/internal/apptype"
	"github.com/atomizerhq/atomizer/internal/metrics"
)

const atomColumns = `id, title, main_content, supporting_quote, supporting_info,
        source_id, COALESCE(vector_id, ''), created_at, updated_at`

// CreateAtom persists an atom. MainContent and SourceID are mandatory and an
// atom belongs to exactly one source.
func (dm *DBManager) CreateAtom(ctx context.Context, atom *apptype.Atom) error {
	done := metrics.TimeOp("db_create_atom")
	success := false
	defer func() { done(success) }()

	if strings.TrimSpace(atom.MainContent) == "" {
		return &apptype.ValidationError{Missing: []string{"mainContent"}}
	}
	if strings.TrimSpace(atom.SourceID) == "" {
		return &apptype.ValidationError{Missing: []string{"source"}}
	}
	if atom.ID == "" {
		atom.ID = uuid.NewString()
	}

	supportingInfo, err := marshalList(atom.SupportingInfo)
	if err != nil {
		return err
	}

	ts := now()
	atom.CreatedAt = ts
	atom.UpdatedAt = ts

	_, err = dm.db.ExecContext(ctx, `INSERT INTO atoms
        (id, title, main_content, supporting_quote, supporting_info, source_id, vector_id, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		atom.ID, atom.Title, atom.MainContent, atom.SupportingQuote, supportingInfo,
		atom.SourceID, nullString(atom.VectorID), ts, ts)
	if err != nil {
		return fmt.Errorf("failed to insert atom: %w", err)
	}
	success = true
	return nil
}

// GetAtom retrieves a single atom by id.
func (dm *DBManager) GetAtom(ctx context.Context, id string) (*apptype.Atom, error) {
	row := dm.db.QueryRowContext(ctx,
		"SELECT "+atomColumns+" FROM atoms WHERE id = ?", id)
	atom, err := scanAtom(row)
	if err == sql.ErrNoRows {
		return nil, apptype.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan atom: %w", err)
	}
	return atom, nil
}

// CountAtoms returns the total number of atoms.
func (dm *DBManager) CountAtoms(ctx context.Context) (int64, error) {
	var total int64
	if err := dm.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM atoms").Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count atoms: %w", err)
	}
	return total, nil
}

// AtomAt returns the atom at the given offset in stable id order. Random
// pair selection draws a uniform offset against CountAtoms.
func (dm *DBManager) AtomAt(ctx context.Context, offset int64) (*apptype.Atom, error) {
	row := dm.db.QueryRowContext(ctx,
		"SELECT "+atomColumns+" FROM atoms ORDER BY id LIMIT 1 OFFSET ?", offset)
	atom, err := scanAtom(row)
	if err == sql.ErrNoRows {
		return nil, apptype.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan atom: %w", err)
	}
	return atom, nil
}

// AtomAtExcluding returns the atom at the given offset over the atom set
// with one id excluded.
func (dm *DBManager) AtomAtExcluding(ctx context.Context, offset int64, excludeID string) (*apptype.Atom, error) {
	row := dm.db.QueryRowContext(ctx,
		"SELECT "+atomColumns+" FROM atoms WHERE id != ? ORDER BY id LIMIT 1 OFFSET ?",
		excludeID, offset)
	atom, err := scanAtom(row)
	if err == sql.ErrNoRows {
		return nil, apptype.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan atom: %w", err)
	}
	return atom, nil
}

// ListAtoms returns a page of atoms, newest first.
func (dm *DBManager) ListAtoms(ctx context.Context, limit, page int) (*apptype.Page[apptype.Atom], error) {
	total, err := dm.CountAtoms(ctx)
	if err != nil {
		return nil, err
	}
	l, p, offset, totalPages := pageBounds(limit, page, total)

	rows, err := dm.db.QueryContext(ctx,
		"SELECT "+atomColumns+" FROM atoms ORDER BY created_at DESC LIMIT ? OFFSET ?", l, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query atoms: %w", err)
	}
	defer rows.Close()

	result := &apptype.Page[apptype.Atom]{
		Docs:       []apptype.Atom{},
		TotalDocs:  total,
		Page:       p,
		TotalPages: totalPages,
	}
	for rows.Next() {
		atom, err := scanAtom(rows)
		if err != nil {
			log.Printf("Warning: failed to scan atom row: %v", err)
			continue
		}
		result.Docs = append(result.Docs, *atom)
	}
	return result, rows.Err()
}

// AtomsBySource returns every atom extracted from one source.
func (dm *DBManager) AtomsBySource(ctx context.Context, sourceID string) ([]apptype.Atom, error) {
	rows, err := dm.db.QueryContext(ctx,
		"SELECT "+atomColumns+" FROM atoms WHERE source_id = ? ORDER BY created_at ASC", sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query atoms by source: %w", err)
	}
	defer rows.Close()

	atoms := []apptype.Atom{}
	for rows.Next() {
		atom, err := scanAtom(rows)
		if err != nil {
			log.Printf("Warning: failed to scan atom row: %v", err)
			continue
		}
		atoms = append(atoms, *atom)
	}
	return atoms, rows.Err()
}

// SetAtomVectorID patches the vector reference after a successful embed.
func (dm *DBManager) SetAtomVectorID(ctx context.Context, id, vectorID string) error {
	_, err := dm.db.ExecContext(ctx,
		"UPDATE atoms SET vector_id = ?, updated_at = ? WHERE id = ?", vectorID, now(), id)
	if err != nil {
		return fmt.Errorf("failed to set atom vector id: %w", err)
	}
	return nil
}

// DeleteAtom removes an atom row and reports its vector id so the caller
// can run the best-effort vector delete. Synthesized atoms referencing the
// atom are left alone (no cascade).
func (dm *DBManager) DeleteAtom(ctx context.Context, id string) (vectorID string, err error) {
	done := metrics.TimeOp("db_delete_atom")
	success := false
	defer func() { done(success) }()

	var vid sql.NullString
	err = dm.db.QueryRowContext(ctx, "SELECT vector_id FROM atoms WHERE id = ?", id).Scan(&vid)
	if err == sql.ErrNoRows {
		return "", apptype.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to check atom existence: %w", err)
	}

	if _, err := dm.db.ExecContext(ctx, "DELETE FROM atoms WHERE id = ?", id); err != nil {
		return "", fmt.Errorf("failed to delete atom: %w", err)
	}
	success = true
	return vid.String, nil
}

// AtomsMissingVector returns atoms whose embed has not succeeded yet and
// that still have retry budget.
func (dm *DBManager) AtomsMissingVector(ctx context.Context, maxAttempts, limit int) ([]apptype.Atom, error) {
	rows, err := dm.db.QueryContext(ctx,
		"SELECT "+atomColumns+` FROM atoms WHERE vector_id IS NULL AND embed_attempts < ?
        ORDER BY created_at ASC LIMIT ?`, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unembedded atoms: %w", err)
	}
	defer rows.Close()

	var out []apptype.Atom
	for rows.Next() {
		atom, err := scanAtom(rows)
		if err != nil {
			log.Printf("Warning: failed to scan atom row: %v", err)
			continue
		}
		out = append(out, *atom)
	}
	return out, rows.Err()
}

// BumpAtomEmbedAttempts records a failed embed attempt.
func (dm *DBManager) BumpAtomEmbedAttempts(ctx context.Context, id string) error {
	_, err := dm.db.ExecContext(ctx,
		"UPDATE atoms SET embed_attempts = embed_attempts + 1 WHERE id = ?", id)
	return err
}

func scanAtom(row rowScanner) (*apptype.Atom, error) {
	atom := &apptype.Atom{}
	var supportingInfo string
	err := row.Scan(&atom.ID, &atom.Title, &atom.MainContent, &atom.SupportingQuote,
		&supportingInfo, &atom.SourceID, &atom.VectorID, &atom.CreatedAt, &atom.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalList(supportingInfo, &atom.SupportingInfo); err != nil {
		return nil, err
	}
	return atom, nil
}
