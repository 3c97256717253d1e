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

const synthColumns = `id, title, main_content, supporting_info, theory_fiction,
        parent_atom_a, parent_atom_b, method_id, COALESCE(vector_id, ''),
        posted, twitter_url, bsky_url, created_at, updated_at`

// CreateSynthesizedAtom promotes an in-memory candidate to a persisted row.
// Both parent atoms are mandatory.
func (dm *DBManager) CreateSynthesizedAtom(ctx context.Context, sa *apptype.SynthesizedAtom) error {
	done := metrics.TimeOp("db_create_synthesized_atom")
	success := false
	defer func() { done(success) }()

	if strings.TrimSpace(sa.ParentAtomA) == "" || strings.TrimSpace(sa.ParentAtomB) == "" {
		return &apptype.ValidationError{Missing: []string{"parentAtoms"}}
	}
	if sa.ID == "" {
		sa.ID = uuid.NewString()
	}

	supportingInfo, err := marshalList(sa.SupportingInfo)
	if err != nil {
		return err
	}

	ts := now()
	sa.CreatedAt = ts
	sa.UpdatedAt = ts

	_, err = dm.db.ExecContext(ctx, `INSERT INTO synthesized_atoms
        (id, title, main_content, supporting_info, theory_fiction,
         parent_atom_a, parent_atom_b, method_id, vector_id, posted,
         twitter_url, bsky_url, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sa.ID, sa.Title, sa.MainContent, supportingInfo, sa.TheoryFiction,
		sa.ParentAtomA, sa.ParentAtomB, sa.MethodID, nullString(sa.VectorID),
		boolToInt(sa.Posted), sa.TwitterURL, sa.BskyURL, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to insert synthesized atom: %w", err)
	}
	success = true
	return nil
}

// GetSynthesizedAtom retrieves a synthesized atom by id.
func (dm *DBManager) GetSynthesizedAtom(ctx context.Context, id string) (*apptype.SynthesizedAtom, error) {
	row := dm.db.QueryRowContext(ctx,
		"SELECT "+synthColumns+" FROM synthesized_atoms WHERE id = ?", id)
	sa, err := scanSynthesizedAtom(row)
	if err == sql.ErrNoRows {
		return nil, apptype.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan synthesized atom: %w", err)
	}
	return sa, nil
}

// ListSynthesizedAtoms returns a page of synthesized atoms, newest first.
func (dm *DBManager) ListSynthesizedAtoms(ctx context.Context, limit, page int) (*apptype.Page[apptype.SynthesizedAtom], error) {
	var total int64
	if err := dm.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM synthesized_atoms").Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count synthesized atoms: %w", err)
	}
	l, p, offset, totalPages := pageBounds(limit, page, total)

	rows, err := dm.db.QueryContext(ctx,
		"SELECT "+synthColumns+" FROM synthesized_atoms ORDER BY created_at DESC LIMIT ? OFFSET ?", l, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query synthesized atoms: %w", err)
	}
	defer rows.Close()

	result := &apptype.Page[apptype.SynthesizedAtom]{
		Docs:       []apptype.SynthesizedAtom{},
		TotalDocs:  total,
		Page:       p,
		TotalPages: totalPages,
	}
	for rows.Next() {
		sa, err := scanSynthesizedAtom(rows)
		if err != nil {
			log.Printf("Warning: failed to scan synthesized atom row: %v", err)
			continue
		}
		result.Docs = append(result.Docs, *sa)
	}
	return result, rows.Err()
}

// SetSynthesizedAtomVectorID patches the vector reference after a
// successful embed.
func (dm *DBManager) SetSynthesizedAtomVectorID(ctx context.Context, id, vectorID string) error {
	_, err := dm.db.ExecContext(ctx,
		"UPDATE synthesized_atoms SET vector_id = ?, updated_at = ? WHERE id = ?", vectorID, now(), id)
	if err != nil {
		return fmt.Errorf("failed to set synthesized atom vector id: %w", err)
	}
	return nil
}

// MarkSynthesizedAtomPosted records platform URLs after a publish.
func (dm *DBManager) MarkSynthesizedAtomPosted(ctx context.Context, id, twitterURL, bskyURL string) error {
	_, err := dm.db.ExecContext(ctx, `UPDATE synthesized_atoms
        SET posted = 1, twitter_url = ?, bsky_url = ?, updated_at = ? WHERE id = ?`,
		twitterURL, bskyURL, now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark synthesized atom posted: %w", err)
	}
	return nil
}

// SynthesizedAtomsMissingVector returns rows whose embed has not succeeded
// yet and that still have retry budget.
func (dm *DBManager) SynthesizedAtomsMissingVector(ctx context.Context, maxAttempts, limit int) ([]apptype.SynthesizedAtom, error) {
	rows, err := dm.db.QueryContext(ctx,
		"SELECT "+synthColumns+` FROM synthesized_atoms WHERE vector_id IS NULL AND embed_attempts < ?
        ORDER BY created_at ASC LIMIT ?`, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unembedded synthesized atoms: %w", err)
	}
	defer rows.Close()

	var out []apptype.SynthesizedAtom
	for rows.Next() {
		sa, err := scanSynthesizedAtom(rows)
		if err != nil {
			log.Printf("Warning: failed to scan synthesized atom row: %v", err)
			continue
		}
		out = append(out, *sa)
	}
	return out, rows.Err()
}

// BumpSynthesizedAtomEmbedAttempts records a failed embed attempt.
func (dm *DBManager) BumpSynthesizedAtomEmbedAttempts(ctx context.Context, id string) error {
	_, err := dm.db.ExecContext(ctx,
		"UPDATE synthesized_atoms SET embed_attempts = embed_attempts + 1 WHERE id = ?", id)
	return err
}

// SeedSynthesisMethods inserts any methods not already present. Existing
// rows are left untouched; methods are read-only at runtime.
func (dm *DBManager) SeedSynthesisMethods(ctx context.Context, methods []apptype.SynthesisMethod) error {
	tx, err := dm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range methods {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO synthesis_methods (id, title, description, method_key)
            VALUES (?, ?, ?, ?) ON CONFLICT(method_key) DO NOTHING`,
			m.ID, m.Title, m.Description, m.MethodKey)
		if err != nil {
			return fmt.Errorf("failed to seed method %q: %w", m.MethodKey, err)
		}
	}
	return tx.Commit()
}

// GetSynthesisMethod retrieves a method by id.
func (dm *DBManager) GetSynthesisMethod(ctx context.Context, id string) (*apptype.SynthesisMethod, error) {
	m := &apptype.SynthesisMethod{}
	err := dm.db.QueryRowContext(ctx,
		"SELECT id, title, description, method_key FROM synthesis_methods WHERE id = ?", id).
		Scan(&m.ID, &m.Title, &m.Description, &m.MethodKey)
	if err == sql.ErrNoRows {
		return nil, apptype.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan synthesis method: %w", err)
	}
	return m, nil
}

// GetSynthesisMethodByKey retrieves a method by its registry key.
func (dm *DBManager) GetSynthesisMethodByKey(ctx context.Context, key string) (*apptype.SynthesisMethod, error) {
	m := &apptype.SynthesisMethod{}
	err := dm.db.QueryRowContext(ctx,
		"SELECT id, title, description, method_key FROM synthesis_methods WHERE method_key = ?", key).
		Scan(&m.ID, &m.Title, &m.Description, &m.MethodKey)
	if err == sql.ErrNoRows {
		return nil, apptype.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan synthesis method: %w", err)
	}
	return m, nil
}

// ListSynthesisMethods returns all seeded methods.
func (dm *DBManager) ListSynthesisMethods(ctx context.Context) ([]apptype.SynthesisMethod, error) {
	rows, err := dm.db.QueryContext(ctx,
		"SELECT id, title, description, method_key FROM synthesis_methods ORDER BY title")
	if err != nil {
		return nil, fmt.Errorf("failed to query synthesis methods: %w", err)
	}
	defer rows.Close()

	methods := []apptype.SynthesisMethod{}
	for rows.Next() {
		m := apptype.SynthesisMethod{}
		if err := rows.Scan(&m.ID, &m.Title, &m.Description, &m.MethodKey); err != nil {
			return nil, fmt.Errorf("failed to scan synthesis method: %w", err)
		}
		methods = append(methods, m)
	}
	return methods, rows.Err()
}

func scanSynthesizedAtom(row rowScanner) (*apptype.SynthesizedAtom, error) {
	sa := &apptype.SynthesizedAtom{}
	var supportingInfo string
	var posted int
	err := row.Scan(&sa.ID, &sa.Title, &sa.MainContent, &supportingInfo, &sa.TheoryFiction,
		&sa.ParentAtomA, &sa.ParentAtomB, &sa.MethodID, &sa.VectorID,
		&posted, &sa.TwitterURL, &sa.BskyURL, &sa.CreatedAt, &sa.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sa.Posted = posted != 0
	if err := unmarshalList(supportingInfo, &sa.SupportingInfo); err != nil {
		return nil, err
	}
	return sa, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
