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

// CreateSource persists a source record. Title and URL are mandatory; the
// vector id starts empty and is patched in after a successful embed.
func (dm *DBManager) CreateSource(ctx context.Context, src *apptype.Source) error {
	done := metrics.TimeOp("db_create_source")
	success := false
	defer func() { done(success) }()

	if strings.TrimSpace(src.Title) == "" || strings.TrimSpace(src.URL) == "" {
		missing := []string{}
		if strings.TrimSpace(src.Title) == "" {
			missing = append(missing, "title")
		}
		if strings.TrimSpace(src.URL) == "" {
			missing = append(missing, "url")
		}
		return &apptype.ValidationError{Missing: missing}
	}
	if src.ID == "" {
		src.ID = uuid.NewString()
	}

	mainPoints, err := marshalList(src.MainPoints)
	if err != nil {
		return err
	}
	bulletSummary, err := marshalList(src.BulletSummary)
	if err != nil {
		return err
	}
	quotations, err := marshalList(src.Quotations)
	if err != nil {
		return err
	}
	ppte, err := marshalList(src.PeoplePlacesThingsEvents)
	if err != nil {
		return err
	}
	details, err := marshalList(src.Details)
	if err != nil {
		return err
	}
	tags, err := marshalList(src.Tags)
	if err != nil {
		return err
	}

	ts := now()
	src.CreatedAt = ts
	src.UpdatedAt = ts

	_, err = dm.db.ExecContext(ctx, `INSERT INTO sources
        (id, title, url, author, published_date, one_sentence_summary,
         main_points, bullet_summary, quotations, people_places_things_events,
         details, tags, category, attachment_id, vector_id, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.ID, src.Title, src.URL, src.Author, src.PublishedDate, src.OneSentenceSummary,
		mainPoints, bulletSummary, quotations, ppte,
		details, tags, src.Category, nullString(src.AttachmentID), nullString(src.VectorID), ts, ts)
	if err != nil {
		return fmt.Errorf("failed to insert source: %w", err)
	}
	success = true
	return nil
}

// GetSource retrieves a single source by id.
func (dm *DBManager) GetSource(ctx context.Context, id string) (*apptype.Source, error) {
	row := dm.db.QueryRowContext(ctx, `SELECT id, title, url, author, published_date,
        one_sentence_summary, main_points, bullet_summary, quotations,
        people_places_things_events, details, tags, category,
        COALESCE(attachment_id, ''), COALESCE(vector_id, ''), created_at, updated_at
        FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, apptype.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan source: %w", err)
	}
	return src, nil
}

// ListSources returns a page of sources, newest first.
func (dm *DBManager) ListSources(ctx context.Context, limit, page int) (*apptype.Page[apptype.Source], error) {
	var total int64
	if err := dm.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sources").Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count sources: %w", err)
	}
	l, p, offset, totalPages := pageBounds(limit, page, total)

	rows, err := dm.db.QueryContext(ctx, `SELECT id, title, url, author, published_date,
        one_sentence_summary, main_points, bullet_summary, quotations,
        people_places_things_events, details, tags, category,
        COALESCE(attachment_id, ''), COALESCE(vector_id, ''), created_at, updated_at
        FROM sources ORDER BY created_at DESC LIMIT ? OFFSET ?`, l, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	result := &apptype.Page[apptype.Source]{
		Docs:       []apptype.Source{},
		TotalDocs:  total,
		Page:       p,
		TotalPages: totalPages,
	}
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			log.Printf("Warning: failed to scan source row: %v", err)
			continue
		}
		result.Docs = append(result.Docs, *src)
	}
	return result, rows.Err()
}

// SetSourceVectorID patches the vector reference after a successful embed.
func (dm *DBManager) SetSourceVectorID(ctx context.Context, id, vectorID string) error {
	_, err := dm.db.ExecContext(ctx,
		"UPDATE sources SET vector_id = ?, updated_at = ? WHERE id = ?", vectorID, now(), id)
	if err != nil {
		return fmt.Errorf("failed to set source vector id: %w", err)
	}
	return nil
}

// SourcesMissingVector returns sources whose embed has not succeeded yet and
// that still have retry budget. Used by the reconciliation sweep.
func (dm *DBManager) SourcesMissingVector(ctx context.Context, maxAttempts, limit int) ([]apptype.Source, error) {
	rows, err := dm.db.QueryContext(ctx, `SELECT id, title, url, author, published_date,
        one_sentence_summary, main_points, bullet_summary, quotations,
        people_places_things_events, details, tags, category,
        COALESCE(attachment_id, ''), COALESCE(vector_id, ''), created_at, updated_at
        FROM sources WHERE vector_id IS NULL AND embed_attempts < ?
        ORDER BY created_at ASC LIMIT ?`, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unembedded sources: %w", err)
	}
	defer rows.Close()

	var out []apptype.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			log.Printf("Warning: failed to scan source row: %v", err)
			continue
		}
		out = append(out, *src)
	}
	return out, rows.Err()
}

// BumpSourceEmbedAttempts records a failed embed attempt.
func (dm *DBManager) BumpSourceEmbedAttempts(ctx context.Context, id string) error {
	_, err := dm.db.ExecContext(ctx,
		"UPDATE sources SET embed_attempts = embed_attempts + 1 WHERE id = ?", id)
	return err
}

// CreateAttachment stores the raw submitted markdown.
func (dm *DBManager) CreateAttachment(ctx context.Context, att *apptype.Attachment) error {
	if att.ID == "" {
		att.ID = uuid.NewString()
	}
	if att.MimeType == "" {
		att.MimeType = "text/markdown"
	}
	att.CreatedAt = now()
	_, err := dm.db.ExecContext(ctx,
		"INSERT INTO attachments (id, filename, mime_type, data, created_at) VALUES (?, ?, ?, ?, ?)",
		att.ID, att.Filename, att.MimeType, att.Data, att.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert attachment: %w", err)
	}
	return nil
}

// GetAttachment retrieves a stored attachment by id.
func (dm *DBManager) GetAttachment(ctx context.Context, id string) (*apptype.Attachment, error) {
	att := &apptype.Attachment{}
	err := dm.db.QueryRowContext(ctx,
		"SELECT id, filename, mime_type, data, created_at FROM attachments WHERE id = ?", id).
		Scan(&att.ID, &att.Filename, &att.MimeType, &att.Data, &att.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apptype.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan attachment: %w", err)
	}
	return att, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*apptype.Source, error) {
	src := &apptype.Source{}
	var mainPoints, bulletSummary, quotations, ppte, details, tags string
	err := row.Scan(&src.ID, &src.Title, &src.URL, &src.Author, &src.PublishedDate,
		&src.OneSentenceSummary, &mainPoints, &bulletSummary, &quotations,
		&ppte, &details, &tags, &src.Category,
		&src.AttachmentID, &src.VectorID, &src.CreatedAt, &src.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalList(mainPoints, &src.MainPoints); err != nil {
		return nil, err
	}
	if err := unmarshalList(bulletSummary, &src.BulletSummary); err != nil {
		return nil, err
	}
	if err := unmarshalList(quotations, &src.Quotations); err != nil {
		return nil, err
	}
	if err := unmarshalList(ppte, &src.PeoplePlacesThingsEvents); err != nil {
		return nil, err
	}
	if err := unmarshalList(details, &src.Details); err != nil {
		return nil, err
	}
	if err := unmarshalList(tags, &src.Tags); err != nil {
		return nil, err
	}
	return src, nil
}
