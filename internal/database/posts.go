package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/atomizerhq/atomizer/internal/apptype"
)

// CreatePost stores a generated thread before publishing.
func (dm *DBManager) CreatePost(ctx context.Context, post *apptype.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	content, err := marshalList(post.Content)
	if err != nil {
		return err
	}
	post.CreatedAt = now()

	_, err = dm.db.ExecContext(ctx, `INSERT INTO posts
        (id, synthesized_atom_id, content, twitter_posted, twitter_url, twitter_post_id,
         bsky_posted, bsky_url, bsky_post_id, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.ID, post.SynthesizedAtomID, content,
		boolToInt(post.Twitter.Posted), post.Twitter.URL, post.Twitter.PostID,
		boolToInt(post.Bsky.Posted), post.Bsky.URL, post.Bsky.PostID, post.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

// UpdatePostPlatform records the publish outcome for one platform.
func (dm *DBManager) UpdatePostPlatform(ctx context.Context, id, platform string, result apptype.PlatformPost) error {
	var query string
	switch platform {
	case "twitter":
		query = "UPDATE posts SET twitter_posted = ?, twitter_url = ?, twitter_post_id = ? WHERE id = ?"
	case "bsky":
		query = "UPDATE posts SET bsky_posted = ?, bsky_url = ?, bsky_post_id = ? WHERE id = ?"
	default:
		return fmt.Errorf("unknown platform: %s", platform)
	}
	_, err := dm.db.ExecContext(ctx, query, boolToInt(result.Posted), result.URL, result.PostID, id)
	if err != nil {
		return fmt.Errorf("failed to update post platform: %w", err)
	}
	return nil
}

// GetPost retrieves a post by id.
func (dm *DBManager) GetPost(ctx context.Context, id string) (*apptype.Post, error) {
	post := &apptype.Post{}
	var content string
	var twPosted, bskyPosted int
	err := dm.db.QueryRowContext(ctx, `SELECT id, synthesized_atom_id, content,
        twitter_posted, twitter_url, twitter_post_id,
        bsky_posted, bsky_url, bsky_post_id, created_at
        FROM posts WHERE id = ?`, id).
		Scan(&post.ID, &post.SynthesizedAtomID, &content,
			&twPosted, &post.Twitter.URL, &post.Twitter.PostID,
			&bskyPosted, &post.Bsky.URL, &post.Bsky.PostID, &post.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apptype.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan post: %w", err)
	}
	post.Twitter.Posted = twPosted != 0
	post.Bsky.Posted = bskyPosted != 0
	if err := unmarshalList(content, &post.Content); err != nil {
		return nil, err
	}
	return post, nil
}
