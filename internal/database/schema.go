package database

import "fmt"

// dynamicSchema returns schema DDL using the configured embedding dimension.
func dynamicSchema(embeddingDims int) []string {
	if embeddingDims <= 0 {
		embeddingDims = 4
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS sources (
        id TEXT PRIMARY KEY,
        title TEXT NOT NULL,
        url TEXT NOT NULL,
        author TEXT NOT NULL DEFAULT '',
        published_date TEXT NOT NULL DEFAULT '',
        one_sentence_summary TEXT NOT NULL DEFAULT '',
        main_points TEXT NOT NULL DEFAULT '[]',
        bullet_summary TEXT NOT NULL DEFAULT '[]',
        quotations TEXT NOT NULL DEFAULT '[]',
        people_places_things_events TEXT NOT NULL DEFAULT '[]',
        details TEXT NOT NULL DEFAULT '[]',
        tags TEXT NOT NULL DEFAULT '[]',
        category TEXT NOT NULL DEFAULT '',
        attachment_id TEXT,
        vector_id TEXT,
        embed_attempts INTEGER NOT NULL DEFAULT 0,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    )`,

		`CREATE TABLE IF NOT EXISTS atoms (
        id TEXT PRIMARY KEY,
        title TEXT NOT NULL DEFAULT '',
        main_content TEXT NOT NULL,
        supporting_quote TEXT NOT NULL DEFAULT '',
        supporting_info TEXT NOT NULL DEFAULT '[]',
        source_id TEXT NOT NULL,
        vector_id TEXT,
        embed_attempts INTEGER NOT NULL DEFAULT 0,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (source_id) REFERENCES sources(id)
    )`,

		`CREATE TABLE IF NOT EXISTS synthesized_atoms (
        id TEXT PRIMARY KEY,
        title TEXT NOT NULL DEFAULT '',
        main_content TEXT NOT NULL,
        supporting_info TEXT NOT NULL DEFAULT '[]',
        theory_fiction TEXT NOT NULL DEFAULT '',
        parent_atom_a TEXT NOT NULL,
        parent_atom_b TEXT NOT NULL,
        method_id TEXT NOT NULL DEFAULT '',
        vector_id TEXT,
        embed_attempts INTEGER NOT NULL DEFAULT 0,
        posted INTEGER NOT NULL DEFAULT 0,
        twitter_url TEXT NOT NULL DEFAULT '',
        bsky_url TEXT NOT NULL DEFAULT '',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    )`,

		`CREATE TABLE IF NOT EXISTS synthesis_methods (
        id TEXT PRIMARY KEY,
        title TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        method_key TEXT NOT NULL UNIQUE
    )`,

		`CREATE TABLE IF NOT EXISTS posts (
        id TEXT PRIMARY KEY,
        synthesized_atom_id TEXT NOT NULL,
        content TEXT NOT NULL DEFAULT '[]',
        twitter_posted INTEGER NOT NULL DEFAULT 0,
        twitter_url TEXT NOT NULL DEFAULT '',
        twitter_post_id TEXT NOT NULL DEFAULT '',
        bsky_posted INTEGER NOT NULL DEFAULT 0,
        bsky_url TEXT NOT NULL DEFAULT '',
        bsky_post_id TEXT NOT NULL DEFAULT '',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (synthesized_atom_id) REFERENCES synthesized_atoms(id)
    )`,

		`CREATE TABLE IF NOT EXISTS ingest_jobs (
        source_id TEXT PRIMARY KEY,
        state TEXT NOT NULL,
        error TEXT NOT NULL DEFAULT '',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    )`,

		`CREATE TABLE IF NOT EXISTS attachments (
        id TEXT PRIMARY KEY,
        filename TEXT NOT NULL,
        mime_type TEXT NOT NULL DEFAULT 'text/markdown',
        data BLOB NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    )`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS vectors (
        id TEXT PRIMARY KEY,
        namespace TEXT NOT NULL,
        embedding F32_BLOB(%d),
        metadata TEXT NOT NULL DEFAULT '{}',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    )`, embeddingDims),

		`CREATE INDEX IF NOT EXISTS idx_atoms_source ON atoms(source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_atoms_created_at ON atoms(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sources_created_at ON sources(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_synth_parents ON synthesized_atoms(parent_atom_a, parent_atom_b)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_synth ON posts(synthesized_atom_id)`,
		`CREATE INDEX IF NOT EXISTS idx_vectors_namespace ON vectors(namespace)`,

		// Vector index for similarity search
		`CREATE INDEX IF NOT EXISTS idx_vectors_embedding ON vectors(libsql_vector_idx(embedding))`,
	}
}
