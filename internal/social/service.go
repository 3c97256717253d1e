package social

import (
	"context"
	"log"

	"github.com/atomizerhq/atomizer/internal/apptype"
	"github.com/atomizerhq/atomizer/internal/database"
	"github.com/atomizerhq/atomizer/internal/metrics"
)

// Service generates a thread for a synthesized atom, persists it as a Post,
// and publishes it to each configured platform.
type Service struct {
	db         *database.DBManager
	generator  *Generator
	publishers map[string]Publisher
}

// NewService wires the post pipeline. publishers maps the platform keys
// "twitter" and "bsky" to their clients; unconfigured platforms are skipped.
func NewService(db *database.DBManager, generator *Generator, publishers map[string]Publisher) *Service {
	return &Service{db: db, generator: generator, publishers: publishers}
}

// CreateAndPublish runs the full pipeline for one synthesized atom. The Post
// row is created before publishing; per-platform failures are recorded and
// do not fail the others.
func (s *Service) CreateAndPublish(ctx context.Context, synthesizedAtomID string) (*apptype.Post, error) {
	done := metrics.TimePipeline("publish")
	success := false
	defer func() { done(success) }()

	sa, err := s.db.GetSynthesizedAtom(ctx, synthesizedAtomID)
	if err != nil {
		return nil, err
	}

	items, err := s.generator.Generate(ctx, sa, s.parentContexts(ctx, sa))
	if err != nil {
		return nil, err
	}
	if err := ValidateThread(items); err != nil {
		return nil, err
	}

	post := &apptype.Post{
		SynthesizedAtomID: sa.ID,
		Content:           items,
	}
	if err := s.db.CreatePost(ctx, post); err != nil {
		return nil, err
	}

	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Text
	}

	var twitterURL, bskyURL string
	for platform, pub := range s.publishers {
		head, err := PublishThread(ctx, pub, texts)
		if err != nil {
			log.Printf("Warning: publish to %s failed for post %s: %v", platform, post.ID, err)
			continue
		}
		result := apptype.PlatformPost{Posted: true, URL: head.URL, PostID: head.PostID}
		if err := s.db.UpdatePostPlatform(ctx, post.ID, platform, result); err != nil {
			log.Printf("Warning: failed to record %s result for post %s: %v", platform, post.ID, err)
			continue
		}
		switch platform {
		case "twitter":
			post.Twitter = result
			twitterURL = head.URL
		case "bsky":
			post.Bsky = result
			bskyURL = head.URL
		}
	}

	if twitterURL != "" || bskyURL != "" {
		if err := s.db.MarkSynthesizedAtomPosted(ctx, sa.ID, twitterURL, bskyURL); err != nil {
			log.Printf("Warning: failed to mark synthesized atom %s posted: %v", sa.ID, err)
		}
	}

	success = true
	return post, nil
}

func (s *Service) parentContexts(ctx context.Context, sa *apptype.SynthesizedAtom) []ParentContext {
	var out []ParentContext
	for _, atomID := range []string{sa.ParentAtomA, sa.ParentAtomB} {
		if atomID == "" {
			continue
		}
		atom, err := s.db.GetAtom(ctx, atomID)
		if err != nil {
			log.Printf("Warning: parent atom %s not resolvable: %v", atomID, err)
			continue
		}
		pc := ParentContext{Atom: atom}
		if atom.SourceID != "" {
			if src, err := s.db.GetSource(ctx, atom.SourceID); err == nil {
				pc.Source = src
			}
		}
		out = append(out, pc)
	}
	return out
}

// NewPublishers builds the platform map from configuration. Dry run swaps
// every platform for a logging stub.
func NewPublishers(dryRun bool) map[string]Publisher {
	if dryRun {
		return map[string]Publisher{
			"twitter": NewDryRunPublisher("twitter"),
			"bsky":    NewDryRunPublisher("bsky"),
		}
	}
	// Real platform clients are injected by the caller; with none
	// configured, posts are created but never published.
	return map[string]Publisher{}
}
