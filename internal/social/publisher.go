package social

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
)

// PublishResult identifies one published post on its platform.
type PublishResult struct {
	PostID string
	URL    string
}

// Publisher posts a single item, optionally as a reply. Implementations are
// injected per platform; there is no process-wide client handle.
type Publisher interface {
	Name() string
	SendPost(ctx context.Context, text, inReplyToID string) (*PublishResult, error)
}

// PublishThread posts items in order, chaining each as a reply to the
// previous so the platform renders one thread. Returns the head post.
func PublishThread(ctx context.Context, pub Publisher, items []string) (*PublishResult, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("nothing to publish")
	}
	var head *PublishResult
	replyTo := ""
	for i, text := range items {
		res, err := pub.SendPost(ctx, text, replyTo)
		if err != nil {
			return nil, fmt.Errorf("failed to publish item %d of %d on %s: %w", i+1, len(items), pub.Name(), err)
		}
		if head == nil {
			head = res
		}
		replyTo = res.PostID
	}
	return head, nil
}

// DryRunPublisher logs instead of posting. It satisfies the reply-chain
// contract by minting sequential fake ids.
type DryRunPublisher struct {
	Platform string
	seq      int
	Sent     []string
}

func NewDryRunPublisher(platform string) *DryRunPublisher {
	return &DryRunPublisher{Platform: platform}
}

func (d *DryRunPublisher) Name() string { return d.Platform + " (dry-run)" }

func (d *DryRunPublisher) SendPost(_ context.Context, text, inReplyToID string) (*PublishResult, error) {
	d.seq++
	d.Sent = append(d.Sent, text)
	log.Printf("[dry-run:%s] post %d (reply to %q): %s", d.Platform, d.seq, inReplyToID, text)
	id := fmt.Sprintf("dry-%s-%d", d.Platform, d.seq)
	return &PublishResult{PostID: id, URL: fmt.Sprintf("https://%s.example/%s", d.Platform, id)}, nil
}

// ExtractPostID digs a post id out of a platform response body. APIs bury
// the id at different depths depending on endpoint version, so several
// paths are tried in order.
func ExtractPostID(body []byte) (string, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("unparseable publish response: %w", err)
	}
	paths := [][]string{
		{"data", "create_tweet", "tweet_results", "result", "rest_id"},
		{"data", "id"},
		{"id_str"},
		{"id"},
		{"rest_id"},
	}
	for _, path := range paths {
		if id := digString(doc, path); id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("no post id found in publish response")
}

func digString(doc map[string]any, path []string) string {
	var cur any = doc
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur, ok = m[key]
		if !ok {
			return ""
		}
	}
	switch v := cur.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}
