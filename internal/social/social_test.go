package social

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomizerhq/atomizer/internal/apptype"
	"github.com/atomizerhq/atomizer/internal/database"
	"github.com/atomizerhq/atomizer/internal/llm"
)

type stubCompleter struct {
	content string
	err     error
}

func (s *stubCompleter) Complete(_ context.Context, _, _ string) (*llm.Completion, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Completion{Content: s.content, Model: "stub"}, nil
}

func TestGenerateAppendsSourcePost(t *testing.T) {
	g := NewGenerator(&stubCompleter{content: `["first thought", "second thought"]`},
		"https://kb.example/", "")
	sa := &apptype.SynthesizedAtom{ID: "sa-1", Title: "Big Idea", MainContent: "content"}

	items, err := g.Generate(context.Background(), sa, nil)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "first thought", items[0].Text)
	assert.Equal(t, "Big Idea https://kb.example/synthesized-atoms/sa-1", items[2].Text)
}

func TestGenerateRejectsEmptyThread(t *testing.T) {
	g := NewGenerator(&stubCompleter{content: `["", "  "]`}, "https://kb.example", "")
	_, err := g.Generate(context.Background(), &apptype.SynthesizedAtom{ID: "x"}, nil)
	assert.Error(t, err)
}

func TestValidateThread(t *testing.T) {
	ok := []apptype.TextItem{{Text: "short"}}
	assert.NoError(t, ValidateThread(ok))

	long := []apptype.TextItem{{Text: strings.Repeat("x", MaxPostLength+1)}}
	err := ValidateThread(long)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "281 characters")
}

func TestPublishThreadChainsReplies(t *testing.T) {
	pub := &recordingPublisher{}
	head, err := PublishThread(context.Background(), pub, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, "id-1", head.PostID)

	// Each post replies to the previous one, head excepted.
	require.Len(t, pub.replies, 3)
	assert.Equal(t, "", pub.replies[0])
	assert.Equal(t, "id-1", pub.replies[1])
	assert.Equal(t, "id-2", pub.replies[2])
}

type recordingPublisher struct {
	replies []string
	failAt  int
}

func (r *recordingPublisher) Name() string { return "recording" }

func (r *recordingPublisher) SendPost(_ context.Context, _, inReplyToID string) (*PublishResult, error) {
	if r.failAt > 0 && len(r.replies)+1 == r.failAt {
		return nil, errors.New("boom")
	}
	r.replies = append(r.replies, inReplyToID)
	id := fmt.Sprintf("id-%d", len(r.replies))
	return &PublishResult{PostID: id, URL: "https://x.example/" + id}, nil
}

func TestPublishThreadStopsOnFailure(t *testing.T) {
	pub := &recordingPublisher{failAt: 2}
	_, err := PublishThread(context.Background(), pub, []string{"a", "b", "c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item 2 of 3")
	assert.Len(t, pub.replies, 1, "publishing halts at the failed item")
}

func TestExtractPostID(t *testing.T) {
	cases := map[string]string{
		`{"data":{"create_tweet":{"tweet_results":{"result":{"rest_id":"111"}}}}}`: "111",
		`{"data":{"id":"222"}}`: "222",
		`{"id_str":"333"}`:      "333",
		`{"id":444}`:            "444",
	}
	for body, want := range cases {
		got, err := ExtractPostID([]byte(body))
		require.NoError(t, err, body)
		assert.Equal(t, want, got)
	}

	_, err := ExtractPostID([]byte(`{"ok":true}`))
	assert.Error(t, err)
	_, err = ExtractPostID([]byte(`not json`))
	assert.Error(t, err)
}

func TestCreateAndPublishDryRun(t *testing.T) {
	cfg := &database.Config{
		URL:           fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		EmbeddingDims: 4,
	}
	db, err := database.NewDBManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	src := &apptype.Source{Title: "S", URL: "http://s"}
	require.NoError(t, db.CreateSource(ctx, src))
	a := &apptype.Atom{MainContent: "idea a", SourceID: src.ID}
	b := &apptype.Atom{MainContent: "idea b", SourceID: src.ID}
	require.NoError(t, db.CreateAtom(ctx, a))
	require.NoError(t, db.CreateAtom(ctx, b))
	sa := &apptype.SynthesizedAtom{
		Title: "Combined", MainContent: "c",
		ParentAtomA: a.ID, ParentAtomB: b.ID,
	}
	require.NoError(t, db.CreateSynthesizedAtom(ctx, sa))

	gen := NewGenerator(&stubCompleter{content: `["one post"]`}, "https://kb.example", "")
	svc := NewService(db, gen, NewPublishers(true))

	post, err := svc.CreateAndPublish(ctx, sa.ID)
	require.NoError(t, err)
	assert.True(t, post.Twitter.Posted)
	assert.True(t, post.Bsky.Posted)
	assert.NotEmpty(t, post.Twitter.PostID)

	updated, err := db.GetSynthesizedAtom(ctx, sa.ID)
	require.NoError(t, err)
	assert.True(t, updated.Posted)
	assert.NotEmpty(t, updated.TwitterURL)
}
