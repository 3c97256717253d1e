package embeddings

import (
	"context"
	"os"
	"strconv"
	"strings"

	voyageai "github.com/austinfhunter/voyageai"
)

type voyageProvider struct {
	client *voyageai.VoyageClient
	model  string
	dims   int
}

func newVoyageFromEnv() Provider {
	key := strings.TrimSpace(os.Getenv("VOYAGEAI_API_KEY"))
	if key == "" {
		return nil
	}
	model := strings.TrimSpace(os.Getenv("VOYAGEAI_EMBEDDINGS_MODEL"))
	if model == "" {
		model = "voyage-3-lite"
	}
	// Keep dims in sync with the DB schema unless explicitly overridden.
	dims := 1024
	for _, k := range []string{"VOYAGEAI_EMBEDDINGS_DIMS", "EMBEDDING_DIMS"} {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				dims = n
				break
			}
		}
	}
	return &voyageProvider{
		client: voyageai.NewClient(&voyageai.VoyageClientOpts{Key: key}),
		model:  model,
		dims:   dims,
	}
}

func (p *voyageProvider) Name() string    { return "voyageai" }
func (p *voyageProvider) Dimensions() int { return p.dims }

func (p *voyageProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	resp, err := p.client.Embed(inputs, p.model, nil)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, 0, len(resp.Data))
	for _, item := range resp.Data {
		out = append(out, item.Embedding)
	}
	return out, nil
}
