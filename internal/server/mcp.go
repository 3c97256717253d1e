package server

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/atomizerhq/atomizer/internal/apptype"
	"github.com/atomizerhq/atomizer/internal/buildinfo"
	"github.com/atomizerhq/atomizer/internal/metrics"
	"github.com/atomizerhq/atomizer/pkg/atomizer"
)

// SearchAtomsArgs are the arguments for the search_atoms tool.
type SearchAtomsArgs struct {
	Query string `json:"query" jsonschema:"the text to search atoms by"`
	TopK  int    `json:"topK,omitempty" jsonschema:"maximum results, default 10"`
}

// AtomsResult is the structured payload returned by atom tools.
type AtomsResult struct {
	Atoms []apptype.Atom `json:"atoms"`
}

// ReadAtomsArgs are the arguments for the read_atoms tool.
type ReadAtomsArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"page size, default 20"`
	Page  int `json:"page,omitempty" jsonschema:"1-based page number"`
}

// GetSourceArgs are the arguments for the get_source tool.
type GetSourceArgs struct {
	SourceID string `json:"sourceId" jsonschema:"the source record id"`
}

// SynthesizeAtomsArgs are the arguments for the synthesize_atoms tool.
type SynthesizeAtomsArgs struct {
	AtomA  string `json:"atomA" jsonschema:"first parent atom id"`
	AtomB  string `json:"atomB" jsonschema:"second parent atom id"`
	Method string `json:"method" jsonschema:"synthesis method id"`
	Save   bool   `json:"save,omitempty" jsonschema:"persist the result instead of returning a candidate"`
}

// HealthArgs are the arguments for the health_check tool.
type HealthArgs struct{}

// MCPServer exposes the pipeline to MCP clients.
type MCPServer struct {
	server *mcp.Server
	svc    *atomizer.Service
}

// NewMCPServer creates an MCP server over the shared service.
func NewMCPServer(svc *atomizer.Service) *MCPServer {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "atomizer",
		Version: buildinfo.Version,
	}, nil)

	s := &MCPServer{server: server, svc: svc}
	metrics.InitFromEnv()
	s.setupToolHandlers()
	return s
}

func (s *MCPServer) setupToolHandlers() {
	searchAtomsInputSchema, err := jsonschema.For[SearchAtomsArgs]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for SearchAtomsArgs: %v", err))
	}
	searchAtomsOutputSchema, err := jsonschema.For[AtomsResult]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for AtomsResult (search): %v", err))
	}
	readAtomsInputSchema, err := jsonschema.For[ReadAtomsArgs]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for ReadAtomsArgs: %v", err))
	}
	readAtomsOutputSchema, err := jsonschema.For[AtomsResult]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for AtomsResult (read): %v", err))
	}
	getSourceInputSchema, err := jsonschema.For[GetSourceArgs]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for GetSourceArgs: %v", err))
	}
	synthesizeInputSchema, err := jsonschema.For[SynthesizeAtomsArgs]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for SynthesizeAtomsArgs: %v", err))
	}
	healthInputSchema, err := jsonschema.For[HealthArgs]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for HealthArgs: %v", err))
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "search_atoms",
		Title:        "Search Atoms",
		Description:  "Find atoms by semantic similarity to a text query.",
		InputSchema:  searchAtomsInputSchema,
		OutputSchema: searchAtomsOutputSchema,
	}, s.handleSearchAtoms)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "read_atoms",
		Title:        "Read Atoms",
		Description:  "List stored atoms, newest first.",
		InputSchema:  readAtomsInputSchema,
		OutputSchema: readAtomsOutputSchema,
	}, s.handleReadAtoms)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_source",
		Title:       "Get Source",
		Description: "Retrieve an ingested source with its summary fields.",
		InputSchema: getSourceInputSchema,
	}, s.handleGetSource)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "synthesize_atoms",
		Title:       "Synthesize Atoms",
		Description: "Combine two atoms into a new synthesized atom using a method from the catalog.",
		InputSchema: synthesizeInputSchema,
	}, s.handleSynthesizeAtoms)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "health_check",
		Title:       "Health Check",
		Description: "Check database and vector-store health.",
		InputSchema: healthInputSchema,
	}, s.handleHealthCheck)
}

func (s *MCPServer) handleSearchAtoms(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[SearchAtomsArgs],
) (*mcp.CallToolResultFor[AtomsResult], error) {
	done := metrics.TimeOp("tool_search_atoms")
	var success bool
	defer func() { done(success) }()

	topK := params.Arguments.TopK
	if topK <= 0 {
		topK = 10
	}
	atoms, err := s.svc.SearchAtoms(ctx, params.Arguments.Query, topK)
	if err != nil {
		return nil, fmt.Errorf("search_atoms failed: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[AtomsResult]{
		Content:           []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Found %d atoms", len(atoms))}},
		StructuredContent: AtomsResult{Atoms: atoms},
	}, nil
}

func (s *MCPServer) handleReadAtoms(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[ReadAtomsArgs],
) (*mcp.CallToolResultFor[AtomsResult], error) {
	done := metrics.TimeOp("tool_read_atoms")
	var success bool
	defer func() { done(success) }()

	page, err := s.svc.ListAtoms(ctx, params.Arguments.Limit, params.Arguments.Page)
	if err != nil {
		return nil, fmt.Errorf("read_atoms failed: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[AtomsResult]{
		Content: []mcp.Content{&mcp.TextContent{
			Text: fmt.Sprintf("Page %d of %d, %d atoms total", page.Page, page.TotalPages, page.TotalDocs),
		}},
		StructuredContent: AtomsResult{Atoms: page.Docs},
	}, nil
}

func (s *MCPServer) handleGetSource(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[GetSourceArgs],
) (*mcp.CallToolResultFor[any], error) {
	done := metrics.TimeOp("tool_get_source")
	var success bool
	defer func() { done(success) }()

	src, err := s.svc.GetSource(ctx, params.Arguments.SourceID)
	if err != nil {
		return nil, fmt.Errorf("get_source failed: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[any]{
		Content:           []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Source: %s", src.Title)}},
		StructuredContent: src,
	}, nil
}

func (s *MCPServer) handleSynthesizeAtoms(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[SynthesizeAtomsArgs],
) (*mcp.CallToolResultFor[any], error) {
	done := metrics.TimeOp("tool_synthesize_atoms")
	var success bool
	defer func() { done(success) }()

	sa, err := s.svc.Synthesize(ctx, params.Arguments.AtomA, params.Arguments.AtomB, params.Arguments.Method)
	if err != nil {
		return nil, fmt.Errorf("synthesize_atoms failed: %w", err)
	}
	text := "Generated candidate (not saved)"
	if params.Arguments.Save {
		if err := s.svc.SaveSynthesizedAtom(ctx, sa); err != nil {
			return nil, fmt.Errorf("synthesize_atoms save failed: %w", err)
		}
		text = fmt.Sprintf("Saved synthesized atom %s", sa.ID)
	}
	success = true
	return &mcp.CallToolResultFor[any]{
		Content:           []mcp.Content{&mcp.TextContent{Text: text}},
		StructuredContent: sa,
	}, nil
}

func (s *MCPServer) handleHealthCheck(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[HealthArgs],
) (*mcp.CallToolResultFor[any], error) {
	health, err := s.svc.Health(ctx)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResultFor[any]{
		Content:           []mcp.Content{&mcp.TextContent{Text: "ok"}},
		StructuredContent: health,
	}, nil
}

// Run starts the MCP server on stdio transport.
func (s *MCPServer) Run(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				inUse, idle := s.svc.DB().PoolStats()
				metrics.Default().ObservePoolStats(inUse, idle)
			}
		}
	}()
	return s.server.Run(ctx, mcp.NewStdioTransport())
}
