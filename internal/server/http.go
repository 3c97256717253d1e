// Package server exposes the pipeline over HTTP (gin) and MCP. Both are
// thin adapters over pkg/atomizer.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/atomizerhq/atomizer/internal/apptype"
	"github.com/atomizerhq/atomizer/internal/metrics"
	"github.com/atomizerhq/atomizer/pkg/atomizer"
)

// HTTPServer serves the REST API.
type HTTPServer struct {
	svc    *atomizer.Service
	engine *gin.Engine
}

// NewHTTPServer builds the router.
func NewHTTPServer(svc *atomizer.Service) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)
	s := &HTTPServer{svc: svc, engine: gin.New()}
	s.engine.Use(gin.Logger(), gin.Recovery())
	s.routes()
	return s
}

// Handler exposes the router for tests.
func (s *HTTPServer) Handler() http.Handler { return s.engine }

// Run serves until the context is canceled, then drains connections.
func (s *HTTPServer) Run(ctx context.Context, addr string) error {
	// periodic pool stats reporting
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

	srv := &http.Server{Addr: addr, Handler: s.engine}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *HTTPServer) routes() {
	s.engine.GET("/healthz", s.handleHealth)

	api := s.engine.Group("/api")
	api.POST("/sources", s.handleCreateSource)
	api.GET("/sources", s.handleListSources)
	api.GET("/sources/:id", s.handleGetSource)
	api.GET("/source-status", s.handleSourceStatus)

	api.GET("/atoms", s.handleListAtoms)
	api.GET("/atoms/:id", s.handleGetAtom)
	api.GET("/atoms/:id/similar", s.handleSimilarAtoms)
	api.DELETE("/atoms/:id", s.handleDeleteAtom)

	api.GET("/synthesis/methods", s.handleListMethods)
	api.POST("/synthesis/pair", s.handleSelectPair)
	api.POST("/synthesis", s.handleSynthesize)
	api.POST("/synthesized-atoms", s.handleSaveSynthesizedAtom)
	api.GET("/synthesized-atoms", s.handleListSynthesizedAtoms)

	api.GET("/graph", s.handleGraph)
	api.POST("/posts", s.handleCreatePost)
}

func fail(c *gin.Context, code int, err error) {
	body := gin.H{"message": err.Error(), "code": code}
	var moe *apptype.ModelOutputError
	if errors.As(err, &moe) {
		// Surface the raw model text so the user can correct and resubmit.
		body["rawContent"] = moe.Raw
	}
	var verr *apptype.ValidationError
	if errors.As(err, &verr) {
		body["missing"] = verr.Missing
		body["missingFromFrontMatter"] = verr.MissingFromFrontMatter
	}
	c.JSON(code, body)
}

func statusFor(err error) int {
	var verr *apptype.ValidationError
	switch {
	case errors.Is(err, apptype.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &verr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func pageParams(c *gin.Context) (limit, page int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	return limit, page
}

func (s *HTTPServer) handleHealth(c *gin.Context) {
	health, err := s.svc.Health(c.Request.Context())
	if err != nil {
		fail(c, http.StatusServiceUnavailable, err)
		return
	}
	c.JSON(http.StatusOK, health)
}

type createSourceRequest struct {
	Markdown string `json:"markdown" binding:"required"`
	Category string `json:"category"`
}

func (s *HTTPServer) handleCreateSource(c *gin.Context) {
	var req createSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	src, err := s.svc.IngestMarkdown(c.Request.Context(), req.Markdown, req.Category)
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusCreated, src)
}

func (s *HTTPServer) handleListSources(c *gin.Context) {
	limit, page := pageParams(c)
	result, err := s.svc.ListSources(c.Request.Context(), limit, page)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *HTTPServer) handleGetSource(c *gin.Context) {
	src, err := s.svc.GetSource(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, src)
}

func (s *HTTPServer) handleSourceStatus(c *gin.Context) {
	sourceID := c.Query("sourceId")
	if sourceID == "" {
		fail(c, http.StatusBadRequest, errors.New("sourceId query parameter is required"))
		return
	}
	status, err := s.svc.Status(c.Request.Context(), sourceID)
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *HTTPServer) handleListAtoms(c *gin.Context) {
	limit, page := pageParams(c)
	result, err := s.svc.ListAtoms(c.Request.Context(), limit, page)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *HTTPServer) handleGetAtom(c *gin.Context) {
	atom, err := s.svc.GetAtom(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, atom)
}

func (s *HTTPServer) handleSimilarAtoms(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	atoms, err := s.svc.SimilarAtoms(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"docs": atoms})
}

func (s *HTTPServer) handleDeleteAtom(c *gin.Context) {
	if err := s.svc.DeleteAtom(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

func (s *HTTPServer) handleListMethods(c *gin.Context) {
	methods, err := s.svc.ListSynthesisMethods(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"docs": methods})
}

func (s *HTTPServer) handleSelectPair(c *gin.Context) {
	pair, err := s.svc.SelectPair(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

type synthesizeRequest struct {
	AtomA  string `json:"atomA" binding:"required"`
	AtomB  string `json:"atomB" binding:"required"`
	Method string `json:"method" binding:"required"`
}

func (s *HTTPServer) handleSynthesize(c *gin.Context) {
	var req synthesizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	sa, err := s.svc.Synthesize(c.Request.Context(), req.AtomA, req.AtomB, req.Method)
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, sa)
}

func (s *HTTPServer) handleSaveSynthesizedAtom(c *gin.Context) {
	var sa apptype.SynthesizedAtom
	if err := c.ShouldBindJSON(&sa); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := s.svc.SaveSynthesizedAtom(c.Request.Context(), &sa); err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusCreated, sa)
}

func (s *HTTPServer) handleListSynthesizedAtoms(c *gin.Context) {
	limit, page := pageParams(c)
	result, err := s.svc.ListSynthesizedAtoms(c.Request.Context(), limit, page)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *HTTPServer) handleGraph(c *gin.Context) {
	points, err := s.svc.Graph(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"points": points, "count": len(points)})
}

type createPostRequest struct {
	SynthesizedAtomID string `json:"synthesizedAtomId" binding:"required"`
}

func (s *HTTPServer) handleCreatePost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	post, err := s.svc.PublishPost(c.Request.Context(), req.SynthesizedAtomID)
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusCreated, post)
}
