package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/shoprewrite/backend/internal/domain"
	"github.com/shoprewrite/backend/internal/usecase"
)

// CollectionLister lists collections and their products
type CollectionLister interface {
	ListCollections(ctx context.Context, store domain.Store) ([]domain.Collection, error)
	Refresh(ctx context.Context, store domain.Store) ([]domain.Collection, error)
	ListProducts(ctx context.Context, store domain.Store, collectionIDs []int64) ([]domain.ProductSummary, error)
}

// Optimizer runs the rewrite pipeline
type Optimizer interface {
	ValidateMode(mode string) error
	Run(ctx context.Context, job *domain.Job, req usecase.RunRequest, out io.Writer) (usecase.RunSummary, error)
	Preview(ctx context.Context, req usecase.RunRequest, productID int64) (domain.RewriteResult, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	collections CollectionLister
	optimizer   Optimizer
	jobs        *usecase.JobRegistry
	store       domain.Store
	dryRun      bool
	logger      zerolog.Logger
}

// HandlerConfig holds the store and run defaults the handlers act on
type HandlerConfig struct {
	Store domain.Store
	// DryRun is the default when a request does not say
	DryRun bool
}

// NewHandler creates a new HTTP handler
func NewHandler(collections CollectionLister, optimizer Optimizer, jobs *usecase.JobRegistry, cfg HandlerConfig, logger zerolog.Logger) *Handler {
	if jobs == nil {
		jobs = usecase.NewJobRegistry()
	}
	return &Handler{
		collections: collections,
		optimizer:   optimizer,
		jobs:        jobs,
		store:       cfg.Store,
		dryRun:      cfg.DryRun,
		logger:      logger,
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"service":     "shoprewrite-backend",
		"version":     "1.0.0",
		"active_jobs": h.jobs.Active(),
	})
}

// ListCollections returns the store's collections
func (h *Handler) ListCollections(c *gin.Context) {
	list := h.collections.ListCollections
	if refresh, _ := strconv.ParseBool(c.Query("refresh")); refresh {
		list = h.collections.Refresh
	}

	collections, err := list(c.Request.Context(), h.store)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if collections == nil {
		collections = []domain.Collection{}
	}

	c.JSON(http.StatusOK, gin.H{
		"collections": collections,
		"cached":      len(collections),
	})
}

type collectionProductsRequest struct {
	CollectionIDs []int64 `json:"collection_ids" binding:"required,min=1"`
}

// ListCollectionProducts returns the products of the selected collections
func (h *Handler) ListCollectionProducts(c *gin.Context) {
	var req collectionProductsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "collection_ids must list at least one collection"})
		return
	}

	products, err := h.collections.ListProducts(c.Request.Context(), h.store, req.CollectionIDs)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"products": products})
}

type optimizeRequest struct {
	ProductIDs        []int64  `json:"product_ids"`
	CollectionIDs     []int64  `json:"collection_ids"`
	Mode              string   `json:"mode"`
	ExtraInstructions string   `json:"extra_instructions"`
	Model             string   `json:"model"`
	Temperature       *float64 `json:"temperature" binding:"omitempty,gte=0,lte=2"`
	Transactional     *bool    `json:"transactional"`
	DryRun            *bool    `json:"dry_run"`
}

func (h *Handler) runRequest(req optimizeRequest) usecase.RunRequest {
	dryRun := h.dryRun
	if req.DryRun != nil {
		dryRun = *req.DryRun
	}
	return usecase.RunRequest{
		Store:             h.store,
		CollectionIDs:     req.CollectionIDs,
		ProductIDs:        req.ProductIDs,
		Mode:              req.Mode,
		ExtraInstructions: req.ExtraInstructions,
		Model:             req.Model,
		Temperature:       req.Temperature,
		Transactional:     req.Transactional,
		DryRun:            dryRun,
	}
}

// Optimize starts a run and streams its progress log as plain text. The
// job id is sent in the X-Job-ID header before the first line.
func (h *Handler) Optimize(c *gin.Context) {
	var req optimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid optimize request: " + err.Error()})
		return
	}
	if len(req.ProductIDs) == 0 && len(req.CollectionIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product_ids or collection_ids is required"})
		return
	}
	if err := h.optimizer.ValidateMode(req.Mode); err != nil {
		h.writeError(c, err)
		return
	}

	job := h.jobs.Start()
	defer h.jobs.Finish(job.ID)

	c.Header("X-Job-ID", job.ID)
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	summary, err := h.optimizer.Run(c.Request.Context(), job, h.runRequest(req), c.Writer)
	event := h.logger.Info()
	if err != nil {
		event = h.logger.Error().Err(err)
	}
	event.Str("job_id", job.ID).
		Str("state", string(summary.State)).
		Int("updated", summary.Updated).
		Int("attempted", summary.Attempted).
		Msg("optimize request finished")
}

// CancelOptimize flags a running job for cancellation
func (h *Handler) CancelOptimize(c *gin.Context) {
	jobID := c.Param("jobId")
	if err := h.jobs.Cancel(jobID); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "cancelled": true})
}

// JobStatus reports the state of a running job
func (h *Handler) JobStatus(c *gin.Context) {
	job, ok := h.jobs.Get(c.Param("jobId"))
	if !ok {
		h.writeError(c, domain.ErrJobNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":     job.ID,
		"state":      job.State(),
		"cancelled":  job.Cancelled(),
		"started_at": job.StartedAt,
	})
}

// PreviewProduct runs the pipeline for one product without writing back
func (h *Handler) PreviewProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product id must be a positive integer"})
		return
	}

	var req optimizeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid preview request: " + err.Error()})
			return
		}
	}
	if err := h.optimizer.ValidateMode(req.Mode); err != nil {
		h.writeError(c, err)
		return
	}

	result, err := h.optimizer.Preview(c.Request.Context(), h.runRequest(req), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// writeError maps domain errors to HTTP status codes
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrJobNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrGeneration), errors.Is(err, domain.ErrCommerceAPI):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
