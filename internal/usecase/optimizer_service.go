package usecase

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shoprewrite/backend/internal/domain"
	"github.com/shoprewrite/backend/internal/infrastructure/retry"
)

// Optimizer limits
const (
	DefaultBatchSize = 10
	// MaxBatchSize is the commerce API's id-list query capacity
	MaxBatchSize = 250
)

// RunObserver receives run and product outcomes, typically for metrics
type RunObserver interface {
	IncProduct(result string)
	IncRun(state string)
}

// OptimizerConfig holds configuration for the optimizer service
type OptimizerConfig struct {
	BatchSize    int
	ItemDelay    time.Duration
	DefaultMode  string
	Model        string
	Temperature  float64
	SystemPrompt string
	Fields       FieldMapperOptions
}

// RunRequest describes one optimizer run
type RunRequest struct {
	Store             domain.Store
	CollectionIDs     []int64
	ProductIDs        []int64
	Mode              string
	ExtraInstructions string
	Model             string
	Temperature       *float64
	Transactional     *bool
	DryRun            bool
}

// RunSummary is the outcome of a run
type RunSummary struct {
	JobID     string          `json:"job_id"`
	State     domain.JobState `json:"state"`
	Attempted int             `json:"attempted"`
	Updated   int             `json:"updated"`
	Failed    int             `json:"failed"`
	Batches   int             `json:"batches"`
}

// OptimizerService drives the rewrite pipeline over a list of products
type OptimizerService struct {
	commerce  domain.CommerceClient
	generator domain.TextGenerator
	prompts   *PromptBuilder
	splitter  *OutputSplitter
	meta      *MetaFinalizer
	observer  RunObserver
	config    OptimizerConfig
	logger    zerolog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewOptimizerService creates a new optimizer service with dependencies
func NewOptimizerService(
	commerce domain.CommerceClient,
	generator domain.TextGenerator,
	prompts *PromptBuilder,
	splitter *OutputSplitter,
	meta *MetaFinalizer,
	observer RunObserver,
	config OptimizerConfig,
	logger zerolog.Logger,
) *OptimizerService {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.BatchSize > MaxBatchSize {
		config.BatchSize = MaxBatchSize
	}
	if config.DefaultMode == "" {
		config.DefaultMode = ModeAuto
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultSystemPrompt
	}

	return &OptimizerService{
		commerce:  commerce,
		generator: generator,
		prompts:   prompts,
		splitter:  splitter,
		meta:      meta,
		observer:  observer,
		config:    config,
		logger:    logger,
		sleep:     retry.SleepContext,
	}
}

// ValidateMode reports whether mode is auto or a known category
func (s *OptimizerService) ValidateMode(mode string) error {
	if mode == "" || strings.EqualFold(mode, ModeAuto) {
		return nil
	}
	if _, ok := s.prompts.Catalog().Resolve(mode); !ok {
		return fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidRequest, mode)
	}
	return nil
}

// Run processes the requested products in batches, writing one progress
// line per event to out. Products run sequentially; cancellation is checked
// before every batch and every product. Per-product failures, including a
// failed batch fetch, are logged and skipped. Only a failure to resolve the
// product ids fails the run.
func (s *OptimizerService) Run(ctx context.Context, job *domain.Job, req RunRequest, out io.Writer) (RunSummary, error) {
	log := s.logger.With().Str("job_id", job.ID).Str("store", req.Store.Domain).Logger()
	progress := newProgressWriter(out)
	summary := RunSummary{JobID: job.ID}

	job.SetState(domain.JobStateRunning)
	log.Info().Int("collections", len(req.CollectionIDs)).Int("products", len(req.ProductIDs)).Bool("dry_run", req.DryRun).Msg("optimizer run started")

	ids, err := collectProductIDs(ctx, s.commerce, req.Store, req.CollectionIDs, req.ProductIDs)
	if err != nil {
		return s.fail(job, &summary, progress, log, err)
	}

	mapper := NewFieldMapper(s.commerce, s.config.Fields, log)
	meta := s.meta
	if req.Transactional != nil {
		meta = meta.WithTransactional(*req.Transactional)
	}

	batches := (len(ids) + s.config.BatchSize - 1) / s.config.BatchSize
	for b := 0; b < batches; b++ {
		if s.cancelled(ctx, job) {
			return s.cancel(job, &summary, progress, log)
		}

		start := b * s.config.BatchSize
		end := min(start+s.config.BatchSize, len(ids))
		batchIDs := ids[start:end]

		products, err := s.commerce.GetProducts(ctx, req.Store, batchIDs)
		if err != nil {
			if s.cancelled(ctx, job) {
				return s.cancel(job, &summary, progress, log)
			}
			log.Warn().Err(err).Int("batch", b+1).Msg("batch fetch failed")
			for _, id := range batchIDs {
				s.recordFailure(&summary, progress, id, fmt.Errorf("fetch product: %w", err))
			}
			summary.Batches++
			progress.line("[batch] %d/%d complete", b+1, batches)
			continue
		}

		// Products run in the order the store returned them; requested ids
		// it did not return are reported afterwards.
		requested := make(map[int64]bool, len(batchIDs))
		for _, id := range batchIDs {
			requested[id] = true
		}
		for _, product := range products {
			if !requested[product.ID] {
				continue
			}
			delete(requested, product.ID)

			if s.cancelled(ctx, job) {
				return s.cancel(job, &summary, progress, log)
			}

			result, err := s.process(ctx, mapper, req, product, meta)
			if err != nil {
				log.Warn().Err(err).Int64("product_id", product.ID).Msg("product failed")
				s.recordFailure(&summary, progress, product.ID, err)
			} else {
				summary.Attempted++
				summary.Updated++
				s.observe("updated")
				progress.line("[ok] %d → %s", product.ID, result.Title)
			}

			if err := s.sleep(ctx, s.config.ItemDelay); err != nil {
				log.Debug().Err(err).Msg("item delay interrupted")
			}
		}
		for _, id := range batchIDs {
			if !requested[id] {
				continue
			}
			if s.cancelled(ctx, job) {
				return s.cancel(job, &summary, progress, log)
			}
			s.recordFailure(&summary, progress, id, domain.ErrNotFound)
		}

		summary.Batches++
		progress.line("[batch] %d/%d complete", b+1, batches)
	}

	job.SetState(domain.JobStateCompleted)
	summary.State = domain.JobStateCompleted
	s.observeRun(summary.State)

	suffix := ""
	if req.DryRun {
		suffix = " (dry run)"
	}
	progress.line("[done] %d/%d products updated%s", summary.Updated, summary.Attempted, suffix)
	log.Info().Int("updated", summary.Updated).Int("attempted", summary.Attempted).Msg("optimizer run completed")

	return summary, nil
}

// Preview runs the pipeline for one product without writing anything back
func (s *OptimizerService) Preview(ctx context.Context, req RunRequest, productID int64) (domain.RewriteResult, error) {
	products, err := s.commerce.GetProducts(ctx, req.Store, []int64{productID})
	if err != nil {
		return domain.RewriteResult{}, err
	}
	if len(products) == 0 {
		return domain.RewriteResult{}, fmt.Errorf("product %d: %w", productID, domain.ErrNotFound)
	}

	meta := s.meta
	if req.Transactional != nil {
		meta = meta.WithTransactional(*req.Transactional)
	}
	req.DryRun = true
	return s.process(ctx, nil, req, products[0], meta)
}

func (s *OptimizerService) process(ctx context.Context, mapper *FieldMapper, req RunRequest, p domain.Product, meta *MetaFinalizer) (domain.RewriteResult, error) {
	category := s.category(ctx, req, p)

	model := req.Model
	if model == "" {
		model = s.config.Model
	}
	temperature := s.config.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	reply, err := s.generator.Generate(ctx, domain.GenerationRequest{
		SystemPrompt: s.config.SystemPrompt,
		UserPrompt:   s.prompts.Build(p, category, req.ExtraInstructions),
		Model:        model,
		Temperature:  temperature,
	})
	if err != nil {
		return domain.RewriteResult{}, err
	}

	parsed := s.splitter.Split(reply)

	title := parsed.Title
	if title == "" {
		title = p.Title
	}
	body := parsed.Body
	if body == "" {
		body = p.BodyHTML
	}
	body = InjectIcons(body)

	dims := ExtractDimensions(title, body)
	if !dims.Any() {
		dims = ExtractDimensions(p.Title+" "+p.OptionText(), p.BodyHTML)
	}
	color := ExtractContainerColor(title, body)
	if color == "" {
		color = ExtractContainerColor(p.Title, p.BodyHTML)
	}
	present := color != "" || DetectContainerPresence(title, body) || DetectContainerPresence(p.Title, p.BodyHTML)

	title = NormalizeTitle(title, dims, color, present)
	if title == "" {
		title = p.Title
	}

	result := domain.RewriteResult{
		ProductID:       p.ID,
		Category:        category,
		Title:           title,
		BodyHTML:        body,
		MetaTitle:       meta.FinalizeMetaTitle(parsed.MetaTitle, title),
		MetaDescription: meta.FinalizeMetaDescription(p.ID, parsed.MetaDescription, body, title),
		Dimensions:      dims,
		ContainerColor:  color,
		ContainerFound:  present,
	}

	if req.DryRun {
		return result, nil
	}

	if err := s.commerce.UpdateProduct(ctx, req.Store, domain.ProductUpdate{
		ID:             p.ID,
		Title:          result.Title,
		BodyHTML:       result.BodyHTML,
		SEOTitle:       result.MetaTitle,
		SEODescription: result.MetaDescription,
	}); err != nil {
		return result, fmt.Errorf("update product: %w", err)
	}

	if dims.Any() && mapper != nil {
		if err := mapper.Write(ctx, req.Store, p.ID, dims); err != nil {
			return result, fmt.Errorf("custom fields: %w", err)
		}
	}

	return result, nil
}

// category resolves the prompt category from the request mode or, in auto
// mode, from the product's collections
func (s *OptimizerService) category(ctx context.Context, req RunRequest, p domain.Product) string {
	catalog := s.prompts.Catalog()

	mode := req.Mode
	if mode == "" {
		mode = s.config.DefaultMode
	}
	if !strings.EqualFold(mode, ModeAuto) {
		if key, ok := catalog.Resolve(mode); ok {
			return key
		}
		return catalog.Default()
	}

	handles, err := s.commerce.ProductCollectionHandles(ctx, req.Store, p.ID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("product_id", p.ID).Msg("collection lookup failed, using default category")
		return catalog.Default()
	}
	return catalog.Detect(handles)
}

func (s *OptimizerService) cancelled(ctx context.Context, job *domain.Job) bool {
	return job.Cancelled() || ctx.Err() != nil
}

func (s *OptimizerService) cancel(job *domain.Job, summary *RunSummary, progress *progressWriter, log zerolog.Logger) (RunSummary, error) {
	job.SetState(domain.JobStateCancelled)
	summary.State = domain.JobStateCancelled
	s.observeRun(summary.State)

	progress.line("[cancelled] stopped after %d/%d products updated", summary.Updated, summary.Attempted)
	log.Info().Int("updated", summary.Updated).Int("attempted", summary.Attempted).Msg("optimizer run cancelled")
	return *summary, nil
}

func (s *OptimizerService) fail(job *domain.Job, summary *RunSummary, progress *progressWriter, log zerolog.Logger, err error) (RunSummary, error) {
	job.SetState(domain.JobStateFailed)
	summary.State = domain.JobStateFailed
	s.observeRun(summary.State)

	progress.line("[error] %v", err)
	log.Error().Err(err).Msg("optimizer run failed")
	return *summary, err
}

func (s *OptimizerService) recordFailure(summary *RunSummary, progress *progressWriter, id int64, err error) {
	summary.Attempted++
	summary.Failed++
	s.observe("failed")
	progress.line("[fail] %d: %v", id, err)
}

func (s *OptimizerService) observe(result string) {
	if s.observer != nil {
		s.observer.IncProduct(result)
	}
}

func (s *OptimizerService) observeRun(state domain.JobState) {
	if s.observer != nil {
		s.observer.IncRun(string(state))
	}
}

// progressWriter writes log lines and flushes them to streaming writers
type progressWriter struct {
	w   io.Writer
	err error
}

type flusher interface {
	Flush()
}

func newProgressWriter(w io.Writer) *progressWriter {
	if w == nil {
		w = io.Discard
	}
	return &progressWriter{w: w}
}

func (p *progressWriter) line(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	if _, err := fmt.Fprintf(p.w, format+"\n", args...); err != nil {
		p.err = err
		return
	}
	if f, ok := p.w.(flusher); ok {
		f.Flush()
	}
}
