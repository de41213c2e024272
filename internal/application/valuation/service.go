// Package valuation provides the application-level service that drives the
// valuation pipeline: request intake, idempotent computation, persistence,
// caching, and event publication.  Handlers and the worker both sit on top
// of this service; neither touches the domain pipeline directly.
package valuation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vinsight/vinsight/internal/config"
	domain "github.com/vinsight/vinsight/internal/domain/valuation"
	"github.com/vinsight/vinsight/internal/infrastructure/messaging/kafka"
	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/logging"
	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/prometheus"
	"github.com/vinsight/vinsight/pkg/errors"
	"github.com/vinsight/vinsight/pkg/types/common"
	"github.com/vinsight/vinsight/pkg/types/vehicle"
)

// Publisher is the event-publication contract the service needs.  The Kafka
// producer satisfies it; tests substitute a recorder.
type Publisher interface {
	PublishEvent(ctx context.Context, topic, eventType string, key []byte, payload any) error
}

// Cache is the subset of the report cache the service uses.  Misses surface
// as not-found errors, never as failures.
type Cache interface {
	Get(ctx context.Context, key string, value any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Service is the application-facing valuation API.
type Service interface {
	// Evaluate computes a valuation synchronously.  Repeated requests with
	// identical facts return the stored report instead of recomputing.
	Evaluate(ctx context.Context, input *EvaluateInput) (*ValuationDTO, error)

	// Request accepts a valuation for asynchronous processing and publishes
	// it for the worker.
	Request(ctx context.Context, input *EvaluateInput) (*ValuationDTO, error)

	// Process computes and persists the report for a pending valuation.
	// The worker calls this when consuming valuation.requested events.
	Process(ctx context.Context, valuationID common.ID, raws []domain.RawListing) (*ValuationDTO, error)

	GetByID(ctx context.Context, id string) (*ValuationDTO, error)
	List(ctx context.Context, input *ListInput) (*common.PageResponse[*ValuationDTO], error)
	ListByVIN(ctx context.Context, vin string, page common.Pagination) (*common.PageResponse[*ValuationDTO], error)

	// IngestListings attaches normalized listings to an existing valuation
	// and announces the batch.
	IngestListings(ctx context.Context, valuationID string, raws []domain.RawListing) (int, error)
}

// EvaluateInput carries the vehicle facts and raw market listings of one
// valuation request.
type EvaluateInput struct {
	VIN             string              `json:"vin,omitempty"`
	Make            string              `json:"make"`
	Model           string              `json:"model"`
	Year            int                 `json:"year"`
	Trim            string              `json:"trim,omitempty"`
	Mileage         *int                `json:"mileage,omitempty"`
	Condition       string              `json:"condition,omitempty"`
	ZipCode         string              `json:"zip_code,omitempty"`
	AccidentCount   int                 `json:"accident_count"`
	TitleStatus     string              `json:"title_status,omitempty"`
	PhotoScore      *float64            `json:"photo_score,omitempty"`
	PremiumFeatures []string            `json:"premium_features,omitempty"`
	HistoryFlags    []string            `json:"history_flags,omitempty"`
	Listings        []domain.RawListing `json:"listings,omitempty"`
}

// ListInput narrows and pages valuation queries.
type ListInput struct {
	VIN    string
	Status string
	Make   string
	Page   common.Pagination
}

// ValuationDTO is the application-level valuation representation returned to
// handlers and the CLI.
type ValuationDTO struct {
	ID          string                  `json:"id"`
	Status      string                  `json:"status"`
	Facts       domain.VehicleFacts     `json:"facts"`
	Report      *domain.ValuationReport `json:"report,omitempty"`
	Fingerprint string                  `json:"fingerprint"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

type serviceImpl struct {
	repo        domain.Repository
	listingRepo domain.ListingRepository
	audit       domain.AuditSink
	aggregator  *domain.Aggregator
	cache       Cache
	publisher   Publisher
	metrics     *prometheus.AppMetrics
	logger      logging.Logger
	cacheTTL    time.Duration
	now         func() time.Time
}

// Option overrides service collaborators, mainly for tests.
type Option func(*serviceImpl)

// WithClock substitutes the time source.
func WithClock(now func() time.Time) Option {
	return func(s *serviceImpl) { s.now = now }
}

// NewService wires the valuation application service.  cache and publisher
// may be nil; the service then skips caching and event publication.
func NewService(
	repo domain.Repository,
	listingRepo domain.ListingRepository,
	audit domain.AuditSink,
	aggregator *domain.Aggregator,
	cache Cache,
	publisher Publisher,
	metrics *prometheus.AppMetrics,
	cacheTTL time.Duration,
	log logging.Logger,
	opts ...Option,
) Service {
	if audit == nil {
		audit = domain.NopAuditSink{}
	}
	if metrics == nil {
		metrics = prometheus.NewNopAppMetrics()
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	s := &serviceImpl{
		repo:        repo,
		listingRepo: listingRepo,
		audit:       audit,
		aggregator:  aggregator,
		cache:       cache,
		publisher:   publisher,
		metrics:     metrics,
		logger:      log,
		cacheTTL:    cacheTTL,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewAggregatorFromConfig translates operator configuration into the domain
// pipeline's thresholds, falling back to the built-in defaults for any knob
// left at zero.
func NewAggregatorFromConfig(cfg config.ValuationConfig) *domain.Aggregator {
	est := domain.DefaultEstimatorConfig()
	if cfg.PriceSanityMin > 0 {
		est.PriceSanityMin = cfg.PriceSanityMin
	}
	if cfg.PriceSanityMax > 0 {
		est.PriceSanityMax = cfg.PriceSanityMax
	}
	if cfg.OutlierSigma > 0 {
		est.OutlierSigma = cfg.OutlierSigma
	}
	if cfg.MinListingsOutlier > 0 {
		est.MinListingsAfterOutlier = cfg.MinListingsOutlier
	}
	if cfg.FullSampleSize > 0 {
		est.FullSampleSize = cfg.FullSampleSize
	}
	if len(cfg.SourceTrust) > 0 {
		est.SourceTrust = cfg.SourceTrust
	}
	if cfg.DefaultTrust > 0 {
		est.DefaultTrust = cfg.DefaultTrust
	}

	rules := domain.DefaultRuleConfig()
	if cfg.MileageRatePerMile > 0 {
		rules.MileageRatePerMile = cfg.MileageRatePerMile
	}
	if cfg.ExpectedMilesYear > 0 {
		rules.ExpectedMilesPerYear = cfg.ExpectedMilesYear
	}
	if cfg.ConditionExcellent != 0 {
		rules.ConditionPct[vehicle.ConditionExcellent] = cfg.ConditionExcellent
	}
	if cfg.ConditionFair != 0 {
		rules.ConditionPct[vehicle.ConditionFair] = cfg.ConditionFair
	}
	if cfg.ConditionPoor != 0 {
		rules.ConditionPct[vehicle.ConditionPoor] = cfg.ConditionPoor
	}

	deprec := domain.DefaultDepreciationConfig()
	if cfg.DepreciationPerYear > 0 {
		deprec.RatePerYear = cfg.DepreciationPerYear
	}
	if cfg.DepreciationFloor > 0 {
		deprec.Floor = cfg.DepreciationFloor
	}
	if cfg.FallbackMaxConf > 0 {
		deprec.MaxConfidence = int(cfg.FallbackMaxConf)
	}

	return domain.NewAggregator(
		domain.NewEstimator(est),
		domain.NewEngine(rules),
		deprec,
		cfg.RangeSpreadPct,
	)
}

// ─────────────────────────────────────────────────────────────────────────────
// Evaluate / Request / Process
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) Evaluate(ctx context.Context, input *EvaluateInput) (*ValuationDTO, error) {
	facts, err := s.validateFacts(input)
	if err != nil {
		return nil, err
	}
	fingerprint := Fingerprint(facts)

	if dto, ok := s.lookupExisting(ctx, fingerprint); ok {
		return dto, nil
	}

	v := domain.NewValuation(facts, fingerprint)
	if err := s.repo.Create(ctx, v); err != nil {
		// A concurrent identical request may have won the race.
		if errors.IsConflict(err) {
			if dto, ok := s.lookupExisting(ctx, fingerprint); ok {
				return dto, nil
			}
		}
		return nil, err
	}

	return s.compute(ctx, v, input.Listings)
}

func (s *serviceImpl) Request(ctx context.Context, input *EvaluateInput) (*ValuationDTO, error) {
	facts, err := s.validateFacts(input)
	if err != nil {
		return nil, err
	}
	fingerprint := Fingerprint(facts)

	if dto, ok := s.lookupExisting(ctx, fingerprint); ok {
		return dto, nil
	}

	v := domain.NewValuation(facts, fingerprint)
	if err := s.repo.Create(ctx, v); err != nil {
		if errors.IsConflict(err) {
			if dto, ok := s.lookupExisting(ctx, fingerprint); ok {
				return dto, nil
			}
		}
		return nil, err
	}

	if s.publisher != nil {
		event := domain.NewValuationRequestedEvent(v, input.Listings)
		if err := s.publisher.PublishEvent(ctx, kafka.TopicValuationRequested,
			domain.EventTypeValuationRequested, []byte(v.ID), event); err != nil {
			s.logger.Error("Failed to publish valuation request",
				logging.String("valuation_id", string(v.ID)), logging.Err(err))
			return nil, errors.Wrap(err, errors.ErrCodePublishFailed, "failed to queue valuation")
		}
		s.metrics.EventsPublished.WithLabelValues(kafka.TopicValuationRequested).Inc()
	}

	s.auditRecord(ctx, "valuation.requested", string(v.ID), map[string]interface{}{
		"vin":  facts.VIN,
		"make": facts.Make,
	})

	return toDTO(v), nil
}

func (s *serviceImpl) Process(ctx context.Context, valuationID common.ID, raws []domain.RawListing) (*ValuationDTO, error) {
	v, err := s.repo.GetByID(ctx, valuationID)
	if err != nil {
		return nil, err
	}
	if v.Status == domain.StatusCompleted {
		// Redelivered event; the stored report stands.
		return toDTO(v), nil
	}
	return s.compute(ctx, v, raws)
}

// compute runs the pipeline, persists the outcome, and fans out the side
// effects (listings, cache, event, audit, metrics).
func (s *serviceImpl) compute(ctx context.Context, v *domain.Valuation, raws []domain.RawListing) (*ValuationDTO, error) {
	start := s.now()
	report := s.aggregator.ValueRaw(v.Facts, raws, start)
	v.Complete(&report)

	if err := s.repo.Update(ctx, v); err != nil {
		s.metrics.ValuationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if s.listingRepo != nil && len(report.UsedListings) > 0 {
		if err := s.listingRepo.BulkInsert(ctx, v.ID, report.UsedListings); err != nil {
			// Listings are supporting evidence, not the source of truth.
			s.logger.Warn("Failed to persist market listings",
				logging.String("valuation_id", string(v.ID)), logging.Err(err))
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, reportCacheKey(v.Fingerprint), toDTO(v), s.cacheTTL); err != nil {
			s.logger.Warn("Failed to cache valuation report", logging.Err(err))
		}
	}

	if s.publisher != nil {
		event := domain.NewValuationCompletedEvent(v, &report)
		if err := s.publisher.PublishEvent(ctx, kafka.TopicValuationCompleted,
			domain.EventTypeValuationCompleted, []byte(v.ID), event); err != nil {
			s.logger.Error("Failed to publish valuation completion", logging.Err(err))
		} else {
			s.metrics.EventsPublished.WithLabelValues(kafka.TopicValuationCompleted).Inc()
		}
	}

	s.auditRecord(ctx, "valuation.completed", string(v.ID), map[string]interface{}{
		"final_value": report.FinalValue,
		"confidence":  report.ConfidenceScore,
		"source":      string(report.BaseValueSource),
	})

	s.metrics.ValuationsTotal.WithLabelValues(string(report.BaseValueSource)).Inc()
	s.metrics.ConfidenceScore.WithLabelValues().Observe(float64(report.ConfidenceScore))
	if report.OutliersRemoved > 0 {
		s.metrics.OutliersRemoved.WithLabelValues().Add(float64(report.OutliersRemoved))
	}
	for _, adj := range report.Adjustments {
		s.metrics.AdjustmentImpact.WithLabelValues(adj.Factor).Observe(float64(adj.Impact))
	}
	s.metrics.ValuationDuration.WithLabelValues("pipeline").Observe(s.now().Sub(start).Seconds())

	s.logger.Info("Valuation computed",
		logging.String("valuation_id", string(v.ID)),
		logging.String("source", string(report.BaseValueSource)),
		logging.Float64("final_value", report.FinalValue),
		logging.Int("confidence", report.ConfidenceScore))

	return toDTO(v), nil
}

// lookupExisting checks the report cache and then the repository for a
// completed valuation with the same fingerprint.
func (s *serviceImpl) lookupExisting(ctx context.Context, fingerprint string) (*ValuationDTO, bool) {
	if s.cache != nil {
		var dto ValuationDTO
		if err := s.cache.Get(ctx, reportCacheKey(fingerprint), &dto); err == nil {
			s.metrics.CacheHits.WithLabelValues("report").Inc()
			return &dto, true
		}
		s.metrics.CacheMisses.WithLabelValues("report").Inc()
	}

	v, err := s.repo.GetByFingerprint(ctx, fingerprint)
	if err != nil || v == nil {
		return nil, false
	}
	if v.Status != domain.StatusCompleted {
		return toDTO(v), true
	}
	dto := toDTO(v)
	if s.cache != nil {
		_ = s.cache.Set(ctx, reportCacheKey(fingerprint), dto, s.cacheTTL)
	}
	return dto, true
}

// ─────────────────────────────────────────────────────────────────────────────
// Queries
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) GetByID(ctx context.Context, id string) (*ValuationDTO, error) {
	cid := common.ID(id)
	if err := cid.Validate(); err != nil {
		return nil, errors.InvalidParam("invalid valuation id").WithDetail(id)
	}
	v, err := s.repo.GetByID(ctx, cid)
	if err != nil {
		return nil, err
	}
	return toDTO(v), nil
}

func (s *serviceImpl) List(ctx context.Context, input *ListInput) (*common.PageResponse[*ValuationDTO], error) {
	page := normalizePage(input.Page)
	filter := domain.ListFilter{
		VIN:    vehicle.NormalizeVIN(input.VIN),
		Status: domain.Status(input.Status),
		Make:   strings.ToLower(strings.TrimSpace(input.Make)),
	}
	items, total, err := s.repo.List(ctx, filter, page)
	if err != nil {
		return nil, err
	}
	return pageOf(items, total, page), nil
}

func (s *serviceImpl) ListByVIN(ctx context.Context, vin string, page common.Pagination) (*common.PageResponse[*ValuationDTO], error) {
	vin = vehicle.NormalizeVIN(vin)
	if err := vehicle.ValidateVIN(vin); err != nil {
		return nil, errors.InvalidParam("invalid vin").WithDetail(vin)
	}
	page = normalizePage(page)
	items, total, err := s.repo.ListByVIN(ctx, vin, page)
	if err != nil {
		return nil, err
	}
	return pageOf(items, total, page), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Listing ingestion
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) IngestListings(ctx context.Context, valuationID string, raws []domain.RawListing) (int, error) {
	cid := common.ID(valuationID)
	if err := cid.Validate(); err != nil {
		return 0, errors.InvalidParam("invalid valuation id").WithDetail(valuationID)
	}
	if len(raws) == 0 {
		return 0, errors.InvalidParam("no listings supplied")
	}

	v, err := s.repo.GetByID(ctx, cid)
	if err != nil {
		return 0, err
	}

	normalizer := domain.NewNormalizer()
	listings := normalizer.NormalizeAll(raws)
	for _, l := range listings {
		s.metrics.ListingsAccepted.WithLabelValues(l.Source).Inc()
	}
	rejected := len(raws) - len(listings)
	if rejected > 0 {
		s.metrics.ListingsRejected.WithLabelValues("unknown", "no_price").Add(float64(rejected))
	}
	if len(listings) == 0 {
		return 0, errors.New(errors.ErrCodeListingRejected, "no listings survived normalization")
	}

	if err := s.listingRepo.BulkInsert(ctx, v.ID, listings); err != nil {
		return 0, err
	}

	if s.publisher != nil {
		event := domain.NewListingIngestedEvent(v.ID, listings)
		if err := s.publisher.PublishEvent(ctx, kafka.TopicListingIngested,
			domain.EventTypeListingIngested, []byte(v.ID), event); err != nil {
			s.logger.Error("Failed to publish listing ingestion", logging.Err(err))
		} else {
			s.metrics.EventsPublished.WithLabelValues(kafka.TopicListingIngested).Inc()
		}
	}

	s.auditRecord(ctx, "listing.ingested", string(v.ID), map[string]interface{}{
		"accepted": len(listings),
		"rejected": rejected,
	})

	return len(listings), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// Fingerprint derives a stable identity from the canonical form of the facts.
// Two requests describing the same vehicle in the same state share one
// fingerprint regardless of field casing or slice order.
func Fingerprint(facts domain.VehicleFacts) string {
	canon := struct {
		VIN       string   `json:"vin"`
		Make      string   `json:"make"`
		Model     string   `json:"model"`
		Year      int      `json:"year"`
		Trim      string   `json:"trim"`
		Mileage   string   `json:"mileage"`
		Condition string   `json:"condition"`
		Zip       string   `json:"zip"`
		Accidents int      `json:"accidents"`
		Title     string   `json:"title"`
		Photo     string   `json:"photo"`
		Features  []string `json:"features"`
		Flags     []string `json:"flags"`
	}{
		VIN:       vehicle.NormalizeVIN(facts.VIN),
		Make:      strings.ToLower(strings.TrimSpace(facts.Make)),
		Model:     strings.ToLower(strings.TrimSpace(facts.Model)),
		Year:      facts.Year,
		Trim:      strings.ToLower(strings.TrimSpace(facts.Trim)),
		Condition: string(facts.Condition),
		Zip:       strings.TrimSpace(facts.ZipCode),
		Accidents: facts.AccidentCount,
		Title:     string(facts.TitleStatus),
		Features:  lowerSorted(facts.PremiumFeatures),
		Flags:     lowerSorted(facts.HistoryFlags),
	}
	if facts.Mileage != nil {
		canon.Mileage = strconv.Itoa(*facts.Mileage)
	}
	if facts.PhotoScore != nil {
		canon.Photo = strconv.FormatFloat(*facts.PhotoScore, 'f', 4, 64)
	}

	data, _ := json.Marshal(canon)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func lowerSorted(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func (s *serviceImpl) validateFacts(input *EvaluateInput) (domain.VehicleFacts, error) {
	if input == nil {
		return domain.VehicleFacts{}, errors.InvalidParam("request body required")
	}
	if strings.TrimSpace(input.Make) == "" {
		return domain.VehicleFacts{}, errors.NewValidationError("make is required")
	}
	if strings.TrimSpace(input.Model) == "" {
		return domain.VehicleFacts{}, errors.NewValidationError("model is required")
	}
	maxYear := s.now().Year() + 1
	if input.Year < 1900 || input.Year > maxYear {
		return domain.VehicleFacts{}, errors.NewValidationError("year out of range").
			WithDetail(strconv.Itoa(input.Year))
	}
	vin := vehicle.NormalizeVIN(input.VIN)
	if vin != "" {
		if err := vehicle.ValidateVIN(vin); err != nil {
			return domain.VehicleFacts{}, errors.New(errors.ErrCodeVehicleFactsInvalid, "invalid vin").
				WithDetail(vin).WithCause(err)
		}
	}
	if input.Mileage != nil && *input.Mileage < 0 {
		return domain.VehicleFacts{}, errors.NewValidationError("mileage cannot be negative")
	}
	if input.PhotoScore != nil && (*input.PhotoScore < 0 || *input.PhotoScore > 1) {
		return domain.VehicleFacts{}, errors.NewValidationError("photo_score must be in [0, 1]")
	}

	return domain.VehicleFacts{
		VIN:             vin,
		Make:            strings.TrimSpace(input.Make),
		Model:           strings.TrimSpace(input.Model),
		Year:            input.Year,
		Trim:            strings.TrimSpace(input.Trim),
		Mileage:         input.Mileage,
		Condition:       vehicle.ParseCondition(input.Condition),
		ZipCode:         strings.TrimSpace(input.ZipCode),
		AccidentCount:   input.AccidentCount,
		TitleStatus:     vehicle.ParseTitleStatus(input.TitleStatus),
		PhotoScore:      input.PhotoScore,
		PremiumFeatures: input.PremiumFeatures,
		HistoryFlags:    input.HistoryFlags,
	}, nil
}

func (s *serviceImpl) auditRecord(ctx context.Context, action, subjectID string, detail map[string]interface{}) {
	entry := domain.AuditEntry{
		ID:         common.NewID(),
		Action:     action,
		SubjectID:  subjectID,
		Detail:     detail,
		OccurredAt: s.now(),
	}
	if userID, ok := ctx.Value(common.ContextKeyUserID).(string); ok {
		entry.ActorID = userID
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("Failed to record audit entry",
			logging.String("action", action), logging.Err(err))
	}
}

func reportCacheKey(fingerprint string) string {
	return "valuation:report:" + fingerprint
}

func normalizePage(p common.Pagination) common.Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 || p.PageSize > 500 {
		p.PageSize = 20
	}
	return p
}

func toDTO(v *domain.Valuation) *ValuationDTO {
	return &ValuationDTO{
		ID:          string(v.ID),
		Status:      string(v.Status),
		Facts:       v.Facts,
		Report:      v.Report,
		Fingerprint: v.Fingerprint,
		CreatedAt:   v.CreatedAt,
		UpdatedAt:   v.UpdatedAt,
	}
}

func pageOf(items []*domain.Valuation, total int64, page common.Pagination) *common.PageResponse[*ValuationDTO] {
	dtos := make([]*ValuationDTO, len(items))
	for i, v := range items {
		dtos[i] = toDTO(v)
	}
	totalPages := int((total + int64(page.PageSize) - 1) / int64(page.PageSize))
	return &common.PageResponse[*ValuationDTO]{
		Items:      dtos,
		Total:      total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: totalPages,
	}
}
