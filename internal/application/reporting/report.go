package reporting

import (
	"context"
	"fmt"
	"time"

	appvaluation "github.com/vinsight/vinsight/internal/application/valuation"
	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/logging"
	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/prometheus"
	"github.com/vinsight/vinsight/internal/infrastructure/storage/minio"
	"github.com/vinsight/vinsight/pkg/errors"
)

// StoredReport describes a persisted report artifact and its download link.
type StoredReport struct {
	ValuationID string    `json:"valuation_id"`
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	Size        int64     `json:"size"`
	URL         string    `json:"url,omitempty"`
	StoredAt    time.Time `json:"stored_at"`
}

// Service renders valuation reports and manages their stored artifacts.
type Service interface {
	// Render produces the document bytes for a completed valuation.
	Render(ctx context.Context, valuationID string, format Format) ([]byte, string, error)

	// RenderAndStore renders the report, uploads it, and returns a
	// presigned download link.
	RenderAndStore(ctx context.Context, valuationID string, format Format) (*StoredReport, error)

	// DownloadURL returns a presigned link for an already-stored artifact.
	DownloadURL(ctx context.Context, valuationID string, format Format) (string, error)
}

type serviceImpl struct {
	valuations appvaluation.Service
	engine     *TemplateEngine
	store      minio.ArtifactStore
	metrics    *prometheus.AppMetrics
	logger     logging.Logger
	now        func() time.Time
}

// NewService wires the reporting service.  store may be nil when object
// storage is not configured; RenderAndStore and DownloadURL then fail fast.
func NewService(
	valuations appvaluation.Service,
	store minio.ArtifactStore,
	metrics *prometheus.AppMetrics,
	log logging.Logger,
) (Service, error) {
	engine, err := NewTemplateEngine()
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = prometheus.NewNopAppMetrics()
	}
	return &serviceImpl{
		valuations: valuations,
		engine:     engine,
		store:      store,
		metrics:    metrics,
		logger:     log,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *serviceImpl) Render(ctx context.Context, valuationID string, format Format) ([]byte, string, error) {
	dto, err := s.valuations.GetByID(ctx, valuationID)
	if err != nil {
		return nil, "", err
	}
	data, err := BuildReportData(dto)
	if err != nil {
		return nil, "", err
	}
	doc, err := s.engine.Render(data, format)
	if err != nil {
		return nil, "", err
	}
	s.metrics.ReportsRendered.WithLabelValues(string(format)).Inc()
	return doc, format.ContentType(), nil
}

func (s *serviceImpl) RenderAndStore(ctx context.Context, valuationID string, format Format) (*StoredReport, error) {
	if s.store == nil {
		return nil, errors.New(errors.ErrCodeArtifactStoreFailed, "object storage not configured")
	}

	doc, contentType, err := s.Render(ctx, valuationID, format)
	if err != nil {
		return nil, err
	}

	key := artifactKey(valuationID, format)
	art, err := s.store.Put(ctx, key, doc, contentType)
	if err != nil {
		return nil, err
	}
	s.metrics.ArtifactsStored.WithLabelValues("reports").Inc()

	url, err := s.store.PresignedURL(ctx, key, 0)
	if err != nil {
		// The artifact is stored; surface it without a link.
		s.logger.Warn("Failed to presign report URL",
			logging.String("key", key), logging.Err(err))
		url = ""
	}

	s.logger.Info("Report stored",
		logging.String("valuation_id", valuationID),
		logging.String("key", key),
		logging.Int64("size", art.Size))

	return &StoredReport{
		ValuationID: valuationID,
		Key:         key,
		Format:      format,
		Size:        art.Size,
		URL:         url,
		StoredAt:    s.now(),
	}, nil
}

func (s *serviceImpl) DownloadURL(ctx context.Context, valuationID string, format Format) (string, error) {
	if s.store == nil {
		return "", errors.New(errors.ErrCodeArtifactStoreFailed, "object storage not configured")
	}
	key := artifactKey(valuationID, format)
	if _, err := s.store.Stat(ctx, key); err != nil {
		return "", err
	}
	return s.store.PresignedURL(ctx, key, 0)
}

func artifactKey(valuationID string, format Format) string {
	return fmt.Sprintf("valuations/%s/report.%s", valuationID, format.Extension())
}
