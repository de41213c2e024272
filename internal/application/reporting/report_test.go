package reporting

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appvaluation "github.com/vinsight/vinsight/internal/application/valuation"
	domain "github.com/vinsight/vinsight/internal/domain/valuation"
	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/logging"
	"github.com/vinsight/vinsight/internal/infrastructure/storage/minio"
	"github.com/vinsight/vinsight/pkg/errors"
	"github.com/vinsight/vinsight/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test doubles
// ─────────────────────────────────────────────────────────────────────────────

type stubValuations struct {
	dto *appvaluation.ValuationDTO
	err error
}

func (s *stubValuations) Evaluate(context.Context, *appvaluation.EvaluateInput) (*appvaluation.ValuationDTO, error) {
	return nil, nil
}

func (s *stubValuations) Request(context.Context, *appvaluation.EvaluateInput) (*appvaluation.ValuationDTO, error) {
	return nil, nil
}

func (s *stubValuations) Process(context.Context, common.ID, []domain.RawListing) (*appvaluation.ValuationDTO, error) {
	return nil, nil
}

func (s *stubValuations) GetByID(context.Context, string) (*appvaluation.ValuationDTO, error) {
	return s.dto, s.err
}

func (s *stubValuations) List(context.Context, *appvaluation.ListInput) (*common.PageResponse[*appvaluation.ValuationDTO], error) {
	return nil, nil
}

func (s *stubValuations) ListByVIN(context.Context, string, common.Pagination) (*common.PageResponse[*appvaluation.ValuationDTO], error) {
	return nil, nil
}

func (s *stubValuations) IngestListings(context.Context, string, []domain.RawListing) (int, error) {
	return 0, nil
}

type memArtifactStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemArtifactStore() *memArtifactStore {
	return &memArtifactStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *memArtifactStore) Put(_ context.Context, key string, data []byte, contentType string) (*minio.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	s.types[key] = contentType
	return &minio.Artifact{Key: key, Size: int64(len(data)), ContentType: contentType}, nil
}

func (s *memArtifactStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, minio.ErrArtifactNotFound
	}
	return data, nil
}

func (s *memArtifactStore) Stat(_ context.Context, key string) (*minio.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, minio.ErrArtifactNotFound
	}
	return &minio.Artifact{Key: key, Size: int64(len(data))}, nil
}

func (s *memArtifactStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memArtifactStore) List(_ context.Context, prefix string) ([]*minio.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*minio.Artifact
	for k, v := range s.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, &minio.Artifact{Key: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (s *memArtifactStore) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://storage.local/" + key + "?sig=test", nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

func completedDTO() *appvaluation.ValuationDTO {
	return &appvaluation.ValuationDTO{
		ID:     "5f8a2c1e-9b3d-4e7f-8a1b-2c3d4e5f6a7b",
		Status: "completed",
		Facts: domain.VehicleFacts{
			VIN: "1HGBH41JXMN109186", Make: "Toyota", Model: "Camry", Year: 2020, Trim: "Limited",
		},
		Report: &domain.ValuationReport{
			BaseValue:       20500,
			BaseValueSource: domain.BaseFromMarket,
			Adjustments: []domain.Adjustment{
				{Factor: "Mileage", Impact: -1200, Description: "Mileage above expected"},
				{Factor: "Trim", Impact: 820, Description: "Limited trim premium"},
			},
			FinalValue:      20120,
			ConfidenceScore: 78,
			PriceRange:      domain.PriceRange{Low: 18500, High: 21900},
			UsedListings: []domain.MarketListing{
				{Price: 20000, Source: "cargurus"},
				{Price: 21000, Source: "carmax"},
			},
			Explanation: "2020 Toyota Camry Limited: base market value $20,500 from 2 comparable listing(s).",
			GeneratedAt: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func newReportService(t *testing.T, store minio.ArtifactStore) Service {
	t.Helper()
	svc, err := NewService(&stubValuations{dto: completedDTO()}, store, nil, logging.NewNopLogger())
	require.NoError(t, err)
	return svc
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestRender_HTML(t *testing.T) {
	svc := newReportService(t, nil)

	doc, contentType, err := svc.Render(context.Background(), completedDTO().ID, FormatHTML)
	require.NoError(t, err)
	assert.Equal(t, "text/html; charset=utf-8", contentType)

	html := string(doc)
	assert.Contains(t, html, "2020 Toyota Camry Limited")
	assert.Contains(t, html, "$20,120")
	assert.Contains(t, html, "-$1,200")
	assert.Contains(t, html, "+$820")
	assert.Contains(t, html, "confidence 78/100")
	assert.Contains(t, html, "1HGBH41JXMN109186")
}

func TestRender_Markdown(t *testing.T) {
	svc := newReportService(t, nil)

	doc, contentType, err := svc.Render(context.Background(), completedDTO().ID, FormatMarkdown)
	require.NoError(t, err)
	assert.Equal(t, "text/markdown; charset=utf-8", contentType)

	md := string(doc)
	assert.Contains(t, md, "# Vehicle Valuation Report: 2020 Toyota Camry Limited")
	assert.Contains(t, md, "| Mileage | -$1,200 |")
	assert.Contains(t, md, "**Estimated value: $20,120**")
}

func TestRender_JSON(t *testing.T) {
	svc := newReportService(t, nil)

	doc, contentType, err := svc.Render(context.Background(), completedDTO().ID, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)

	var data ReportData
	require.NoError(t, json.Unmarshal(doc, &data))
	assert.Equal(t, 20120.0, data.FinalValue)
	assert.Len(t, data.Adjustments, 2)
}

func TestRender_NoReport(t *testing.T) {
	dto := completedDTO()
	dto.Report = nil
	svc, err := NewService(&stubValuations{dto: dto}, nil, nil, logging.NewNopLogger())
	require.NoError(t, err)

	_, _, err = svc.Render(context.Background(), dto.ID, FormatHTML)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeReportRenderFailed))
}

func TestRenderAndStore(t *testing.T) {
	store := newMemArtifactStore()
	svc := newReportService(t, store)

	stored, err := svc.RenderAndStore(context.Background(), completedDTO().ID, FormatHTML)
	require.NoError(t, err)
	assert.Equal(t, "valuations/5f8a2c1e-9b3d-4e7f-8a1b-2c3d4e5f6a7b/report.html", stored.Key)
	assert.Greater(t, stored.Size, int64(0))
	assert.Contains(t, stored.URL, stored.Key)

	data, err := store.Get(context.Background(), stored.Key)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Toyota")
}

func TestRenderAndStore_NoStorage(t *testing.T) {
	svc := newReportService(t, nil)

	_, err := svc.RenderAndStore(context.Background(), completedDTO().ID, FormatHTML)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeArtifactStoreFailed))
}

func TestDownloadURL(t *testing.T) {
	store := newMemArtifactStore()
	svc := newReportService(t, store)

	_, err := svc.DownloadURL(context.Background(), completedDTO().ID, FormatHTML)
	require.Error(t, err) // nothing stored yet

	_, err = svc.RenderAndStore(context.Background(), completedDTO().ID, FormatHTML)
	require.NoError(t, err)

	url, err := svc.DownloadURL(context.Background(), completedDTO().ID, FormatHTML)
	require.NoError(t, err)
	assert.Contains(t, url, "report.html")
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatMarkdown, ParseFormat("md"))
	assert.Equal(t, FormatMarkdown, ParseFormat("Markdown"))
	assert.Equal(t, FormatJSON, ParseFormat("json"))
	assert.Equal(t, FormatHTML, ParseFormat(""))
	assert.Equal(t, FormatHTML, ParseFormat("pdf"))
}

func TestGroupThousands(t *testing.T) {
	assert.Equal(t, "0", groupThousands(0))
	assert.Equal(t, "999", groupThousands(999))
	assert.Equal(t, "1,000", groupThousands(1000))
	assert.Equal(t, "1,234,567", groupThousands(1234567))
}
