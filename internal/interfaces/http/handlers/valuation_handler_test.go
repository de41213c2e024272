package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appvaluation "github.com/vinsight/vinsight/internal/application/valuation"
	domain "github.com/vinsight/vinsight/internal/domain/valuation"
	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/logging"
	"github.com/vinsight/vinsight/pkg/errors"
	"github.com/vinsight/vinsight/pkg/types/common"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// --- Mock service ---

type mockValuationService struct {
	mock.Mock
}

func (m *mockValuationService) Evaluate(ctx context.Context, input *appvaluation.EvaluateInput) (*appvaluation.ValuationDTO, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appvaluation.ValuationDTO), args.Error(1)
}

func (m *mockValuationService) Request(ctx context.Context, input *appvaluation.EvaluateInput) (*appvaluation.ValuationDTO, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appvaluation.ValuationDTO), args.Error(1)
}

func (m *mockValuationService) Process(ctx context.Context, valuationID common.ID, raws []domain.RawListing) (*appvaluation.ValuationDTO, error) {
	args := m.Called(ctx, valuationID, raws)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appvaluation.ValuationDTO), args.Error(1)
}

func (m *mockValuationService) GetByID(ctx context.Context, id string) (*appvaluation.ValuationDTO, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appvaluation.ValuationDTO), args.Error(1)
}

func (m *mockValuationService) List(ctx context.Context, input *appvaluation.ListInput) (*common.PageResponse[*appvaluation.ValuationDTO], error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*common.PageResponse[*appvaluation.ValuationDTO]), args.Error(1)
}

func (m *mockValuationService) ListByVIN(ctx context.Context, vin string, page common.Pagination) (*common.PageResponse[*appvaluation.ValuationDTO], error) {
	args := m.Called(ctx, vin, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*common.PageResponse[*appvaluation.ValuationDTO]), args.Error(1)
}

func (m *mockValuationService) IngestListings(ctx context.Context, valuationID string, raws []domain.RawListing) (int, error) {
	args := m.Called(ctx, valuationID, raws)
	return args.Int(0), args.Error(1)
}

// --- Harness ---

func newValuationRouter(svc appvaluation.Service) *gin.Engine {
	r := gin.New()
	h := NewValuationHandler(svc, logging.NewNopLogger())
	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sampleDTO(status string) *appvaluation.ValuationDTO {
	return &appvaluation.ValuationDTO{
		ID:     "6f1b2c3d-4e5f-4a6b-8c7d-9e0f1a2b3c4d",
		Status: status,
		Facts: domain.VehicleFacts{
			Make:  "Toyota",
			Model: "Camry",
			Year:  2020,
		},
	}
}

// --- Tests ---

func TestValuationHandler_Create(t *testing.T) {
	svc := new(mockValuationService)
	svc.On("Evaluate", mock.Anything, mock.MatchedBy(func(in *appvaluation.EvaluateInput) bool {
		return in.Make == "Toyota" && in.Model == "Camry" && in.Year == 2020
	})).Return(sampleDTO("completed"), nil)

	r := newValuationRouter(svc)
	w := doJSON(t, r, http.MethodPost, "/api/v1/valuations", map[string]any{
		"make": "Toyota", "model": "Camry", "year": 2020,
	})

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp common.APIResponse[*appvaluation.ValuationDTO]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "completed", resp.Data.Status)
	svc.AssertExpectations(t)
}

func TestValuationHandler_Create_InvalidBody(t *testing.T) {
	svc := new(mockValuationService)
	r := newValuationRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/valuations", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "Evaluate")
}

func TestValuationHandler_Create_ValidationError(t *testing.T) {
	svc := new(mockValuationService)
	svc.On("Evaluate", mock.Anything, mock.Anything).
		Return(nil, errors.New(errors.ErrCodeVehicleFactsInvalid, "make is required"))

	r := newValuationRouter(svc)
	w := doJSON(t, r, http.MethodPost, "/api/v1/valuations", map[string]any{"model": "Camry"})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp common.APIResponse[any]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "VAL_004", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "make is required")
}

func TestValuationHandler_Create_InternalErrorMasked(t *testing.T) {
	svc := new(mockValuationService)
	svc.On("Evaluate", mock.Anything, mock.Anything).
		Return(nil, errors.New(errors.ErrCodeDatabaseError, "pgx: connection refused on 10.0.0.3"))

	r := newValuationRouter(svc)
	w := doJSON(t, r, http.MethodPost, "/api/v1/valuations", map[string]any{
		"make": "Toyota", "model": "Camry", "year": 2020,
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp common.APIResponse[any]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "COMMON_012", resp.Error.Code)
	assert.NotContains(t, resp.Error.Message, "10.0.0.3")
}

func TestValuationHandler_CreateAsync(t *testing.T) {
	svc := new(mockValuationService)
	svc.On("Request", mock.Anything, mock.Anything).Return(sampleDTO("pending"), nil)

	r := newValuationRouter(svc)
	w := doJSON(t, r, http.MethodPost, "/api/v1/valuations/async", map[string]any{
		"make": "Toyota", "model": "Camry", "year": 2020,
	})

	assert.Equal(t, http.StatusAccepted, w.Code)

	var resp common.APIResponse[*appvaluation.ValuationDTO]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp.Data.Status)
}

func TestValuationHandler_Get(t *testing.T) {
	dto := sampleDTO("completed")
	svc := new(mockValuationService)
	svc.On("GetByID", mock.Anything, dto.ID).Return(dto, nil)

	r := newValuationRouter(svc)
	w := doJSON(t, r, http.MethodGet, "/api/v1/valuations/"+dto.ID, nil)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestValuationHandler_Get_NotFound(t *testing.T) {
	svc := new(mockValuationService)
	svc.On("GetByID", mock.Anything, mock.Anything).
		Return(nil, errors.New(errors.ErrCodeValuationNotFound, "valuation not found"))

	r := newValuationRouter(svc)
	w := doJSON(t, r, http.MethodGet, "/api/v1/valuations/missing", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestValuationHandler_List(t *testing.T) {
	page := &common.PageResponse[*appvaluation.ValuationDTO]{
		Items:      []*appvaluation.ValuationDTO{sampleDTO("completed")},
		Total:      1,
		Page:       2,
		PageSize:   5,
		TotalPages: 1,
	}
	svc := new(mockValuationService)
	svc.On("List", mock.Anything, mock.MatchedBy(func(in *appvaluation.ListInput) bool {
		return in.VIN == "4T1B11HK5KU700001" && in.Page.Page == 2 && in.Page.PageSize == 5
	})).Return(page, nil)

	r := newValuationRouter(svc)
	w := doJSON(t, r, http.MethodGet, "/api/v1/valuations?vin=4T1B11HK5KU700001&page=2&page_size=5", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp common.APIResponse[[]*appvaluation.ValuationDTO]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Pagination)
	assert.Equal(t, 2, resp.Pagination.Page)
	assert.Equal(t, int64(1), resp.Pagination.Total)
	assert.Len(t, resp.Data, 1)
}

func TestValuationHandler_IngestListings(t *testing.T) {
	svc := new(mockValuationService)
	svc.On("IngestListings", mock.Anything, "v-1", mock.Anything).Return(2, nil)

	r := newValuationRouter(svc)
	w := doJSON(t, r, http.MethodPost, "/api/v1/valuations/v-1/listings", map[string]any{
		"listings": []map[string]any{
			{"price": 20000, "source": "cargurus"},
			{"price": 21000, "source": "carmax"},
			{"source": "craigslist"},
		},
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp common.APIResponse[ingestResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.Accepted)
	assert.Equal(t, 3, resp.Data.Submitted)
}

func TestValuationHandler_IngestListings_Empty(t *testing.T) {
	svc := new(mockValuationService)
	r := newValuationRouter(svc)

	w := doJSON(t, r, http.MethodPost, "/api/v1/valuations/v-1/listings", map[string]any{
		"listings": []map[string]any{},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "IngestListings")
}
