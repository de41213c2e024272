package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appvaluation "github.com/vinsight/vinsight/internal/application/valuation"
	domain "github.com/vinsight/vinsight/internal/domain/valuation"
	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/logging"
	"github.com/vinsight/vinsight/pkg/errors"
	"github.com/vinsight/vinsight/pkg/types/common"
)

// fakeValuationService returns canned responses for CLI tests.
type fakeValuationService struct {
	lastInput *appvaluation.EvaluateInput
	dto       *appvaluation.ValuationDTO
	page      *common.PageResponse[*appvaluation.ValuationDTO]
	err       error
}

func (f *fakeValuationService) Evaluate(_ context.Context, input *appvaluation.EvaluateInput) (*appvaluation.ValuationDTO, error) {
	f.lastInput = input
	return f.dto, f.err
}

func (f *fakeValuationService) Request(_ context.Context, input *appvaluation.EvaluateInput) (*appvaluation.ValuationDTO, error) {
	f.lastInput = input
	if f.err != nil {
		return nil, f.err
	}
	pending := *f.dto
	pending.Status = "pending"
	pending.Report = nil
	return &pending, nil
}

func (f *fakeValuationService) Process(context.Context, common.ID, []domain.RawListing) (*appvaluation.ValuationDTO, error) {
	return f.dto, f.err
}

func (f *fakeValuationService) GetByID(_ context.Context, id string) (*appvaluation.ValuationDTO, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.dto == nil || f.dto.ID != id {
		return nil, errors.New(errors.ErrCodeValuationNotFound, "valuation not found")
	}
	return f.dto, nil
}

func (f *fakeValuationService) List(context.Context, *appvaluation.ListInput) (*common.PageResponse[*appvaluation.ValuationDTO], error) {
	return f.page, f.err
}

func (f *fakeValuationService) ListByVIN(context.Context, string, common.Pagination) (*common.PageResponse[*appvaluation.ValuationDTO], error) {
	return f.page, f.err
}

func (f *fakeValuationService) IngestListings(context.Context, string, []domain.RawListing) (int, error) {
	return 0, f.err
}

func completedDTO() *appvaluation.ValuationDTO {
	return &appvaluation.ValuationDTO{
		ID:     "7a9e4d2b-1c3f-4e5a-9b8c-0d1e2f3a4b5c",
		Status: "completed",
		Facts:  domain.VehicleFacts{Make: "Toyota", Model: "Camry", Year: 2020, Trim: "SE"},
		Report: &domain.ValuationReport{
			BaseValue:       21000,
			BaseValueSource: domain.BaseFromMarket,
			Adjustments: []domain.Adjustment{
				{Factor: "Mileage", Impact: -1200},
				{Factor: "Trim level", Impact: 800},
			},
			FinalValue:      20600,
			ConfidenceScore: 78,
			PriceRange:      domain.PriceRange{Low: 19000, High: 22200},
			Explanation:     "Based on 4 comparable listings.",
		},
	}
}

// execute builds a root command over svc and runs it with args.
func execute(t *testing.T, svc appvaluation.Service, args ...string) (string, error) {
	t.Helper()

	opts := &RootOptions{OutputFormat: "text"}
	root := NewRootCommand(opts)
	RegisterCommands(root, opts, CommandDependencies{
		Valuations: svc,
		Logger:     logging.NewNopLogger(),
	})

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

func TestValueCmd_Text(t *testing.T) {
	svc := &fakeValuationService{dto: completedDTO()}

	out, err := execute(t, svc,
		"value", "--make", "Toyota", "--model", "Camry", "--year", "2020", "--mileage", "45000")

	require.NoError(t, err)
	assert.Contains(t, out, "Final:      $20600")
	assert.Contains(t, out, "Confidence: 78/100")
	assert.Contains(t, out, "Mileage")

	require.NotNil(t, svc.lastInput)
	assert.Equal(t, "Toyota", svc.lastInput.Make)
	require.NotNil(t, svc.lastInput.Mileage)
	assert.Equal(t, 45000, *svc.lastInput.Mileage)
}

func TestValueCmd_JSONOutput(t *testing.T) {
	svc := &fakeValuationService{dto: completedDTO()}

	opts := &RootOptions{OutputFormat: "json"}
	root := NewRootCommand(opts)
	RegisterCommands(root, opts, CommandDependencies{Valuations: svc})

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"value", "-o", "json", "--make", "Toyota", "--model", "Camry", "--year", "2020"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), `"final_value": 20600`)
}

func TestValueCmd_RequiredFlags(t *testing.T) {
	svc := &fakeValuationService{dto: completedDTO()}

	_, err := execute(t, svc, "value", "--make", "Toyota")
	assert.Error(t, err)
	assert.Nil(t, svc.lastInput)
}

func TestValueCmd_Async(t *testing.T) {
	svc := &fakeValuationService{dto: completedDTO()}

	out, err := execute(t, svc,
		"value", "--async", "--make", "Toyota", "--model", "Camry", "--year", "2020")

	require.NoError(t, err)
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "not yet available")
}

func TestValueCmd_ServiceError(t *testing.T) {
	svc := &fakeValuationService{err: errors.New(errors.ErrCodeVehicleFactsInvalid, "year out of range")}

	_, err := execute(t, svc, "value", "--make", "Toyota", "--model", "Camry", "--year", "1200")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "year out of range")
}

func TestListCmd_Table(t *testing.T) {
	svc := &fakeValuationService{
		page: &common.PageResponse[*appvaluation.ValuationDTO]{
			Items:      []*appvaluation.ValuationDTO{completedDTO()},
			Total:      1,
			Page:       1,
			PageSize:   20,
			TotalPages: 1,
		},
	}

	out, err := execute(t, svc, "list")

	require.NoError(t, err)
	assert.Contains(t, out, "2020 Toyota Camry")
	assert.Contains(t, out, "$20600")
	assert.Contains(t, out, "1 of 1 valuations")
}

func TestGetCmd(t *testing.T) {
	dto := completedDTO()
	svc := &fakeValuationService{dto: dto}

	out, err := execute(t, svc, "list", "get", dto.ID)

	require.NoError(t, err)
	assert.Contains(t, out, dto.ID)
	assert.Contains(t, out, "completed")
}

func TestGetCmd_NotFound(t *testing.T) {
	svc := &fakeValuationService{dto: completedDTO()}

	_, err := execute(t, svc, "list", "get", "nonexistent")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestFormatTable(t *testing.T) {
	out := FormatTable(
		[]string{"ID", "NAME"},
		[][]string{{"1", "alpha"}, {"2", "beta"}},
	)

	assert.Contains(t, out, "ID  NAME")
	assert.Contains(t, out, "--  -----")
	assert.Contains(t, out, "1   alpha")
}

func TestRootCommand_Version(t *testing.T) {
	opts := &RootOptions{}
	root := NewRootCommand(opts)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "commit")
}
