package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	appvaluation "github.com/vinsight/vinsight/internal/application/valuation"
	domain "github.com/vinsight/vinsight/internal/domain/valuation"
	"github.com/vinsight/vinsight/pkg/errors"
)

// valueOptions holds the flags of the value command.
type valueOptions struct {
	vin          string
	makeName     string
	model        string
	year         int
	trim         string
	mileage      int
	condition    string
	zipCode      string
	accidents    int
	titleStatus  string
	photoScore   float64
	features     []string
	historyFlags []string
	listingsPath string
	async        bool
}

// NewValueCmd creates the "value" command, which computes a valuation from
// vehicle facts and optional market listings.
func NewValueCmd(opts *RootOptions, svc appvaluation.Service) *cobra.Command {
	vo := &valueOptions{}

	cmd := &cobra.Command{
		Use:   "value",
		Short: "Compute a vehicle valuation",
		Long:  "Compute a vehicle valuation from make, model, year, and optional\nmarket listings.  Listings are read from a JSON file (or stdin with\n--listings -) holding an array of raw listing records.",
		Example: `  vinsight value --make Toyota --model Camry --year 2020 --mileage 45000
  vinsight value --make Honda --model Civic --year 2019 --listings listings.json
  cat listings.json | vinsight value --make Ford --model F-150 --year 2021 --listings -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValue(cmd, opts, vo, svc)
		},
	}

	f := cmd.Flags()
	f.StringVar(&vo.vin, "vin", "", "vehicle identification number")
	f.StringVar(&vo.makeName, "make", "", "vehicle make (required)")
	f.StringVar(&vo.model, "model", "", "vehicle model (required)")
	f.IntVar(&vo.year, "year", 0, "model year (required)")
	f.StringVar(&vo.trim, "trim", "", "trim level")
	f.IntVar(&vo.mileage, "mileage", -1, "odometer miles")
	f.StringVar(&vo.condition, "condition", "", "condition (excellent, good, fair, poor)")
	f.StringVar(&vo.zipCode, "zip", "", "location zip code")
	f.IntVar(&vo.accidents, "accidents", 0, "reported accident count")
	f.StringVar(&vo.titleStatus, "title", "", "title status (clean, salvage, rebuilt, lemon)")
	f.Float64Var(&vo.photoScore, "photo-score", -1, "photo quality score in [0,1]")
	f.StringSliceVar(&vo.features, "feature", nil, "premium feature (repeatable)")
	f.StringSliceVar(&vo.historyFlags, "history-flag", nil, "history flag (repeatable)")
	f.StringVar(&vo.listingsPath, "listings", "", "JSON file of raw market listings ('-' for stdin)")
	f.BoolVar(&vo.async, "async", false, "queue the valuation instead of waiting for the result")

	_ = cmd.MarkFlagRequired("make")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("year")

	return cmd
}

func runValue(cmd *cobra.Command, opts *RootOptions, vo *valueOptions, svc appvaluation.Service) error {
	input := &appvaluation.EvaluateInput{
		VIN:             vo.vin,
		Make:            vo.makeName,
		Model:           vo.model,
		Year:            vo.year,
		Trim:            vo.trim,
		Condition:       vo.condition,
		ZipCode:         vo.zipCode,
		AccidentCount:   vo.accidents,
		TitleStatus:     vo.titleStatus,
		PremiumFeatures: vo.features,
		HistoryFlags:    vo.historyFlags,
	}
	if vo.mileage >= 0 {
		m := vo.mileage
		input.Mileage = &m
	}
	if vo.photoScore >= 0 {
		p := vo.photoScore
		input.PhotoScore = &p
	}

	if vo.listingsPath != "" {
		raws, err := readListings(cmd, vo.listingsPath)
		if err != nil {
			return err
		}
		input.Listings = raws
	}

	ctx := cmd.Context()
	var (
		dto *appvaluation.ValuationDTO
		err error
	)
	if vo.async {
		dto, err = svc.Request(ctx, input)
	} else {
		dto, err = svc.Evaluate(ctx, input)
	}
	if err != nil {
		return err
	}

	return PrintResult(cmd, opts, newValuationResult(dto))
}

// readListings loads raw listing records from path or from stdin when path
// is "-".
func readListings(cmd *cobra.Command, path string) ([]domain.RawListing, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "cannot open listings file")
		}
		defer f.Close()
		r = f
	}

	var raws []domain.RawListing
	if err := json.NewDecoder(r).Decode(&raws); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "cannot parse listings JSON")
	}
	return raws, nil
}

// valuationResult adds CLI text and table renderings to a ValuationDTO.
type valuationResult struct {
	*appvaluation.ValuationDTO
}

func newValuationResult(dto *appvaluation.ValuationDTO) valuationResult {
	return valuationResult{ValuationDTO: dto}
}

func (r valuationResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Valuation %s (%s)\n", r.ID, r.Status)
	fmt.Fprintf(&sb, "Vehicle:    %d %s %s %s\n", r.Facts.Year, r.Facts.Make, r.Facts.Model, r.Facts.Trim)
	if r.Report == nil {
		sb.WriteString("Report:     not yet available\n")
		return sb.String()
	}

	fmt.Fprintf(&sb, "Base value: $%.0f (%s)\n", r.Report.BaseValue, r.Report.BaseValueSource)
	for _, a := range r.Report.Adjustments {
		fmt.Fprintf(&sb, "  %-22s %+d\n", a.Factor, a.Impact)
	}
	fmt.Fprintf(&sb, "Final:      $%.0f\n", r.Report.FinalValue)
	fmt.Fprintf(&sb, "Range:      $%d - $%d\n", r.Report.PriceRange.Low, r.Report.PriceRange.High)
	fmt.Fprintf(&sb, "Confidence: %d/100\n", r.Report.ConfidenceScore)
	if r.Report.Explanation != "" {
		fmt.Fprintf(&sb, "\n%s\n", r.Report.Explanation)
	}
	return sb.String()
}

func (r valuationResult) TableHeaders() []string {
	return []string{"ID", "STATUS", "VEHICLE", "FINAL", "CONFIDENCE"}
}

func (r valuationResult) TableRows() [][]string {
	final, conf := "-", "-"
	if r.Report != nil {
		final = fmt.Sprintf("$%.0f", r.Report.FinalValue)
		conf = fmt.Sprintf("%d", r.Report.ConfidenceScore)
	}
	return [][]string{{
		r.ID,
		r.Status,
		fmt.Sprintf("%d %s %s", r.Facts.Year, r.Facts.Make, r.Facts.Model),
		final,
		conf,
	}}
}
