package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	appvaluation "github.com/vinsight/vinsight/internal/application/valuation"
	"github.com/vinsight/vinsight/pkg/types/common"
)

// NewListCmd creates the "list" command with its "get" subcommand.
func NewListCmd(opts *RootOptions, svc appvaluation.Service) *cobra.Command {
	var (
		vin      string
		status   string
		makeName string
		page     int
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored valuations",
		RunE: func(cmd *cobra.Command, args []string) error {
			input := &appvaluation.ListInput{
				VIN:    vin,
				Status: status,
				Make:   makeName,
				Page:   common.Pagination{Page: page, PageSize: pageSize},
			}
			result, err := svc.List(cmd.Context(), input)
			if err != nil {
				return err
			}
			return PrintResult(cmd, opts, newValuationList(result))
		},
	}

	f := cmd.Flags()
	f.StringVar(&vin, "vin", "", "filter by VIN")
	f.StringVar(&status, "status", "", "filter by status (pending, completed, failed)")
	f.StringVar(&makeName, "make", "", "filter by vehicle make")
	f.IntVar(&page, "page", 1, "page number")
	f.IntVar(&pageSize, "page-size", 20, "results per page")

	cmd.AddCommand(newGetCmd(opts, svc))

	return cmd
}

func newGetCmd(opts *RootOptions, svc appvaluation.Service) *cobra.Command {
	return &cobra.Command{
		Use:   "get <valuation-id>",
		Short: "Show one valuation by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dto, err := svc.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return PrintResult(cmd, opts, newValuationResult(dto))
		},
	}
}

// valuationList renders a page of valuations as text or a table.
type valuationList struct {
	*common.PageResponse[*appvaluation.ValuationDTO]
}

func newValuationList(page *common.PageResponse[*appvaluation.ValuationDTO]) valuationList {
	return valuationList{PageResponse: page}
}

func (l valuationList) String() string {
	out := FormatTable(l.TableHeaders(), l.TableRows())
	return out + fmt.Sprintf("\n%d of %d valuations (page %d/%d)\n",
		len(l.Items), l.Total, l.Page, l.TotalPages)
}

func (l valuationList) TableHeaders() []string {
	return []string{"ID", "STATUS", "VEHICLE", "FINAL", "CONFIDENCE"}
}

func (l valuationList) TableRows() [][]string {
	rows := make([][]string, 0, len(l.Items))
	for _, dto := range l.Items {
		rows = append(rows, newValuationResult(dto).TableRows()[0])
	}
	return rows
}
