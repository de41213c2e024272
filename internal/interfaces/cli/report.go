package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vinsight/vinsight/internal/application/reporting"
	"github.com/vinsight/vinsight/pkg/errors"
)

// NewReportCmd creates the "report" command group.
func NewReportCmd(opts *RootOptions, svc reporting.Service) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render and manage valuation reports",
	}

	cmd.AddCommand(
		newReportRenderCmd(svc),
		newReportStoreCmd(opts, svc),
		newReportURLCmd(svc),
	)

	return cmd
}

func newReportRenderCmd(svc reporting.Service) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "render <valuation-id>",
		Short: "Render a valuation report to stdout or a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, _, err := svc.Render(cmd.Context(), args[0], reporting.ParseFormat(format))
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(doc)
				return err
			}
			if err := os.WriteFile(output, doc, 0o644); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "cannot write report file")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "html", "report format (html, markdown, json)")
	cmd.Flags().StringVarP(&output, "out", "O", "", "output file ('-' for stdout)")

	return cmd
}

func newReportStoreCmd(opts *RootOptions, svc reporting.Service) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "store <valuation-id>",
		Short: "Render a report and upload it to object storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stored, err := svc.RenderAndStore(cmd.Context(), args[0], reporting.ParseFormat(format))
			if err != nil {
				return err
			}
			return PrintResult(cmd, opts, stored)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "html", "report format (html, markdown, json)")

	return cmd
}

func newReportURLCmd(svc reporting.Service) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "url <valuation-id>",
		Short: "Print a presigned download URL for a stored report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := svc.DownloadURL(cmd.Context(), args[0], reporting.ParseFormat(format))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "html", "report format (html, markdown, json)")

	return cmd
}
