package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"immobilog/internal/adapters/exports"
	"immobilog/internal/export"
	"immobilog/pkg/domain"
)

func exportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write reports and data files to the artifact store",
		Long: `Render reports, event files and collection CSVs and store them under the
configured blob driver (a local directory, S3 or memory). Re-exporting
replaces the previous artifact of the same name.`,
	}
	cmd.AddCommand(
		exportReportCmd(app),
		exportEventCmd(app),
		exportBulkCmd(app),
		exportWorkbookCmd(app),
		exportListCmd(app),
	)
	return cmd
}

func printArtifact(w io.Writer, art exports.Artifact) {
	success(w, "Exported %s (%s) to %s", art.Filename, humanize.Bytes(uint64(art.SizeBytes)), art.Key)
}

func exportReportCmd(app *App) *cobra.Command {
	var (
		animalID string
		eventID  string
		format   string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Store the procedure report as markdown or HTML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pub, err := app.publisher(cmd.Context())
			if err != nil {
				return err
			}
			art, err := pub.PublishReport(cmd.Context(), animalID, eventID, exports.Format(format))
			if err != nil {
				return err
			}
			printArtifact(cmd.OutOrStdout(), art)
			return nil
		},
	}
	cmd.Flags().StringVar(&animalID, "animal", "", "animal id")
	cmd.Flags().StringVar(&eventID, "event", "", "event id")
	cmd.Flags().StringVar(&format, "format", string(exports.FormatMarkdown), "md or html")
	_ = cmd.MarkFlagRequired("animal")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}

func exportEventCmd(app *App) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "event <event-id>",
		Short: "Store one event as JSON, timeline CSV or XLSX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, err := app.publisher(cmd.Context())
			if err != nil {
				return err
			}
			art, err := pub.PublishEvent(cmd.Context(), args[0], exports.Format(format))
			if err != nil {
				return err
			}
			printArtifact(cmd.OutOrStdout(), art)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", string(exports.FormatJSON), "json, csv or xlsx")
	return cmd
}

func exportBulkCmd(app *App) *cobra.Command {
	var names []string
	for _, spec := range export.BulkSpecs() {
		names = append(names, string(spec.Collection))
	}
	return &cobra.Command{
		Use:       "bulk [collection...]",
		Short:     "Store whole collections as CSV (all when none is named)",
		ValidArgs: names,
		Args:      cobra.OnlyValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pub, err := app.publisher(ctx)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				args = names
			}
			out := cmd.OutOrStdout()
			for _, name := range args {
				art, err := pub.PublishBulk(ctx, domain.Collection(name))
				if errors.Is(err, export.ErrNoData) {
					notice(out, "%s: %s", name, export.NoDataMessage)
					continue
				}
				if err != nil {
					return err
				}
				printArtifact(out, art)
			}
			return nil
		},
	}
}

func exportWorkbookCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "workbook <event-id>",
		Short: "Store an XLSX workbook with the event timeline and every collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, err := app.publisher(cmd.Context())
			if err != nil {
				return err
			}
			art, err := pub.PublishWorkbook(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printArtifact(cmd.OutOrStdout(), art)
			return nil
		},
	}
}

func exportListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list [prefix]",
		Short: "List stored artifacts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, err := app.publisher(cmd.Context())
			if err != nil {
				return err
			}
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			arts, err := pub.List(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(arts) == 0 {
				notice(out, "no artifacts stored")
				return nil
			}
			tw := newTable(out, "KEY", "FORMAT", "SIZE", "MODIFIED")
			for _, a := range arts {
				row(tw, a.Key, orDash(string(a.Format)), humanize.Bytes(uint64(a.SizeBytes)), app.stamp(a.CreatedAt))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d artifact(s)\n", len(arts))
			return nil
		},
	}
}
