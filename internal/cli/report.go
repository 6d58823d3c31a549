package cli

import (
	"context"
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"immobilog/internal/export"
)

func reportCmd(app *App) *cobra.Command {
	var (
		animalID string
		eventID  string
		plain    bool
		width    int
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the procedure report of an event",
		Long: `Print the procedure report of one animal and event. The event may be the
active one. The markdown is rendered for the terminal unless --plain is set.
Use "export report" to store the report as a file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if eventID == "" {
				if sess := app.service().Session(ctx); sess.HasActiveEvent() {
					eventID = sess.Active.ID
					if animalID == "" {
						animalID = sess.Active.AnimalID
					}
				}
			}
			doc, err := app.buildReport(ctx, animalID, eventID)
			if err != nil {
				return err
			}
			text := doc.Text()
			if !plain {
				if text, err = renderMarkdown(text, width); err != nil {
					return err
				}
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringVar(&animalID, "animal", "", "animal id (default: animal of the active event)")
	cmd.Flags().StringVar(&eventID, "event", "", "event id (default: active event)")
	cmd.Flags().BoolVar(&plain, "plain", false, "print raw markdown")
	cmd.Flags().IntVar(&width, "width", 100, "word wrap width")
	return cmd
}

func (a *App) buildReport(ctx context.Context, animalID, eventID string) (export.Document, error) {
	svc := a.service()
	events := svc.ListEvents(ctx)
	if sess := svc.Session(ctx); sess.HasActiveEvent() {
		events = append(events, *sess.Active)
	}
	return export.BuildReport(export.ReportInput{
		AnimalID:     animalID,
		EventID:      eventID,
		Animals:      svc.ListAnimals(ctx),
		Events:       events,
		Measurements: svc.ListMeasurements(ctx),
		Doses:        svc.Protocols(),
	}, a.render)
}

func renderMarkdown(md string, width int) (string, error) {
	style := glamour.WithAutoStyle()
	if color.NoColor {
		style = glamour.WithStandardStyle("notty")
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return "", fmt.Errorf("create markdown renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return out, nil
}
