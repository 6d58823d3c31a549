package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"immobilog/internal/core"
	"immobilog/internal/export"
	"immobilog/pkg/domain"
)

func measureCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "measure",
		Short: "Record morphometric measurements",
	}
	cmd.AddCommand(measureAddCmd(app), measureListCmd(app), measureFieldsCmd())
	return cmd
}

func measureAddCmd(app *App) *cobra.Command {
	var (
		animalID string
		eventID  string
		fields   map[string]string
		notes    string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Save a measurement snapshot",
		Long: `Save a measurement snapshot for an animal and event. Values are given as
repeated --field name=value pairs; blank, unparsable and zero values are
left out. The event defaults to the active event.`,
		Example: `  immobilog measure add --animal animal-1 --field totalLength=250 --field chestGirth=120`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc := app.service()
			if eventID == "" {
				if sess := svc.Session(ctx); sess.HasActiveEvent() {
					eventID = sess.Active.ID
					if animalID == "" {
						animalID = sess.Active.AnimalID
					}
				}
			}
			m, err := svc.SaveMeasurement(ctx, core.MeasurementInput{
				AnimalID: animalID,
				EventID:  eventID,
				Fields:   core.ParseMeasurementFields(fields),
				Notes:    notes,
			})
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Measurement %s saved (%d field(s))", m.ID, len(m.Measurements))
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&animalID, "animal", "", "animal id")
	fs.StringVar(&eventID, "event", "", "event id (default: active event)")
	fs.StringToStringVar(&fields, "field", nil, "measurement as name=value, repeatable")
	fs.StringVar(&notes, "notes", "", "notes")
	return cmd
}

func measureListCmd(app *App) *cobra.Command {
	var eventID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List measurement snapshots, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc := app.service()
			sets := svc.ListMeasurements(cmd.Context())
			if eventID != "" {
				sets = svc.MeasurementsForEvent(cmd.Context(), eventID)
			}
			out := cmd.OutOrStdout()
			if len(sets) == 0 {
				notice(out, "no measurements recorded")
				return nil
			}
			tw := newTable(out, "ID", "ANIMAL", "EVENT", "TAKEN", "VALUES")
			for _, m := range sets {
				values := make([]string, 0, len(m.Measurements))
				for _, k := range m.Measurements.Keys() {
					values = append(values, fmt.Sprintf("%s=%s%s", k, num(m.Measurements[k]), domain.MeasurementUnit(k)))
				}
				row(tw, m.ID, m.AnimalID, m.EventID, app.stamp(m.Timestamp), strings.Join(values, " "))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&eventID, "event", "", "only snapshots of this event")
	return cmd
}

func measureFieldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fields",
		Short: "List the built-in measurement fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := newTable(cmd.OutOrStdout(), "FIELD", "LABEL", "UNIT")
			for _, f := range domain.KnownMeasurementFields() {
				row(tw, f, export.FieldLabel(f), orDash(domain.MeasurementUnit(f)))
			}
			return tw.Flush()
		},
	}
}
