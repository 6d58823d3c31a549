package cli

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"immobilog/internal/core"
	"immobilog/internal/dosing"
	"immobilog/internal/export"
	"immobilog/internal/stopwatch"
	"immobilog/pkg/domain"
)

func eventCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Run the immobilization event lifecycle",
		Long: `Commands that change the active event. At most one event is active; it
is persisted between invocations and moves to the event history when it ends,
either with "event end" or by recording the recovery_complete phase.

Commands that need an active event are ignored, not failed, when none exists.`,
	}
	cmd.AddCommand(
		eventStartCmd(app),
		eventPhaseCmd(app),
		eventVitalCmd(app),
		eventDrugCmd(app),
		eventComplicationCmd(app),
		eventNotesCmd(app),
		eventPauseCmd(app),
		eventResumeCmd(app),
		eventEndCmd(app),
		eventStatusCmd(app),
		eventWatchCmd(app),
		eventListCmd(app),
		eventShowCmd(app),
	)
	return cmd
}

func (a *App) now() time.Time {
	if a.clock != nil {
		return a.clock.Now()
	}
	return time.Now()
}

func eventStartCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "start <animal-id>",
		Short: "Start an immobilization event for an animal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, res, err := app.service().StartEvent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			reportResult(cmd.OutOrStdout(), res, fmt.Sprintf("Event %s started, timer running", sess.Active.ID))
			return nil
		},
	}
}

func eventPhaseCmd(app *App) *cobra.Command {
	var notes string
	kinds := make([]string, 0, len(domain.PhaseKinds()))
	for _, k := range domain.PhaseKinds() {
		kinds = append(kinds, string(k))
	}
	cmd := &cobra.Command{
		Use:       "phase <kind>",
		Short:     "Record a phase transition",
		Long:      "Record a phase transition. Kinds: " + strings.Join(kinds, ", ") + ".",
		Args:      cobra.ExactArgs(1),
		ValidArgs: kinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := domain.PhaseKind(strings.ToLower(args[0]))
			_, res, err := app.service().RecordPhase(cmd.Context(), kind, notes)
			if err != nil {
				return err
			}
			msg := fmt.Sprintf("Phase %s recorded", kind.Label())
			if res.Completed != nil {
				msg += fmt.Sprintf("; event %s completed", res.Completed.ID)
			}
			reportResult(cmd.OutOrStdout(), res, msg)
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "notes for the phase")
	return cmd
}

func eventVitalCmd(app *App) *cobra.Command {
	var (
		hr, rr, temp, crt, spo2 float64
		notes                   string
	)
	cmd := &cobra.Command{
		Use:   "vital",
		Short: "Record a vital-sign snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fs := cmd.Flags()
			pick := func(name string, v float64) *float64 {
				if !fs.Changed(name) {
					return nil
				}
				return &v
			}
			in := core.VitalInput{
				HeartRate:           pick("hr", hr),
				RespirationRate:     pick("rr", rr),
				Temperature:         pick("temp", temp),
				CapillaryRefillTime: pick("crt", crt),
				OxygenSaturation:    pick("spo2", spo2),
				Notes:               notes,
			}
			_, res, err := app.service().RecordVital(cmd.Context(), in)
			if err != nil {
				return err
			}
			reportResult(cmd.OutOrStdout(), res, "Vitals recorded")
			return nil
		},
	}
	fs := cmd.Flags()
	fs.Float64Var(&hr, "hr", 0, "heart rate (bpm)")
	fs.Float64Var(&rr, "rr", 0, "respiration rate (breaths/min)")
	fs.Float64Var(&temp, "temp", 0, "temperature (°C)")
	fs.Float64Var(&crt, "crt", 0, "capillary refill time (s)")
	fs.Float64Var(&spo2, "spo2", 0, "oxygen saturation (%)")
	fs.StringVar(&notes, "notes", "", "notes for the reading")
	return cmd
}

type drugFlags struct {
	name          string
	concentration float64
	volume        float64
	dose          float64
	unit          string
	route         string
	notes         string
	dosePerKg     float64
	weight        float64
	sampleType    string
	sampleTime    string
	sampleNotes   string
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func eventDrugCmd(app *App) *cobra.Command {
	var f drugFlags
	cmd := &cobra.Command{
		Use:   "drug",
		Short: "Record an administered drug",
		Long: `Record an administered drug on the active event.

With --dose-per-kg the dose and volume are computed from the weight (the
animal's estimated weight unless --weight is given) and --concentration.`,
		Example: `  immobilog event drug --name Ketamine --concentration 100 --dose-per-kg 4 --route IM`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc := app.service()
			in := core.DrugInput{
				DrugName:      f.name,
				Concentration: f.concentration,
				Volume:        f.volume,
				Dose:          f.dose,
				Unit:          f.unit,
				Route:         f.route,
				Notes:         f.notes,
			}
			if cmd.Flags().Changed("dose-per-kg") {
				weight, err := helperWeight(ctx, svc, f.weight)
				if err != nil {
					return err
				}
				d, err := dosing.VolumeForDose(weight, f.dosePerKg, f.concentration)
				if err != nil {
					return err
				}
				in.Dose = round2(d.DoseMg)
				in.Volume = round2(d.VolumeMl)
				if in.Unit == "" {
					in.Unit = "mg"
				}
			}
			if f.sampleType != "" {
				in.Sample = &domain.DrugSample{Type: f.sampleType, Time: f.sampleTime, Notes: f.sampleNotes}
			}
			_, res, err := svc.RecordDrug(ctx, in)
			if err != nil {
				return err
			}
			msg := fmt.Sprintf("%s recorded: %s %s / %s ml", strings.TrimSpace(in.DrugName), num(in.Dose), orDash(in.Unit), num(in.Volume))
			reportResult(cmd.OutOrStdout(), res, msg)
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.name, "name", "", "drug name")
	fs.Float64Var(&f.concentration, "concentration", 0, "concentration (mg/ml)")
	fs.Float64Var(&f.volume, "volume", 0, "administered volume (ml)")
	fs.Float64Var(&f.dose, "dose", 0, "administered dose")
	fs.StringVar(&f.unit, "unit", "", "dose unit, e.g. mg")
	fs.StringVar(&f.route, "route", "", "route, e.g. IM or IV")
	fs.StringVar(&f.notes, "notes", "", "notes")
	fs.Float64Var(&f.dosePerKg, "dose-per-kg", 0, "compute dose and volume from this mg/kg dose")
	fs.Float64Var(&f.weight, "weight", 0, "weight in kg for --dose-per-kg")
	fs.StringVar(&f.sampleType, "sample-type", "", "sample taken with the drug, e.g. blood")
	fs.StringVar(&f.sampleTime, "sample-time", "", "time the sample was taken")
	fs.StringVar(&f.sampleNotes, "sample-notes", "", "sample notes")
	return cmd
}

// helperWeight returns override when set, else the estimated weight of the
// animal under the active event.
func helperWeight(ctx context.Context, svc *core.Service, override float64) (float64, error) {
	if override != 0 {
		return override, nil
	}
	sess := svc.Session(ctx)
	if sess.AnimalID == "" {
		return 0, domain.ValidationError{Field: "weight", Message: "no active animal; pass --weight"}
	}
	a, err := svc.GetAnimal(ctx, sess.AnimalID)
	if err != nil {
		return 0, err
	}
	if a.EstimatedWeight == nil {
		return 0, domain.ValidationError{Field: "weight", Message: fmt.Sprintf("animal %s has no estimated weight; pass --weight", a.ID)}
	}
	return *a.EstimatedWeight, nil
}

func eventComplicationCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "complication <text>",
		Short: "Append a complication to the active event",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, res, err := app.service().AddComplication(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			reportResult(cmd.OutOrStdout(), res, "Complication recorded")
			return nil
		},
	}
}

func eventNotesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "notes <text>",
		Short: "Replace the notes of the active event",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, res, err := app.service().SetNotes(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			reportResult(cmd.OutOrStdout(), res, "Notes saved")
			return nil
		},
	}
}

func eventPauseCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause the event timer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, res, err := app.service().Pause(cmd.Context())
			if err != nil {
				return err
			}
			reportResult(cmd.OutOrStdout(), res, "Timer paused")
			return nil
		},
	}
}

func eventResumeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume the event timer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, res, err := app.service().Resume(cmd.Context())
			if err != nil {
				return err
			}
			reportResult(cmd.OutOrStdout(), res, "Timer resumed")
			return nil
		},
	}
}

func eventEndCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "end",
		Short: "End the active event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, res, err := app.service().EndEvent(cmd.Context())
			if err != nil {
				return err
			}
			msg := "Event ended"
			if res.Completed != nil {
				msg = fmt.Sprintf("Event %s ended (%s)", res.Completed.ID, export.DurationText(*res.Completed))
			}
			reportResult(cmd.OutOrStdout(), res, msg)
			return nil
		},
	}
}

func eventStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess := app.service().Session(cmd.Context())
			out := cmd.OutOrStdout()
			if !sess.HasActiveEvent() {
				notice(out, "no active event")
				return nil
			}
			ev := sess.Active
			state := "running"
			if !sess.Running() {
				state = "paused"
			}
			heading(out, "Active event "+ev.ID)
			fmt.Fprintf(out, "  Animal:  %s\n", ev.AnimalID)
			fmt.Fprintf(out, "  Started: %s\n", app.stamp(ev.StartTime))
			fmt.Fprintf(out, "  Timer:   %s (%s)\n", stopwatch.Format(sess.Timer.Elapsed(app.now())), state)
			if i := ev.OpenPhaseIndex(); i >= 0 {
				fmt.Fprintf(out, "  Phase:   %s\n", ev.Phases[i].Phase.Label())
			}
			fmt.Fprintf(out, "  Vitals: %d  Drugs: %d  Complications: %d\n", len(ev.Vitals), len(ev.DrugsAdministered), len(ev.Complications))
			return nil
		},
	}
}

func eventWatchCmd(app *App) *cobra.Command {
	var interval, limit time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Display the running event timer until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess := app.service().Session(cmd.Context())
			out := cmd.OutOrStdout()
			if !sess.HasActiveEvent() {
				notice(out, "no active event")
				return nil
			}
			sw := stopwatch.New(stopwatch.WithState(sess.Timer), stopwatch.WithClock(app.now))
			ctx := cmd.Context()
			if limit > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, limit)
				defer cancel()
			}
			fmt.Fprintf(out, "Event %s  %s\n", sess.Active.ID, stopwatch.Format(sw.Elapsed()))
			err := sw.Run(ctx, interval, func(d time.Duration) {
				fmt.Fprintf(out, "%s\n", stopwatch.Format(d))
			})
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "refresh interval")
	cmd.Flags().DurationVar(&limit, "for", 0, "stop after this long (0 runs until interrupted)")
	return cmd
}

func eventListCmd(app *App) *cobra.Command {
	var animalID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List completed events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc := app.service()
			events := svc.ListEvents(cmd.Context())
			if animalID != "" {
				events = svc.EventsForAnimal(cmd.Context(), animalID)
			}
			out := cmd.OutOrStdout()
			if len(events) == 0 {
				notice(out, "no events recorded")
				return nil
			}
			tw := newTable(out, "ID", "ANIMAL", "START", "DURATION", "PHASES", "VITALS", "DRUGS")
			for _, ev := range events {
				row(tw, ev.ID, ev.AnimalID, app.stamp(ev.StartTime), export.DurationText(ev),
					fmt.Sprint(len(ev.Phases)), fmt.Sprint(len(ev.Vitals)), fmt.Sprint(len(ev.DrugsAdministered)))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&animalID, "animal", "", "only events of this animal")
	return cmd
}

func eventShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <event-id>",
		Short: "Print the flattened timeline of an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc := app.service()
			ev, err := svc.GetEvent(ctx, args[0])
			if err != nil {
				return err
			}
			var animal *domain.Animal
			if a, err := svc.GetAnimal(ctx, ev.AnimalID); err == nil {
				animal = &a
			}
			out := cmd.OutOrStdout()
			heading(out, fmt.Sprintf("Event %s (%s)", ev.ID, ev.Status()))
			table := export.TimelineTable(export.Timeline(ev, animal, app.render))
			tw := newTable(out, table.Columns...)
			for _, r := range table.Rows {
				row(tw, r...)
			}
			return tw.Flush()
		},
	}
}
