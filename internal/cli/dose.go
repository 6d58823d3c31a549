package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"immobilog/internal/dosing"
	"immobilog/pkg/domain"
)

func doseCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dose",
		Short: "Compute weight-based drug doses from the protocol table",
	}
	cmd.AddCommand(
		doseProtocolCmd(app),
		doseReversalCmd(app),
		doseEmergencyCmd(app),
		doseCalcCmd(),
		doseSpeciesCmd(app),
		doseDrugsCmd(),
	)
	return cmd
}

func doseProtocolCmd(app *App) *cobra.Command {
	var (
		species  string
		weight   float64
		animalID string
	)
	cmd := &cobra.Command{
		Use:   "protocol",
		Short: "Doses of every primary and secondary protocol drug",
		Example: `  immobilog dose protocol --species "Panthera leo" --weight 150
  immobilog dose protocol --animal animal-1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc := app.service()
			var (
				results []domain.DoseResult
				err     error
			)
			if animalID != "" {
				results, err = svc.RecommendedDoses(ctx, animalID)
			} else {
				results, err = svc.ComputeAllDoses(ctx, species, weight)
			}
			if err != nil {
				return err
			}
			return writeDoses(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().StringVar(&species, "species", "", "species name")
	cmd.Flags().Float64Var(&weight, "weight", 0, "weight in kg")
	cmd.Flags().StringVar(&animalID, "animal", "", "use the species and estimated weight of this animal")
	cmd.MarkFlagsMutuallyExclusive("animal", "species")
	return cmd
}

func doseReversalCmd(app *App) *cobra.Command {
	var (
		species string
		weight  float64
	)
	cmd := &cobra.Command{
		Use:   "reversal",
		Short: "Doses of the reversal drugs for a species",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			results, err := app.service().Protocols().ComputeReversalDoses(species, weight)
			if err != nil {
				return err
			}
			return writeDoses(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().StringVar(&species, "species", "", "species name")
	cmd.Flags().Float64Var(&weight, "weight", 0, "weight in kg")
	_ = cmd.MarkFlagRequired("species")
	_ = cmd.MarkFlagRequired("weight")
	return cmd
}

func doseEmergencyCmd(app *App) *cobra.Command {
	var weight float64
	cmd := &cobra.Command{
		Use:   "emergency",
		Short: "Doses of the emergency drugs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			results, err := app.service().Protocols().ComputeEmergencyDoses(weight)
			if err != nil {
				return err
			}
			return writeDoses(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().Float64Var(&weight, "weight", 0, "weight in kg")
	_ = cmd.MarkFlagRequired("weight")
	return cmd
}

func doseCalcCmd() *cobra.Command {
	var weight, perKg, concentration float64
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Volume to draw for a per-kg dose",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := dosing.VolumeForDose(weight, perKg, concentration)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.2f mg / %.2f ml\n", d.DoseMg, d.VolumeMl)
			return nil
		},
	}
	cmd.Flags().Float64Var(&weight, "weight", 0, "weight in kg")
	cmd.Flags().Float64Var(&perKg, "dose-per-kg", 0, "dose in mg/kg")
	cmd.Flags().Float64Var(&concentration, "concentration", 0, "concentration in mg/ml")
	return cmd
}

func doseSpeciesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "species",
		Short: "List species in the protocol table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := newTable(cmd.OutOrStdout(), "SPECIES", "COMMON NAME", "PRIMARY", "REVERSAL")
			for _, p := range app.service().Protocols().Protocols() {
				row(tw, p.Species, orDash(p.CommonName), fmt.Sprint(len(p.PrimaryDrugs)), fmt.Sprint(len(p.ReversalDrugs)))
			}
			return tw.Flush()
		},
	}
}

func doseDrugsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drugs",
		Short: "List known drugs by category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := newTable(cmd.OutOrStdout(), "DRUG", "CATEGORY")
			for _, name := range dosing.AllDrugs() {
				category, _ := dosing.CategoryOf(name)
				row(tw, name, string(category))
			}
			return tw.Flush()
		},
	}
}
