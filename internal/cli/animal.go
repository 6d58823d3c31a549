package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"immobilog/internal/core"
	"immobilog/pkg/domain"
)

// animalFlags binds the editable animal fields. Only flags the user set are
// applied on update.
type animalFlags struct {
	species    string
	name       string
	identifier string
	sex        string
	ageClass   string
	weight     float64
	latitude   float64
	longitude  float64
	accuracy   float64
	notes      string
}

func (f *animalFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.species, "species", "", "scientific or common species name")
	fs.StringVar(&f.name, "name", "", "name given to the animal")
	fs.StringVar(&f.identifier, "identifier", "", "ear tag, collar or chip identifier")
	fs.StringVar(&f.sex, "sex", "", "male, female or unknown")
	fs.StringVar(&f.ageClass, "age-class", "", "cub, subadult, adult or senior")
	fs.Float64Var(&f.weight, "weight", 0, "estimated weight in kg")
	fs.Float64Var(&f.latitude, "lat", 0, "capture latitude")
	fs.Float64Var(&f.longitude, "lon", 0, "capture longitude")
	fs.Float64Var(&f.accuracy, "accuracy", 0, "location accuracy in metres")
	fs.StringVar(&f.notes, "notes", "", "free-text notes")
}

func (f *animalFlags) apply(fs *pflag.FlagSet, in *core.AnimalInput) {
	if fs.Changed("species") {
		in.Species = f.species
	}
	if fs.Changed("name") {
		in.Name = f.name
	}
	if fs.Changed("identifier") {
		in.Identifier = f.identifier
	}
	if fs.Changed("sex") {
		in.Sex = domain.Sex(strings.ToLower(f.sex))
	}
	if fs.Changed("age-class") {
		in.AgeClass = domain.AgeClass(strings.ToLower(f.ageClass))
	}
	if fs.Changed("weight") {
		w := f.weight
		in.EstimatedWeight = &w
	}
	if fs.Changed("lat") || fs.Changed("lon") || fs.Changed("accuracy") {
		loc := domain.Location{}
		if in.Location != nil {
			loc = *in.Location
		}
		if fs.Changed("lat") {
			loc.Latitude = f.latitude
		}
		if fs.Changed("lon") {
			loc.Longitude = f.longitude
		}
		if fs.Changed("accuracy") {
			acc := f.accuracy
			loc.Accuracy = &acc
		}
		in.Location = &loc
	}
	if fs.Changed("notes") {
		in.Notes = f.notes
	}
}

func animalCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "animal",
		Short: "Register and maintain captured animals",
	}
	cmd.AddCommand(animalAddCmd(app), animalListCmd(app), animalShowCmd(app), animalUpdateCmd(app), animalDeleteCmd(app))
	return cmd
}

func animalAddCmd(app *App) *cobra.Command {
	var f animalFlags
	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Register a new animal",
		Example: `  immobilog animal add --species "Panthera leo" --name Kibo --sex male --weight 150`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var in core.AnimalInput
			f.apply(cmd.Flags(), &in)
			a, err := app.service().CreateAnimal(cmd.Context(), in)
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Animal %s registered (%s)", a.ID, a.DisplayName())
			return nil
		},
	}
	f.bind(cmd.Flags())
	_ = cmd.MarkFlagRequired("species")
	return cmd
}

func animalListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered animals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			animals := app.service().ListAnimals(cmd.Context())
			out := cmd.OutOrStdout()
			if len(animals) == 0 {
				notice(out, "no animals registered")
				return nil
			}
			tw := newTable(out, "ID", "NAME", "SPECIES", "SEX", "AGE", "WEIGHT (kg)", "UPDATED")
			for _, a := range animals {
				row(tw, a.ID, orDash(a.Name), a.Species, orDash(string(a.Sex)), orDash(string(a.AgeClass)),
					optNum(a.EstimatedWeight), app.stamp(a.UpdatedAt))
			}
			return tw.Flush()
		},
	}
}

func animalShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <animal-id>",
		Short: "Show an animal and its immobilization history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc := app.service()
			a, err := svc.GetAnimal(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			heading(out, a.DisplayName())
			fmt.Fprintf(out, "  ID:         %s\n", a.ID)
			fmt.Fprintf(out, "  Species:    %s\n", a.Species)
			fmt.Fprintf(out, "  Identifier: %s\n", orDash(a.Identifier))
			fmt.Fprintf(out, "  Sex:        %s\n", orDash(string(a.Sex)))
			fmt.Fprintf(out, "  Age class:  %s\n", orDash(string(a.AgeClass)))
			fmt.Fprintf(out, "  Weight:     %s kg\n", optNum(a.EstimatedWeight))
			if a.Location != nil {
				fmt.Fprintf(out, "  Location:   %s, %s\n", num(a.Location.Latitude), num(a.Location.Longitude))
			}
			if a.Notes != "" {
				fmt.Fprintf(out, "  Notes:      %s\n", a.Notes)
			}
			events := svc.EventsForAnimal(ctx, a.ID)
			fmt.Fprintf(out, "\n%d immobilization event(s)\n", len(events))
			for _, ev := range events {
				fmt.Fprintf(out, "  %s  %s  %s\n", ev.ID, app.stamp(ev.StartTime), ev.Status())
			}
			return nil
		},
	}
}

func animalUpdateCmd(app *App) *cobra.Command {
	var f animalFlags
	cmd := &cobra.Command{
		Use:   "update <animal-id>",
		Short: "Change fields of a registered animal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.service().UpdateAnimal(cmd.Context(), args[0], func(in *core.AnimalInput) error {
				f.apply(cmd.Flags(), in)
				return nil
			})
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Animal %s updated", a.ID)
			return nil
		},
	}
	f.bind(cmd.Flags())
	return cmd
}

func animalDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <animal-id>",
		Short: "Delete an animal (its events and measurements are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.service().DeleteAnimal(cmd.Context(), args[0]); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Animal %s deleted", args[0])
			return nil
		},
	}
}
