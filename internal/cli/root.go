package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "immobilog",
		Short: "Record wildlife immobilization events and export reports",
		Long: `immobilog records chemical immobilizations of wild animals: the animal,
the drugs given, phase transitions, vital signs and morphometric measurements.
It computes protocol doses from the species table and exports reports, CSV,
JSON and XLSX artifacts.

Settings come from --config, ./immobilog.yaml and IMMOBILOG_* variables,
e.g. IMMOBILOG_STORAGE_DRIVER=memory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&app.configPath, "config", "", "config file (default ./immobilog.yaml if present)")
	root.PersistentFlags().BoolVar(&app.noColor, "no-color", false, "disable colored output")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if app.noColor {
			color.NoColor = true
		}
		return app.setup(cmd.Context())
	}

	root.AddCommand(
		animalCmd(app),
		eventCmd(app),
		measureCmd(app),
		doseCmd(app),
		reportCmd(app),
		exportCmd(app),
		configCmd(app),
	)
	return root
}

// Execute runs one invocation and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer, opts ...Option) int {
	app := NewApp(opts...)
	root := NewRootCommand(app)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if cerr := app.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorMark(), err)
		return 1
	}
	return 0
}
