package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"immobilog/internal/config"
)

func configCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := app.cfg
			out := cmd.OutOrStdout()
			file := cfg.File
			if file == "" {
				file = "(none, defaults and " + config.EnvPrefix + "_* environment)"
			}
			heading(out, "Configuration")
			fmt.Fprintf(out, "  file:            %s\n", file)
			fmt.Fprintf(out, "  storage.driver:  %s\n", cfg.Storage.Driver)
			switch cfg.Storage.Driver {
			case "sqlite":
				fmt.Fprintf(out, "  sqlite_path:     %s\n", cfg.Storage.SQLitePath)
			case "redis":
				fmt.Fprintf(out, "  redis_addr:      %s (db %d, prefix %q)\n", cfg.Storage.RedisAddr, cfg.Storage.RedisDB, cfg.Storage.RedisPrefix)
			}
			fmt.Fprintf(out, "  blob.driver:     %s\n", cfg.Blob.Driver)
			switch cfg.Blob.Driver {
			case "fs":
				fmt.Fprintf(out, "  fs_root:         %s\n", cfg.Blob.FSRoot)
			case "s3":
				fmt.Fprintf(out, "  s3_bucket:       %s (%s)\n", cfg.Blob.S3.Bucket, cfg.Blob.S3.Region)
			}
			fmt.Fprintf(out, "  log:             %s/%s\n", cfg.Log.Level, cfg.Log.Format)
			fmt.Fprintf(out, "  protocols.file:  %s\n", orDash(cfg.ProtocolsFile))
			fmt.Fprintf(out, "  metrics.file:    %s\n", orDash(cfg.MetricsFile))
			fmt.Fprintf(out, "  protocol table:  %d species\n", len(app.service().Protocols().Species()))
			return nil
		},
	}
}
