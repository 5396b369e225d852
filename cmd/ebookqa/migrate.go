package main

import (
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/ebookqa/config"
	srv "github.com/mohammad-safakhou/ebookqa/internal/server"
)

func migrateCMD() *cobra.Command {
	var migDir string
	var direction string
	var steps int
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			dsn, err := cfg.Storage.Postgres.DSN()
			if err != nil {
				return err
			}
			return srv.Migrate(migDir, dsn, direction, steps)
		},
	}
	cmd.Flags().StringVar(&migDir, "dir", "file://migrations", "migrations source")
	cmd.Flags().StringVar(&direction, "direction", "up", "up or down")
	cmd.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	return cmd
}
