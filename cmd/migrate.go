package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		gateway, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer gateway.Close()

		if err := gateway.Migrate(cmd.Context()); err != nil {
			return err
		}
		zap.L().Info("schema migration complete", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
