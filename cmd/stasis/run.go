package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sndnv/stasis-sub000/internal/app"
)

var cmdRun = &cobra.Command{
	Use:   "run",
	Short: "Run scheduled backups, staging cleanup and server monitoring until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, application *app.App) error {
			return application.Run(ctx)
		})
	},
}
