package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sndnv/stasis-sub000/internal/app"
	"github.com/sndnv/stasis-sub000/internal/domain"
)

var (
	scheduleInfo     string
	scheduleStart    string
	scheduleInterval time.Duration

	cmdSchedules = &cobra.Command{
		Use:   "schedules",
		Short: "Manage public schedules",
	}

	cmdSchedulesList = &cobra.Command{
		Use:   "list",
		Short: "List public schedules and their next invocation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, application *app.App) error {
				schedules, err := application.Schedules(ctx)
				if err != nil {
					return err
				}

				now := time.Now()
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tINFO\tSTART\tINTERVAL\tNEXT")
				for _, schedule := range schedules {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						schedule.ID,
						schedule.Info,
						schedule.Start.Format(time.RFC3339),
						schedule.Interval,
						schedule.NextInvocation(now).Format(time.RFC3339),
					)
				}
				return w.Flush()
			})
		},
	}

	cmdSchedulesCreate = &cobra.Command{
		Use:   "create",
		Short: "Create a public schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			if scheduleStart != "" {
				parsed, err := time.Parse(time.RFC3339, scheduleStart)
				if err != nil {
					return fmt.Errorf("invalid start [%s]: %w", scheduleStart, err)
				}
				start = parsed
			}

			schedule := domain.Schedule{
				ID:       uuid.New(),
				Info:     scheduleInfo,
				IsPublic: true,
				Start:    start,
				Interval: scheduleInterval,
			}

			return withApp(func(ctx context.Context, application *app.App) error {
				if err := application.PutSchedule(ctx, schedule); err != nil {
					return err
				}

				fmt.Printf("Created schedule [%s]\n", schedule.ID)
				return nil
			})
		},
	}
)

func init() {
	cmdSchedulesCreate.Flags().StringVar(&scheduleInfo, "info", "", "description of the schedule")
	cmdSchedulesCreate.Flags().StringVar(&scheduleStart, "start", "", "first invocation as an RFC 3339 timestamp (defaults to now)")
	cmdSchedulesCreate.Flags().DurationVar(&scheduleInterval, "interval", 24*time.Hour, "time between invocations")
	_ = cmdSchedulesCreate.MarkFlagRequired("info")

	cmdSchedules.AddCommand(cmdSchedulesList, cmdSchedulesCreate)
}
