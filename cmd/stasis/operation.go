package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sndnv/stasis-sub000/internal/adapter/notifier"
	"github.com/sndnv/stasis-sub000/internal/app"
	"github.com/sndnv/stasis-sub000/internal/domain"
)

// await prints the stage steps of the operation as they complete, waits for
// it to finish and prints its summary.
func await(ctx context.Context, application *app.App, op domain.OperationID) error {
	fmt.Printf("Started operation [%s]\n", op)

	progressCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	printed := make(map[string]int)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for progress := range application.Progress(progressCtx, op) {
			stages := make([]string, 0, len(progress.Stages))
			for stage := range progress.Stages {
				stages = append(stages, stage)
			}
			sort.Strings(stages)

			for _, stage := range stages {
				steps := progress.Stages[stage].Steps
				for _, step := range steps[printed[stage]:] {
					fmt.Printf("  %-10s %s\n", stage, step.Name)
				}
				printed[stage] = len(steps)
			}
		}
	}()

	err := application.Wait(ctx, op)
	cancel()
	<-done

	if summary, ok := application.AwaitSummary(context.Background(), op); ok {
		fmt.Println(strings.TrimSpace(notifier.FormatSummary(op, summary, err)))
	}

	return err
}
