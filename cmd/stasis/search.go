package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/sndnv/stasis-sub000/internal/app"
)

var (
	searchUntil string

	cmdSearch = &cobra.Command{
		Use:   "search <query>",
		Short: "Search the latest entry of every dataset definition for entities matching a regular expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var until *time.Time
			if searchUntil != "" {
				parsed, err := time.Parse(time.RFC3339, searchUntil)
				if err != nil {
					return fmt.Errorf("invalid until [%s]: %w", searchUntil, err)
				}
				until = &parsed
			}

			return withApp(func(ctx context.Context, application *app.App) error {
				results, err := application.Search(ctx, args[0], until)
				if err != nil {
					return err
				}

				for _, result := range results {
					if result.Entry == nil {
						fmt.Printf("%s (%s): no entries\n", result.Info, result.Definition)
						continue
					}

					fmt.Printf("%s (%s): entry [%s] created %s, %d match(es)\n",
						result.Info, result.Definition, result.Entry, result.EntryCreated.Format(time.RFC3339), len(result.Matches))

					paths := make([]string, 0, len(result.Matches))
					for path := range result.Matches {
						paths = append(paths, path)
					}
					sort.Strings(paths)

					for _, path := range paths {
						metadata := result.Matches[path]
						fmt.Printf("  %-9s %s\n", metadata.Kind, path)
					}
				}

				return nil
			})
		},
	}
)

func init() {
	cmdSearch.Flags().StringVar(&searchUntil, "until", "", "only consider entries created until this RFC 3339 timestamp")
}
