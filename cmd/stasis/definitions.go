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
	definitionInfo           string
	definitionCopies         int
	definitionExistingPolicy string
	definitionExistingCount  int
	definitionExistingMaxAge time.Duration
	definitionRemovedPolicy  string
	definitionRemovedCount   int
	definitionRemovedMaxAge  time.Duration
	entriesDefinition        string

	cmdDefinitions = &cobra.Command{
		Use:   "definitions",
		Short: "Manage dataset definitions",
	}

	cmdDefinitionsList = &cobra.Command{
		Use:   "list",
		Short: "List dataset definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, application *app.App) error {
				definitions, err := application.Definitions(ctx)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tINFO\tCOPIES\tEXISTING\tREMOVED\tCREATED")
				for _, definition := range definitions {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
						definition.ID,
						definition.Info,
						definition.RedundantCopies,
						renderRetention(definition.ExistingVersions),
						renderRetention(definition.RemovedVersions),
						definition.Created.Format(time.RFC3339),
					)
				}
				return w.Flush()
			})
		},
	}

	cmdDefinitionsCreate = &cobra.Command{
		Use:   "create",
		Short: "Create a dataset definition for this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			request := domain.CreateDatasetDefinition{
				Info:            definitionInfo,
				RedundantCopies: definitionCopies,
				ExistingVersions: domain.Retention{
					Policy:   domain.RetentionPolicy{Kind: domain.RetentionPolicyKind(definitionExistingPolicy), Versions: definitionExistingCount},
					Duration: definitionExistingMaxAge,
				},
				RemovedVersions: domain.Retention{
					Policy:   domain.RetentionPolicy{Kind: domain.RetentionPolicyKind(definitionRemovedPolicy), Versions: definitionRemovedCount},
					Duration: definitionRemovedMaxAge,
				},
			}

			if err := request.ExistingVersions.Policy.Validate(); err != nil {
				return fmt.Errorf("invalid existing versions policy: %w", err)
			}
			if err := request.RemovedVersions.Policy.Validate(); err != nil {
				return fmt.Errorf("invalid removed versions policy: %w", err)
			}

			return withApp(func(ctx context.Context, application *app.App) error {
				id, err := application.CreateDefinition(ctx, request)
				if err != nil {
					return err
				}

				fmt.Printf("Created definition [%s]\n", id)
				return nil
			})
		},
	}

	cmdEntries = &cobra.Command{
		Use:   "entries",
		Short: "Inspect dataset entries",
	}

	cmdEntriesList = &cobra.Command{
		Use:   "list",
		Short: "List the entries of a dataset definition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			definition, err := uuid.Parse(entriesDefinition)
			if err != nil {
				return fmt.Errorf("invalid definition [%s]: %w", entriesDefinition, err)
			}

			return withApp(func(ctx context.Context, application *app.App) error {
				entries, err := application.Entries(ctx, definition)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tCRATES\tMETADATA\tCREATED")
				for _, entry := range entries {
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", entry.ID, len(entry.Data), entry.Metadata, entry.Created.Format(time.RFC3339))
				}
				return w.Flush()
			})
		},
	}
)

func init() {
	cmdDefinitionsCreate.Flags().StringVar(&definitionInfo, "info", "", "description of the definition")
	cmdDefinitionsCreate.Flags().IntVar(&definitionCopies, "copies", 1, "number of copies kept of every crate")
	cmdDefinitionsCreate.Flags().StringVar(&definitionExistingPolicy, "existing-policy", string(domain.PolicyAll), "retention policy for existing entities (at-most, latest-only, all)")
	cmdDefinitionsCreate.Flags().IntVar(&definitionExistingCount, "existing-versions", 0, "versions kept by the at-most policy for existing entities")
	cmdDefinitionsCreate.Flags().DurationVar(&definitionExistingMaxAge, "existing-duration", 30*24*time.Hour, "how long versions of existing entities are kept")
	cmdDefinitionsCreate.Flags().StringVar(&definitionRemovedPolicy, "removed-policy", string(domain.PolicyLatestOnly), "retention policy for removed entities (at-most, latest-only, all)")
	cmdDefinitionsCreate.Flags().IntVar(&definitionRemovedCount, "removed-versions", 0, "versions kept by the at-most policy for removed entities")
	cmdDefinitionsCreate.Flags().DurationVar(&definitionRemovedMaxAge, "removed-duration", 365*24*time.Hour, "how long versions of removed entities are kept")
	_ = cmdDefinitionsCreate.MarkFlagRequired("info")

	cmdDefinitions.AddCommand(cmdDefinitionsList, cmdDefinitionsCreate)

	cmdEntriesList.Flags().StringVarP(&entriesDefinition, "definition", "d", "", "dataset definition")
	_ = cmdEntriesList.MarkFlagRequired("definition")

	cmdEntries.AddCommand(cmdEntriesList)
}

func renderRetention(retention domain.Retention) string {
	if retention.Policy.Kind == domain.PolicyAtMost {
		return fmt.Sprintf("%s(%d)/%s", retention.Policy.Kind, retention.Policy.Versions, retention.Duration)
	}
	return fmt.Sprintf("%s/%s", retention.Policy.Kind, retention.Duration)
}
