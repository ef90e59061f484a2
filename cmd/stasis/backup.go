package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sndnv/stasis-sub000/internal/app"
	"github.com/sndnv/stasis-sub000/internal/usecase/backup"
)

var (
	backupDefinition string
	backupRules      string
	backupEntities   []string

	cmdBackup = &cobra.Command{
		Use:   "backup",
		Short: "Back up a dataset definition, selected by rules or by an explicit entity list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			definition, err := uuid.Parse(backupDefinition)
			if err != nil {
				return fmt.Errorf("invalid definition [%s]: %w", backupDefinition, err)
			}

			if backupRules != "" && len(backupEntities) > 0 {
				return fmt.Errorf("either --rules or --entity can be used, not both")
			}

			return withApp(func(ctx context.Context, application *app.App) error {
				descriptor, err := backupDescriptor(application, backupRules, backupEntities)
				if err != nil {
					return err
				}

				op, err := application.StartBackup(ctx, definition, descriptor)
				if err != nil {
					return err
				}

				return await(ctx, application, op)
			})
		},
	}
)

func init() {
	cmdBackup.Flags().StringVarP(&backupDefinition, "definition", "d", "", "dataset definition to back up")
	cmdBackup.Flags().StringVarP(&backupRules, "rules", "r", "", "rules file selecting the entities (defaults to backup.rules_file)")
	cmdBackup.Flags().StringArrayVarP(&backupEntities, "entity", "e", nil, "entity to back up; can be repeated")
	_ = cmdBackup.MarkFlagRequired("definition")
}

func backupDescriptor(application *app.App, rulesFile string, entities []string) (backup.Descriptor, error) {
	if len(entities) > 0 {
		return backup.WithEntities(entities), nil
	}

	rules, err := application.BackupRules(rulesFile)
	if err != nil {
		return backup.Descriptor{}, err
	}

	return backup.WithRules(rules), nil
}
