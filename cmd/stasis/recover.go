package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sndnv/stasis-sub000/internal/app"
	"github.com/sndnv/stasis-sub000/internal/domain"
	"github.com/sndnv/stasis-sub000/internal/usecase/recovery"
)

var (
	recoverDefinition    string
	recoverUntil         string
	recoverEntry         string
	recoverQuery         string
	recoverDestination   string
	recoverKeepStructure bool

	cmdRecover = &cobra.Command{
		Use:   "recover",
		Short: "Recover the entities of a dataset definition or of a specific entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			descriptor, err := recoveryDescriptor()
			if err != nil {
				return err
			}

			return withApp(func(ctx context.Context, application *app.App) error {
				op, err := application.StartRecovery(ctx, descriptor)
				if err != nil {
					return err
				}

				return await(ctx, application, op)
			})
		},
	}
)

func init() {
	cmdRecover.Flags().StringVarP(&recoverDefinition, "definition", "d", "", "recover the latest entry of this dataset definition")
	cmdRecover.Flags().StringVar(&recoverUntil, "until", "", "only consider entries created until this RFC 3339 timestamp")
	cmdRecover.Flags().StringVar(&recoverEntry, "entry", "", "recover this dataset entry")
	cmdRecover.Flags().StringVarP(&recoverQuery, "query", "q", "", "only recover entities matching this regular expression")
	cmdRecover.Flags().StringVar(&recoverDestination, "destination", "", "recover into this directory instead of the original locations")
	cmdRecover.Flags().BoolVar(&recoverKeepStructure, "keep-structure", true, "keep the original directory structure under the destination")
	cmdRecover.MarkFlagsMutuallyExclusive("definition", "entry")
	cmdRecover.MarkFlagsOneRequired("definition", "entry")
}

func recoveryDescriptor() (recovery.Descriptor, error) {
	var descriptor recovery.Descriptor

	if recoverEntry != "" {
		entry, err := uuid.Parse(recoverEntry)
		if err != nil {
			return descriptor, fmt.Errorf("invalid entry [%s]: %w", recoverEntry, err)
		}
		descriptor = recovery.ForEntry(entry)
	} else {
		definition, err := uuid.Parse(recoverDefinition)
		if err != nil {
			return descriptor, fmt.Errorf("invalid definition [%s]: %w", recoverDefinition, err)
		}

		var until *time.Time
		if recoverUntil != "" {
			parsed, err := time.Parse(time.RFC3339, recoverUntil)
			if err != nil {
				return descriptor, fmt.Errorf("invalid until [%s]: %w", recoverUntil, err)
			}
			until = &parsed
		}
		descriptor = recovery.ForDefinition(definition, until)
	}

	if recoverEntry != "" && recoverUntil != "" {
		return descriptor, fmt.Errorf("--until cannot be used with --entry")
	}

	if recoverQuery != "" {
		query, err := recovery.NewPathQuery(recoverQuery)
		if err != nil {
			return descriptor, err
		}
		descriptor = descriptor.WithQuery(query)
	}

	if recoverDestination != "" {
		descriptor = descriptor.WithDestination(domain.Destination{
			Path:          recoverDestination,
			KeepStructure: recoverKeepStructure,
		})
	}

	return descriptor, nil
}
