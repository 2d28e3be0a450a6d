package cmd

import (
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/cvfill/api/schemas"
	"github.com/xkilldash9x/cvfill/internal/autofill/controller"
	"github.com/xkilldash9x/cvfill/internal/autofill/profile"
	"github.com/xkilldash9x/cvfill/internal/observability"
)

func newMapCmd() *cobra.Command {
	var fieldsPath, profilePath, profileID string

	cmd := &cobra.Command{
		Use:   "map",
		Short: "Show which profile values a list of field descriptors would receive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}

			path, err := homedir.Expand(fieldsPath)
			if err != nil {
				return fmt.Errorf("failed to expand %q: %w", fieldsPath, err)
			}
			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read field descriptors: %w", err)
			}
			var fields []schemas.FieldDescriptor
			if err := json.Unmarshal(raw, &fields); err != nil {
				return fmt.Errorf("failed to decode field descriptors: %w", err)
			}

			rec, err := loadProfile(ctx, cfg, profilePath, profileID, logger)
			if err != nil {
				return err
			}

			resp := controller.GenerateMappings(profile.NewResolver(logger), rec, fields)
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&fieldsPath, "fields", "", "JSON array of field descriptors")
	_ = cmd.MarkFlagRequired("fields")
	addProfileFlags(cmd, &profilePath, &profileID)
	return cmd
}
