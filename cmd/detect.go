package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/cvfill/api/schemas"
	"github.com/xkilldash9x/cvfill/internal/autofill/controller"
	"github.com/xkilldash9x/cvfill/internal/observability"
)

func newDetectCmd() *cobra.Command {
	var file, url string
	var highlight bool

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect and classify the fillable forms of a page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}

			t, err := openTarget(ctx, cfg, file, url, logger)
			if err != nil {
				return err
			}
			defer t.cleanup()

			ctrl := controller.New(t.page, cfg.Autofill(), logger)
			defer ctrl.Close()

			persist := true
			resp := ctrl.Handle(ctx, &schemas.Request{
				Action:            schemas.ActionDetectForms,
				Highlight:         &highlight,
				PersistHighlights: &persist,
			})
			if !resp.Success {
				return fmt.Errorf("detection failed: %s", resp.Message)
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	addTargetFlags(cmd, &file, &url)
	cmd.Flags().BoolVar(&highlight, "highlight", false, "outline detected forms in the browser")
	cmd.Flags().Bool("headless", false, "run the browser without a window")
	return cmd
}
