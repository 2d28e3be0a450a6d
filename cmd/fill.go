package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cvfill/internal/autofill/controller"
	"github.com/xkilldash9x/cvfill/internal/observability"
)

func newFillCmd() *cobra.Command {
	var file, url, profilePath, profileID, out string

	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Fill the forms of a page from a profile",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if out != "" && file == "" {
				return fmt.Errorf("--out requires --file")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}

			rec, err := loadProfile(ctx, cfg, profilePath, profileID, logger)
			if err != nil {
				return err
			}

			t, err := openTarget(ctx, cfg, file, url, logger)
			if err != nil {
				return err
			}
			defer t.cleanup()

			autofillCfg := cfg.Autofill()
			if t.doc != nil {
				// No one watches a file; keep flash styles out of the rendered output.
				autofillCfg.HighlightDuration = 0
			}
			ctrl := controller.New(t.page, autofillCfg, logger)
			defer ctrl.Close()

			if err := ctrl.Rescan(ctx); err != nil {
				return err
			}
			n, err := ctrl.Fill(ctx, rec)
			if errors.Is(err, controller.ErrNoForms) {
				fmt.Fprintln(cmd.OutOrStdout(), "No forms detected")
				return nil
			}
			if err != nil {
				return err
			}
			if n == 1 {
				fmt.Fprintln(cmd.OutOrStdout(), "Filled 1 field")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Filled %d fields\n", n)
			}

			if out == "" {
				return nil
			}
			path, err := homedir.Expand(out)
			if err != nil {
				return fmt.Errorf("failed to expand %q: %w", out, err)
			}
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("failed to create output: %w", err)
			}
			if err := t.doc.Render(f); err != nil {
				f.Close()
				return fmt.Errorf("failed to render page: %w", err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			logger.Info("Wrote filled page.", zap.String("path", path))
			return nil
		},
	}
	addTargetFlags(cmd, &file, &url)
	addProfileFlags(cmd, &profilePath, &profileID)
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the filled page here (file targets only)")
	cmd.Flags().Bool("headless", false, "run the browser without a window")
	return cmd
}
