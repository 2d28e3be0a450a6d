package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/cvfill/api/schemas"
	"github.com/xkilldash9x/cvfill/internal/autofill/controller"
	"github.com/xkilldash9x/cvfill/internal/autofill/watcher"
	"github.com/xkilldash9x/cvfill/internal/bridge"
	"github.com/xkilldash9x/cvfill/internal/browser/session"
	"github.com/xkilldash9x/cvfill/internal/observability"
)

func newServeCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Drive a browser tab and answer protocol messages over HTTP and WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}

			mgr, err := session.NewManager(ctx, logger, cfg.Browser())
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = mgr.Shutdown(shutdownCtx)
			}()

			page, err := mgr.NewPage(ctx)
			if err != nil {
				return err
			}
			defer page.Close()

			if url != "" {
				if err := page.Navigate(ctx, url); err != nil {
					return err
				}
			}

			// The listener only fires on scans, which start after srv is set.
			var srv *bridge.Server
			ctrl := controller.New(page, cfg.Autofill(), logger, controller.WithScanListener(func(u schemas.FormsUpdate) {
				srv.Broadcast(u)
			}))
			defer ctrl.Close()
			srv = bridge.New(ctrl, cfg.Bridge(), logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.ListenAndServe(gctx)
			})
			// Scans the page just loaded and keeps the forms tied to later documents.
			nav := watcher.NewNavigator(page, ctrl.Reset, ctrl.Rescan, logger)
			g.Go(func() error {
				return nav.Run(gctx)
			})
			if cfg.Watcher().Enabled {
				w := watcher.New(page, ctrl.Rescan, cfg.Watcher(), logger)
				g.Go(func() error {
					return w.Run(gctx)
				})
			}

			logger.Info("Serving.", zap.String("address", cfg.Bridge().ListenAddr), zap.Bool("watcher", cfg.Watcher().Enabled))
			if err := g.Wait(); err != nil {
				return err
			}
			logger.Info("Stopped.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&url, "url", "u", "", "page to open on start")
	cmd.Flags().String("listen", "", "bridge listen address")
	cmd.Flags().Bool("headless", false, "run the browser without a window")
	cmd.Flags().Bool("watch", true, "rescan when the page structure changes")
	return cmd
}
