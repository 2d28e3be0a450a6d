package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cvfill/internal/autofill/profile"
	"github.com/xkilldash9x/cvfill/internal/browser/dom"
	"github.com/xkilldash9x/cvfill/internal/browser/memdoc"
	"github.com/xkilldash9x/cvfill/internal/browser/session"
	"github.com/xkilldash9x/cvfill/internal/config"
	"github.com/xkilldash9x/cvfill/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// target is the page a command works on: a parsed file or a live tab.
type target struct {
	page dom.Page
	// doc is set for file targets only.
	doc     *memdoc.Document
	cleanup func()
}

func addTargetFlags(cmd *cobra.Command, file, url *string) {
	cmd.Flags().StringVarP(file, "file", "f", "", "HTML file to work on offline")
	cmd.Flags().StringVarP(url, "url", "u", "", "URL to open in the browser")
	cmd.MarkFlagsMutuallyExclusive("file", "url")
	cmd.MarkFlagsOneRequired("file", "url")
}

func openTarget(ctx context.Context, cfg *config.Config, file, url string, logger *zap.Logger) (*target, error) {
	switch {
	case file != "" && url != "":
		return nil, fmt.Errorf("--file and --url are mutually exclusive")

	case file != "":
		path, err := homedir.Expand(file)
		if err != nil {
			return nil, fmt.Errorf("failed to expand %q: %w", file, err)
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open page: %w", err)
		}
		defer f.Close()

		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		doc, err := memdoc.Parse(f, "file://"+filepath.ToSlash(abs), logger)
		if err != nil {
			return nil, err
		}
		return &target{page: doc, doc: doc, cleanup: doc.Close}, nil

	case url != "":
		mgr, err := session.NewManager(ctx, logger, cfg.Browser())
		if err != nil {
			return nil, err
		}
		shutdown := func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = mgr.Shutdown(shutdownCtx)
		}
		page, err := mgr.NewPage(ctx)
		if err != nil {
			shutdown()
			return nil, err
		}
		if err := page.Navigate(ctx, url); err != nil {
			page.Close()
			shutdown()
			return nil, err
		}
		return &target{page: page, cleanup: func() {
			page.Close()
			shutdown()
		}}, nil

	default:
		return nil, fmt.Errorf("one of --file or --url is required")
	}
}

func addProfileFlags(cmd *cobra.Command, path, id *string) {
	cmd.Flags().StringVarP(path, "profile", "p", "", "profile JSON file (overrides the configured store)")
	cmd.Flags().StringVar(id, "profile-id", "", "profile id in the configured store")
}

// loadProfile reads from an explicit file when given, otherwise from the configured store.
func loadProfile(ctx context.Context, cfg *config.Config, path, id string, logger *zap.Logger) (*profile.Record, error) {
	var src store.ProfileSource
	var err error
	if path != "" {
		src, err = store.NewFileSource(path, logger)
	} else {
		src, err = store.Open(ctx, cfg.Store(), logger)
	}
	if err != nil {
		return nil, err
	}
	defer src.Close()

	if path != "" {
		id = ""
	}
	return src.Load(ctx, id)
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
