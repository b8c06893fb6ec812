package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/PRYePR/moreyudeals-sub000/internal/app"
	"github.com/PRYePR/moreyudeals-sub000/internal/config"
)

type options struct {
	store string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "dealctl",
		Short:         "Run deal pipeline steps once",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&opts.store, "store", "", "store backend override (firestore, sqlite, memory)")

	root.AddCommand(fetchCmd(opts), translateCmd(opts), sourcesCmd(opts))
	return root
}

// load reads the configuration and builds the pipeline. The caller closes it.
func load(cmd *cobra.Command, opts *options) (*app.App, *config.Config, error) {
	if opts.store != "" {
		if err := os.Setenv("STORE_BACKEND", opts.store); err != nil {
			return nil, nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.SetDefault(app.NewLogger(cmd.ErrOrStderr(), cfg.LogFormat, cfg.LogLevel))

	store, err := app.OpenStore(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	a, err := app.New(cmd.Context(), cfg, store, nil)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return a, cfg, nil
}

func fetchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <source>",
		Short: "Fetch one source once and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := load(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func translateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "translate",
		Short: "Translate one batch of pending deals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := load(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.Translate(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}

func sourcesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the enabled sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cfg, err := load(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			urls := map[string]string{
				"sparhamster": cfg.Sparhamster.BaseURL,
				"preisjaeger": cfg.Preisjaeger.BaseURL,
			}
			out := cmd.OutOrStdout()
			for _, name := range a.SourceNames() {
				fmt.Fprintf(out, "%s\t%s\n", name, urls[name])
			}
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
