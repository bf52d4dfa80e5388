// Package cli implements the wikid command tree. Every subcommand other
// than run operates directly on the local store; errors are one line on
// stderr with a non-zero exit.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"wikid/internal/config"
	"wikid/internal/data"
	"wikid/internal/fts"
	"wikid/internal/logger"
	"wikid/internal/service"
)

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// NewRootCmd assembles the full command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wikid",
		Short:         "wikid is a locally operated Markdown wiki engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRunCmd(),
		newUserCmd(),
		newPageCmd(),
		newLockCmd(),
		newAssetCmd(),
		newFtsCmd(),
		newCommandsCmd(root),
		newHelpAllCmd(root),
	)
	return root
}

// env bundles the opened store stack for offline subcommands.
type env struct {
	cfg   *config.Config
	store *data.Store
	index *fts.Index
	svc   *service.Service
}

// openEnv opens the local database the way the server does, but with a
// silent logger; subcommands own their stdout/stderr.
func openEnv() (*env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	store, err := data.Open(cfg.Store.DBFile, cfg.Store.AssetDir, time.Duration(cfg.Lock.TTLSeconds)*time.Second)
	if err != nil {
		return nil, err
	}
	index, err := fts.Open(cfg.Store.FTSFile)
	if err != nil {
		store.Close()
		return nil, err
	}
	svc := service.New(store, index, logger.Discard(), service.Config{
		TemplatePrefix: cfg.Page.TemplatePrefix,
		MaxUploadBytes: cfg.Asset.MaxUploadBytes,
	})
	return &env{cfg: cfg, store: store, index: index, svc: svc}, nil
}

func (e *env) close() {
	e.index.Close()
	e.store.Close()
}

// resolvePage accepts either a page id or an absolute path.
func (e *env) resolvePage(ref string) (data.PageID, error) {
	if id, err := data.ParsePageID(ref); err == nil {
		return id, nil
	}
	return e.store.ResolvePath(ref)
}

// newCommandsCmd prints the flattened command tree, one path per line.
func newCommandsCmd(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List every available command",
		RunE: func(cmd *cobra.Command, args []string) error {
			var walk func(c *cobra.Command)
			walk = func(c *cobra.Command) {
				if c.Runnable() {
					fmt.Fprintln(cmd.OutOrStdout(), c.CommandPath())
				}
				for _, sub := range c.Commands() {
					if !sub.Hidden {
						walk(sub)
					}
				}
			}
			walk(root)
			return nil
		},
	}
}

// newHelpAllCmd prints the help text of every command in the tree.
func newHelpAllCmd(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "help-all",
		Short: "Show help for every command",
		RunE: func(cmd *cobra.Command, args []string) error {
			var walk func(c *cobra.Command) error
			walk = func(c *cobra.Command) error {
				fmt.Fprintf(cmd.OutOrStdout(), "## %s\n\n", c.CommandPath())
				c.SetOut(cmd.OutOrStdout())
				if err := c.Help(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout())
				for _, sub := range c.Commands() {
					if sub.Hidden {
						continue
					}
					if err := walk(sub); err != nil {
						return err
					}
				}
				return nil
			}
			return walk(root)
		},
	}
}
