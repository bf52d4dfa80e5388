package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"wikid/internal/data"
)

func newPageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "page",
		Short: "Manage wiki pages",
	}
	cmd.AddCommand(
		newPageAddCmd(),
		newPageListCmd(),
		newPageShowCmd(),
		newPageDiffCmd(),
		newPageDeleteCmd(),
		newPageUnlockCmd(),
		newPageUndeleteCmd(),
		newPageMoveCmd(),
	)
	return cmd
}

func newPageAddCmd() *cobra.Command {
	var userName, file string
	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Create a page from a file or stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.close()

			var source []byte
			if file != "" {
				source, err = os.ReadFile(file)
			} else {
				source, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("failed to read page source: %w", err)
			}

			draft, lock, err := env.svc.CreateDraft(args[0], userName)
			if err != nil {
				return err
			}
			token := lock.Token
			if _, err := env.svc.PutPage(draft.ID, string(source), userName, false, &token); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), draft.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&userName, "user", "local", "author name recorded on the revision")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the source from a file instead of stdin")
	return cmd
}

func newPageListCmd() *cobra.Command {
	var withDeleted bool
	cmd := &cobra.Command{
		Use:   "list [prefix]",
		Short: "List pages under a prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.close()

			prefix := data.RootPagePath
			if len(args) == 1 {
				prefix = args[0]
			}
			entries, err := env.store.ListPages(prefix, withDeleted)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				state := ""
				switch {
				case entry.Draft:
					state = " [draft]"
				case entry.Deleted:
					state = " [deleted]"
				case entry.Locked:
					state = " [locked]"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\trev %d%s\n", entry.Path, entry.ID, entry.Latest, state)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withDeleted, "with-deleted", false, "include soft-deleted pages")
	return cmd
}

func newPageShowCmd() *cobra.Command {
	var rev uint32
	var render bool
	cmd := &cobra.Command{
		Use:   "show <path|id>",
		Short: "Print a page's source, optionally rendered for the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.close()

			id, err := env.resolvePage(args[0])
			if err != nil {
				return err
			}
			src, err := env.store.GetSource(id, data.Revision(rev))
			if err != nil {
				return err
			}
			if !render {
				fmt.Fprint(cmd.OutOrStdout(), src.Source)
				return nil
			}
			renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
			if err != nil {
				return err
			}
			out, err := renderer.Render(src.Source)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&rev, "rev", 0, "revision to show (0 = latest)")
	cmd.Flags().BoolVar(&render, "render", false, "render the Markdown for the terminal")
	return cmd
}

func newPageDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <path|id> <from> <to>",
		Short: "Show a patch between two revisions",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.close()

			id, err := env.resolvePage(args[0])
			if err != nil {
				return err
			}
			from, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid from revision: %s", args[1])
			}
			to, err := strconv.ParseUint(args[2], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid to revision: %s", args[2])
			}
			patch, err := env.svc.DiffRevisions(id, data.Revision(from), data.Revision(to))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), patch)
			return nil
		},
	}
}

func newPageDeleteCmd() *cobra.Command {
	var userName string
	var hard, recursive bool
	cmd := &cobra.Command{
		Use:   "delete <path|id>",
		Short: "Soft-delete a page (or erase it with --hard)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.close()

			id, err := env.resolvePage(args[0])
			if err != nil {
				return err
			}
			if hard {
				return env.svc.HardDeletePage(id, recursive)
			}
			_, err = env.svc.DeletePage(id, userName, nil, recursive)
			return err
		},
	}
	cmd.Flags().StringVar(&userName, "user", "local", "operator name")
	cmd.Flags().BoolVar(&hard, "hard", false, "erase revisions and zombify assets")
	cmd.Flags().BoolVar(&recursive, "recursive", false, "include every page under the path")
	return cmd
}

func newPageUnlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <path|id>",
		Short: "Force-release a page's lock (drafts are discarded)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.close()

			id, err := env.resolvePage(args[0])
			if err != nil {
				return err
			}
			return env.svc.UnlockPage(id)
		},
	}
}

func newPageUndeleteCmd() *cobra.Command {
	var to string
	var recursive, withAssets bool
	cmd := &cobra.Command{
		Use:   "undelete <id>",
		Short: "Restore a soft-deleted page to a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.close()

			id, err := data.ParsePageID(args[0])
			if err != nil {
				return fmt.Errorf("invalid page id: %s", args[0])
			}
			if to == "" {
				return fmt.Errorf("missing --to path")
			}
			return env.svc.Undelete(id, to, recursive, withAssets)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "path to restore the page at")
	cmd.Flags().BoolVar(&recursive, "recursive", false, "restore the deleted subtree as well")
	cmd.Flags().BoolVar(&withAssets, "with-assets", false, "revive the page's soft-deleted assets")
	return cmd
}

func newPageMoveCmd() *cobra.Command {
	var userName string
	var recursive bool
	cmd := &cobra.Command{
		Use:   "move_to <path|id> <new-path>",
		Short: "Rename a page",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.close()

			id, err := env.resolvePage(args[0])
			if err != nil {
				return err
			}
			pairs, err := env.svc.Rename(id, args[1], userName, recursive)
			if err != nil {
				return err
			}
			for _, pair := range pairs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", pair.From, pair.To)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userName, "user", "local", "author name recorded on the rename revision")
	cmd.Flags().BoolVar(&recursive, "recursive", false, "move every page under the path")
	return cmd
}
