package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"wikid/internal/fts"
)

func newFtsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fts",
		Short: "Maintain and query the full-text index",
	}
	cmd.AddCommand(newFtsRebuildCmd(), newFtsMergeCmd(), newFtsSearchCmd())
	return cmd
}

func newFtsRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Reconstruct the index from the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.close()
			return env.svc.RebuildIndex()
		},
	}
}

func newFtsMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge",
		Short: "Fold index segments together",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.close()
			return env.svc.MergeIndex()
		},
	}
}

func newFtsSearchCmd() *cobra.Command {
	var targets []string
	var withDeleted, allRevisions bool
	cmd := &cobra.Command{
		Use:   "search <expression>",
		Short: "Run a full-text query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.close()

			hits, err := env.svc.Search(fts.Query{
				Expression:   args[0],
				Targets:      targets,
				WithDeleted:  withDeleted,
				AllRevisions: allRevisions,
			})
			if err != nil {
				return err
			}
			for _, hit := range hits {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\trev %d\t%.2f\t%s\n", hit.Path, hit.Revision, hit.Score, hit.Snippet)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&targets, "target", nil, "fields to match: headings, body, code")
	cmd.Flags().BoolVar(&withDeleted, "with-deleted", false, "include soft-deleted pages")
	cmd.Flags().BoolVar(&allRevisions, "all-revision", false, "match historical revisions too")
	return cmd
}
