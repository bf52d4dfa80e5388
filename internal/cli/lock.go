package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"wikid/internal/data"
)

func newLockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect and remove page locks",
	}
	cmd.AddCommand(newLockListCmd(), newLockDeleteCmd())
	return cmd
}

func newLockListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List live locks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.close()

			entries, err := env.svc.ListLocks()
			if err != nil {
				return err
			}
			for _, entry := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\texpires %s\n",
					entry.Path, entry.Lock.UserName, entry.Lock.Token,
					entry.Lock.Expire.UTC().Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newLockDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <token>",
		Short: "Remove a lock by its token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.close()

			token, err := data.ParseLockToken(args[0])
			if err != nil {
				return fmt.Errorf("invalid lock token: %s", args[0])
			}
			return env.store.DeleteLockByToken(token)
		},
	}
}
