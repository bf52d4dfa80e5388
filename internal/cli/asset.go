package cli

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"wikid/internal/data"
)

func newAssetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "asset",
		Short: "Manage page assets",
	}
	cmd.AddCommand(
		newAssetAddCmd(),
		newAssetListCmd(),
		newAssetDeleteCmd(),
		newAssetUndeleteCmd(),
		newAssetMoveCmd(),
	)
	return cmd
}

func newAssetAddCmd() *cobra.Command {
	var userName, name string
	cmd := &cobra.Command{
		Use:   "add <page-path|page-id> <file>",
		Short: "Attach a file to a page",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.close()

			pageID, err := env.resolvePage(args[0])
			if err != nil {
				return err
			}
			file, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer file.Close()

			fileName := name
			if fileName == "" {
				fileName = filepath.Base(args[1])
			}
			mimeType := mime.TypeByExtension(filepath.Ext(fileName))
			if mimeType == "" {
				mimeType = "application/octet-stream"
			}
			info, err := env.svc.UploadAsset(pageID, fileName, mimeType, file, userName, nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), info.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&userName, "user", "local", "uploader name recorded on the asset")
	cmd.Flags().StringVar(&name, "name", "", "file name on the page (defaults to the file's base name)")
	return cmd
}

func newAssetListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [page-path|page-id]",
		Short: "List assets, all of them or one page's",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.close()

			if len(args) == 1 {
				pageID, err := env.resolvePage(args[0])
				if err != nil {
					return err
				}
				assets, err := env.store.ListPageAssets(pageID)
				if err != nil {
					return err
				}
				for _, info := range assets {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%d\n", info.ID, info.FileName, info.Mime, info.Size)
				}
				return nil
			}

			entries, err := env.store.ListAssets()
			if err != nil {
				return err
			}
			for _, entry := range entries {
				state := ""
				switch {
				case entry.Info.IsZombie():
					state = " [zombie]"
				case entry.Info.Deleted:
					state = " [deleted]"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%d%s\n",
					entry.Info.ID, entry.Path, entry.Info.FileName, entry.Info.Size, state)
			}
			return nil
		},
	}
	return cmd
}

func newAssetDeleteCmd() *cobra.Command {
	var hard bool
	cmd := &cobra.Command{
		Use:   "delete <asset-id>",
		Short: "Soft-delete an asset (or erase it with --hard)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.close()

			id, err := data.ParseAssetID(args[0])
			if err != nil {
				return fmt.Errorf("invalid asset id: %s", args[0])
			}
			if hard {
				return env.svc.HardDeleteAsset(id)
			}
			return env.svc.DeleteAsset(id)
		},
	}
	cmd.Flags().BoolVar(&hard, "hard", false, "remove the metadata and the bytes")
	return cmd
}

func newAssetUndeleteCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "undelete <asset-id>",
		Short: "Revive a soft-deleted asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.close()

			id, err := data.ParseAssetID(args[0])
			if err != nil {
				return fmt.Errorf("invalid asset id: %s", args[0])
			}
			var newName *string
			if name != "" {
				newName = &name
			}
			return env.svc.UndeleteAsset(id, newName)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "revive under a different file name")
	return cmd
}

func newAssetMoveCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "move_to <asset-id> <page-path|page-id>",
		Short: "Reattach an asset to another page",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.close()

			id, err := data.ParseAssetID(args[0])
			if err != nil {
				return fmt.Errorf("invalid asset id: %s", args[0])
			}
			pageID, err := env.resolvePage(args[1])
			if err != nil {
				return err
			}
			return env.svc.MoveAsset(id, pageID, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "displace a same-name asset and allow deleted destinations")
	return cmd
}
