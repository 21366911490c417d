package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/commandpost/commandpost-go/launcher/pkg/manifest"
)

type remove_Config struct {
	All bool
}

func newRemoveCmd() *cobra.Command {
	cfg := remove_Config{}

	cmd := &cobra.Command{
		Use:   "remove <manifest-id>...",
		Short: "Remove manifests and their unshared content",
		Long: wrap(`Remove manifests from the pool. Content objects are deleted only
when no remaining manifest references them; objects shared with other manifests
survive. Removing an id that is not in the pool is a successful no-op.`),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.All == (len(args) > 0) {
				return fmt.Errorf("specify either manifest ids or --all")
			}

			env, err := newEnv()
			if err != nil {
				return err
			}
			defer env.close()

			if cfg.All {
				removed, err := env.pool.RemoveAllManifests(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("Removed %d manifest(s)\n", removed)
				return nil
			}
			for _, arg := range args {
				id, err := manifest.NewId(arg)
				if err != nil {
					return err
				}
				if err := env.pool.RemoveManifest(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Printf("Removed manifest %s\n", id)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&cfg.All, "all", false, "Remove every manifest in the pool.")
	return cmd
}
