package cmd

import (
	"github.com/spf13/cobra"

	"github.com/commandpost/commandpost-go/launcher/pkg/discovery"
)

type list_Config struct {
	Include []string
	Exclude []string
}

func newListCmd() *cobra.Command {
	cfg := list_Config{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List manifests in the pool",
		Long: wrap(`List manifests in the pool by running a discovery pass over the
storage root. Unreadable manifest records are skipped and logged, so a corrupted
record never hides the rest of the catalog.`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnv()
			if err != nil {
				return err
			}
			defer env.close()

			scanner, err := discovery.NewScanner(env.store, env.pool.Cache(), env.log.Logger,
				discovery.WithIncludes(cfg.Include...),
				discovery.WithExcludes(cfg.Exclude...),
				discovery.WithNumWorkers(env.cfg.NumWorkers))
			if err != nil {
				return err
			}
			if _, err := scanner.Run(cmd.Context()); err != nil {
				return err
			}
			return printManifests(env.cfg, env.pool.Cache().GetAll())
		},
	}

	cmd.Flags().StringSliceVar(&cfg.Include, "include", nil,
		"Only list manifests whose id matches one of these glob patterns (e.g. 'pub.*').")
	cmd.Flags().StringSliceVar(&cfg.Exclude, "exclude", nil,
		"Skip manifests whose id matches one of these glob patterns. Excludes win over includes.")
	return cmd
}
