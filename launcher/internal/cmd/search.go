package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/commandpost/commandpost-go/launcher/pkg/manifest"
)

type search_Config struct {
	Term   string
	Type   string
	Game   string
	Filter string
}

func newSearchCmd() *cobra.Command {
	cfg := search_Config{}

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search manifests by term, type, game, or a filter expression",
		Long: wrap(`Search manifests in the pool. All given filters are AND-combined;
absent filters match everything. The search term matches case-insensitively
against the manifest name or id.`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := manifest.SearchQuery{SearchTerm: cfg.Term, Filter: cfg.Filter}
			if cfg.Type != "" {
				query.ContentType = manifest.ContentTypeFromString(cfg.Type)
				if query.ContentType == manifest.UnknownContent {
					return fmt.Errorf("unknown content type %q", cfg.Type)
				}
			}
			if cfg.Game != "" {
				query.TargetGame = manifest.TargetGameFromString(cfg.Game)
				if query.TargetGame == manifest.UnknownGame {
					return fmt.Errorf("unknown target game %q", cfg.Game)
				}
			}

			env, err := newEnv()
			if err != nil {
				return err
			}
			defer env.close()

			found, err := env.pool.SearchManifests(cmd.Context(), query)
			if err != nil {
				return err
			}
			return printManifests(env.cfg, found)
		},
	}

	cmd.Flags().StringVar(&cfg.Term, "term", "", "A substring to match against manifest names and ids.")
	cmd.Flags().StringVar(&cfg.Type, "type", "", "Only return manifests of this content type (e.g. 'mod', 'mapPack').")
	cmd.Flags().StringVar(&cfg.Game, "game", "", "Only return manifests targeting this game (e.g. 'generals', 'zeroHour').")
	cmd.Flags().StringVar(&cfg.Filter, "filter", "", wrap(manifest.FilterHelp))
	return cmd
}
