package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/commandpost/commandpost-go/launcher/pkg/manifest"
)

type add_Config struct {
	Source       string
	MetadataOnly bool
}

func newAddCmd() *cobra.Command {
	cfg := add_Config{}

	cmd := &cobra.Command{
		Use:   "add <manifest.json>",
		Short: "Add a manifest and its content to the pool",
		Long: wrap(`Add a manifest to the pool. The manifest is validated first; on
success every declared content file is hashed and stored from the source
directory, deduplicated against content already in the pool, and finally the
manifest record itself is persisted. The operation fails as a whole if any
declared file is missing or does not match its declared hash.

With --metadata-only the manifest record is rewritten without touching content;
this requires the content to have been added before.`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("unable to read manifest file: %w", err)
			}
			var m manifest.ContentManifest
			if err := json.Unmarshal(data, &m); err != nil {
				return fmt.Errorf("unable to parse manifest file %s: %w", args[0], err)
			}

			env, err := newEnv()
			if err != nil {
				return err
			}
			defer env.close()

			if cfg.MetadataOnly {
				if err := env.pool.AddManifestMetadata(cmd.Context(), &m); err != nil {
					return err
				}
				fmt.Printf("Updated manifest %s\n", m.Id)
				return nil
			}
			if cfg.Source == "" {
				return fmt.Errorf("a source directory is required (set --source, or --metadata-only to update a stored manifest)")
			}
			if err := env.pool.AddManifest(cmd.Context(), &m, cfg.Source); err != nil {
				return err
			}
			fmt.Printf("Added manifest %s (%d files, %s)\n",
				m.Id, len(m.Files), formatSize(m.TotalDeclaredSize()))
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.Source, "source", "",
		"The directory holding the manifest's declared files, laid out by their relative paths.")
	cmd.Flags().BoolVar(&cfg.MetadataOnly, "metadata-only", false,
		"Rewrite the manifest record without storing content. The content must already be in the pool.")
	return cmd
}
