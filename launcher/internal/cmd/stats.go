package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show storage statistics for the pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnv()
			if err != nil {
				return err
			}
			defer env.close()

			stats, err := env.pool.StorageStats(cmd.Context())
			if err != nil {
				return err
			}

			if env.cfg.Json {
				out, err := json.MarshalIndent(map[string]any{
					"manifests":        stats.Manifests,
					"objects":          stats.Objects,
					"totalObjectBytes": stats.TotalObjectBytes,
				}, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}

			t := newTable(table.Row{"Manifests", "Objects", "Total Size"})
			t.AppendRow(table.Row{stats.Manifests, stats.Objects, formatSize(stats.TotalObjectBytes)})
			t.Render()
			return nil
		},
	}
	return cmd
}
