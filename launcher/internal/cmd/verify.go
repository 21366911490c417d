package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type verify_Config struct {
	CollectGarbage bool
}

func newVerifyCmd() *cobra.Command {
	cfg := verify_Config{}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Re-hash stored content objects and report corruption",
		Long: wrap(`Verify the integrity of the pool by re-hashing every stored content
object and comparing the result against the hash it is stored under. With --gc,
content objects no manifest references are removed afterwards; the collection is
skipped entirely if any manifest record is unreadable.`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnv()
			if err != nil {
				return err
			}
			defer env.close()

			issues, err := env.store.VerifyIntegrity(cmd.Context())
			if err != nil {
				return err
			}
			if len(issues) == 0 {
				fmt.Println("All stored objects verified OK")
			} else {
				t := newTable(table.Row{"Hash", "Actual Hash", "Error"})
				for _, issue := range issues {
					errMsg := ""
					if issue.Err != nil {
						errMsg = issue.Err.Error()
					}
					t.AppendRow(table.Row{issue.Hash, issue.ActualHash, errMsg})
				}
				t.Render()
			}

			if cfg.CollectGarbage {
				removed, err := env.store.CollectGarbage(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("Collected %d unreferenced object(s)\n", len(removed))
			}

			if len(issues) > 0 {
				return fmt.Errorf("%d stored object(s) failed verification", len(issues))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&cfg.CollectGarbage, "gc", false,
		"Remove content objects no manifest references after verification.")
	return cmd
}
