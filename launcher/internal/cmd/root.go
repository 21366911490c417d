// Package cmd wires the content manifest pool to the commandpost command line
// tool.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/dsnet/golib/unitconv"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mitchellh/go-wordwrap"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/commandpost/commandpost-go/common/logger"
	"github.com/commandpost/commandpost-go/launcher/internal/config"
	"github.com/commandpost/commandpost-go/launcher/pkg/manifest"
	"github.com/commandpost/commandpost-go/launcher/pkg/pool"
	"github.com/commandpost/commandpost-go/launcher/pkg/storage"
)

func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commandpost",
		Short: "Manage the game content manifest pool",
		Long: wrap(`commandpost manages a pool of game content manifests backed by
content-addressable storage. Identical files shared between manifests are stored
once; removing a manifest only deletes objects no other manifest references.

Configuration may be set using a mix of flags and environment variables, with
flags taking precedence. Environment variables are the flag name in capitals
prefixed with COMMANDPOST_, replacing dots (.) with a double underscore (__) and
hyphens (-) with an underscore (_). Example: COMMANDPOST_LOG__LEVEL=3`),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.InitGlobalFlags(cmd)
	cmd.AddCommand(
		newListCmd(),
		newSearchCmd(),
		newAddCmd(),
		newRemoveCmd(),
		newVerifyCmd(),
		newStatsCmd(),
		newMirrorCmd(),
	)
	return cmd
}

// env is the per-invocation wiring shared by all commands.
type env struct {
	cfg   *config.AppConfig
	log   *logger.Logger
	store *storage.Service
	pool  *pool.Pool
}

func newEnv() (*env, error) {
	cfg, err := config.Decode()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize logger: %w", err)
	}
	store := storage.NewService(afero.NewOsFs(), cfg.Root, log.Logger,
		storage.WithNumWorkers(cfg.NumWorkers))
	return &env{
		cfg:   cfg,
		log:   log,
		store: store,
		pool:  pool.NewPool(store, log.Logger),
	}, nil
}

func (e *env) close() {
	e.log.Sync()
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 100
}

func wrap(s string) string {
	return wordwrap.WrapString(s, uint(terminalWidth()))
}

func newTable(header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.SetAllowedRowLength(terminalWidth())
	t.AppendHeader(header)
	return t
}

func formatSize(bytes int64) string {
	return unitconv.FormatPrefix(float64(bytes), unitconv.IEC, 1) + "B"
}

// printManifests renders manifests as a table, or as JSON when --json is set.
func printManifests(cfg *config.AppConfig, manifests []*manifest.ContentManifest) error {
	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].Id.Normalized() < manifests[j].Id.Normalized()
	})

	if cfg.Json {
		out, err := json.MarshalIndent(manifests, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	t := newTable(table.Row{"ID", "Name", "Version", "Type", "Game", "Files", "Size"})
	for _, m := range manifests {
		t.AppendRow(table.Row{
			m.Id.String(), m.Name, m.Version,
			m.ContentType.String(), m.TargetGame.String(),
			len(m.Files), formatSize(m.TotalDeclaredSize()),
		})
	}
	t.Render()
	return nil
}
