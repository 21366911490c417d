// Package config handles the command line tool's global configuration: flags,
// COMMANDPOST_ environment variable bindings, and decoding into typed config
// structs. Precedence (highest to lowest): flags, environment, defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/commandpost/commandpost-go/common/logger"
	"github.com/commandpost/commandpost-go/launcher/pkg/cas"
)

// Global flag keys.
const (
	RootKey       = "root"
	NumWorkersKey = "num-workers"
	PrintJsonKey  = "json"

	LogTypeKey      = "log.type"
	LogFileKey      = "log.file"
	LogLevelKey     = "log.level"
	LogDeveloperKey = "log.developer"

	MirrorBucketKey    = "mirror.bucket"
	MirrorPrefixKey    = "mirror.prefix"
	MirrorRegionKey    = "mirror.region"
	MirrorEndpointKey  = "mirror.endpoint-url"
	MirrorAccessKeyKey = "mirror.access-key"
	MirrorSecretKeyKey = "mirror.secret-key"
)

const envVarPrefix = "commandpost"

// AppConfig is the decoded global configuration.
type AppConfig struct {
	Root       string        `mapstructure:"root"`
	NumWorkers int           `mapstructure:"num-workers"`
	Json       bool          `mapstructure:"json"`
	Log        logger.Config `mapstructure:"log"`
	Mirror     cas.S3Config  `mapstructure:"mirror"`
}

// InitGlobalFlags defines all global flags and binds them, along with the
// matching COMMANDPOST_ environment variables, to viper.
func InitGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String(RootKey, defaultRoot(), "The storage root holding manifest records and content objects.")
	cmd.PersistentFlags().Int(NumWorkersKey, runtime.GOMAXPROCS(0), "The maximum number of workers to use when a command can complete work in parallel (default: number of CPUs).")
	cmd.PersistentFlags().Bool(PrintJsonKey, false, "Print output normally rendered using a table as JSON instead.")

	cmd.PersistentFlags().String(LogTypeKey, "stderr", "Where log messages should be sent ('stderr', 'stdout', 'logfile').")
	cmd.PersistentFlags().String(LogFileKey, "", "The path to the desired log file when log.type is 'logfile' (if needed the directory and all parent directories will be created).")
	cmd.PersistentFlags().Int8(LogLevelKey, 0, "Adjust the logging level (0=Fatal, 1=Error, 2=Warn, 3=Info, 4+5=Debug).")
	cmd.PersistentFlags().Bool(LogDeveloperKey, false, "Enable developer logging including stack traces and setting the equivalent of log.level=5 and log.type=stdout.")
	cmd.PersistentFlags().MarkHidden(LogDeveloperKey)

	cmd.PersistentFlags().String(MirrorBucketKey, "", "The S3 bucket the mirror command publishes to.")
	cmd.PersistentFlags().String(MirrorPrefixKey, "", "An optional key prefix prepended to everything the mirror command uploads.")
	cmd.PersistentFlags().String(MirrorRegionKey, "", "The region of the mirror bucket.")
	cmd.PersistentFlags().String(MirrorEndpointKey, "", "An optional S3-compatible endpoint URL for the mirror bucket.")
	cmd.PersistentFlags().String(MirrorAccessKeyKey, "", "A static access key for the mirror bucket. Prefer the standard AWS configuration chain, or COMMANDPOST_MIRROR__ACCESS_KEY over the flag.")
	cmd.PersistentFlags().String(MirrorSecretKeyKey, "", "The static secret key matching mirror.access-key. Prefer the standard AWS configuration chain, or COMMANDPOST_MIRROR__SECRET_KEY over the flag.")
	cmd.PersistentFlags().MarkHidden(MirrorAccessKeyKey)
	cmd.PersistentFlags().MarkHidden(MirrorSecretKeyKey)

	// Environment variables cannot use "-" or ".", replace with "_" and "__".
	viper.SetEnvPrefix(envVarPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "__"))
	cmd.PersistentFlags().VisitAll(func(flag *pflag.Flag) {
		viper.BindEnv(flag.Name)
		viper.BindPFlag(flag.Name, flag)
	})
}

// Decode unmarshals the merged flag/environment state into an AppConfig.
func Decode() (*AppConfig, error) {
	cfg := &AppConfig{}
	err := viper.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("a storage root is required (set --%s or COMMANDPOST_ROOT)", RootKey)
	}
	return cfg, nil
}

// defaultRoot places the pool under the platform's user configuration
// directory. Empty when the platform provides none; Decode then requires an
// explicit root.
func defaultRoot() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "commandpost", "pool")
}
