package config

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFromFlags(t *testing.T) {
	viper.Reset()
	cmd := &cobra.Command{Use: "test"}
	InitGlobalFlags(cmd)

	flags := map[string]string{
		RootKey:            "/pool",
		LogLevelKey:        "3",
		MirrorBucketKey:    "community-mirror",
		MirrorAccessKeyKey: "AKIATEST",
		MirrorSecretKeyKey: "secret",
	}
	for key, value := range flags {
		require.NoError(t, cmd.PersistentFlags().Set(key, value))
	}

	cfg, err := Decode()
	require.NoError(t, err)
	assert.Equal(t, "/pool", cfg.Root)
	assert.Equal(t, int8(3), cfg.Log.Level)
	assert.Equal(t, "community-mirror", cfg.Mirror.Bucket)
	assert.Equal(t, "AKIATEST", cfg.Mirror.AccessKey)
	assert.Equal(t, "secret", cfg.Mirror.SecretKey)
}

func TestDecodeFromEnvironment(t *testing.T) {
	viper.Reset()
	t.Setenv("COMMANDPOST_ROOT", "/env-pool")
	t.Setenv("COMMANDPOST_LOG__LEVEL", "2")
	t.Setenv("COMMANDPOST_MIRROR__ACCESS_KEY", "AKIAENV")
	t.Setenv("COMMANDPOST_MIRROR__SECRET_KEY", "envsecret")

	cmd := &cobra.Command{Use: "test"}
	InitGlobalFlags(cmd)

	cfg, err := Decode()
	require.NoError(t, err)
	assert.Equal(t, "/env-pool", cfg.Root)
	assert.Equal(t, int8(2), cfg.Log.Level)
	assert.Equal(t, "AKIAENV", cfg.Mirror.AccessKey)
	assert.Equal(t, "envsecret", cfg.Mirror.SecretKey)
}
