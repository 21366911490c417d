package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/commandpost/commandpost-go/launcher/pkg/cas"
	"github.com/commandpost/commandpost-go/launcher/pkg/manifest"
)

func newMirrorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror <manifest-id>...",
		Short: "Publish manifests and their content to an S3 bucket",
		Long: wrap(`Publish stored manifests to an S3 bucket for redistribution. Content
objects already present in the bucket are skipped, so re-running after a partial
failure only transfers what is missing. Each manifest record is uploaded after
its content, so a mirrored manifest never references content the bucket does not
hold. Configure the bucket with the --mirror.* flags or COMMANDPOST_MIRROR__*
environment variables; credentials follow the standard AWS configuration chain.`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnv()
			if err != nil {
				return err
			}
			defer env.close()

			if env.cfg.Mirror.Bucket == "" {
				return fmt.Errorf("a mirror bucket is required (set --mirror.bucket)")
			}
			target, err := cas.NewS3Store(cmd.Context(), env.cfg.Mirror)
			if err != nil {
				return err
			}

			for _, arg := range args {
				id, err := manifest.NewId(arg)
				if err != nil {
					return err
				}
				if err := env.store.MirrorContent(cmd.Context(), id, target); err != nil {
					return err
				}
				fmt.Printf("Mirrored manifest %s to s3://%s\n", id, env.cfg.Mirror.Bucket)
			}
			return nil
		},
	}
	return cmd
}
