package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ngbundle/ngbundle/internal/manifest"
)

func newManifestCommand(global *globalParams) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Print the package.json published with the library",
		RunE: func(cmd *cobra.Command, _ []string) error {
			workspace, cfg, err := global.load()
			if err != nil {
				return err
			}

			log, err := global.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			meta, err := manifest.Resolve(workspace, cfg.SourceRoot, cfg.Package)
			if err != nil {
				return err
			}

			rootPath := cfg.Manifest
			if !filepath.IsAbs(rootPath) {
				rootPath = filepath.Join(workspace, rootPath)
			}
			root, err := os.ReadFile(rootPath)
			if err != nil {
				return fmt.Errorf("failed to read workspace manifest: %w", err)
			}
			pkg, err := os.ReadFile(filepath.Join(meta.PackageDir, manifest.FileName))
			if err != nil {
				return fmt.Errorf("failed to read package manifest: %w", err)
			}

			var opts []manifest.MergeOption
			if sha, err := manifest.GitHead(workspace); err != nil {
				log.Warnf("failed to read git HEAD: %v", err)
			} else if sha != "" {
				opts = append(opts, manifest.WithGitHead(sha))
			}

			out, err := manifest.Merge(root, pkg, meta.UMD, opts...)
			if err != nil {
				return err
			}

			if output != "" {
				return os.WriteFile(output, out, 0o644)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the manifest to a file instead of stdout")
	return cmd
}
