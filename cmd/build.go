package cmd

import (
	"cmp"
	"errors"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ngbundle/ngbundle/internal/bundler"
	"github.com/ngbundle/ngbundle/internal/metrics"
	"github.com/ngbundle/ngbundle/internal/pipeline"
	"github.com/ngbundle/ngbundle/internal/progress"
	"github.com/ngbundle/ngbundle/internal/s3"
)

type buildParams struct {
	bundleConfig string
	metricsFile  string
	noProgress   bool
}

func newBuildCommand(global *globalParams) *cobra.Command {
	p := &buildParams{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compile, bundle and package a library into dist/<package>",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, global, p)
		},
	}

	cmd.Flags().StringVar(&p.bundleConfig, "bundle-config", "", "bundle configuration file replacing the built-in one")
	cmd.Flags().StringVar(&p.metricsFile, "metrics-file", "", "write build metrics in the Prometheus text format to this file")
	cmd.Flags().BoolVar(&p.noProgress, "no-progress", false, "do not render a progress bar")

	return cmd
}

func runBuild(cmd *cobra.Command, global *globalParams, p *buildParams) (err error) {
	ctx := cmd.Context()

	workspace, cfg, err := global.load()
	if err != nil {
		return err
	}

	log, err := global.logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	if p.metricsFile != "" {
		defer func() {
			if werr := metrics.WriteTextfile(p.metricsFile); werr != nil {
				err = errors.Join(err, werr)
			}
		}()
	}

	opts := pipeline.Options{
		Root:       workspace,
		SourceRoot: cfg.SourceRoot,
		Package:    cfg.Package,
		Tsconfig:   cfg.Tsconfig,
		Defaults: bundler.Defaults{
			License:   cfg.License,
			Target:    cfg.Target,
			Sourcemap: cfg.SourcemapEnabled(),
			Define:    cfg.Define,
			Copy:      cfg.Copy,
			Manifest:  cfg.Manifest,
		},
		Logger: log,
		Report: cmd.OutOrStdout(),
	}

	if bc := cmp.Or(p.bundleConfig, cfg.BundleConfig); bc != "" {
		if !filepath.IsAbs(bc) {
			bc = filepath.Join(workspace, bc)
		}
		opts.BundleConfig = bc
	}

	if cfg.Publish != nil && cfg.Publish.AmazonS3 != nil {
		publisher, err := s3.New(ctx, cfg.Publish.AmazonS3)
		if err != nil {
			return err
		}
		opts.Publisher = publisher
	}

	bar := progress.New(cmd.ErrOrStderr(), "building "+cfg.Package, !p.noProgress)
	opts.Progress = bar

	run, err := pipeline.New(opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := run.Close(); cerr != nil {
			log.Warnf("failed to remove %s: %v", run.TempDir, cerr)
		}
	}()

	_, err = run.Execute(ctx)
	if ferr := bar.Finish(); ferr != nil {
		log.Debugf("failed to finish progress bar: %v", ferr)
	}
	return err
}
