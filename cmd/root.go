// Package cmd implements the ngbundle command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/thediveo/enumflag/v2"

	"github.com/ngbundle/ngbundle/internal/config"
	"github.com/ngbundle/ngbundle/internal/logging"
)

// Main runs the command line and returns the process exit code.
func Main() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := New().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

// New returns the root command.
func New() *cobra.Command {
	p := &globalParams{}

	root := &cobra.Command{
		Use:           "ngbundle",
		Short:         "Build Angular libraries into UMD bundles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&p.workspace, "workspace", "w", ".", "workspace root holding package.json and the base tsconfig")
	flags.StringVarP(&p.pkg, "package", "p", "", "package directory name below the source root")
	flags.StringSliceVarP(&p.configFiles, "config", "c", nil, "project configuration file or directory (repeatable, merged in order)")
	flags.StringVar(&p.logLevel, "log-level", string(logging.Info), "log level (debug, info, warn, error)")
	flags.Var(enumflag.New(&p.logFormat, "format", logFormatIDs, enumflag.EnumCaseInsensitive), "log-format", "log format (text, json)")

	root.AddCommand(
		newBuildCommand(p),
		newExternalsCommand(p),
		newManifestCommand(p),
	)
	return root
}

type globalParams struct {
	workspace   string
	pkg         string
	configFiles []string
	logLevel    string
	logFormat   logFormat
}

type logFormat enumflag.Flag

const (
	textLog logFormat = iota
	jsonLog
)

var logFormatIDs = map[logFormat][]string{
	textLog: {"text"},
	jsonLog: {"json"},
}

// load reads the project configuration; flags take precedence over it.
func (p *globalParams) load() (string, *config.Root, error) {
	workspace, err := filepath.Abs(p.workspace)
	if err != nil {
		return "", nil, err
	}

	cfg, err := config.Load(workspace, p.configFiles)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if p.pkg != "" {
		cfg.Package = p.pkg
	}
	if cfg.Package == "" {
		return "", nil, fmt.Errorf("no package given, set --package or package in %s", config.DefaultFile)
	}
	return workspace, cfg, nil
}

func (p *globalParams) logger(w io.Writer) (*logging.Logger, error) {
	level, err := logging.ParseLevel(p.logLevel)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(logging.Config{Level: level, Format: logFormatIDs[p.logFormat][0], Output: w}), nil
}
