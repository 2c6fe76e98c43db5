// stubtree builds a minimal synthetic source tree for a Cargo project:
// sanitized manifests, the lock file, auxiliary config files, and inert
// stubs for every build target. Feeding the skeleton to the build tool
// pre-warms the dependency cache without ever compiling application code,
// so the cache survives any edit outside the dependency graph.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"stubtree/internal/config"
	"stubtree/internal/skeleton"
)

const version = "0.2.0"

var (
	// Global flags
	cfgFile     string
	verbose     bool
	output      string
	lockfile    string
	onMalformed string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "stubtree",
	Short: "stubtree - dependency-cache skeleton builder for Cargo projects",
	Long: `stubtree distills a Cargo source tree down to the files that decide
what dependencies get resolved and compiled: sanitized manifests, the lock
file, cargo config files, and one inert stub per build target.

Build the skeleton first, compile dependencies against it, cache the result;
application-code edits never invalidate that cache.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd)
		if err := cfg.Validate(); err != nil {
			return err
		}

		zc := zap.NewProductionConfig()
		if !cfg.Logging.JSON {
			zc.Encoding = "console"
		}
		if lvl, lerr := zapcore.ParseLevel(cfg.Logging.Level); lerr == nil {
			zc.Level = zap.NewAtomicLevelAt(lvl)
		}
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var buildCmd = &cobra.Command{
	Use:   "build [path]",
	Short: "Build the skeleton tree once",
	Long: `Scans the source tree, sanitizes every manifest, synthesizes target
stubs, and assembles the skeleton into the output directory. The output is
fully regenerated on every run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Build the skeleton and rebuild on manifest or config changes",
	Long: `Builds once, then watches manifests, cargo config files and the lock
file, rebuilding the skeleton when any of them change. Edits to application
source never trigger a rebuild.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the stubtree version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("stubtree %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "skeleton output directory")
	rootCmd.PersistentFlags().StringVar(&lockfile, "lockfile", "", "lock file path relative to the tree root")
	rootCmd.PersistentFlags().StringVar(&onMalformed, "on-malformed", "", "malformed manifest policy: abort or skip")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// applyFlagOverrides layers explicit flags over the loaded config.
func applyFlagOverrides(cmd *cobra.Command) {
	if cmd.Flags().Changed("output") {
		cfg.Output = output
	}
	if cmd.Flags().Changed("lockfile") {
		cfg.Lockfile = lockfile
	}
	if cmd.Flags().Changed("on-malformed") {
		cfg.OnMalformed = onMalformed
	}
}

func treeRoot(args []string) (string, error) {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("source tree %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("source tree %s is not a directory", abs)
	}
	return abs, nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	root, err := treeRoot(args)
	if err != nil {
		return err
	}

	b := skeleton.NewBuilder(root, cfg, logger)
	rep, err := b.Run(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("skeleton: %s\n", b.Output())
	fmt.Printf("  manifests %d, stubs %d, verbatim files %d\n",
		rep.Manifests, rep.Stubs, rep.Verbatim)
	for _, rel := range rep.Skipped {
		fmt.Printf("  skipped malformed manifest: %s\n", rel)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	root, err := treeRoot(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	b := skeleton.NewBuilder(root, cfg, logger)
	w, err := skeleton.NewWatcher(b, logger)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	fmt.Printf("watching %s, skeleton at %s (ctrl-c to stop)\n", root, b.Output())
	select {
	case <-sigCh:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}
	return nil
}
