package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

const version = "0.3.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(ctx).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(ctx context.Context) *cobra.Command {
	var (
		mode       string
		dryRun     bool
		configPath string
		logPath    string
		workers    int
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:     "spektr [PATH]",
		Short:   "A TUI utility for cleaning development artifacts",
		Long:    "spektr scans a directory tree for build artifacts of known project types\n(Node.js, Rust, Flutter, Android), shows how much disk space they occupy,\nand lets you pick a subset to delete.",
		Args:    cobra.MaximumNArgs(1),
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			absRoot, err := filepath.Abs(root)
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			info, err := os.Stat(absRoot)
			if err != nil {
				return fmt.Errorf("stat path: %w", err)
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", absRoot)
			}

			cfg, err := loadConfig(absRoot, configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("workers") {
				cfg.Workers = workers
			}
			if logPath != "" {
				cfg.LogFile = logPath
			}

			closeLog, err := setupLogging(cfg.LogFile, verbose)
			if err != nil {
				return err
			}
			defer closeLog()

			excludes, err := compileExcludes(cfg.Exclude)
			if err != nil {
				return err
			}

			strategies := filterStrategies(defaultStrategies(), cfg.Disable)
			scanner := NewScanner(strategies, ScanOptions{
				SkipDirs: mergeSkipDirs(defaultSkipDirs(), cfg.Skip),
				Excludes: excludes,
				MaxDepth: cfg.MaxDepth,
				Workers:  cfg.Workers,
			})

			switch mode {
			case "scan":
				return runScanMode(ctx, scanner, absRoot)
			case "tui":
				confirmDeletes := true
				if cfg.Confirm != nil {
					confirmDeletes = *cfg.Confirm
				}
				return runTUIMode(ctx, scanner, absRoot, dryRun, confirmDeletes)
			default:
				return fmt.Errorf("unknown mode %q (want tui or scan)", mode)
			}
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "tui", "Run mode: tui or scan")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Scan and select, but delete nothing")
	cmd.Flags().StringVar(&configPath, "config", "", "Path to a config file (default .spektr.yaml)")
	cmd.Flags().StringVar(&logPath, "log", "", "Write logs to this file")
	cmd.Flags().IntVar(&workers, "workers", 0, "Scan worker count (0 = one per CPU)")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Log at debug level")

	return cmd
}

func runTUIMode(ctx context.Context, scanner *Scanner, root string, dryRun, confirmDeletes bool) error {
	// The scan goroutine outlives an early quit; cancelling here unblocks its
	// event sends once nothing drains them anymore.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := NewAppState(root, strategyNames(scanner.strategies))

	m := newModel(ctx, scanner, state, confirmDeletes)
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	cancel()
	if err != nil {
		return fmt.Errorf("run tui: %w", err)
	}

	if !state.DeletionConfirmed() {
		pterm.Println("Exited without making changes.")
		return nil
	}
	return runDeletion(state.SelectedProjects(), dryRun)
}
