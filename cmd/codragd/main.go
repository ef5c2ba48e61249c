// Command codragd boots the engine facade against the machine-wide
// registry and blocks, for manual smoke testing. It is ambient
// scaffolding, not a deliverable front-end: the HTTP/JSON-RPC/CLI
// surfaces that would sit in front of the engine are out of scope here.
//
// Grounded on the teacher's cmd/cortex-embed/main.go for the
// signal.NotifyContext shutdown pattern and internal/cli/root.go for the
// cobra root command and viper wiring.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/EricBintner/codrag/internal/codraerr"
	"github.com/EricBintner/codrag/internal/config"
	"github.com/EricBintner/codrag/internal/embedcap"
	"github.com/EricBintner/codrag/internal/engine"
	"github.com/EricBintner/codrag/internal/registry"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "codragd",
	Short: "codragd runs the CoDRAG indexing engine",
	Long: `codragd loads the machine-wide project registry, constructs the
engine facade for every registered project, and serves as a process for
manual smoke testing of builds, search, and the filesystem watcher.`,
	RunE: runServe,
}

var addCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "register a project at the given repo root",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list registered projects",
	RunE:  runList,
}

var buildCmd = &cobra.Command{
	Use:   "build <project-id>",
	Short: "start an embedding index build for a project and wait for it to finish",
	Args:  cobra.ExactArgs(1),
	RunE:  runBuild,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "raise log level to info")
	rootCmd.AddCommand(addCmd, listCmd, buildCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging() {
	logrus.SetLevel(logrus.WarnLevel)
	if verbose {
		logrus.SetLevel(logrus.InfoLevel)
	}
}

// buildEngine wires global config, logging, the registry, and a fake
// embedding provider into a ready-to-use Engine. A real deployment would
// inject a provider wired to an actual embedding capability (spec.md
// §6.2); none is implemented here since third-party embedding providers
// are out of scope.
func buildEngine() (*engine.Engine, error) {
	setupLogging()

	global, err := config.LoadGlobalConfig()
	if err != nil {
		return nil, fmt.Errorf("loading global config: %w", err)
	}

	reg, err := registry.Open(global.Registry.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening registry: %w", err)
	}

	provider := embedcap.NewFakeProvider(global.Embedding.Model, global.Embedding.Dimensions)
	return engine.New(reg, global.DataDir, provider), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := buildEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	logrus.WithField("component", "codragd").Info("engine ready, waiting for interrupt")
	<-ctx.Done()
	logrus.WithField("component", "codragd").Info("shutting down")
	return nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	e, err := buildEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	root := args[0]
	p, err := e.AddProject(root, root, registry.ModeEmbedded, nil)
	if err != nil {
		return reportEngineError(err)
	}
	fmt.Printf("added project %s (%s)\n", p.ID, p.Path)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	e, err := buildEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	projects, err := e.ListProjects()
	if err != nil {
		return reportEngineError(err)
	}
	for _, p := range projects {
		fmt.Printf("%s\t%s\t%s\n", p.ID, p.Mode, p.Path)
	}
	return nil
}

// runBuild drives a terminal progress bar off the build loop's real
// per-file progress (internal/embedindex.BuildInput.Progress), rather
// than a synthetic spinner, while polling Status for completion.
func runBuild(cmd *cobra.Command, args []string) error {
	e, err := buildEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	id := args[0]
	var bar *progressbar.ProgressBar
	onProgress := func(done, total int, path string) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("indexing files"),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("files/s"),
				progressbar.OptionThrottle(65*time.Millisecond),
				progressbar.OptionShowElapsedTimeOnFinish(),
			)
		}
		bar.Add(1)
		if done >= total {
			bar.Finish()
			fmt.Println()
		}
	}

	if err := e.StartBuildWithProgress(id, onProgress); err != nil {
		return reportEngineError(err)
	}

	for {
		st, err := e.Status(id)
		if err != nil {
			return reportEngineError(err)
		}
		if !st.Building {
			if st.LastBuildError != "" {
				return fmt.Errorf("build failed: %s", st.LastBuildError)
			}
			fmt.Printf("build complete: %d documents\n", st.Embedding.TotalDocuments)
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// reportEngineError surfaces an engine-level codraerr.Code alongside the
// human message, the minimal mapping a front-end layer would otherwise
// do at the wire boundary (spec.md §6.5).
func reportEngineError(err error) error {
	return fmt.Errorf("[%s] %w", codraerr.CodeOf(err), err)
}
