// Command gandalf is the sidecar's CLI entry point: a cobra command
// tree rooted at a single binary with structured stderr logging.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gandalf-mcp/gandalf/internal/cache"
	"github.com/gandalf-mcp/gandalf/internal/config"
	"github.com/gandalf-mcp/gandalf/internal/gandalflog"
	gandalfmcp "github.com/gandalf-mcp/gandalf/internal/mcp"
	"github.com/gandalf-mcp/gandalf/internal/project"
	"github.com/gandalf-mcp/gandalf/internal/source"
	"github.com/gandalf-mcp/gandalf/internal/source/claudecode"
	"github.com/gandalf-mcp/gandalf/internal/source/cursor"
	"github.com/gandalf-mcp/gandalf/internal/source/windsurf"
)

var (
	projectRootFlag string
	debugFlag       bool
	logFormatFlag   string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gandalf",
		Short: "Gandalf is an MCP sidecar for project context and AI conversation history.",
	}
	root.PersistentFlags().StringVar(&projectRootFlag, "project-root", "", "explicit project root (overrides auto-detection)")
	root.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug-level logging and notifications")
	root.PersistentFlags().StringVar(&logFormatFlag, "log-format", "text", "operator log format: text or json")

	root.AddCommand(runCmd(), installCmd(), uninstallCmd(), callCmd())
	return root
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the MCP server loop over stdio.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	operatorLog := gandalflog.NewOperatorLogger(logFormatFlag, debugFlag)

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving cwd: %w", err)
	}
	root, err := project.ResolveRoot(projectRootFlag, cwd)
	if err != nil {
		return fmt.Errorf("resolving project root: %w", err)
	}
	operatorLog.Info("resolved project root", "root", root)

	cfg, warnings, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	for _, w := range warnings {
		operatorLog.Warn(w)
	}
	if debugFlag {
		cfg.Debug = true
	}

	home := config.GandalfHome()
	sessionID := uuid.NewString()
	sessionLog, err := gandalflog.NewSessionLogger(home, sessionID, cfg.Debug)
	if err != nil {
		return fmt.Errorf("opening session log: %w", err)
	}
	defer sessionLog.Close()
	sessionLog.Log("info", "session started", map[string]any{"project_root": root})

	c, err := cache.New(home, time.Duration(cfg.Cache.TTLSeconds)*time.Second, cfg.Cache.MaxBytes)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}

	sources := buildSources(cfg)

	srv, err := gandalfmcp.New(gandalfmcp.Config{
		ProjectRoot: root,
		Cfg:         cfg,
		Sources:     sources,
		Cache:       c,
		Log:         sessionLog,
	})
	if err != nil {
		return fmt.Errorf("building MCP server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		sessionLog.Log("info", "shutting down on signal", nil)
		cancel()
	}()

	return srv.Serve(ctx)
}

// buildSources enumerates Gandalf's fixed, compiled-in adapter set,
// filtering to ones that detect data on this host unless
// GANDALF_FALLBACK_TOOL forces a specific one.
func buildSources(cfg *config.Config) []source.Adapter {
	all := []source.Adapter{cursor.New(), claudecode.New(), windsurf.New()}

	if cfg.FallbackTool != "" {
		for _, a := range all {
			if string(a.Name()) == cfg.FallbackTool {
				return []source.Adapter{a}
			}
		}
		return all
	}

	ctx := context.Background()
	detected := make([]source.Adapter, 0, len(all))
	for _, a := range all {
		if a.Detect(ctx) {
			detected = append(detected, a)
		}
	}
	if len(detected) == 0 {
		return all
	}
	return detected
}

func installCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install Gandalf into an agentic tool's MCP configuration (external installer).",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("install is handled by the external installer script; this core binary only implements `run`.")
			return nil
		},
	}
}

func uninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove Gandalf from an agentic tool's MCP configuration (external installer).",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("uninstall is handled by the external installer script; this core binary only implements `run`.")
			return nil
		},
	}
}

// callCmd validates a tool name and its --args JSON from the shell and
// then returns an error that points the operator at `gandalf run`; it
// does not invoke the tool or print a tool result.
func callCmd() *cobra.Command {
	var argsJSON string
	cmd := &cobra.Command{
		Use:   "call <tool-name>",
		Short: "Check a tool call's JSON arguments; tools themselves run only under `gandalf run`.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var toolArgs map[string]any
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &toolArgs); err != nil {
					return fmt.Errorf("parsing --args as JSON: %w", err)
				}
			}
			return fmt.Errorf("direct tool invocation requires a running session; start `gandalf run` and call %q over stdio with arguments %v", args[0], toolArgs)
		},
	}
	cmd.Flags().StringVar(&argsJSON, "args", "", "JSON-encoded tool arguments")
	return cmd
}
