package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pagemark/pagemark/internal/config"
	"github.com/pagemark/pagemark/internal/logging"
	"github.com/pagemark/pagemark/internal/mcp"
	"github.com/pagemark/pagemark/internal/store"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"add": true, "get": true, "list": true, "delete": true,
	"checkpoint": true, "versions": true, "restore": true,
	"sync": true, "status": true,
	"export": true, "import": true, "purge": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false // Default → MCP server
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   ___                                 _
  | _ \__ _ __ _ ___ _ __  __ _ _ _ | |__
  |  _/ _` + "`" + ` / _` + "`" + ` / -_) '  \/ _` + "`" + ` | '_|| / /
  |_| \__,_\__, \___|_|_|_\__,_|_|  |_\_\
           |___/

  Local-first encrypted notes for the web

  Usage: pagemark <command> [options]
         pagemark --help

  MCP server mode requires piped input.`)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before store init (no store needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil, nil, "")
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}

	baseDir := filepath.Join(homeDir, ".pagemark")

	cfg, err := config.Load(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	st, err := store.Open(baseDir, cfg.TierLimits())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to open local store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()
	st.ConfigurePool(cfg)

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(st, cfg, baseDir)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'pagemark --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default). When sync is fully configured, the engine
	// runs its periodic cycle in the background for the life of the server.
	log := logging.New(os.Stderr, cfg.LogLevel)
	engine, err := buildEngine(st, cfg, baseDir, log)
	if err != nil {
		log.WithError(err).Warn("sync disabled")
		engine = nil
	}
	if engine != nil {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go engine.Run(ctx)
	}

	if err := mcp.Run(st, cfg, baseDir, engine, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
