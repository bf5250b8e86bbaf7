package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/inkyu/botkeeper"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds minimal global/persistent flags for CLI commands
type GlobalFlags struct {
	ConfigPath string
}

// ClientFlags holds flags for commands that talk to a running daemon
type ClientFlags struct {
	Owner      int64
	APIUrl     string
	APITimeout time.Duration
}

// StartFlags holds flags for the start command
type StartFlags struct {
	ClientFlags
	Command     string
	Token       string
	DownloadDir string
	WorkDir     string
	LogDir      string
}

// ServeFlags holds flags for the serve command
type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}

// buildRoot creates the root command with its subcommands
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	startFlags := &StartFlags{}
	stopFlags := &ClientFlags{}
	statusFlags := &ClientFlags{}
	listFlags := &ClientFlags{}
	serveFlags := &ServeFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags, serveFlags),
		createStartCommand(globalFlags, startFlags),
		createStopCommand(stopFlags),
		createStatusCommand(statusFlags),
		createListCommand(listFlags),
		createVersionCommand(),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "botkeeperd",
		Short: "Per-owner download worker supervisor",
		Long: `Botkeeperd supervises one background download worker per owner:
it launches workers, polls their liveness, restarts crashed workers with
bounded backoff, and serves worker status over HTTP.

Examples:
  botkeeperd serve --config=config.toml      # Start daemon
  botkeeperd start --owner=42 --command="botworker --session 42"
  botkeeperd status --owner=42
  botkeeperd status --owner=42 --api-url=http://remote:8080/api`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

// createServeCommand creates the serve subcommand
func createServeCommand(globalFlags *GlobalFlags, serveFlags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the botkeeper daemon",
		Long: `Start the botkeeper daemon to supervise workers.
All configuration is loaded from a TOML config file.

Examples:
  botkeeperd serve --config=config.toml
  botkeeperd serve config.toml
  botkeeperd serve config.toml --daemonize --pidfile=/run/botkeeperd.pid`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			return runServe(serveFlags, args)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write daemon PID to file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon logs to file")
	return cmd
}

// createStartCommand creates the start subcommand
func createStartCommand(globalFlags *GlobalFlags, flags *StartFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a supervised worker for an owner",
		Long: `Start a supervised worker for an owner via the daemon API.
The worker config comes from flags, or from the [[workers]] entry for
the owner in --config.

Examples:
  botkeeperd start --owner=42 --command="botworker --session 42"
  botkeeperd start --owner=42 --config=config.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveWorkerConfig(globalFlags.ConfigPath, flags)
			if err != nil {
				return err
			}
			client := NewAPIClient(flags.APIUrl, flags.APITimeout)
			if err := client.StartWorker(flags.Owner, cfg); err != nil {
				return err
			}
			fmt.Printf("worker for owner %d started\n", flags.Owner)
			return nil
		},
	}
	cmd.Flags().Int64Var(&flags.Owner, "owner", 0, "owner id (required)")
	cmd.Flags().StringVar(&flags.Command, "command", "", "worker command line")
	cmd.Flags().StringVar(&flags.Token, "token", "", "bot token passed to the worker")
	cmd.Flags().StringVar(&flags.DownloadDir, "download-dir", "", "directory for downloaded media")
	cmd.Flags().StringVar(&flags.WorkDir, "work-dir", "", "working directory")
	cmd.Flags().StringVar(&flags.LogDir, "log-dir", "", "directory for worker stdout/stderr logs")
	addClientFlags(cmd, &flags.ClientFlags)
	mustRequire(cmd, "owner")
	return cmd
}

// createStopCommand creates the stop subcommand
func createStopCommand(flags *ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop an owner's supervised worker",
		Long: `Stop an owner's supervised worker via the daemon API.
A stopped worker is not restarted until started again.

Examples:
  botkeeperd stop --owner=42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(flags.APIUrl, flags.APITimeout)
			if err := client.StopWorker(flags.Owner); err != nil {
				return err
			}
			fmt.Printf("worker for owner %d stopped\n", flags.Owner)
			return nil
		},
	}
	cmd.Flags().Int64Var(&flags.Owner, "owner", 0, "owner id (required)")
	addClientFlags(cmd, flags)
	mustRequire(cmd, "owner")
	return cmd
}

// createStatusCommand creates the status subcommand
func createStatusCommand(flags *ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show an owner's worker status",
		Long: `Show an owner's worker status via the daemon API.

Examples:
  botkeeperd status --owner=42
  botkeeperd status --owner=42 --api-url=http://remote:8080/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(flags.APIUrl, flags.APITimeout)
			st, err := client.WorkerStatus(flags.Owner)
			if err != nil {
				return err
			}
			return printJSON(st)
		},
	}
	cmd.Flags().Int64Var(&flags.Owner, "owner", 0, "owner id (required)")
	addClientFlags(cmd, flags)
	mustRequire(cmd, "owner")
	return cmd
}

// createListCommand creates the list subcommand
func createListCommand(flags *ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all known workers and their statuses",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(flags.APIUrl, flags.APITimeout)
			list, err := client.ListWorkers()
			if err != nil {
				return err
			}
			return printJSON(list)
		},
	}
	addClientFlags(cmd, flags)
	return cmd
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the botkeeperd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("botkeeperd %s\n", version)
		},
	}
}

func addClientFlags(cmd *cobra.Command, flags *ClientFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (e.g. http://host:8080/api)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
}

func mustRequire(cmd *cobra.Command, name string) {
	if err := cmd.MarkFlagRequired(name); err != nil {
		panic(err)
	}
}

// resolveWorkerConfig builds a worker config from CLI flags, falling back to
// the matching [[workers]] entry in the config file when no command flag is
// given.
func resolveWorkerConfig(configPath string, flags *StartFlags) (botkeeper.WorkerConfig, error) {
	if flags.Command != "" {
		cfg := botkeeper.WorkerConfig{
			Command:     flags.Command,
			Token:       flags.Token,
			DownloadDir: flags.DownloadDir,
			WorkDir:     flags.WorkDir,
		}
		cfg.Log.Dir = flags.LogDir
		return cfg, nil
	}
	if configPath == "" {
		return botkeeper.WorkerConfig{}, fmt.Errorf("either --command or --config with a [[workers]] entry for owner %d is required", flags.Owner)
	}
	fileCfg, err := botkeeper.LoadConfig(configPath)
	if err != nil {
		return botkeeper.WorkerConfig{}, fmt.Errorf("error loading config: %w", err)
	}
	for _, w := range fileCfg.Workers {
		if w.Owner == flags.Owner {
			return w.Config, nil
		}
	}
	return botkeeper.WorkerConfig{}, fmt.Errorf("no [[workers]] entry for owner %d in %s", flags.Owner, configPath)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
