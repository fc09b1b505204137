package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/specialistvlad/codebox/internal/app"
	"github.com/specialistvlad/codebox/internal/config"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
// Only flags given explicitly end up in the overrides, so they never mask
// values from the configuration file.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("codebox", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
codebox - Stateful remote code execution over HTTP and WebSocket.

Usage:
  codebox [options] [CONFIG_PATH]

Arguments:
  CONFIG_PATH
    Path to an .hcl file, a directory containing .hcl files, or a .yaml file.
    Built-in defaults are used when omitted.

Options:
`)
		flagSet.PrintDefaults()
	}

	configFlag := flagSet.String("config", "", "Path to the configuration file or directory.")
	cFlag := flagSet.String("c", "", "Path to the configuration file or directory (shorthand).")
	addrFlag := flagSet.String("addr", ":8000", "Address to listen on.")
	engineFlag := flagSet.String("engine", "python", "Engine kind: 'python' or 'shell'.")
	workersFlag := flagSet.Int("workers", 10, "Number of concurrent execution workers.")
	queueFlag := flagSet.Int("queue-depth", 100, "Executions allowed to wait for a worker.")
	maxConnsFlag := flagSet.Int("max-connections", 0, "Maximum open TCP connections. 0 is unlimited.")
	idleFlag := flagSet.Duration("idle-timeout", 0, "Evict sessions idle for this long. 0 disables eviction.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *configFlag != "" {
		path = *configFlag
	} else if *cFlag != "" {
		path = *cFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	if flagSet.NArg() > 1 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("too many arguments: %v", flagSet.Args())}
	}
	slog.Debug("Configuration path determined.", "path", path)

	var overrides config.Patch
	var problems []string
	flagSet.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			overrides.ServerAddress = addrFlag
		case "engine":
			overrides.EngineKind = engineFlag
		case "workers":
			overrides.DispatchWorkers = workersFlag
		case "queue-depth":
			overrides.DispatchQueueDepth = queueFlag
		case "max-connections":
			overrides.ServerMaxConnections = maxConnsFlag
		case "idle-timeout":
			overrides.SessionsIdleTimeout = idleFlag
		case "log-format":
			format := strings.ToLower(*logFormatFlag)
			if format != "text" && format != "json" {
				problems = append(problems, "invalid log-format: must be 'text' or 'json'")
			}
			overrides.LogFormat = &format
		case "log-level":
			level := strings.ToLower(*logLevelFlag)
			switch level {
			case "debug", "info", "warn", "error":
				// valid
			default:
				problems = append(problems, "invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
			}
			overrides.LogLevel = &level
		}
	})
	if len(problems) > 0 {
		return nil, false, &ExitError{Code: 2, Message: strings.Join(problems, "; ")}
	}
	slog.Debug("CLI parameter validation complete.")

	cfg := &app.Config{ConfigPath: path, Overrides: overrides}
	slog.Debug("CLI parser finished successfully.", "config_path", path)
	return cfg, false, nil
}

