// Command codebox-client runs a short scripted session against a codebox
// server over WebSocket: a hello world followed by five iterations that
// share interpreter state, then a release.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/specialistvlad/codebox/internal/ctxlog"
	"github.com/specialistvlad/codebox/internal/wsclient"
)

func main() {
	_ = godotenv.Load()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = ctxlog.WithLogger(ctx, logger)

	if err := run(ctx, os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, outW io.Writer, args []string) error {
	flagSet := flag.NewFlagSet("codebox-client", flag.ContinueOnError)
	flagSet.SetOutput(outW)
	url := flagSet.String("url", envOr("CODEBOX_URL", "ws://localhost:8000/ws"), "WebSocket endpoint of the server.")
	apiKey := flagSet.String("api-key", envOr("CODEBOX_API_KEY", "your-api-key"), "API key identifying the session.")
	timeout := flagSet.Int("timeout", 30, "Per-execution timeout in seconds.")
	retries := flagSet.Int("retries", 5, "Connection attempts before giving up.")
	retryDelay := flagSet.Duration("retry-delay", time.Second, "Pause between connection attempts.")
	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return err
	}

	client := wsclient.New(wsclient.Config{
		URL:        *url,
		APIKey:     *apiKey,
		MaxRetries: *retries,
		RetryDelay: *retryDelay,
	})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		_ = client.Close(closeCtx)
	}()

	result, err := client.ExecuteCode(ctx, "print('Hello, World!')", nil, *timeout)
	if err != nil {
		return fmt.Errorf("an error occurred: %w", err)
	}
	fmt.Fprintf(outW, "Result: %s\n", result)

	for i := 0; i < 5; i++ {
		result, err := client.ExecuteCode(ctx, fmt.Sprintf("print('Iteration %d')\n%d * 2", i, i), nil, *timeout)
		if err != nil {
			return fmt.Errorf("an error occurred: %w", err)
		}
		fmt.Fprintf(outW, "Result of iteration %d: %s\n", i, result)
	}
	return nil
}

func envOr(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return fallback
}
