// Package main is the entry point of the HTTP email service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shineum/http-email/internal/config"
	"github.com/shineum/http-email/internal/handler"
	"github.com/shineum/http-email/internal/metrics"
	"github.com/shineum/http-email/internal/request"
	"github.com/shineum/http-email/internal/sender"
	"github.com/shineum/http-email/internal/server"
)

// checkConcurrency bounds how many senders check resolves at once.
const checkConcurrency = 4

// app carries state shared by the subcommands.
type app struct {
	configPath string
	envFile    string
	cfg        *config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "http-email",
		Short:         "Send email on behalf of directory senders",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(a.envFile); err != nil {
				return err
			}

			cfg, err := loadConfig(a.configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			setupLogger(cmd.ErrOrStderr(), cfg.Logging.Level)
			a.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to YAML configuration file (optional)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "path to a .env file loaded before the configuration (optional)")

	root.AddCommand(newServeCmd(a), newSendCmd(a), newCheckCmd(a))
	return root
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the delivery API until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			h, err := newHandler(ctx, a.cfg)
			if err != nil {
				return err
			}

			if err := metrics.Register(nil); err != nil {
				return fmt.Errorf("failed to register metrics: %w", err)
			}

			srv := server.New(server.Config{
				ListenAddr: a.cfg.Server.Listen,
				Invoker:    h,
			})

			slog.Info("starting http-email",
				"listen", a.cfg.Server.Listen,
				"directory_source", a.cfg.Directory.Source,
				"credential_store", a.cfg.Credentials.Store,
				"provider", a.cfg.SMTP.Provider,
			)

			if err := srv.ListenAndServe(ctx); err != nil {
				return fmt.Errorf("server error: %w", err)
			}

			slog.Info("http-email stopped")
			return nil
		},
	}
}

func newSendCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Run one delivery from the command line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := newHandler(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}

			// Only flags given on the command line become parameters, so an
			// omitted flag stays absent.
			params := request.Params{}
			for _, name := range request.ParamNames {
				if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
					params[name] = f.Value.String()
				}
			}

			out, err := h.Handle(cmd.Context(), params)
			printOutcome(cmd.OutOrStdout(), out, err)
			return err
		},
	}

	cmd.Flags().String(request.ParamUser, "", "sender user name in the directory")
	cmd.Flags().String(request.ParamRecipients, "", "comma-separated recipient addresses")
	cmd.Flags().String(request.ParamSubject, "", "message subject")
	cmd.Flags().String(request.ParamBody, "", "message body")
	cmd.Flags().String(request.ParamMimeType, "", "body subtype, plain or html (default plain)")
	return cmd
}

func newCheckCmd(a *app) *cobra.Command {
	var users []string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Resolve senders and their credentials without sending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(users) == 0 {
				return fmt.Errorf("--user is required")
			}

			h, err := newHandler(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}

			profiles := make([]sender.Profile, len(users))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(checkConcurrency)
			for i, user := range users {
				g.Go(func() error {
					p, err := h.Resolve(ctx, user)
					if err != nil {
						return fmt.Errorf("%s: %w", user, err)
					}
					profiles[i] = p
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			for _, p := range profiles {
				fmt.Fprintln(cmd.OutOrStdout(), p.String())
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&users, "user", nil, "sender user name to resolve (repeatable)")
	return cmd
}

// printOutcome writes the outcome of an invocation as JSON.
func printOutcome(w io.Writer, out handler.Outcome, err error) {
	result := map[string]any{
		"invocation_id": out.InvocationID,
		"state":         out.State,
		"kind":          out.Kind,
	}
	if out.MessageID != "" {
		result["message_id"] = out.MessageID
	}
	if err != nil {
		result["error"] = err.Error()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(w io.Writer, level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logHandler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(logHandler))
}

// newHandler builds the invocation handler from configuration.
func newHandler(ctx context.Context, cfg *config.Config) (*handler.Handler, error) {
	src, err := selectSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	creds, err := selectCredentials(cfg)
	if err != nil {
		return nil, err
	}
	prov, err := selectProvider(cfg)
	if err != nil {
		return nil, err
	}
	return handler.New(src, creds, prov), nil
}
