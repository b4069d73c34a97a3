package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"maxctl/internal/app"
	"maxctl/internal/stub"
	"maxctl/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const version = "1.0.0"

type runtimeOpts struct {
	configPath string
	baseURL    string
	mode       string
	verbose    bool
}

// buildController loads config, applies flag overrides, and wires the
// controller with its injected dependencies.
func buildController(opts runtimeOpts) (*app.Controller, app.Config, *zap.Logger, error) {
	// Best effort; a missing .env is the normal case.
	_ = godotenv.Load()

	cfg, err := app.LoadConfig(opts.configPath)
	if err != nil {
		return nil, cfg, nil, err
	}
	if opts.baseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.baseURL, "/")
	}
	if opts.mode != "" {
		cfg.DefaultMode = opts.mode
	}
	mode, ok := app.ParseMode(cfg.DefaultMode)
	if !ok {
		return nil, cfg, nil, fmt.Errorf("unknown mode %q (want auto, assist or conseil)", cfg.DefaultMode)
	}

	logPath := cfg.LogFile
	if logPath == "" {
		logPath = filepath.Join(cfg.DataDir, "maxctl.log")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, cfg, nil, err
	}
	logger, err := app.NewLogger(opts.verbose, logPath)
	if err != nil {
		return nil, cfg, nil, err
	}

	client := app.NewClient(cfg.BaseURL, cfg.APIToken)
	cache := app.NewSessionCache(cfg.DataDir, logger)
	archive, err := app.NewArchive(cfg.DataDir)
	if err != nil {
		logger.Warn("transcript archive unavailable", zap.Error(err))
		archive = nil
	}

	return app.NewController(client, cache, archive, mode, logger), cfg, logger, nil
}

func main() {
	opts := runtimeOpts{}

	root := &cobra.Command{
		Use:     "max",
		Short:   "M.A.X. - terminal client for the CRM assistant",
		Long:    "max is a terminal client for the M.A.X. CRM assistant backend.\n\nRun without arguments for the interactive chat, or use the subcommands for one-shot operations.",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, cfg, logger, err := buildController(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer ctrl.Gate().Close()

			stream, _ := cmd.Flags().GetBool("stream")
			if cmd.Flags().Changed("stream") {
				cfg.Streaming = stream
			}

			p := tea.NewProgram(tui.New(ctrl, cfg.Streaming), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/maxctl/config.yaml)")
	root.PersistentFlags().StringVar(&opts.baseURL, "base-url", "", "backend base URL (overrides config and MAX_BASE_URL)")
	root.PersistentFlags().StringVarP(&opts.mode, "mode", "m", "", "assistant mode: auto, assist or conseil")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging")
	root.Flags().Bool("stream", true, "stream assistant answers")

	send := &cobra.Command{
		Use:   "send [message]",
		Short: "Send one message and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, _, logger, err := buildController(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer ctrl.Gate().Close()

			stream, _ := cmd.Flags().GetBool("stream")
			ctx, cancel := signalContext()
			defer cancel()

			if err := ctrl.SendMessage(ctx, strings.Join(args, " "), stream); err != nil {
				return err
			}
			printTranscriptTail(ctrl)
			return nil
		},
	}
	send.Flags().Bool("stream", false, "stream the answer")

	upload := &cobra.Command{
		Use:   "upload [file]",
		Short: "Upload a file for ingestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, _, logger, err := buildController(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, cancel := signalContext()
			defer cancel()

			if err := ctrl.UploadFile(ctx, args[0]); err != nil {
				return err
			}
			printTranscriptTail(ctrl)
			return nil
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Drop the current session and its cached transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, _, logger, err := buildController(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()
			ctrl.ResetConversation()
			fmt.Println("Session réinitialisée.")
			return nil
		},
	}

	history := &cobra.Command{
		Use:   "history [sessionID]",
		Short: "Print an archived transcript (current session by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, cfg, logger, err := buildController(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()

			archive, err := app.NewArchive(cfg.DataDir)
			if err != nil {
				return err
			}
			defer archive.Close()

			sessionID := ctrl.SessionID()
			if len(args) == 1 {
				sessionID = args[0]
			}
			if sessionID == "" {
				ids, err := archive.Sessions(10)
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					fmt.Println("Aucune session archivée.")
					return nil
				}
				fmt.Println("Sessions archivées :")
				for _, id := range ids {
					fmt.Println("  " + id)
				}
				return nil
			}
			msgs, err := archive.Transcript(sessionID)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				printMessage(m)
			}
			return nil
		},
	}

	stubCmd := &cobra.Command{
		Use:   "stub",
		Short: "Run the offline stub backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			srv := &http.Server{
				Addr:              addr,
				Handler:           stub.New().Router(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			fmt.Printf("Stub M.A.X. backend listening on %s\n", addr)
			return srv.ListenAndServe()
		},
	}
	stubCmd.Flags().String("addr", ":8090", "listen address")

	root.AddCommand(send, upload, reset, history, stubCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// printTranscriptTail prints everything after the user's last message:
// the assistant answer plus any injected consent entry.
func printTranscriptTail(ctrl *app.Controller) {
	msgs := ctrl.Log().Messages()
	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == app.RoleUser {
			start = i + 1
			break
		}
	}
	for _, m := range msgs[start:] {
		printMessage(m)
	}
}

func printMessage(m app.Message) {
	switch m.Kind {
	case app.KindConsent:
		c := m.Consent
		fmt.Printf("[consent %s] %s (statut : %s, expire dans %ds)\n",
			c.ConsentID, c.Operation.Description, c.Status, c.Remaining)
	default:
		fmt.Printf("%s> %s\n", m.Role, m.Content)
	}
}
