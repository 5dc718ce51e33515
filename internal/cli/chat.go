package cli

import (
	"context"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/clawdeck/clawdeck/internal/chat"
	"github.com/clawdeck/clawdeck/internal/config"
	"github.com/clawdeck/clawdeck/internal/gateway"
	"github.com/clawdeck/clawdeck/internal/history"
	"github.com/clawdeck/clawdeck/internal/identity"
	"github.com/clawdeck/clawdeck/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive chat screen",
	RunE:  runChat,
}

var (
	chatURL     string
	chatSession string
	chatToken   string
	chatVerbose bool
)

func init() {
	chatCmd.Flags().StringVar(&chatURL, "url", "", "Gateway WebSocket URL (overrides config)")
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "Session key (overrides config)")
	chatCmd.Flags().StringVar(&chatToken, "token", "", "Shared gateway token (overrides config)")
	chatCmd.Flags().BoolVarP(&chatVerbose, "verbose", "v", false, "Enable verbose logging")
}

func runChat(cmd *cobra.Command, args []string) error {
	logger := newLogger(chatVerbose)

	cfg, err := config.Load()
	if err != nil {
		logger.Warn("config load warning, using defaults", "error", err)
		cfg = config.Default()
	}
	applyFlagOverrides(cfg, chatURL, chatSession, chatToken)
	sessionKey := cfg.Chat.SessionKey

	idents := identity.NewStore(config.Dir())
	tokens, err := identity.OpenTokenStore(config.StateDir())
	if err != nil {
		return err
	}
	defer tokens.Close()

	conn := gateway.New(cfg.Gateway.URL, idents, tokens, logger)
	svc := chat.NewService(conn)
	conv := chat.NewConversation(sessionKey, cfg.Chat.Thinking, svc)

	store := history.NewStore(config.StateDir())
	conv.Restore(store.Load(sessionKey))

	program := tea.NewProgram(tui.New(conv, "connecting"), tea.WithAltScreen())
	conv.OnChange(func() {
		if err := store.Save(sessionKey, conv.Messages()); err != nil {
			logger.Warn("history save failed", "error", err)
		}
		program.Send(tui.RefreshMsg{})
	})

	go func() {
		// A configured shared token means identity-less auth; otherwise the
		// device identity and any persisted device token are presented.
		presented := cfg.Gateway.Token
		useDeviceIdentity := presented == ""
		if err := conn.Connect(context.Background(), presented, useDeviceIdentity); err != nil {
			logger.Error("connect failed", "error", err)
			program.Send(tui.ConnStateMsg{State: "failed: " + err.Error()})
			return
		}
		program.Send(tui.ConnStateMsg{State: "connected"})

		// Single goroutine hands events to the conversation, which
		// serializes all log mutation behind its own lock.
		events := svc.Events()
		go func() {
			for ev := range events {
				conv.Apply(ev)
			}
			program.Send(tui.ConnStateMsg{State: "disconnected"})
		}()

		if err := conv.LoadHistory(); err != nil {
			logger.Warn("history load failed", "error", err)
		}
	}()

	_, err = program.Run()
	conn.Close()
	return err
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func applyFlagOverrides(cfg *config.Config, url, session, token string) {
	if url != "" {
		cfg.Gateway.URL = url
	}
	if session != "" {
		cfg.Chat.SessionKey = session
	}
	if token != "" {
		cfg.Gateway.Token = token
	}
}
