package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clawdeck/clawdeck/internal/chat"
	"github.com/clawdeck/clawdeck/internal/config"
	"github.com/clawdeck/clawdeck/internal/gateway"
	"github.com/clawdeck/clawdeck/internal/identity"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the session history and exit",
	RunE:  runHistory,
}

var (
	historyURL     string
	historySession string
	historyToken   string
	historyVerbose bool
)

func init() {
	historyCmd.Flags().StringVar(&historyURL, "url", "", "Gateway WebSocket URL (overrides config)")
	historyCmd.Flags().StringVarP(&historySession, "session", "s", "", "Session key (overrides config)")
	historyCmd.Flags().StringVar(&historyToken, "token", "", "Shared gateway token (overrides config)")
	historyCmd.Flags().BoolVarP(&historyVerbose, "verbose", "v", false, "Enable verbose logging")
}

func runHistory(cmd *cobra.Command, args []string) error {
	logger := newLogger(historyVerbose)

	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}
	applyFlagOverrides(cfg, historyURL, historySession, historyToken)

	idents := identity.NewStore(config.Dir())
	conn := gateway.New(cfg.Gateway.URL, idents, identity.NewMemoryTokenStore(), logger)
	defer conn.Close()

	presented := cfg.Gateway.Token
	if err := conn.Connect(context.Background(), presented, presented == ""); err != nil {
		return err
	}

	messages, err := chat.NewService(conn).History(cfg.Chat.SessionKey)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Format("2006-01-02 15:04"), msg.Role, msg.Text)
	}
	return nil
}
