package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/clawdeck/clawdeck/internal/chat"
	"github.com/clawdeck/clawdeck/internal/config"
	"github.com/clawdeck/clawdeck/internal/gateway"
	"github.com/clawdeck/clawdeck/internal/identity"
)

var sendCmd = &cobra.Command{
	Use:   "send [message...]",
	Short: "Send one message and exit",
	Long: `Send one message through the gateway without opening the chat screen.

With --wait the command streams the assistant's reply to stdout and exits
when the run finishes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

var (
	sendURL     string
	sendSession string
	sendToken   string
	sendWait    bool
	sendVerbose bool
)

func init() {
	sendCmd.Flags().StringVar(&sendURL, "url", "", "Gateway WebSocket URL (overrides config)")
	sendCmd.Flags().StringVarP(&sendSession, "session", "s", "", "Session key (overrides config)")
	sendCmd.Flags().StringVar(&sendToken, "token", "", "Shared gateway token (overrides config)")
	sendCmd.Flags().BoolVarP(&sendWait, "wait", "w", false, "Stream the reply and wait for the run to finish")
	sendCmd.Flags().BoolVarP(&sendVerbose, "verbose", "v", false, "Enable verbose logging")
}

func runSend(cmd *cobra.Command, args []string) error {
	logger := newLogger(sendVerbose)

	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}
	applyFlagOverrides(cfg, sendURL, sendSession, sendToken)

	// One-shot commands keep tokens in memory so they never rotate the
	// credential the interactive session relies on.
	idents := identity.NewStore(config.Dir())
	conn := gateway.New(cfg.Gateway.URL, idents, identity.NewMemoryTokenStore(), logger)
	defer conn.Close()

	presented := cfg.Gateway.Token
	if err := conn.Connect(context.Background(), presented, presented == ""); err != nil {
		return err
	}

	svc := chat.NewService(conn)

	// Subscribe before sending so the first delta cannot slip past.
	var events <-chan chat.Event
	if sendWait {
		events = svc.Events()
	}

	text := strings.Join(args, " ")
	result, err := svc.Send(cfg.Chat.SessionKey, text, cfg.Chat.Thinking, uuid.NewString())
	if err != nil {
		return err
	}
	if !sendWait {
		fmt.Printf("run %s (%s)\n", result.RunID, result.Status)
		return nil
	}

	for ev := range events {
		if ev.RunID != result.RunID || ev.SessionKey != cfg.Chat.SessionKey {
			continue
		}
		switch ev.State {
		case chat.EventFinal:
			if ev.Message != nil {
				fmt.Println(ev.Message.Text)
			}
			return nil
		case chat.EventError:
			return fmt.Errorf("run failed: %s", ev.ErrorMessage)
		}
	}
	return fmt.Errorf("connection closed before the run finished")
}
