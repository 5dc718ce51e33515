package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/clawdeck/clawdeck/internal/config"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	RunE:  runSetup,
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}

	fmt.Println("🦞 Clawdeck Setup")
	fmt.Println()

	askGatewayURL(cfg)
	askGatewayToken(cfg)
	askSessionKey(cfg)
	askThinking(cfg)

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println()
	fmt.Println("✅ Configuration saved to " + config.Path())
	fmt.Println("Run 'clawdeck chat' to start a conversation.")
	return nil
}

func askGatewayURL(cfg *config.Config) {
	var url string
	err := huh.NewInput().
		Title("Gateway URL").
		Description("WebSocket address of your gateway (Esc to keep current)").
		Placeholder(cfg.Gateway.URL).
		Value(&url).
		Run()
	if err != nil {
		return
	}
	if url = strings.TrimSpace(url); url != "" {
		cfg.Gateway.URL = url
	}
}

func askGatewayToken(cfg *config.Config) {
	var token string
	err := huh.NewInput().
		Title("Gateway Token").
		Description("Shared token, leave empty to pair as a device (Esc to skip)").
		Value(&token).
		EchoMode(huh.EchoModePassword).
		Run()
	if err != nil {
		return
	}
	if token = strings.TrimSpace(token); token != "" {
		cfg.Gateway.Token = token
	}
}

func askSessionKey(cfg *config.Config) {
	var session string
	err := huh.NewInput().
		Title("Session Key").
		Description("Conversation to attach to (Esc to keep current)").
		Placeholder(cfg.Chat.SessionKey).
		Value(&session).
		Run()
	if err != nil {
		return
	}
	if session = strings.TrimSpace(session); session != "" {
		cfg.Chat.SessionKey = session
	}
}

func askThinking(cfg *config.Config) {
	var level string
	err := huh.NewSelect[string]().
		Title("Thinking Level").
		Description("How much reasoning effort to request per message").
		Options(
			huh.NewOption("Low (fast responses)", "low"),
			huh.NewOption("Medium", "medium"),
			huh.NewOption("High (thorough reasoning)", "high"),
		).
		Value(&level).
		Run()
	if err != nil {
		return
	}
	if level != "" {
		cfg.Chat.Thinking = level
	}
}
