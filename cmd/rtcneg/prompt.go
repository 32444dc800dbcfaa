package main

import (
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/rtcnegotiator/internal/config"
	"github.com/1ureka/rtcnegotiator/internal/util"
)

// runInteractive falls back to prompts when no subcommand is given.
func runInteractive(cmd *cobra.Command, f *flags) error {
	choice, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{
			"Connect — create the offer",
			"Answer  — wait for an offer",
			"Relay   — forward signaling between peers",
		}).
		WithDefaultText("Select what to run").
		Show()
	pterm.Println()

	if strings.HasPrefix(choice, "Relay") {
		cfg, err := f.load(cmd, "")
		if err != nil {
			return err
		}
		return runRelay(cmd.Context(), cfg)
	}

	role := config.RoleInitiator
	if strings.HasPrefix(choice, "Answer") {
		role = config.RoleResponder
	}

	f.relayURL = askURL()
	cfg, err := f.load(cmd, role)
	if err != nil {
		return err
	}
	cfg.SessionID = askSessionID()
	return runPeer(cmd.Context(), cfg)
}

// askURL prompts for a relay URL until a valid one is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Relay URL (e.g. wss://***.asse.devtunnels.ms/ws)").
			Show()

		u, err := config.NormalizeRelayURL(raw)
		if err == nil {
			pterm.Println()
			return u
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}

// askSessionID prompts for a session ID; empty input selects 0.
func askSessionID() uint64 {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Session ID (default 0)").
			Show()

		raw = strings.TrimSpace(raw)
		if raw == "" {
			pterm.Println()
			return 0
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err == nil {
			pterm.Println()
			return id
		}

		util.LogWarning("invalid session ID: must be a non-negative integer")
		pterm.Println()
	}
}
