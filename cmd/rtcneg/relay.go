package main

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/rtcnegotiator/internal/config"
	"github.com/1ureka/rtcnegotiator/internal/signaling"
	"github.com/1ureka/rtcnegotiator/internal/util"
)

const pinLength = 6

func newRelayCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the WebSocket relay that forwards signaling between peers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load(cmd, "")
			if err != nil {
				return err
			}
			if f.randomPIN {
				cfg.PIN = signaling.GeneratePIN(pinLength)
			}
			return runRelay(cmd.Context(), cfg)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.listenAddr, "listen", "", "Listen address, e.g. :8080 or 127.0.0.1:0")
	fl.BoolVar(&f.randomPIN, "random-pin", false, "Require a freshly generated PIN")
	return cmd
}

// runRelay serves until ctx is cancelled.
func runRelay(ctx context.Context, cfg *config.Config) error {
	relay := signaling.NewRelay(cfg.PIN)
	port, err := relay.Start(cfg.ListenAddr)
	if err != nil {
		return err
	}
	defer relay.Close()

	pin := cfg.PIN
	if pin == "" {
		pin = "(none)"
	}
	pterm.DefaultBox.WithTitle("WebSocket Signaling Relay").Println(
		fmt.Sprintf("Port : %d\nPath : /ws\nPIN  : %s\n\nTip: use VS Code Port Forwarding to expose this port", port, pin),
	)

	<-ctx.Done()
	util.LogInfo("relay shutting down (%d peer(s) connected)", relay.Peers())
	return nil
}
