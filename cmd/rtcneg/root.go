package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/rtcnegotiator/internal/config"
	"github.com/1ureka/rtcnegotiator/internal/util"
)

// flags holds raw flag values shared by every subcommand.
type flags struct {
	file       string
	debug      bool
	trace      bool
	relayURL   string
	listenAddr string
	pin        string
	randomPIN  bool
	session    uint64
	iceServers []string
	label      string
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:           "rtcneg",
		Short:         "Negotiate a WebRTC peer connection through a WebSocket relay",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if f.trace {
				util.EnableTrace()
			} else if f.debug {
				util.EnableDebug()
			}
			pterm.Info.Printfln("rtcneg — v%s", version)
			pterm.Println()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd, f)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.file, "config", "", "YAML config file (also RTCNEG_CONFIG)")
	pf.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	pf.BoolVar(&f.trace, "trace", false, "Enable trace logging, including pion internals")
	pf.StringVar(&f.pin, "pin", "", "Relay PIN")

	root.AddCommand(
		newPeerCmd(f, config.RoleInitiator),
		newPeerCmd(f, config.RoleResponder),
		newRelayCmd(f),
	)
	return root
}

// load resolves the configuration for cmd, honoring only flags the user set.
func (f *flags) load(cmd *cobra.Command, role config.Role) (*config.Config, error) {
	opts := config.Options{
		File:         f.file,
		Role:         role,
		RelayURL:     f.relayURL,
		ListenAddr:   f.listenAddr,
		PIN:          f.pin,
		ChannelLabel: f.label,
		Debug:        f.debug,
	}
	if cmd.Flags().Changed("session") {
		opts.SessionID = &f.session
	}
	if cmd.Flags().Changed("stun") {
		opts.ICEServers = f.iceServers
	}

	cfg, err := config.Load(opts)
	if err != nil {
		return nil, err
	}
	if cfg.Debug && !f.trace {
		util.EnableDebug()
	}
	return cfg, nil
}
