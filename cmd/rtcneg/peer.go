package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/1ureka/rtcnegotiator/internal/config"
	"github.com/1ureka/rtcnegotiator/internal/negotiation"
	"github.com/1ureka/rtcnegotiator/internal/signaling"
	"github.com/1ureka/rtcnegotiator/internal/transport"
	"github.com/1ureka/rtcnegotiator/internal/util"
)

const statsInterval = 10 * time.Second

func newPeerCmd(f *flags, role config.Role) *cobra.Command {
	use, short := "connect", "Create the offer and connect to the remote peer"
	if role == config.RoleResponder {
		use, short = "answer", "Wait for the remote offer and answer it"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load(cmd, role)
			if err != nil {
				return err
			}
			return runPeer(cmd.Context(), cfg)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.relayURL, "relay", "", "Relay URL, e.g. ws://127.0.0.1:8080/ws")
	fl.Uint64Var(&f.session, "session", 0, "Session ID")
	fl.StringSliceVar(&f.iceServers, "stun", nil, "STUN/TURN URLs (empty for host candidates only)")
	fl.StringVar(&f.label, "label", "", "Data channel label")
	return cmd
}

// runPeer connects to the relay and negotiates one session until Ctrl+C or
// until the relay goes away.
func runPeer(ctx context.Context, cfg *config.Config) error {
	spinner, _ := pterm.DefaultSpinner.Start("Connecting to relay " + cfg.RelayURL)
	conn, err := signaling.Dial(ctx, cfg.DialURL())
	if err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success("Connected to relay")
	defer conn.Close()

	role := negotiation.RoleInitiator
	if cfg.Role == config.RoleResponder {
		role = negotiation.RoleResponder
	}

	var current atomic.Pointer[transport.Transport]
	engineOpts := transport.Options{
		Initiator:    role == negotiation.RoleInitiator,
		ICEServers:   cfg.ICEServers,
		ChannelLabel: cfg.ChannelLabel,
	}
	newEngine := func() (negotiation.Engine, error) {
		tr, err := transport.New(engineOpts)
		if err != nil {
			return nil, err
		}
		tr.OnMessage(func(b []byte) {
			pterm.Info.Printfln("peer says: %s", b)
		})
		current.Store(tr)
		return tr, nil
	}

	neg := negotiation.New(negotiation.Options{
		Role:      role,
		NewEngine: newEngine,
		Signals:   conn,
	})
	defer neg.Close()

	neg.OnConnectedChanged(func(id uint64, connected bool) {
		if !connected {
			return
		}
		if tr := current.Load(); tr != nil {
			go greet(ctx, tr, id, role)
		}
	})
	failed := make(chan error, 1)
	neg.OnEvent(func(ev negotiation.Event) {
		if ev.Kind == negotiation.EventConnectionFailed {
			select {
			case failed <- ev.Err:
			default:
			}
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return conn.Run(gctx, neg)
	})
	g.Go(func() error {
		util.StartStatsReporter(gctx, neg.Stats(), statsInterval)
		if err := neg.Connect(gctx, cfg.SessionID); err != nil {
			return fmt.Errorf("connect session %d: %w", cfg.SessionID, err)
		}
		select {
		case err := <-failed:
			return fmt.Errorf("session %d: %w", cfg.SessionID, err)
		case <-gctx.Done():
			return nil
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	util.LogInfo("session %d closed", cfg.SessionID)
	return err
}

func greet(ctx context.Context, tr *transport.Transport, id uint64, role negotiation.Role) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg := fmt.Sprintf("hello from the %s of session %d", role, id)
	if err := tr.Send(ctx, []byte(msg)); err != nil {
		util.LogWarning("[session %d] greeting not sent: %v", id, err)
	}
}
