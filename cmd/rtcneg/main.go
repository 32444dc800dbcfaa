// rtcneg — CLI entry point.
//
// This tool negotiates a WebRTC peer connection through a WebSocket relay:
// one side runs "connect" and sends the offer, the other runs "answer", and
// "relay" forwards signaling frames between them. Once connected, both sides
// exchange a greeting over the data channel.
//
// Run without a subcommand for interactive prompts.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/1ureka/rtcnegotiator/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}
