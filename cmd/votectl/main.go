// Package main provides votectl, a command line client for the voting
// program. It talks either to a voteledger server (--server) or directly to
// a Solana cluster over JSON-RPC (--rpc, optionally --ws for confirmations).
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/srtaalej/capstone-proj/internal/logging"
	"github.com/srtaalej/capstone-proj/internal/pda"
	"github.com/srtaalej/capstone-proj/internal/solana"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "votectl: %v\n", err)
		os.Exit(1)
	}
}

func defaultKeypairPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "id.json"
	}
	return filepath.Join(home, ".config", "solana", "id.json")
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:  "votectl",
		Usage: "create polls, register candidates and vote",
		// Errors are printed once by main.
		ExitErrHandler: func(*cli.Context, error) {},
		Writer:         out,
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:    "keypair",
				Aliases: []string{"k"},
				Usage:   "signing keypair file (Solana keygen format)",
				Value:   defaultKeypairPath(),
				EnvVars: []string{"VOTECTL_KEYPAIR"},
			},
			&cli.StringFlag{
				Name:    "server",
				Usage:   "voteledger base URL, e.g. http://localhost:8080",
				EnvVars: []string{"VOTECTL_SERVER"},
			},
			&cli.StringFlag{
				Name:    "rpc",
				Usage:   "Solana JSON-RPC endpoint",
				EnvVars: []string{"VOTECTL_RPC"},
			},
			&cli.StringFlag{
				Name:    "ws",
				Usage:   "Solana websocket endpoint for signature notifications",
				EnvVars: []string{"VOTECTL_WS"},
			},
			&cli.StringFlag{
				Name:  "commitment",
				Usage: "confirmation level against a cluster: processed, confirmed or finalized",
				Value: solana.CommitmentConfirmed,
			},
			&cli.StringFlag{
				Name:  "program-id",
				Usage: "vote program id, required with --rpc",
				Value: pda.DefaultVoteProgramID.String(),
			},
			&cli.StringFlag{
				Name:  "identity-program-id",
				Usage: "identity token program id",
				Value: pda.DefaultIdentityProgramID.String(),
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "deadline for submitting and confirming one transaction",
				Value: time.Minute,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level for client diagnostics",
				Value: "warn",
			},
		},
		Before: func(c *cli.Context) error {
			_, err := logging.ParseLevel(c.String("log-level"))
			return err
		},
		Commands: commands(),
	}
}
