package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/program"
	"github.com/srtaalej/capstone-proj/internal/submitter"
	"github.com/srtaalej/capstone-proj/internal/wallet"
)

// txOutput is printed after a confirmed transaction.
type txOutput struct {
	Signature   string  `json:"signature"`
	Slot        uint64  `json:"slot"`
	PollID      *uint64 `json:"poll_id,omitempty"`
	CandidateID *uint64 `json:"candidate_id,omitempty"`
}

func commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "keygen",
			Usage: "generate a keypair file at --keypair",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "force", Usage: "overwrite an existing file"},
			},
			Action: keygen,
		},
		{
			Name:   "address",
			Usage:  "print the public key of --keypair",
			Action: address,
		},
		{
			Name:   "init",
			Usage:  "create the poll counter and candidate registry",
			Action: submitAction(func(*cli.Context) (program.Instruction, error) { return &program.Initialize{}, nil }, nil),
		},
		{
			Name:  "create-poll",
			Usage: "create a poll open between --start and --end",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Required: true},
				&cli.Int64Flag{Name: "start", Usage: "unix seconds, default now"},
				&cli.Int64Flag{Name: "end", Usage: "unix seconds, inclusive"},
				&cli.DurationFlag{Name: "duration", Usage: "alternative to --end, relative to --start"},
			},
			Action: submitAction(createPoll, func(st *submitter.Status, out *txOutput) { out.PollID = &st.PollID }),
		},
		{
			Name:  "register",
			Usage: "register a candidate in a poll",
			Flags: []cli.Flag{
				&cli.Uint64Flag{Name: "poll", Required: true},
				&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true},
			},
			Action: submitAction(func(c *cli.Context) (program.Instruction, error) {
				return &program.RegisterCandidate{PollID: c.Uint64("poll"), Name: c.String("name")}, nil
			}, func(st *submitter.Status, out *txOutput) {
				out.PollID, out.CandidateID = &st.PollID, &st.CandidateID
			}),
		},
		{
			Name:  "vote",
			Usage: "cast the signer's vote",
			Flags: []cli.Flag{
				&cli.Uint64Flag{Name: "poll", Required: true},
				&cli.Uint64Flag{Name: "candidate", Required: true},
			},
			Action: submitAction(func(c *cli.Context) (program.Instruction, error) {
				return &program.Vote{PollID: c.Uint64("poll"), CandidateID: c.Uint64("candidate")}, nil
			}, func(st *submitter.Status, out *txOutput) {
				out.PollID, out.CandidateID = &st.PollID, &st.CandidateID
			}),
		},
		{
			Name:  "mint-identity",
			Usage: "mint the signer's identity token",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "name", Required: true},
				&cli.StringFlag{Name: "dob", Usage: "date of birth", Required: true},
				&cli.StringFlag{Name: "gender", Required: true},
			},
			Action: submitAction(func(c *cli.Context) (program.Instruction, error) {
				return &program.InitiateToken{Name: c.String("name"), DOB: c.String("dob"), Gender: c.String("gender")}, nil
			}, nil),
		},
		{
			Name:  "ping",
			Usage: "check that the backend answers",
			Action: query(func(ctx context.Context, _ *cli.Context, q queries) (interface{}, error) {
				return q.Ping(ctx)
			}),
		},
		{
			Name:  "polls",
			Usage: "list polls",
			Action: query(func(ctx context.Context, c *cli.Context, q queries) (interface{}, error) {
				return q.Polls(ctx)
			}),
		},
		{
			Name:  "candidates",
			Usage: "list candidates, optionally of one poll",
			Flags: []cli.Flag{
				&cli.Uint64Flag{Name: "poll"},
			},
			Action: query(func(ctx context.Context, c *cli.Context, q queries) (interface{}, error) {
				var pollID *uint64
				if c.IsSet("poll") {
					id := c.Uint64("poll")
					pollID = &id
				}
				return q.Candidates(ctx, pollID)
			}),
		},
		{
			Name:      "identity",
			Usage:     "show the identity status of a wallet, default the signer",
			ArgsUsage: "[wallet]",
			Action: query(func(ctx context.Context, c *cli.Context, q queries) (interface{}, error) {
				w, err := walletArg(c)
				if err != nil {
					return nil, err
				}
				return q.Identity(ctx, w)
			}),
		},
		{
			Name:      "status",
			Usage:     "wait for a transaction and print its outcome",
			ArgsUsage: "<signature>",
			Action:    status,
		},
	}
}

func keygen(c *cli.Context) error {
	path := c.String("keypair")
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s exists, use --force to overwrite", path)
	}
	key, err := wallet.NewKeypair()
	if err != nil {
		return err
	}
	if err := key.Save(path); err != nil {
		return err
	}
	return printJSON(c, map[string]string{"pubkey": key.PublicKey().String(), "path": path})
}

func address(c *cli.Context) error {
	key, err := wallet.Load(c.String("keypair"))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, key.PublicKey())
	return err
}

func createPoll(c *cli.Context) (program.Instruction, error) {
	start := time.Now().Unix()
	if c.IsSet("start") {
		start = c.Int64("start")
	}
	var end int64
	switch {
	case c.IsSet("end") && c.IsSet("duration"):
		return nil, errors.New("--end and --duration are mutually exclusive")
	case c.IsSet("end"):
		end = c.Int64("end")
	case c.IsSet("duration"):
		end = start + int64(c.Duration("duration")/time.Second)
	default:
		return nil, errors.New("one of --end or --duration is required")
	}
	return &program.CreatePoll{Description: c.String("description"), Start: start, End: end}, nil
}

// submitAction signs the instruction built by build, waits for confirmation
// and prints the outcome. fill adds instruction-specific ids.
func submitAction(build func(*cli.Context) (program.Instruction, error), fill func(*submitter.Status, *txOutput)) cli.ActionFunc {
	return func(c *cli.Context) error {
		ix, err := build(c)
		if err != nil {
			return err
		}
		key, err := wallet.Load(c.String("keypair"))
		if err != nil {
			return err
		}
		cl, err := connect(c)
		if err != nil {
			return err
		}
		defer cl.close()

		ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
		defer cancel()

		st, err := submitter.SubmitAndConfirm(ctx, cl, ix, key)
		if err != nil {
			return describeFailure(err)
		}
		out := txOutput{Signature: st.Signature, Slot: st.Slot}
		if fill != nil {
			fill(st, &out)
		}
		return printJSON(c, out)
	}
}

func query(fn func(context.Context, *cli.Context, queries) (interface{}, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		cl, err := connect(c)
		if err != nil {
			return err
		}
		defer cl.close()

		v, err := fn(c.Context, c, cl.queries)
		if err != nil {
			return err
		}
		return printJSON(c, v)
	}
}

func status(c *cli.Context) error {
	sig := c.Args().First()
	if sig == "" {
		return errors.New("signature argument is required")
	}
	cl, err := connect(c)
	if err != nil {
		return err
	}
	defer cl.close()

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()
	st, err := cl.Confirm(ctx, sig)
	if err != nil {
		return describeFailure(err)
	}
	return printJSON(c, txOutput{Signature: sig, Slot: st.Slot})
}

func walletArg(c *cli.Context) (domain.PublicKey, error) {
	if arg := c.Args().First(); arg != "" {
		return domain.ParsePublicKey(arg)
	}
	key, err := wallet.Load(c.String("keypair"))
	if err != nil {
		return domain.PublicKey{}, err
	}
	return key.PublicKey(), nil
}

// describeFailure names the program error of a rejection.
func describeFailure(err error) error {
	var f *submitter.Failure
	if !errors.As(err, &f) || f.Kind != submitter.FailureRejected {
		return err
	}
	if pe, ok := program.AsError(err); ok {
		return fmt.Errorf("rejected: %s (%d): %w", pe.Name, pe.Code, err)
	}
	return err
}

func printJSON(c *cli.Context, v interface{}) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
