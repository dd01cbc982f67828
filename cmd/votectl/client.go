package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/srtaalej/capstone-proj/internal/api"
	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/logging"
	"github.com/srtaalej/capstone-proj/internal/pda"
	"github.com/srtaalej/capstone-proj/internal/program"
	"github.com/srtaalej/capstone-proj/internal/solana"
	"github.com/srtaalej/capstone-proj/internal/submitter"
)

// queries reads program state from whichever backend votectl talks to.
type queries interface {
	Polls(ctx context.Context) ([]api.PollView, error)
	Candidates(ctx context.Context, pollID *uint64) ([]api.CandidateView, error)
	Identity(ctx context.Context, wallet domain.PublicKey) (api.IdentityView, error)
	Ping(ctx context.Context) (map[string]interface{}, error)
}

type client struct {
	submitter.Submitter
	queries
	close func()
}

func deriverFromFlags(c *cli.Context) (*pda.Deriver, error) {
	vote, err := domain.ParsePublicKey(c.String("program-id"))
	if err != nil {
		return nil, fmt.Errorf("program-id: %w", err)
	}
	identity, err := domain.ParsePublicKey(c.String("identity-program-id"))
	if err != nil {
		return nil, fmt.Errorf("identity-program-id: %w", err)
	}
	return pda.NewDeriver(vote, identity), nil
}

// connect builds a client for the backend selected by --server or --rpc.
func connect(c *cli.Context) (*client, error) {
	server, rpcURL := c.String("server"), c.String("rpc")
	switch {
	case server != "" && rpcURL != "":
		return nil, errors.New("--server and --rpc are mutually exclusive")
	case server == "" && rpcURL == "":
		return nil, errors.New("one of --server or --rpc is required")
	}

	deriver, err := deriverFromFlags(c)
	if err != nil {
		return nil, err
	}

	if server != "" {
		r := submitter.NewRemote(server, deriver, submitter.DefaultBackoff())
		return &client{Submitter: r, queries: remoteQueries{r}, close: func() {}}, nil
	}

	if !c.IsSet("program-id") {
		return nil, errors.New("--program-id is required with --rpc")
	}
	logger, err := logging.New(c.String("log-level"), logging.FormatConsole)
	if err != nil {
		return nil, err
	}
	opts := []submitter.ClusterOption{
		submitter.WithCommitment(c.String("commitment")),
		submitter.WithClusterLogger(logger),
	}
	closeFn := func() { _ = logger.Sync() }
	if wsURL := c.String("ws"); wsURL != "" {
		ws, err := solana.NewWSClient(c.Context, wsURL, nil)
		if err != nil {
			return nil, fmt.Errorf("connect websocket: %w", err)
		}
		opts = append(opts, submitter.WithWebsocket(ws))
		closeFn = func() {
			_ = ws.Close()
			_ = logger.Sync()
		}
	}
	rpc := solana.NewHTTPClient(rpcURL)
	cl := submitter.NewCluster(rpc, deriver, submitter.DefaultBackoff(), opts...)
	return &client{Submitter: cl, queries: clusterQueries{rpc: rpc, r: cl.Reader()}, close: closeFn}, nil
}

type remoteQueries struct {
	r *submitter.Remote
}

func (q remoteQueries) Polls(ctx context.Context) ([]api.PollView, error) {
	var out []api.PollView
	return out, q.r.Fetch(ctx, "/v1/polls", &out)
}

func (q remoteQueries) Candidates(ctx context.Context, pollID *uint64) ([]api.CandidateView, error) {
	path := "/v1/candidates"
	if pollID != nil {
		path = "/v1/polls/" + strconv.FormatUint(*pollID, 10) + "/candidates"
	}
	var out []api.CandidateView
	return out, q.r.Fetch(ctx, path, &out)
}

func (q remoteQueries) Identity(ctx context.Context, wallet domain.PublicKey) (api.IdentityView, error) {
	var out api.IdentityView
	return out, q.r.Fetch(ctx, "/v1/identity/"+url.PathEscape(wallet.String()), &out)
}

func (q remoteQueries) Ping(ctx context.Context) (map[string]interface{}, error) {
	var h api.HealthResponse
	if err := q.r.Fetch(ctx, "/health", &h); err != nil {
		return nil, err
	}
	return map[string]interface{}{"backend": "server", "status": h.Status}, nil
}

type clusterQueries struct {
	rpc solana.RPCClient
	r   *program.Reader
}

func (q clusterQueries) Ping(ctx context.Context) (map[string]interface{}, error) {
	slot, err := q.rpc.GetSlot(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"backend": "cluster", "status": "ok", "slot": slot}, nil
}

func (q clusterQueries) Polls(ctx context.Context) ([]api.PollView, error) {
	polls, err := q.r.Polls(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]api.PollView, 0, len(polls))
	for _, p := range polls {
		out = append(out, api.NewPollView(p))
	}
	return out, nil
}

func (q clusterQueries) Candidates(ctx context.Context, pollID *uint64) ([]api.CandidateView, error) {
	var (
		cands []*domain.Candidate
		err   error
	)
	if pollID != nil {
		cands, err = q.r.Candidates(ctx, *pollID)
	} else {
		cands, err = q.r.AllCandidates(ctx)
	}
	if err != nil {
		return nil, err
	}
	out := make([]api.CandidateView, 0, len(cands))
	for _, c := range cands {
		out = append(out, api.NewCandidateView(c))
	}
	return out, nil
}

func (q clusterQueries) Identity(ctx context.Context, wallet domain.PublicKey) (api.IdentityView, error) {
	status, err := q.r.IdentityStatus(ctx, wallet)
	if err != nil {
		return api.IdentityView{}, err
	}
	return api.IdentityView{Wallet: wallet, Status: string(status)}, nil
}
