package program

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/storage"
	boltstore "github.com/srtaalej/capstone-proj/internal/storage/bolt"
	"github.com/srtaalej/capstone-proj/internal/storage/memory"
)

// slowStore delays every read so concurrent executions interleave their
// reads with other commits.
type slowStore struct {
	storage.AccountStore
	delay time.Duration
}

func (s slowStore) Get(ctx context.Context, addr domain.PublicKey) (*domain.Account, error) {
	time.Sleep(s.delay)
	return s.AccountStore.Get(ctx, addr)
}

// hookStore runs before once, ahead of the first read of target.
type hookStore struct {
	storage.AccountStore
	target domain.PublicKey
	before func()
	once   sync.Once
}

func (s *hookStore) Get(ctx context.Context, addr domain.PublicKey) (*domain.Account, error) {
	if addr == s.target {
		s.once.Do(s.before)
	}
	return s.AccountStore.Get(ctx, addr)
}

func openBolt(t *testing.T) storage.AccountStore {
	t.Helper()
	db, err := boltstore.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return boltstore.NewAccountStore(db)
}

// backends lists the stores the concurrency tests run against.
func backends() map[string]func(t *testing.T) storage.AccountStore {
	return map[string]func(t *testing.T) storage.AccountStore{
		"memory": func(*testing.T) storage.AccountStore { return memory.NewAccountStore() },
		"memory_slow_reads": func(*testing.T) storage.AccountStore {
			return slowStore{AccountStore: memory.NewAccountStore(), delay: time.Millisecond}
		},
		"bolt": openBolt,
		"bolt_slow_reads": func(t *testing.T) storage.AccountStore {
			return slowStore{AccountStore: openBolt(t), delay: time.Millisecond}
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, f *fixture)) {
	for name, newStore := range backends() {
		newStore := newStore
		t.Run(name, func(t *testing.T) {
			clock := NewManualClock(t0)
			prog := New(newStore(t), WithClock(clock), WithConfig(Config{MaxAttempts: 200}))
			fn(t, &fixture{prog: prog, clock: clock, r: prog.Reader()})
		})
	}
}

func TestConcurrentCreatePoll_UniqueIDs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		require.NoError(t, f.prog.Initialize(ctx, admin))

		const n = 16
		var (
			wg  sync.WaitGroup
			mu  sync.Mutex
			ids = map[uint64]bool{}
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id, err := f.prog.CreatePoll(ctx, domain.PublicKey{0x20, byte(i)}, fmt.Sprintf("p%d", i), t0, t0+1)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				ids[id] = true
				mu.Unlock()
			}(i)
		}
		wg.Wait()

		assert.Len(t, ids, n)
		for i := uint64(0); i < n; i++ {
			assert.True(t, ids[i], "missing poll id %d", i)
		}
		counter, err := f.r.Counter(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(n), counter.Count)
	})
}

func TestConcurrentRegisterCandidate_UniqueIDs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		scenarioAB(t, f)

		const n = 12
		var (
			wg  sync.WaitGroup
			mu  sync.Mutex
			ids = map[uint64]bool{}
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				cid, err := f.prog.RegisterCandidate(ctx, admin, 0, fmt.Sprintf("c%d", i))
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				ids[cid] = true
				mu.Unlock()
			}(i)
		}
		wg.Wait()

		assert.Len(t, ids, n)
		for cid := uint64(2); cid < n+2; cid++ {
			assert.True(t, ids[cid], "missing candidate id %d", cid)
		}

		poll, err := f.r.Poll(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(n+2), poll.Candidates)
		regs, err := f.r.Registrations(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(n+2), regs.Count)
	})
}

func TestConcurrentVotes_NoLostUpdates(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		scenarioAB(t, f)

		const voters = 24
		var wg sync.WaitGroup
		errs := make(chan error, voters)
		for i := 0; i < voters; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- f.prog.Vote(ctx, domain.PublicKey{0x10, byte(i)}, 0, uint64(i%2))
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		red, err := f.r.Candidate(ctx, 0, 0)
		require.NoError(t, err)
		blue, err := f.r.Candidate(ctx, 0, 1)
		require.NoError(t, err)
		assert.Equal(t, uint64(voters/2), red.Votes)
		assert.Equal(t, uint64(voters/2), blue.Votes)
	})
}

func TestConcurrentDoubleVote_OneWins(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		scenarioAB(t, f)

		const attempts = 10
		var wg sync.WaitGroup
		errs := make(chan error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(cid uint64) {
				defer wg.Done()
				errs <- f.prog.Vote(ctx, walletW, 0, cid)
			}(uint64(i % 2))
		}
		wg.Wait()
		close(errs)

		var ok, dup int
		for err := range errs {
			switch {
			case err == nil:
				ok++
			case assert.ErrorIs(t, err, ErrDuplicateVote):
				dup++
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, attempts-1, dup)

		red, err := f.r.Candidate(ctx, 0, 0)
		require.NoError(t, err)
		blue, err := f.r.Candidate(ctx, 0, 1)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), red.Votes+blue.Votes)
	})
}

func TestCreatePoll_ReexecutesWhenPollLandsBetweenReads(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewAccountStore()
	rival := New(inner, WithClock(NewManualClock(t0)))
	require.NoError(t, rival.Initialize(ctx, admin))

	poll0, err := rival.Deriver().Poll(0)
	require.NoError(t, err)
	store := &hookStore{AccountStore: inner, target: poll0.Key}
	store.before = func() {
		id, err := rival.CreatePoll(ctx, walletW, "rival", t0, t0+60)
		require.NoError(t, err)
		require.Equal(t, uint64(0), id)
	}

	prog := New(store, WithClock(NewManualClock(t0)))
	res, err := prog.Execute(ctx, admin, &CreatePoll{Description: "mine", Start: t0, End: t0 + 60})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.PollID)
	assert.Equal(t, 2, res.Attempts)

	mine, err := prog.Reader().Poll(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "mine", mine.Description)
	assert.Equal(t, admin, mine.Owner)
}

func TestRegisterCandidate_ReexecutesWhenCandidateLandsBetweenReads(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewAccountStore()
	rival := New(inner, WithClock(NewManualClock(t0)))
	require.NoError(t, rival.Initialize(ctx, admin))
	_, err := rival.CreatePoll(ctx, admin, "Lunch", t0, t0+60)
	require.NoError(t, err)

	cand0, err := rival.Deriver().Candidate(0, 0)
	require.NoError(t, err)
	store := &hookStore{AccountStore: inner, target: cand0.Key}
	store.before = func() {
		cid, err := rival.RegisterCandidate(ctx, walletW, 0, "Tacos")
		require.NoError(t, err)
		require.Equal(t, uint64(0), cid)
	}

	prog := New(store, WithClock(NewManualClock(t0)))
	cid, err := prog.RegisterCandidate(ctx, admin, 0, "Ramen")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cid)

	cands, err := prog.Reader().Candidates(ctx, 0)
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, "Tacos", cands[0].Name)
	assert.Equal(t, "Ramen", cands[1].Name)
}

func TestCreatePoll_OccupiedAddressIsCorruption(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	require.NoError(t, f.prog.Initialize(ctx, admin))

	poll0, err := f.prog.Deriver().Poll(0)
	require.NoError(t, err)
	_, err = f.store.Commit(ctx, []domain.AccountWrite{{
		Address: poll0.Key,
		Account: &domain.Account{Address: poll0.Key, Owner: f.prog.Deriver().VoteProgram, Data: []byte{1}},
	}})
	require.NoError(t, err)

	_, err = f.prog.CreatePoll(ctx, admin, "p", t0, t0+1)
	assert.ErrorIs(t, err, ErrStateCorrupted)
	_, isProgramErr := AsError(err)
	assert.False(t, isProgramErr)

	counter, err := f.r.Counter(ctx)
	require.NoError(t, err)
	assert.Zero(t, counter.Count)
}
