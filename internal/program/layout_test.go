package program

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srtaalej/capstone-proj/internal/anchor"
	"github.com/srtaalej/capstone-proj/internal/domain"
)

func TestDiscriminators_MatchIDLNames(t *testing.T) {
	assert.Equal(t, anchor.AccountDiscriminator("Registerations"), RegistrationsDiscriminator)
	assert.Equal(t, anchor.AccountDiscriminator("Poll"), PollDiscriminator)
	assert.Equal(t, anchor.InstructionDiscriminator("create_poll"), KindCreatePoll.Discriminator())
}

func TestDecodePoll_WithoutOwner(t *testing.T) {
	// layout written by the deployed program: id, description, start, end, candidates
	legacy := struct {
		ID          uint64
		Description string
		Start       int64
		End         int64
		Candidates  uint64
	}{ID: 3, Description: "Legacy", Start: 10, End: 20, Candidates: 4}

	data, err := anchor.Marshal(PollDiscriminator, &legacy)
	require.NoError(t, err)

	poll, err := DecodePoll(data)
	require.NoError(t, err)
	assert.Equal(t, &domain.Poll{ID: 3, Description: "Legacy", Start: 10, End: 20, Candidates: 4}, poll)
}

func TestDecodePoll_WithOwner(t *testing.T) {
	want := &domain.Poll{ID: 1, Description: "d", Start: 1, End: 2, Candidates: 0, Owner: domain.PublicKey{5}}
	data, err := EncodePoll(want)
	require.NoError(t, err)

	got, err := DecodePoll(data)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeAccount_Dispatch(t *testing.T) {
	data, err := EncodeVoter(&domain.Voter{PollID: 2, Voter: domain.PublicKey{1}, HasVoted: true})
	require.NoError(t, err)

	dec, err := DecodeAccount(data)
	require.NoError(t, err)
	assert.Equal(t, AccountVoter, dec.Type)
	assert.True(t, dec.Record.(*domain.Voter).HasVoted)

	_, err = DecodeAccount([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9})
	assert.ErrorIs(t, err, anchor.ErrDiscriminatorMismatch)

	_, err = DecodeCounter(data)
	assert.ErrorIs(t, err, anchor.ErrDiscriminatorMismatch)
}
