package api

import (
	"encoding/base64"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/program"
)

// SubmitRequest is the body of POST /v1/transactions.
type SubmitRequest struct {
	Transaction string `json:"transaction"` // base64 signed envelope
}

// SubmitResponse describes an applied transaction.
type SubmitResponse struct {
	Signature   string  `json:"signature"`
	Status      string  `json:"status"`
	Instruction string  `json:"instruction"`
	Slot        uint64  `json:"slot"`
	PollID      *uint64 `json:"poll_id,omitempty"`
	CandidateID *uint64 `json:"candidate_id,omitempty"`
}

// ErrorResponse is returned for every non-2xx answer. Code and Name are set
// for program rejections.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      uint32 `json:"code,omitempty"`
	Name      string `json:"name,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// TransactionView is a journaled transaction outcome.
type TransactionView struct {
	Signature   string `json:"signature"`
	Signer      string `json:"signer"`
	Instruction string `json:"instruction"`
	Status      string `json:"status"`
	ErrorCode   uint32 `json:"error_code,omitempty"`
	Error       string `json:"error,omitempty"`
	Slot        uint64 `json:"slot"`
	ProcessedAt int64  `json:"processed_at"`
}

// CounterView is the value of either id sequence.
type CounterView struct {
	Count uint64 `json:"count"`
}

// PollView is a poll as served to clients.
type PollView struct {
	ID          uint64           `json:"id"`
	Description string           `json:"description"`
	Start       int64            `json:"start"`
	End         int64            `json:"end"`
	Candidates  uint64           `json:"candidates"`
	Owner       domain.PublicKey `json:"owner"`
}

// CandidateView is a candidate with its tally.
type CandidateView struct {
	CID    uint64 `json:"cid"`
	PollID uint64 `json:"poll_id"`
	Name   string `json:"name"`
	Votes  uint64 `json:"votes"`
}

// VoterView reports whether a wallet voted in a poll.
type VoterView struct {
	PollID   uint64           `json:"poll_id"`
	Wallet   domain.PublicKey `json:"wallet"`
	HasVoted bool             `json:"has_voted"`
}

// IdentityView is the KYC state of a wallet.
type IdentityView struct {
	Wallet domain.PublicKey `json:"wallet"`
	Status string           `json:"status"`
}

// AccountView is a raw account plus its decoded record when recognized.
type AccountView struct {
	Address   domain.PublicKey `json:"address"`
	Owner     domain.PublicKey `json:"owner"`
	Version   uint64           `json:"version"`
	Slot      uint64           `json:"slot"`
	UpdatedAt int64            `json:"updated_at"`
	Data      string           `json:"data"` // base64
	Type      string           `json:"type,omitempty"`
	Record    interface{}      `json:"record,omitempty"`
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func transactionView(r *domain.TransactionRecord) TransactionView {
	return TransactionView{
		Signature:   r.Signature,
		Signer:      r.Signer,
		Instruction: r.Instruction,
		Status:      string(r.Status),
		ErrorCode:   r.ErrorCode,
		Error:       r.Error,
		Slot:        r.Slot,
		ProcessedAt: r.ProcessedAt,
	}
}

func submitResponse(rec *domain.TransactionRecord, res *program.Result) SubmitResponse {
	out := SubmitResponse{
		Signature:   rec.Signature,
		Status:      string(rec.Status),
		Instruction: rec.Instruction,
		Slot:        rec.Slot,
	}
	if res == nil {
		return out
	}
	switch res.Kind {
	case program.KindCreatePoll:
		id := res.PollID
		out.PollID = &id
	case program.KindRegisterCandidate, program.KindVote:
		pid, cid := res.PollID, res.CandidateID
		out.PollID = &pid
		out.CandidateID = &cid
	}
	return out
}

// NewPollView renders a poll account.
func NewPollView(p *domain.Poll) PollView {
	return PollView{
		ID:          p.ID,
		Description: p.Description,
		Start:       p.Start,
		End:         p.End,
		Candidates:  p.Candidates,
		Owner:       p.Owner,
	}
}

// NewCandidateView renders a candidate account.
func NewCandidateView(c *domain.Candidate) CandidateView {
	return CandidateView{CID: c.CID, PollID: c.PollID, Name: c.Name, Votes: c.Votes}
}

func accountView(acc *domain.Account, dec *program.Decoded) AccountView {
	v := AccountView{
		Address:   acc.Address,
		Owner:     acc.Owner,
		Version:   acc.Version,
		Slot:      acc.Slot,
		UpdatedAt: acc.UpdatedAt,
		Data:      base64.StdEncoding.EncodeToString(acc.Data),
	}
	if dec != nil {
		v.Type = dec.Type
		v.Record = dec.Record
	}
	return v
}
