package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/ledger"
	"github.com/srtaalej/capstone-proj/internal/program"
	"github.com/srtaalej/capstone-proj/internal/storage"
)

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// submitTransaction handles POST /v1/transactions.
func (s *Server) submitTransaction(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	tx, err := ledger.DecodeTransactionBase64(req.Transaction)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	receipt, err := s.ledger.Process(r.Context(), tx)
	if err != nil {
		s.writeSubmitError(w, r, tx.ID(), err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse(receipt.Record, receipt.Result))
}

func (s *Server) writeSubmitError(w http.ResponseWriter, r *http.Request, sig string, err error) {
	if pe, ok := program.AsError(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:     err.Error(),
			Code:      pe.Code,
			Name:      pe.Name,
			Signature: sig,
		})
		return
	}
	switch {
	case errors.Is(err, ledger.ErrBadSignature):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Signature: sig})
	case errors.Is(err, ledger.ErrAlreadyProcessed):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Signature: sig})
	default:
		s.internalError(w, r, err)
	}
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ledger.Status(r.Context(), mux.Vars(r)["signature"])
	if err != nil {
		s.writeReadError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionView(rec))
}

// listTransactions handles GET /v1/transactions?signer=<base58>.
func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	signer, err := domain.ParsePublicKey(r.URL.Query().Get("signer"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "signer: " + err.Error()})
		return
	}
	recs, err := s.ledger.History(r.Context(), signer)
	if err != nil {
		s.writeReadError(w, r, err)
		return
	}
	out := make([]TransactionView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, transactionView(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getCounter(w http.ResponseWriter, r *http.Request) {
	c, err := s.reader.Counter(r.Context())
	if err != nil {
		s.writeReadError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CounterView{Count: c.Count})
}

func (s *Server) getRegistrations(w http.ResponseWriter, r *http.Request) {
	reg, err := s.reader.Registrations(r.Context())
	if err != nil {
		s.writeReadError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CounterView{Count: reg.Count})
}

func (s *Server) listPolls(w http.ResponseWriter, r *http.Request) {
	polls, err := s.reader.Polls(r.Context())
	if err != nil {
		s.writeReadError(w, r, err)
		return
	}
	out := make([]PollView, 0, len(polls))
	for _, p := range polls {
		out = append(out, NewPollView(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getPoll(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	p, err := s.reader.Poll(r.Context(), id)
	if err != nil {
		s.writeReadError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewPollView(p))
}

func (s *Server) listPollCandidates(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	if _, err := s.reader.Poll(r.Context(), id); err != nil {
		s.writeReadError(w, r, err)
		return
	}
	cands, err := s.reader.Candidates(r.Context(), id)
	if err != nil {
		s.writeReadError(w, r, err)
		return
	}
	writeCandidates(w, cands)
}

func (s *Server) getCandidate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	cid, ok := pathUint(w, r, "cid")
	if !ok {
		return
	}
	c, err := s.reader.Candidate(r.Context(), id, cid)
	if err != nil {
		s.writeReadError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewCandidateView(c))
}

func (s *Server) listCandidates(w http.ResponseWriter, r *http.Request) {
	cands, err := s.reader.AllCandidates(r.Context())
	if err != nil {
		s.writeReadError(w, r, err)
		return
	}
	writeCandidates(w, cands)
}

func writeCandidates(w http.ResponseWriter, cands []*domain.Candidate) {
	out := make([]CandidateView, 0, len(cands))
	for _, c := range cands {
		out = append(out, NewCandidateView(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getVoter(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	wallet, ok := pathKey(w, r, "wallet")
	if !ok {
		return
	}
	if _, err := s.reader.Poll(r.Context(), id); err != nil {
		s.writeReadError(w, r, err)
		return
	}
	voted, err := s.reader.HasVoted(r.Context(), id, wallet)
	if err != nil {
		s.writeReadError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VoterView{PollID: id, Wallet: wallet, HasVoted: voted})
}

func (s *Server) getIdentity(w http.ResponseWriter, r *http.Request) {
	wallet, ok := pathKey(w, r, "wallet")
	if !ok {
		return
	}
	status, err := s.reader.IdentityStatus(r.Context(), wallet)
	if err != nil {
		s.writeReadError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, IdentityView{Wallet: wallet, Status: string(status)})
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathKey(w, r, "address")
	if !ok {
		return
	}
	acc, dec, err := s.reader.Account(r.Context(), addr)
	if acc == nil {
		s.writeReadError(w, r, err)
		return
	}
	if err != nil {
		s.logger.Debug("account not decodable", zap.Stringer("address", addr), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, accountView(acc, dec))
}

// getStats handles GET /v1/stats?since=<unix ms>.
func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorResponse{Error: "stats are not enabled"})
		return
	}
	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "since must be unix milliseconds"})
			return
		}
		since = n
	}
	rows, err := s.stats.InstructionStats(r.Context(), since)
	if err != nil {
		s.writeReadError(w, r, err)
		return
	}
	if rows == nil {
		rows = []storage.InstructionStat{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// writeReadError maps lookups of absent state to 404.
func (s *Server) writeReadError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	if pe, ok := program.AsError(err); ok {
		code := http.StatusUnprocessableEntity
		switch pe.Code {
		case program.ErrNotInitialized.Code, program.ErrPollNotFound.Code, program.ErrCandidateNotFound.Code:
			code = http.StatusNotFound
		}
		writeJSON(w, code, ErrorResponse{Error: err.Error(), Code: pe.Code, Name: pe.Name})
		return
	}
	s.internalError(w, r, err)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed",
		zap.String("request_id", RequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

func pathUint(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	v, err := strconv.ParseUint(mux.Vars(r)[name], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: name + " must be an unsigned integer"})
		return 0, false
	}
	return v, true
}

func pathKey(w http.ResponseWriter, r *http.Request, name string) (domain.PublicKey, bool) {
	pk, err := domain.ParsePublicKey(mux.Vars(r)[name])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: name + ": " + err.Error()})
		return domain.PublicKey{}, false
	}
	return pk, true
}
