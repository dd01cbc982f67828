package solana

import (
	"encoding/base64"
	"fmt"
)

// Commitment levels accepted by the cluster.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}

// DecodeData returns the raw account bytes.
func (a *AccountInfo) DecodeData() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(a.Data)
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	return raw, nil
}

// KeyedAccount is an entry of getProgramAccounts.
type KeyedAccount struct {
	Pubkey  string
	Account AccountInfo
}

// MemcmpFilter matches accounts whose data at Offset equals Bytes.
type MemcmpFilter struct {
	Offset uint64
	Bytes  []byte
}

// Blockhash from getLatestBlockhash.
type Blockhash struct {
	Blockhash            string
	LastValidBlockHeight uint64
}

// SendOpts defines optional parameters for sendTransaction.
type SendOpts struct {
	SkipPreflight       bool
	PreflightCommitment string
	MaxRetries          *uint
}

// SignatureStatus from getSignatureStatuses.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *uint64
	Err                interface{}
	ConfirmationStatus string
}

// Reached reports whether the status is at least the given commitment.
func (s *SignatureStatus) Reached(commitment string) bool {
	rank := map[string]int{CommitmentProcessed: 1, CommitmentConfirmed: 2, CommitmentFinalized: 3}
	want, ok := rank[commitment]
	if !ok {
		want = rank[CommitmentConfirmed]
	}
	return rank[s.ConfirmationStatus] >= want
}

// InstructionErrorCode extracts a custom program error from a transaction
// error of the form {"InstructionError":[index,{"Custom":code}]}.
func InstructionErrorCode(txErr interface{}) (index int, code uint32, ok bool) {
	m, isMap := txErr.(map[string]interface{})
	if !isMap {
		return 0, 0, false
	}
	pair, isSlice := m["InstructionError"].([]interface{})
	if !isSlice || len(pair) != 2 {
		return 0, 0, false
	}
	idx, isNum := pair[0].(float64)
	if !isNum {
		return 0, 0, false
	}
	detail, isMap := pair[1].(map[string]interface{})
	if !isMap {
		return 0, 0, false
	}
	custom, isNum := detail["Custom"].(float64)
	if !isNum {
		return 0, 0, false
	}
	return int(idx), uint32(custom), true
}
