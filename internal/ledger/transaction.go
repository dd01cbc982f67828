package ledger

import (
	"encoding/base64"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/program"
)

// SignatureLength is the size of an ed25519 signature.
const SignatureLength = 64

// ErrMalformed is returned for envelopes that cannot be decoded.
var ErrMalformed = errors.New("malformed transaction")

// Message is the signed part of a transaction: one instruction for one program.
type Message struct {
	Signer   domain.PublicKey
	Nonce    uint64
	Program  domain.PublicKey
	Accounts []domain.PublicKey
	Data     []byte
}

// Transaction is a message with its signer's ed25519 signature.
type Transaction struct {
	Signature [SignatureLength]byte
	Message   Message
}

// NewMessage builds the message for ix. Accounts and data use the program's
// instruction layout.
func NewMessage(signer domain.PublicKey, nonce uint64, programID domain.PublicKey, ix program.Instruction) (*Message, error) {
	data, err := program.EncodeData(ix)
	if err != nil {
		return nil, err
	}
	return &Message{
		Signer:   signer,
		Nonce:    nonce,
		Program:  programID,
		Accounts: program.AccountKeys(ix),
		Data:     data,
	}, nil
}

// Bytes returns the borsh encoding that is signed.
func (m *Message) Bytes() ([]byte, error) {
	return bin.MarshalBorsh(m)
}

// Instruction decodes the carried instruction.
func (m *Message) Instruction() (program.Instruction, error) {
	return program.Decode(m.Data, m.Accounts)
}

// Signer produces ed25519 signatures for one key.
type Signer interface {
	PublicKey() domain.PublicKey
	Sign(payload []byte) (solanago.Signature, error)
}

// Sign signs m with s, which must hold the key of m.Signer.
func Sign(m *Message, s Signer) (*Transaction, error) {
	if s.PublicKey() != m.Signer {
		return nil, fmt.Errorf("sign: key %s does not match signer %s", s.PublicKey(), m.Signer)
	}
	payload, err := m.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	sig, err := s.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	return &Transaction{Signature: sig, Message: *m}, nil
}

// ID is the base58 signature, the transaction's identifier.
func (tx *Transaction) ID() string {
	return solanago.Signature(tx.Signature).String()
}

// Verify checks the signature against the message signer.
func (tx *Transaction) Verify() bool {
	if tx.Message.Signer.IsZero() {
		return false
	}
	payload, err := tx.Message.Bytes()
	if err != nil {
		return false
	}
	return solanago.Signature(tx.Signature).Verify(solanago.PublicKey(tx.Message.Signer), payload)
}

// Encode returns the wire form of tx.
func (tx *Transaction) Encode() ([]byte, error) {
	return bin.MarshalBorsh(tx)
}

// EncodeBase64 returns the wire form as base64, as posted to the HTTP API.
func (tx *Transaction) EncodeBase64() (string, error) {
	raw, err := tx.Encode()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeTransaction parses the wire form.
func DecodeTransaction(raw []byte) (*Transaction, error) {
	var tx Transaction
	if err := bin.UnmarshalBorsh(&tx, raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &tx, nil
}

// DecodeTransactionBase64 parses a base64 envelope.
func DecodeTransactionBase64(s string) (*Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return DecodeTransaction(raw)
}
