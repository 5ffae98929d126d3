package chain

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"blurtbb/internal/models"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

const (
	DefaultChainID = "cd8d90f29ae273abec3eaa7731e25934c63eb654d55080caff2ebb7f5df6381f"

	expirationWindow = 60 * time.Second
	maxSignTries     = 16
)

var ErrNoCanonicalSignature = errors.New("no canonical signature found")

// Transaction is the condenser JSON form of a chain transaction.
type Transaction struct {
	RefBlockNum    uint16             `json:"ref_block_num"`
	RefBlockPrefix uint32             `json:"ref_block_prefix"`
	Expiration     models.ChainTime   `json:"expiration"`
	Operations     []models.Operation `json:"operations"`
	Extensions     []any              `json:"extensions"`
	Signatures     []string           `json:"signatures"`
}

// NewTransaction references the head block of props and expires one minute
// after the head block time.
func NewTransaction(props *GlobalProperties, ops []models.Operation) (*Transaction, error) {
	id, err := hex.DecodeString(props.HeadBlockID)
	if err != nil || len(id) < 8 {
		return nil, fmt.Errorf("invalid head block id %q", props.HeadBlockID)
	}
	return &Transaction{
		RefBlockNum:    uint16(props.HeadBlockNumber & 0xFFFF),
		RefBlockPrefix: binary.LittleEndian.Uint32(id[4:8]),
		Expiration:     models.NewChainTime(props.Time.Add(expirationWindow)),
		Operations:     ops,
		Extensions:     []any{},
		Signatures:     []string{},
	}, nil
}

// Broadcast signs ops with creds and submits them, waiting for the block.
func (c *Client) Broadcast(ctx context.Context, ops []models.Operation, creds models.Credentials) (*models.Receipt, error) {
	if len(ops) == 0 {
		return nil, errors.New("broadcast: no operations")
	}
	priv, err := DecodeWIF(creds.PostingKey)
	if err != nil {
		return nil, err
	}

	props, err := c.GetDynamicGlobalProperties(ctx)
	if err != nil {
		return nil, fmt.Errorf("reference block: %w", err)
	}
	tx, err := NewTransaction(props, ops)
	if err != nil {
		return nil, err
	}
	if err := c.Sign(ctx, tx, priv); err != nil {
		return nil, err
	}

	receipt, err := c.BroadcastTransactionSynchronous(ctx, tx)
	if err != nil {
		return nil, err
	}
	c.logger.WithFields(logrus.Fields{
		"account":   creds.Username,
		"ops":       len(ops),
		"trx_id":    receipt.ID,
		"block_num": receipt.BlockNum,
	}).Info("Transaction broadcast")
	return receipt, nil
}

// Sign appends a canonical signature to tx. Non-canonical signatures are
// avoided by moving the expiration one second forward and signing again.
func (c *Client) Sign(ctx context.Context, tx *Transaction, priv *ecdsa.PrivateKey) error {
	chainID, err := hex.DecodeString(c.opts.ChainID)
	if err != nil {
		return fmt.Errorf("invalid chain id: %w", err)
	}
	for try := 0; try < maxSignTries; try++ {
		if try > 0 {
			tx.Expiration = models.NewChainTime(tx.Expiration.Add(time.Second))
		}
		tx.Signatures = []string{}
		raw, err := c.GetTransactionHex(ctx, tx)
		if err != nil {
			return fmt.Errorf("serialize transaction: %w", err)
		}
		payload, err := unsignedBytes(raw)
		if err != nil {
			return err
		}
		sig, err := signCompact(Digest(chainID, payload), priv)
		if err != nil {
			return err
		}
		if sig != nil {
			tx.Signatures = []string{hex.EncodeToString(sig)}
			return nil
		}
	}
	return ErrNoCanonicalSignature
}

// Digest is the signing hash of a serialized transaction.
func Digest(chainID, payload []byte) []byte {
	h := sha256.New()
	h.Write(chainID)
	h.Write(payload)
	return h.Sum(nil)
}

// unsignedBytes drops the trailing empty signature vector from the node's
// serialization of an unsigned transaction.
func unsignedBytes(raw string) ([]byte, error) {
	if !strings.HasSuffix(raw, "00") {
		return nil, fmt.Errorf("unexpected transaction encoding")
	}
	b, err := hex.DecodeString(strings.TrimSuffix(raw, "00"))
	if err != nil {
		return nil, fmt.Errorf("decode transaction hex: %w", err)
	}
	return b, nil
}

// signCompact returns the 65-byte compact signature, or nil when the
// signature is not canonical.
func signCompact(digest []byte, priv *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(digest, priv)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	r, s := sig[:32], sig[32:64]
	if !isCanonical(r) || !isCanonical(s) {
		return nil, nil
	}
	compact := make([]byte, 65)
	compact[0] = sig[64] + 31
	copy(compact[1:], sig[:64])
	return compact, nil
}

func isCanonical(half []byte) bool {
	return half[0]&0x80 == 0 && !(half[0] == 0 && half[1]&0x80 == 0)
}
