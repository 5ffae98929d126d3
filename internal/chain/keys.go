package chain

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"blurtbb/internal/models"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160"
)

const (
	DefaultAddressPrefix = "BLT"
	wifVersion           = 0x80
)

var (
	ErrInvalidWIF       = errors.New("invalid private key")
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrKeyMismatch      = errors.New("key does not match the account's posting authority")
)

// DecodeWIF parses a wallet-import-format private key.
func DecodeWIF(wif string) (*ecdsa.PrivateKey, error) {
	raw := base58.Decode(strings.TrimSpace(wif))
	if len(raw) != 37 || raw[0] != wifVersion {
		return nil, ErrInvalidWIF
	}
	if !bytes.Equal(doubleSHA256(raw[:33])[:4], raw[33:]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidWIF)
	}
	priv, err := crypto.ToECDSA(raw[1:33])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWIF, err)
	}
	return priv, nil
}

// PublicKeyString renders the compressed public key of priv with prefix.
func PublicKeyString(priv *ecdsa.PrivateKey, prefix string) string {
	pub := crypto.CompressPubkey(&priv.PublicKey)
	return prefix + base58.Encode(append(pub, ripemd160Sum(pub)[:4]...))
}

// ParsePublicKey checks the prefix and checksum of a public key string and
// returns the compressed key bytes.
func ParsePublicKey(s, prefix string) ([]byte, error) {
	if !strings.HasPrefix(s, prefix) {
		return nil, fmt.Errorf("%w: missing %s prefix", ErrInvalidPublicKey, prefix)
	}
	raw := base58.Decode(strings.TrimPrefix(s, prefix))
	if len(raw) != 37 {
		return nil, ErrInvalidPublicKey
	}
	pub, sum := raw[:33], raw[33:]
	if !bytes.Equal(ripemd160Sum(pub)[:4], sum) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidPublicKey)
	}
	if _, err := crypto.DecompressPubkey(pub); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pub, nil
}

// VerifyPostingKey decodes wif and checks it can sign for account alone.
// It returns the matching public key string.
func VerifyPostingKey(account *models.Account, wif, prefix string) (string, error) {
	priv, err := DecodeWIF(wif)
	if err != nil {
		return "", err
	}
	pub := PublicKeyString(priv, prefix)
	if !account.Posting.HasKey(pub) {
		return "", ErrKeyMismatch
	}
	return pub, nil
}

func doubleSHA256(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}

func ripemd160Sum(b []byte) []byte {
	h := ripemd160.New()
	h.Write(b)
	return h.Sum(nil)
}
