/*

This file contains the signing boundary. Components never see the raw key;
they hand payloads to a Signer and get signatures back. The local
implementation wraps an ECDSA key loaded from configuration.

*/

package chain

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

var ErrInvalidPrivateKey = errors.New("chain: invalid private key")

// Signer produces the three signature kinds the agent needs: EIP-712 typed
// data for actions, EIP-191 messages for state publication, and raw
// transaction signatures.
type Signer interface {
	// Address returns the signing account address.
	Address() common.Address

	// SignTypedData signs an EIP-712 typed data payload.
	SignTypedData(data apitypes.TypedData) ([]byte, error)

	// SignMessage signs a 32-byte digest with the EIP-191 personal prefix.
	SignMessage(digest []byte) ([]byte, error)

	// SignTx signs a transaction for the given chain id.
	SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error)
}

// LocalSigner holds the private key in process memory.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

var _ Signer = (*LocalSigner)(nil)

// NewLocalSigner parses a hex private key (with or without 0x prefix).
func NewLocalSigner(hexKey string) (*LocalSigner, error) {
	trimmed := strings.TrimPrefix(hexKey, "0x")
	if len(trimmed) != 64 {
		return nil, fmt.Errorf("%w: must be 64 hex characters", ErrInvalidPrivateKey)
	}

	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) SignTypedData(data apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}

	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign typed data: %w", err)
	}

	// Contracts expect v in {27, 28}
	sig[64] += 27
	return sig, nil
}

func (s *LocalSigner) SignMessage(digest []byte) ([]byte, error) {
	prefixed := crypto.Keccak256(
		[]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(digest))),
		digest,
	)

	sig, err := crypto.Sign(prefixed, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}

	sig[64] += 27
	return sig, nil
}

func (s *LocalSigner) SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error) {
	return ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), s.key)
}
