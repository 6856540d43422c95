package executor

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/neurallock/nla/internal/chain"
)

const (
	domainName    = "EIP8004LPLocker"
	domainVersion = "1"
)

// actionTypedData builds the EIP-712 payload the contract verifies. The nonce
// binds the signature to a single execution; the state hash binds it to the
// observed state the decision was made against.
func actionTypedData(chainID *big.Int, locker common.Address, action chain.AIAction, nonce *big.Int) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"AIAction": {
				{Name: "lockId", Type: "uint256"},
				{Name: "actionType", Type: "uint8"},
				{Name: "amount", Type: "uint256"},
				{Name: "stateHash", Type: "bytes32"},
				{Name: "expiry", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
			},
		},
		PrimaryType: "AIAction",
		Domain: apitypes.TypedDataDomain{
			Name:              domainName,
			Version:           domainVersion,
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: locker.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"lockId":     (*math.HexOrDecimal256)(new(big.Int).SetUint64(action.LockID)),
			"actionType": (*math.HexOrDecimal256)(big.NewInt(int64(action.ActionType))),
			"amount":     (*math.HexOrDecimal256)(action.Amount),
			"stateHash":  action.StateHash.Hex(),
			"nonce":      (*math.HexOrDecimal256)(nonce),
			"expiry":     (*math.HexOrDecimal256)(big.NewInt(action.Expiry)),
		},
	}
}

// stateUpdateDigest hashes the fixed-point update the same way the contract
// reconstructs it before recovering the signer. The trailing word is the
// observation time rounded down to the hour, which bounds signature reuse.
func stateUpdateDigest(update chain.StateUpdate) []byte {
	hour := new(big.Int).SetInt64(update.Timestamp / (60 * 60 * 1000))
	return crypto.Keccak256(
		common.LeftPadBytes(update.TVL.Bytes(), 32),
		common.LeftPadBytes(update.Volatility.Bytes(), 32),
		common.LeftPadBytes(update.LiquidityDepth.Bytes(), 32),
		common.LeftPadBytes(update.PriceImpact.Bytes(), 32),
		[]byte{byte(update.Health)},
		common.LeftPadBytes(hour.Bytes(), 32),
	)
}
