// ABOUTME: EIP-712 ToolAccess typed data, proof parsing, signing, and recovery.
// ABOUTME: Hashing and secp256k1 recovery are delegated to go-ethereum.

package evmauth

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Proof errors
var (
	ErrProofMissing     = errors.New("access proof missing")
	ErrMalformedProof   = errors.New("malformed access proof")
	ErrInvalidSignature = errors.New("invalid signature")
)

const primaryType = "ToolAccess"

// Domain is the EIP-712 signing domain.
type Domain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract common.Address
}

// Proof is the signed access claim a caller attaches to a gated call.
type Proof struct {
	Wallet    string `json:"wallet"`
	Nonce     string `json:"nonce"`
	Expires   int64  `json:"expires"`
	Signature string `json:"signature"`
}

// Arguments renders the proof as a tool argument value.
func (p Proof) Arguments() map[string]any {
	return map[string]any{
		"wallet":    p.Wallet,
		"nonce":     p.Nonce,
		"expires":   p.Expires,
		"signature": p.Signature,
	}
}

// ParseProof decodes a proof from its tool argument value.
func ParseProof(raw any) (Proof, error) {
	if raw == nil {
		return Proof{}, ErrProofMissing
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return Proof{}, fmt.Errorf("%w: expected object", ErrMalformedProof)
	}

	var p Proof
	p.Wallet, _ = m["wallet"].(string)
	p.Nonce, _ = m["nonce"].(string)
	p.Signature, _ = m["signature"].(string)

	expires, err := parseUnix(m["expires"])
	if err != nil {
		return Proof{}, fmt.Errorf("%w: expires: %v", ErrMalformedProof, err)
	}
	p.Expires = expires

	switch {
	case !common.IsHexAddress(p.Wallet):
		return Proof{}, fmt.Errorf("%w: wallet is not an address", ErrMalformedProof)
	case p.Nonce == "":
		return Proof{}, fmt.Errorf("%w: nonce is required", ErrMalformedProof)
	case p.Signature == "":
		return Proof{}, fmt.Errorf("%w: signature is required", ErrMalformedProof)
	}
	return p, nil
}

func parseUnix(v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		if t != float64(int64(t)) {
			return 0, errors.New("not an integer")
		}
		return int64(t), nil
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case json.Number:
		return t.Int64()
	case string:
		return strconv.ParseInt(t, 10, 64)
	case nil:
		return 0, errors.New("required")
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func (d Domain) typedData(wallet common.Address, tool, nonce string, expires int64) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			primaryType: {
				{Name: "wallet", Type: "address"},
				{Name: "tool", Type: "string"},
				{Name: "nonce", Type: "string"},
				{Name: "expires", Type: "uint256"},
			},
		},
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           math.NewHexOrDecimal256(d.ChainID),
			VerifyingContract: d.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"wallet":  wallet.Hex(),
			"tool":    tool,
			"nonce":   nonce,
			"expires": strconv.FormatInt(expires, 10),
		},
	}
}

// Digest returns the EIP-712 digest a wallet signs for tool access.
func (d Domain) Digest(wallet common.Address, tool, nonce string, expires int64) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(d.typedData(wallet, tool, nonce, expires))
	if err != nil {
		return nil, fmt.Errorf("hashing typed data: %w", err)
	}
	return hash, nil
}

// SignProof signs a ToolAccess message with key.
func SignProof(key *ecdsa.PrivateKey, d Domain, tool, nonce string, expires time.Time) (Proof, error) {
	wallet := crypto.PubkeyToAddress(key.PublicKey)
	digest, err := d.Digest(wallet, tool, nonce, expires.Unix())
	if err != nil {
		return Proof{}, err
	}

	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return Proof{}, fmt.Errorf("signing: %w", err)
	}
	// Wallets emit v as 27/28.
	sig[crypto.RecoveryIDOffset] += 27

	return Proof{
		Wallet:    wallet.Hex(),
		Nonce:     nonce,
		Expires:   expires.Unix(),
		Signature: hexutil.Encode(sig),
	}, nil
}

// recoverSigner returns the address that produced sigHex over digest.
func recoverSigner(digest []byte, sigHex string) (common.Address, error) {
	raw, err := hexutil.Decode(sigHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(raw) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(raw))
	}

	sig := make([]byte, len(raw))
	copy(sig, raw)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
