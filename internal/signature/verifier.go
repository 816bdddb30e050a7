// Package signature verifies EIP-712 typed-data proofs of wallet ownership.
package signature

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	dErrors "verethfier/pkg/domain-errors"
)

// Typed-data domain. Wallet UIs sign against exactly these values.
const (
	DomainName    = "Verethfier"
	DomainVersion = "1"
	ChainID       = 1
	PrimaryType   = "Verification"
)

var types = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	},
	PrimaryType: {
		{Name: "address", Type: "address"},
		{Name: "userId", Type: "string"},
		{Name: "discordId", Type: "string"},
		{Name: "nonce", Type: "string"},
		{Name: "expiry", Type: "uint256"},
	},
}

// Payload is the signed message. DiscordID is the guild id; Expiry is unix seconds.
type Payload struct {
	Address   string
	UserID    string
	DiscordID string
	Nonce     string
	Expiry    int64
}

// Verifier recovers the signer of a Payload.
type Verifier struct {
	now func() time.Time
}

type Option func(*Verifier)

// WithClock injects the time source used for the expiry check.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

func NewVerifier(opts ...Option) *Verifier {
	v := &Verifier{now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks expiry, recomputes the digest and recovers the signer. The
// recovered address must equal payload.Address; it is returned lower-cased.
func (v *Verifier) Verify(payload Payload, sig string) (string, error) {
	if payload.Expiry < v.now().Unix() {
		return "", dErrors.New(dErrors.CodeInvalidSignature, "signature expired")
	}
	if !common.IsHexAddress(payload.Address) {
		return "", dErrors.New(dErrors.CodeInvalidSignature, "malformed address")
	}
	raw, err := decodeSignature(sig)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidSignature, "malformed signature")
	}
	digest, err := Digest(payload)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidSignature, "invalid typed data")
	}
	pub, err := crypto.SigToPub(digest, raw)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidSignature, "signature recovery failed")
	}
	recovered := crypto.PubkeyToAddress(*pub)
	if recovered != common.HexToAddress(payload.Address) {
		return "", dErrors.New(dErrors.CodeInvalidSignature, "signer does not match address")
	}
	return strings.ToLower(recovered.Hex()), nil
}

// Digest returns the EIP-712 hash of payload under the Verethfier domain.
func Digest(payload Payload) ([]byte, error) {
	typed := apitypes.TypedData{
		Types:       types,
		PrimaryType: PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:    DomainName,
			Version: DomainVersion,
			ChainId: math.NewHexOrDecimal256(ChainID),
		},
		Message: apitypes.TypedDataMessage{
			"address":   payload.Address,
			"userId":    payload.UserID,
			"discordId": payload.DiscordID,
			"nonce":     payload.Nonce,
			"expiry":    strconv.FormatInt(payload.Expiry, 10),
		},
	}
	digest, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return nil, err
	}
	return digest, nil
}

// decodeSignature parses a 65-byte hex signature and normalises V to {0,1}.
func decodeSignature(sig string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(sig), "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	if len(raw) != crypto.SignatureLength {
		return nil, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(raw))
	}
	if raw[crypto.RecoveryIDOffset] >= 27 {
		raw[crypto.RecoveryIDOffset] -= 27
	}
	if raw[crypto.RecoveryIDOffset] > 1 {
		return nil, fmt.Errorf("invalid recovery id %d", raw[crypto.RecoveryIDOffset])
	}
	return raw, nil
}
