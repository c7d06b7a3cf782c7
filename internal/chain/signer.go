package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/governance/pkg/governance"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const signatureRecoveryOffset = 27

// KeySigner holds the operator key. It personal-signs snapshot messages and builds
// keyed transactors for contract writes.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	account governance.Account
}

// NewKeySigner parses a hex-encoded secp256k1 private key.
func NewKeySigner(privateKeyHex string) (*KeySigner, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: private key is required", governance.ErrInvalidServiceConfig)
	}
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: private key: %v", governance.ErrInvalidServiceConfig, err)
	}
	return &KeySigner{key: key, account: governance.AccountFromAddress(crypto.PubkeyToAddress(key.PublicKey))}, nil
}

// Account returns the address controlled by the key.
func (signer *KeySigner) Account() governance.Account {
	return signer.account
}

// PersonalSign signs message with the EIP-191 personal prefix and returns the 65-byte
// signature as hex, with v in {27, 28}.
func (signer *KeySigner) PersonalSign(_ context.Context, account governance.Account, message string) (string, error) {
	if account != signer.account {
		return "", &governance.SignError{
			Kind:    governance.SignErrorRejected,
			Message: fmt.Sprintf("account %s is not managed by this signer", account),
		}
	}
	signature, err := crypto.Sign(accounts.TextHash([]byte(message)), signer.key)
	if err != nil {
		return "", &governance.SignError{Kind: governance.SignErrorDevice, Message: err.Error(), Err: err}
	}
	signature[crypto.RecoveryIDOffset] += signatureRecoveryOffset
	return hexutil.Encode(signature), nil
}

// Transactor returns keyed transaction options bound to the chain id of network.
func (signer *KeySigner) Transactor(_ context.Context, network governance.Network) (*bind.TransactOpts, error) {
	chainID := network.ChainID()
	if chainID == nil {
		return nil, fmt.Errorf("%w: %q", governance.ErrUnknownNetwork, network)
	}
	return bind.NewKeyedTransactorWithChainID(signer.key, chainID)
}

// RecoverPersonalSigner returns the account that produced a PersonalSign signature.
func RecoverPersonalSigner(message string, signatureHex string) (governance.Account, error) {
	signature, err := hexutil.Decode(signatureHex)
	if err != nil {
		return governance.Account{}, fmt.Errorf("decode signature: %w", err)
	}
	if len(signature) != crypto.SignatureLength {
		return governance.Account{}, fmt.Errorf("signature length %d", len(signature))
	}
	if signature[crypto.RecoveryIDOffset] >= signatureRecoveryOffset {
		signature[crypto.RecoveryIDOffset] -= signatureRecoveryOffset
	}
	publicKey, err := crypto.SigToPub(accounts.TextHash([]byte(message)), signature)
	if err != nil {
		return governance.Account{}, fmt.Errorf("recover signer: %w", err)
	}
	return governance.AccountFromAddress(crypto.PubkeyToAddress(*publicKey)), nil
}
