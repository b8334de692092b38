package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// nativeTransferGas is the gas limit of a plain value transfer
const nativeTransferGas = 21000

// ErrKeyMismatch means the signing key does not control the receiving address
var ErrKeyMismatch = errors.New("signing key does not match receiving address")

// WalletRPC is the subset of ethclient.Client the refund wallet uses
type WalletRPC interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Wallet signs and submits refunds from the service address. It implements
// chains.Sender.
type Wallet struct {
	rpc     WalletRPC
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	signer  types.Signer
	logger  *slog.Logger

	// serializes nonce allocation
	mu sync.Mutex
}

// NewWallet parses hexKey and checks that it controls expectedAddress.
func NewWallet(rpc WalletRPC, hexKey, expectedAddress string, chainID *big.Int, logger *slog.Logger) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing signing key: %w", err)
	}
	pub, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("error casting public key to ECDSA")
	}
	address := crypto.PubkeyToAddress(*pub)

	if expectedAddress != "" && !strings.EqualFold(address.Hex(), strings.TrimSpace(expectedAddress)) {
		return nil, fmt.Errorf("%w: key controls %s, configured %s", ErrKeyMismatch, address.Hex(), expectedAddress)
	}

	return &Wallet{
		rpc:     rpc,
		key:     key,
		address: address,
		chainID: chainID,
		signer:  types.LatestSignerForChainID(chainID),
		logger:  logger,
	}, nil
}

// Address returns the wallet address, normalized
func (w *Wallet) Address() string {
	return normalize(w.address)
}

// Balance returns the wallet's latest balance
func (w *Wallet) Balance(ctx context.Context) (*big.Int, error) {
	return w.rpc.BalanceAt(ctx, w.address, nil)
}

// CheckBalance logs a warning when the balance is below min
func (w *Wallet) CheckBalance(ctx context.Context, min *big.Int) (*big.Int, error) {
	bal, err := w.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching balance: %w", err)
	}
	if min != nil && bal.Cmp(min) < 0 {
		w.logger.Warn("refund wallet balance is low", "address", w.Address(), "balance", bal.String(), "minimum", min.String())
	}
	return bal, nil
}

// Send submits an EIP-1559 value transfer and returns its hash without
// waiting for it to be mined.
func (w *Wallet) Send(ctx context.Context, to string, amount *big.Int) (string, error) {
	if !common.IsHexAddress(to) {
		return "", fmt.Errorf("invalid recipient %q", to)
	}
	if amount == nil || amount.Sign() <= 0 {
		return "", errors.New("amount must be positive")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	nonce, err := w.rpc.PendingNonceAt(ctx, w.address)
	if err != nil {
		return "", fmt.Errorf("fetching nonce: %w", err)
	}
	feeCap, err := w.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggesting gas price: %w", err)
	}
	tipCap, err := w.rpc.SuggestGasTipCap(ctx)
	if err != nil {
		return "", fmt.Errorf("suggesting tip: %w", err)
	}
	if tipCap.Cmp(feeCap) > 0 {
		feeCap = new(big.Int).Set(tipCap)
	}

	recipient := common.HexToAddress(to)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   w.chainID,
		Nonce:     nonce,
		To:        &recipient,
		Value:     new(big.Int).Set(amount),
		Gas:       nativeTransferGas,
		GasFeeCap: feeCap,
		GasTipCap: tipCap,
	})
	signed, err := types.SignTx(tx, w.signer, w.key)
	if err != nil {
		return "", fmt.Errorf("signing transaction: %w", err)
	}
	if err := w.rpc.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("sending transaction: %w", err)
	}

	w.logger.Info("transfer submitted", "tx", signed.Hash().Hex(), "to", strings.ToLower(to), "amount", amount.String(), "nonce", nonce)
	return signed.Hash().Hex(), nil
}
