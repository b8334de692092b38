// Package evm implements the ledger boundary for EVM-compatible chains on top
// of go-ethereum's RPC client.
package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/monito83/OgWalletBot/internal/chains"
)

// RPC is the subset of ethclient.Client the ledger reader uses
type RPC interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Client implements chains.Ledger
type Client struct {
	rpc     RPC
	signer  types.Signer
	chainID *big.Int
	logger  *slog.Logger
}

// Dial connects to an RPC endpoint. A zero chainID is resolved from the node.
func Dial(ctx context.Context, endpoint string, chainID int64) (*ethclient.Client, *big.Int, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, nil, fmt.Errorf("evm endpoint required")
	}
	ec, err := ethclient.DialContext(ctx, trimmed)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing %s: %w", trimmed, err)
	}
	if chainID != 0 {
		return ec, big.NewInt(chainID), nil
	}
	id, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, nil, fmt.Errorf("fetching chain id: %w", err)
	}
	return ec, id, nil
}

// NewClient creates a ledger reader over rpc
func NewClient(rpc RPC, chainID *big.Int, logger *slog.Logger) *Client {
	return &Client{
		rpc:     rpc,
		signer:  types.LatestSignerForChainID(chainID),
		chainID: chainID,
		logger:  logger,
	}
}

// ChainID returns the chain the client signs and recovers senders for
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// HeadHeight returns the latest block number
func (c *Client) HeadHeight(ctx context.Context) (uint64, error) {
	return c.rpc.BlockNumber(ctx)
}

// TransfersTo returns the transactions in block height that send value to to
func (c *Client) TransfersTo(ctx context.Context, height uint64, to string) ([]chains.Transfer, error) {
	block, err := c.rpc.BlockByNumber(ctx, new(big.Int).SetUint64(height))
	if err != nil {
		return nil, fmt.Errorf("fetching block %d: %w", height, err)
	}
	if block == nil {
		return nil, fmt.Errorf("block %d unavailable", height)
	}

	target := common.HexToAddress(to)
	var out []chains.Transfer
	for i, tx := range block.Transactions() {
		if tx.To() == nil || *tx.To() != target {
			continue
		}
		t, err := c.toTransfer(tx, height, i)
		if err != nil {
			c.logger.Warn("skipping transaction with unrecoverable sender",
				"tx", tx.Hash().Hex(), "block", height, "error", err)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// TransferByID looks up a mined, successful transaction by hash
func (c *Client) TransferByID(ctx context.Context, id string) (*chains.Transfer, error) {
	hash := common.HexToHash(id)
	tx, pending, err := c.rpc.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, chains.ErrTransferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching transaction: %w", err)
	}
	if pending {
		return nil, fmt.Errorf("%w: transaction %s is still pending", chains.ErrTransferNotFound, hash.Hex())
	}

	receipt, err := c.rpc.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, chains.ErrTransferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("transaction %s failed on chain", hash.Hex())
	}

	var height uint64
	if receipt.BlockNumber != nil {
		height = receipt.BlockNumber.Uint64()
	}
	t, err := c.toTransfer(tx, height, int(receipt.TransactionIndex))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) toTransfer(tx *types.Transaction, height uint64, index int) (chains.Transfer, error) {
	from, err := types.Sender(c.signer, tx)
	if err != nil {
		return chains.Transfer{}, fmt.Errorf("recovering sender: %w", err)
	}
	var to string
	if tx.To() != nil {
		to = normalize(*tx.To())
	}
	return chains.Transfer{
		ID:          tx.Hash().Hex(),
		From:        normalize(from),
		To:          to,
		Amount:      new(big.Int).Set(tx.Value()),
		BlockHeight: height,
		Index:       index,
		Data:        tx.Data(),
	}, nil
}

func normalize(a common.Address) string {
	return strings.ToLower(a.Hex())
}
