// Package chains defines the ledger boundary: the fixed transfer value type the
// reconciliation engine consumes, and the interfaces a ledger client implements.
package chains

import (
	"context"
	"errors"
	"math/big"
)

// ErrTransferNotFound is returned when a transfer ID is unknown to the ledger
var ErrTransferNotFound = errors.New("transfer not found")

// Transfer is a candidate incoming transfer observed on the ledger.
// Addresses are normalized (lower-case hex). Amount is in the smallest unit.
type Transfer struct {
	ID          string   `json:"id"`
	From        string   `json:"from"`
	To          string   `json:"to"`
	Amount      *big.Int `json:"amount"`
	BlockHeight uint64   `json:"blockHeight"`
	Index       int      `json:"index"`
	Data        []byte   `json:"data,omitempty"`
}

// Ledger reads blocks and transfers from the chain
type Ledger interface {
	// HeadHeight returns the current chain head
	HeadHeight(ctx context.Context) (uint64, error)

	// TransfersTo returns the value transfers in one block whose destination is to,
	// in in-block order.
	TransfersTo(ctx context.Context, height uint64, to string) ([]Transfer, error)

	// TransferByID looks up a single transfer by hash. It returns
	// ErrTransferNotFound for unknown or pending transactions.
	TransferByID(ctx context.Context, id string) (*Transfer, error)
}

// Sender submits outgoing value transfers from the service wallet
type Sender interface {
	Address() string
	Send(ctx context.Context, to string, amount *big.Int) (txID string, err error)
}

// Network describes the configured ledger for display purposes
type Network struct {
	Name     string `json:"name"`
	ChainID  string `json:"chainId"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}
