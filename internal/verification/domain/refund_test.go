package domain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefundIssuer_Issue(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	rec := &recorder{}
	r := NewRefundIssuer(sender, rec, discardLogger())

	txID, err := r.Issue(ctx, addrA, verificationAmount, "accepted")
	require.NoError(t, err)
	assert.Equal(t, "0xrefund1", txID)
	assert.Equal(t, 1, rec.count(EventRefundIssued))

	_, err = r.Issue(ctx, addrA, big.NewInt(0), "accepted")
	assert.Error(t, err)
	assert.Len(t, sender.sent(), 1)

	sender.err = errors.New("nonce too low")
	_, err = r.Issue(ctx, addrA, verificationAmount, "unmatched")
	assert.Error(t, err)
	assert.Equal(t, 1, rec.count(EventRefundFailed))
}

func TestRefundIssuer_NoSender(t *testing.T) {
	r := NewRefundIssuer(nil, nil, discardLogger())
	_, err := r.Issue(context.Background(), addrA, verificationAmount, "accepted")
	assert.ErrorIs(t, err, ErrScanningUnavailable)
}
