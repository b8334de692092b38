package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	addrA = "0x1111111111111111111111111111111111111111"
	addrB = "0x2222222222222222222222222222222222222222"
)

type mockStore struct {
	saved   []string
	saves   int
	saveErr error
	loaded  []string
}

func (m *mockStore) LoadEligible(ctx context.Context) ([]string, error) {
	return m.loaded, nil
}

func (m *mockStore) SaveEligible(ctx context.Context, addresses []string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.saved = append([]string(nil), addresses...)
	return nil
}

func TestRegistry_LoadNormalizes(t *testing.T) {
	store := &mockStore{loaded: []string{"  0x1111111111111111111111111111111111111111 ", "", "0X2222222222222222222222222222222222222222"}}
	r := NewRegistry(store)
	require.NoError(t, r.Load(context.Background()))

	assert.Equal(t, 2, r.Count())
	assert.True(t, r.IsEligible(addrA))
	assert.True(t, r.IsEligible("  0x1111111111111111111111111111111111111111  "))
}

func TestRegistry_Add(t *testing.T) {
	store := &mockStore{}
	r := NewRegistry(store)
	ctx := context.Background()

	added, err := r.Add(ctx, "  0x1111111111111111111111111111111111111111  ")
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, []string{addrA}, store.saved)

	added, err = r.Add(ctx, addrA)
	require.NoError(t, err)
	assert.False(t, added, "adding a present address is a no-op")
	assert.Equal(t, 1, store.saves)

	_, err = r.Add(ctx, "0x1234")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestRegistry_AddRollsBackOnSaveFailure(t *testing.T) {
	store := &mockStore{saveErr: errors.New("disk full")}
	r := NewRegistry(store)

	_, err := r.Add(context.Background(), addrA)
	assert.Error(t, err)
	assert.False(t, r.IsEligible(addrA))
}

func TestRegistry_Remove(t *testing.T) {
	store := &mockStore{}
	r := NewRegistry(store)
	ctx := context.Background()
	_, err := r.Add(ctx, addrA)
	require.NoError(t, err)

	removed, err := r.Remove(ctx, "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, r.IsEligible(addrA))
	assert.Empty(t, store.saved)

	removed, err = r.Remove(ctx, addrA)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRegistry_ReplaceAll(t *testing.T) {
	store := &mockStore{}
	r := NewRegistry(store)
	ctx := context.Background()
	_, err := r.Add(ctx, addrA)
	require.NoError(t, err)

	res, err := r.ReplaceAll(ctx, []string{"", addrB, "  " + addrB + "  ", "short", "0xzz22222222222222222222222222222222222222"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accepted)
	assert.Len(t, res.Rejected, 2)
	assert.False(t, r.IsEligible(addrA))
	assert.True(t, r.IsEligible(addrB))
	assert.Equal(t, []string{addrB}, store.saved)
}

func TestRegistry_ReplaceAllRejectsEmpty(t *testing.T) {
	store := &mockStore{}
	r := NewRegistry(store)
	ctx := context.Background()
	_, err := r.Add(ctx, addrA)
	require.NoError(t, err)

	_, err = r.ReplaceAll(ctx, []string{"", "nope"})
	assert.ErrorIs(t, err, ErrEmptyList)
	assert.True(t, r.IsEligible(addrA), "set is unchanged")
}

func TestSplitList(t *testing.T) {
	got := SplitList("0xaaa\r\n\n  0xbbb  \n")
	assert.Equal(t, []string{"0xaaa", "0xbbb"}, got)
}
