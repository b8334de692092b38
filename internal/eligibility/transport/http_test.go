package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monito83/OgWalletBot/internal/eligibility/domain"
)

const (
	addrA = "0xaaaa000000000000000000000000000000000001"
	addrB = "0xbbbb000000000000000000000000000000000002"
)

type memStore struct {
	saved []string
}

func (m *memStore) LoadEligible(context.Context) ([]string, error) { return m.saved, nil }
func (m *memStore) SaveEligible(_ context.Context, a []string) error {
	m.saved = a
	return nil
}

func setupRouter(t *testing.T) (*chi.Mux, *memStore) {
	t.Helper()
	store := &memStore{}
	registry := domain.NewRegistry(store)
	r := chi.NewRouter()
	r.Route("/admin/wallets", NewHandler(registry).RegisterRoutes)
	return r, store
}

func TestHandler_Wallets(t *testing.T) {
	router, store := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/wallets", bytes.NewBufferString(`{"address":"`+addrA+`"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{addrA}, store.saved)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/wallets", bytes.NewBufferString(`{"address":"`+addrA+`"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/wallets", bytes.NewBufferString(`{"address":"nope"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/wallets/"+addrA, nil))
	assert.Contains(t, rec.Body.String(), `"eligible":true`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/wallets/"+addrA, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/wallets/"+addrA, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_Replace(t *testing.T) {
	router, store := setupRouter(t)

	body := addrB + "\n\n  " + addrA + "  \nnot-an-address\n"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/admin/wallets", bytes.NewBufferString(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var result domain.ReplaceResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.Accepted)
	assert.Equal(t, []string{"not-an-address"}, result.Rejected)
	assert.Equal(t, []string{addrA, addrB}, store.saved)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/wallets?format=text", nil))
	assert.Equal(t, addrA+"\n"+addrB+"\n", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/admin/wallets", bytes.NewBufferString("\n\n")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, store.saved, 2)
}
