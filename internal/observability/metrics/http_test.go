package metrics

import "testing"

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/api/v1/verifications", "/api/v1/verifications"},
		{"/api/v1/verifications/X1AB9Z", "/api/v1/verifications/{id}"},
		{"/api/v1/admin/wallets/0x1111111111111111111111111111111111111111", "/api/v1/admin/wallets/{id}"},
		{"/api/v1/admin/transfers/0x" + "ab" + "00000000000000000000000000000000000000000000000000000000000000/force", "/api/v1/admin/transfers/{id}/force"},
		{"/api/v1/admin/keys/6f1c2b9e-1d2a-4c3b-9e8f-0a1b2c3d4e5f", "/api/v1/admin/keys/{id}"},
		{"/api/v1/admin/reconcile", "/api/v1/admin/reconcile"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizePath(tt.path); got != tt.want {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
