// Package transport provides HTTP request/response types for the verification domain.
package transport

import "github.com/monito83/OgWalletBot/internal/verification/domain"

// InitiateRequest is the HTTP request body for starting a verification.
type InitiateRequest struct {
	ClaimantID    string `json:"claimantId"`
	ClaimantLabel string `json:"claimantLabel,omitempty"`
	Address       string `json:"address"`
	OriginContext string `json:"originContext,omitempty"`
}

// ToDomain converts InitiateRequest to domain.InitiateRequest.
func (r InitiateRequest) ToDomain() domain.InitiateRequest {
	return domain.InitiateRequest{
		ClaimantID:    r.ClaimantID,
		ClaimantLabel: r.ClaimantLabel,
		Address:       r.Address,
		OriginContext: r.OriginContext,
	}
}
