package metrics

import "time"

// ScanCycle records a completed or skipped reconciliation cycle.
func ScanCycle(result string, d time.Duration) {
	if !enabled {
		return
	}
	scanCyclesTotal.WithLabelValues(result).Inc()
	if d > 0 {
		scanCycleDuration.Observe(d.Seconds())
	}
}

// ScanBlocksFailed records blocks the scanner had to skip.
func ScanBlocksFailed(n int) {
	if !enabled || n <= 0 {
		return
	}
	scanBlocksFailed.Add(float64(n))
}

// Transfer records the match outcome of a candidate transfer.
func Transfer(outcome string) {
	if !enabled {
		return
	}
	transfersTotal.WithLabelValues(outcome).Inc()
}

// Refund records a refund submission.
func Refund(status string) {
	if !enabled {
		return
	}
	refundsTotal.WithLabelValues(status).Inc()
}

// PendingRequests sets the live request gauge.
func PendingRequests(n int) {
	if !enabled {
		return
	}
	pendingRequests.Set(float64(n))
}

// ClaimFinalized records a new claim.
func ClaimFinalized() {
	if !enabled {
		return
	}
	claimsTotal.Inc()
}

// RequestsExpired records requests removed by the sweep.
func RequestsExpired(n int) {
	if !enabled || n <= 0 {
		return
	}
	expiredTotal.Add(float64(n))
}

// VerificationRequest records an initiate call.
func VerificationRequest(result string) {
	if !enabled {
		return
	}
	verificationsTotal.WithLabelValues(result).Inc()
}

// CollaboratorFailure records a failed side effect.
func CollaboratorFailure(collaborator string) {
	if !enabled {
		return
	}
	collaboratorFailure.WithLabelValues(collaborator).Inc()
}
