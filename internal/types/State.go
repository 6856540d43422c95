/*

This file contains the fused state snapshot produced by the observer each
cycle, plus the ordered health classification derived from it.

*/

package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// HealthStatus is the coarse risk classification, ordered so that
// comparisons (status >= threshold) are meaningful. Synced with the contract.
type HealthStatus uint8

const (
	StatusHealthy HealthStatus = iota
	StatusWarning
	StatusCritical
	StatusEmergency
)

func (s HealthStatus) String() string {
	switch s {
	case StatusHealthy:
		return "Healthy"
	case StatusWarning:
		return "Warning"
	case StatusCritical:
		return "Critical"
	case StatusEmergency:
		return "Emergency"
	default:
		return "Unknown"
	}
}

// ParseHealthStatus converts a case-insensitive status name back to its enum.
func ParseHealthStatus(s string) (HealthStatus, error) {
	switch strings.ToLower(s) {
	case "healthy":
		return StatusHealthy, nil
	case "warning":
		return StatusWarning, nil
	case "critical":
		return StatusCritical, nil
	case "emergency":
		return StatusEmergency, nil
	default:
		return StatusHealthy, fmt.Errorf("unknown health status: %q", s)
	}
}

// FusedState is the versioned observation snapshot for one cycle. It is
// created once by the observer, never mutated, only superseded.
type FusedState struct {
	Market       MarketSnapshot `json:"market"`
	Modular      ModularSignals `json:"modular"`
	Health       HealthMetrics  `json:"health"`
	HealthStatus HealthStatus   `json:"health_status"`
	Timestamp    time.Time      `json:"timestamp"`

	// StateHash is a deterministic content hash over the numeric fields.
	// It correlates logs across a cycle and binds signed actions to the
	// exact state they were decided against.
	StateHash common.Hash `json:"state_hash"`
}
