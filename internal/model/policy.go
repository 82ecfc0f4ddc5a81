/*
PURPOSE:
  Policy deciding which trial a level reports.

RELATED FILES:
  - internal/engine/select.go
*/

package model

import (
	"fmt"
	"strings"
)

// BestPolicy decides which trial of a plateaued level is reported as its best.
type BestPolicy string

const (
	// PolicyPredecessor drops the trial that triggered the plateau; that run
	// only tested the ceiling.
	PolicyPredecessor BestPolicy = "predecessor"
	// PolicyHighest keeps every trial of the level as a candidate.
	PolicyHighest BestPolicy = "highest"
)

// ParseBestPolicy parses a policy name. Empty means PolicyPredecessor.
func ParseBestPolicy(s string) (BestPolicy, error) {
	switch BestPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyPredecessor:
		return PolicyPredecessor, nil
	case PolicyHighest:
		return PolicyHighest, nil
	default:
		return "", fmt.Errorf("unknown best policy %q (want %q or %q)", s, PolicyPredecessor, PolicyHighest)
	}
}
