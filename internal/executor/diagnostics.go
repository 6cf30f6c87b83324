package executor

import (
	"fmt"
	"strings"
)

// DiagnosticsPolicy decides when a group is simulated for a trace.
type DiagnosticsPolicy int

const (
	// DiagnosticsOnReject simulates a rejected group and attaches the trace
	// to the RejectedError.
	DiagnosticsOnReject DiagnosticsPolicy = iota
	DiagnosticsOff
	// DiagnosticsAlways also simulates before every submission and logs the
	// trace. It never blocks submission.
	DiagnosticsAlways
)

func (p DiagnosticsPolicy) String() string {
	switch p {
	case DiagnosticsOff:
		return "off"
	case DiagnosticsAlways:
		return "always"
	default:
		return "on-reject"
	}
}

func ParseDiagnosticsPolicy(s string) (DiagnosticsPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "on-reject":
		return DiagnosticsOnReject, nil
	case "off":
		return DiagnosticsOff, nil
	case "always":
		return DiagnosticsAlways, nil
	}
	return DiagnosticsOnReject, fmt.Errorf("executor: unknown diagnostics policy %q", s)
}
