package policy

import "fmt"

// Denial reasons. The exact strings are part of the tool and proxy contract:
// serving surfaces return them to callers verbatim.
const (
	ReasonReadonlyBlocked = "write/DDL/DCL blocked under readonly mode"
	ReasonNoWhere         = "UPDATE/DELETE without WHERE is blocked under limited mode"
	ReasonDestructiveDDL  = "destructive DDL blocked under limited mode"
	ReasonDCLBlocked      = "DCL blocked under limited mode"
	ReasonTxnBlocked      = "transaction control blocked under limited mode"
	ReasonUnknownBlocked  = "unclassifiable statement blocked under limited mode"
	ReasonMultiStatement  = "multi-statement input not permitted"
)

// Decision is the outcome of classifying one statement under one access mode.
type Decision struct {
	Allowed bool          `json:"allowed"`
	Kind    StatementKind `json:"kind"`
	Reason  string        `json:"reason,omitempty"`
}

func allow(kind StatementKind) Decision {
	return Decision{Allowed: true, Kind: kind}
}

func deny(kind StatementKind, reason string) Decision {
	return Decision{Allowed: false, Kind: kind, Reason: reason}
}

// Outcome is the label used for metrics and logs.
func (d Decision) Outcome() string {
	if d.Allowed {
		return "allow"
	}
	return "deny"
}

// Err converts a denial into a DeniedError. It is nil for allowed decisions.
func (d Decision) Err(mode AccessMode) error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Mode: mode, Kind: d.Kind, Reason: d.Reason}
}

// DeniedError is returned when a statement is refused by policy. Denials are
// expected, recoverable outcomes rather than faults; callers surface the
// reason to the client and move on.
type DeniedError struct {
	Mode   AccessMode
	Kind   StatementKind
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied (%s mode): %s", e.Mode, e.Reason)
}
