package policy

import "fmt"

// AccessMode is the statement policy level a server process runs under.
// It is configured once at startup and immutable for the process lifetime.
type AccessMode string

const (
	// ModeReadonly permits read-family statements only.
	ModeReadonly AccessMode = "readonly"
	// ModeLimited permits reads, INSERT, guarded UPDATE/DELETE and
	// non-destructive DDL.
	ModeLimited AccessMode = "limited"
	// ModeUnrestricted permits everything.
	ModeUnrestricted AccessMode = "unrestricted"
)

// ParseAccessMode validates a mode string coming from configuration. An
// unknown value is a configuration error, never a fallback to a more
// permissive mode.
func ParseAccessMode(s string) (AccessMode, error) {
	switch AccessMode(s) {
	case ModeReadonly, ModeLimited, ModeUnrestricted:
		return AccessMode(s), nil
	}
	return "", fmt.Errorf("unknown access mode %q (want readonly, limited or unrestricted)", s)
}

func (m AccessMode) String() string { return string(m) }
