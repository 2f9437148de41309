package middle

import "fmt"

// ErrorKind classifies a middle-layer failure per the taxonomy the original
// middle-pgsql.cpp reports through fprintf+exit and util::exit_nicely.
type ErrorKind int

const (
	// ConnectError: cannot reach the staging store at startup.
	ConnectError ErrorKind = iota
	// SchemaMismatch: in append mode, the existing id column width
	// disagrees with this build's id width.
	SchemaMismatch
	// ExtensionIncompatible: presence of a conflicting array extension
	// opclass (gist__intbig_ops) was detected.
	ExtensionIncompatible
	// ProtocolViolation: copy_row while not streaming, or exec_prepared
	// while streaming. Always an internal bug, never a user-facing fault.
	ProtocolViolation
	// StoreError: a prepared-statement call returned a non-OK result.
	StoreError
	// MalformedData: an array-literal failed to parse, or a decoded
	// member count did not match its recorded offsets.
	MalformedData
)

func (k ErrorKind) String() string {
	switch k {
	case ConnectError:
		return "ConnectError"
	case SchemaMismatch:
		return "SchemaMismatch"
	case ExtensionIncompatible:
		return "ExtensionIncompatible"
	case ProtocolViolation:
		return "ProtocolViolation"
	case StoreError:
		return "StoreError"
	case MalformedData:
		return "MalformedData"
	default:
		return "Unknown"
	}
}

// Error is the middle layer's single error type. Every fatal condition
// named in spec §7 carries a Kind so callers (cmd/ in particular) can log
// consistently and exit with an intentional message rather than a bare Go
// panic trace.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("middle: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("middle: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// CacheMiss is a sentinel, not a taxonomy member: it is normal control flow
// (spec §7) returned by read paths, never logged as a fault.
var ErrCacheMiss = fmt.Errorf("middle: cache miss")
