// Package zvecerr defines the typed error kinds returned by the index core.
//
// Every public operation in pkg/rabitq, pkg/hnsw and pkg/index returns one of
// these kinds (wrapped with context via fmt.Errorf("...: %w", err)) rather
// than an ad-hoc error string, so callers can branch with errors.Is.
package zvecerr

import "errors"

// Kind identifies the category of a core error.
type Kind int

const (
	// Runtime covers unexpected failures not otherwise classified (distance
	// calculator internal error, I/O error surfaced from a storage backend).
	Runtime Kind = iota
	// InvalidArgument covers bad parameters, dimension mismatches and
	// out-of-range configuration.
	InvalidArgument
	// NoReady covers an operation invoked out of lifecycle order.
	NoReady
	// NoExist covers an unknown name (metric, converter) or a missing
	// segment in a storage backend.
	NoExist
	// Mismatch covers a dumped meta that disagrees with the supplied meta.
	Mismatch
	// DuplicateKey covers an append_with_key call on an already-live key.
	DuplicateKey
	// KeyNotFound covers a lookup of a key that resolves to no NodeId.
	KeyNotFound
	// IndexFull covers docs_hard_limit being exceeded.
	IndexFull
	// OutOfMemory covers memory_quota being exceeded or an allocator failure.
	OutOfMemory
	// Corrupt covers a CRC mismatch or truncated segment on load.
	Corrupt
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case NoReady:
		return "NoReady"
	case NoExist:
		return "NoExist"
	case Mismatch:
		return "Mismatch"
	case DuplicateKey:
		return "DuplicateKey"
	case KeyNotFound:
		return "KeyNotFound"
	case IndexFull:
		return "IndexFull"
	case OutOfMemory:
		return "OutOfMemory"
	case Corrupt:
		return "Corrupt"
	default:
		return "Runtime"
	}
}

// Error is a typed core error. It satisfies errors.Is against the sentinel
// values below via Unwrap, and Kind() lets callers branch without a type
// assertion.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error {
	return e.err
}

// Kind returns the error's category.
func (e *Error) Kind() Kind { return e.kind }

// Is reports whether target is the sentinel for e's kind, so that
// errors.Is(err, zvecerr.ErrKeyNotFound) works even though err wraps
// additional context.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.kind == e.kind && t.msg == ""
}

// Sentinels usable with errors.Is(err, zvecerr.ErrXxx).
var (
	ErrInvalidArgument = &Error{kind: InvalidArgument}
	ErrNoReady         = &Error{kind: NoReady}
	ErrNoExist         = &Error{kind: NoExist}
	ErrMismatch        = &Error{kind: Mismatch}
	ErrDuplicateKey    = &Error{kind: DuplicateKey}
	ErrKeyNotFound     = &Error{kind: KeyNotFound}
	ErrIndexFull       = &Error{kind: IndexFull}
	ErrOutOfMemory     = &Error{kind: OutOfMemory}
	ErrCorrupt         = &Error{kind: Corrupt}
	ErrRuntime         = &Error{kind: Runtime}
)

// New builds a new *Error of the given kind with a formatted message.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Wrap builds a new *Error of the given kind, wrapping err for %w chains.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{kind: kind, msg: msg, err: err}
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, otherwise
// Runtime.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return Runtime
}
