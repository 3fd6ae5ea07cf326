package understory

import "errors"

// maxDocumentSize is the largest document Update accepts. Tree-sitter uses
// 32-bit (signed) node indices, so this limit must never be raised above
// 2 GiB; past 512 MiB parsing is too slow to be useful anyway.
const maxDocumentSize = 512 * 1024 * 1024

var (
	// ErrExceededMaximumSize reports a document of 512 MiB or more. The
	// caller can recover by splitting or rejecting the file.
	ErrExceededMaximumSize = errors.New("document exceeds maximum size")

	// ErrTimeout reports that a parse exceeded the configured budget. The
	// caller may retry with a longer budget or keep the stale tree.
	ErrTimeout = errors.New("parse timeout")

	// ErrInvalidRanges reports overlapping or unsorted included ranges.
	// This is a programmer error, not a retryable condition.
	ErrInvalidRanges = errors.New("invalid included ranges")

	// ErrIncompatibleGrammar reports a grammar handle that cannot be used
	// with the runtime. The affected layer degrades to no highlights; the
	// rest of the document is unaffected.
	ErrIncompatibleGrammar = errors.New("incompatible grammar")

	// ErrNoRootConfig reports that the loader could not resolve the root
	// language. The whole update fails.
	ErrNoRootConfig = errors.New("no configuration for root language")
)
