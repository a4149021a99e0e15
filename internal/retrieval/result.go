package retrieval

import "github.com/fyrsmithlabs/ragguard/internal/synth"

// RefusalSentinel is returned verbatim when no authorized context exists.
const RefusalSentinel = synth.RefusalSentinel

// Kind tags the outcome of Ask. Callers branch on Kind, never on Text.
type Kind int

const (
	KindUnknown Kind = iota
	KindAnswer
	KindRefusal
	KindStorageFailure
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindAnswer:
		return "answer"
	case KindRefusal:
		return "refusal"
	case KindStorageFailure:
		return "storage_failure"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind as its string name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Result is the caller-visible outcome of a question.
type Result struct {
	Kind Kind
	// Text is the synthesized answer, the refusal sentinel, or empty for
	// failures.
	Text string
	// Sources lists the provenance of the authorized fragments, first
	// occurrence order.
	Sources []string
	// Err holds the *index.StorageError or *index.TimeoutError behind a
	// failure kind.
	Err error
}

// Refusal returns the no-authorized-context result.
func Refusal() Result {
	return Result{Kind: KindRefusal, Text: RefusalSentinel}
}
