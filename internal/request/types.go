package request

import "strings"

// Kind classifies a request method.
type Kind int

const (
	// KindRejected is any method other than GET or POST.
	KindRejected Kind = iota
	// KindQuery carries its input in the query string (GET).
	KindQuery
	// KindBody carries its input in a Content-Length framed body (POST).
	KindBody
)

func (k Kind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindBody:
		return "body"
	default:
		return "rejected"
	}
}

// Classify maps a method token to its Kind. Comparison is ASCII
// case-insensitive.
func Classify(method string) Kind {
	switch {
	case asciiEqualFold(method, "GET"):
		return KindQuery
	case asciiEqualFold(method, "POST"):
		return KindBody
	default:
		return KindRejected
	}
}

// strings.EqualFold also folds a few non-ASCII runes onto ASCII letters
// (U+017F, U+212A). Those are all wider than one byte, so an equal byte
// length rules them out.
func asciiEqualFold(s, t string) bool {
	return len(s) == len(t) && strings.EqualFold(s, t)
}

// ParsedRequest is the framed request handed to the response builder.
// QueryString is meaningful only for KindQuery and Body only for KindBody.
// For KindRejected, Method holds the literal token as received.
type ParsedRequest struct {
	Method      string
	Kind        Kind
	QueryString string
	Body        []byte
}

// IsBodyMethod reports whether the request was framed with a body.
func (p *ParsedRequest) IsBodyMethod() bool {
	return p.Kind == KindBody
}

// State is a step of the raw-stream reader.
type State int

const (
	StateStart State = iota
	StateReadQuery
	StateReadHeaders
	StateReadBody
	StateDone
	StateRejected
)

var stateNames = map[State]string{
	StateStart:       "start",
	StateReadQuery:   "read_query",
	StateReadHeaders: "read_headers",
	StateReadBody:    "read_body",
	StateDone:        "done",
	StateRejected:    "rejected",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Terminal reports whether no further input will be consumed.
func (s State) Terminal() bool {
	return s == StateDone || s == StateRejected
}

// Framing selects how a body is delimited once its length is known.
type Framing int

const (
	// FramingLine accumulates lines until at least Content-Length bytes
	// are buffered. The body may overshoot the declared length by the rest
	// of the last line, as far as the peer has already delivered it.
	FramingLine Framing = iota
	// FramingExact reads exactly Content-Length bytes.
	FramingExact
)

func (f Framing) String() string {
	if f == FramingExact {
		return "exact"
	}
	return "line"
}

// ParseFraming accepts "line" or "exact".
func ParseFraming(s string) (Framing, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "line", "":
		return FramingLine, true
	case "exact":
		return FramingExact, true
	default:
		return FramingLine, false
	}
}

// HeaderSet holds header values keyed by lower-cased name for the
// duration of one read. Later duplicates replace earlier ones.
type HeaderSet map[string]string

const contentLengthKey = "content-length"
