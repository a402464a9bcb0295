package request

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

var bodyBufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Reader frames a single request from a raw byte stream. It is a state
// machine driven by Step; Read runs it to a terminal state.
type Reader struct {
	br      *bufio.Reader
	framing Framing

	state  State
	line   string
	header HeaderSet
	length int
	req    *ParsedRequest
}

// NewReader returns a Reader in StateStart. The stream does not need to
// end with EOF; nothing is read past what the current state requires.
func NewReader(r io.Reader, framing Framing) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{
		br:      br,
		framing: framing,
		state:   StateStart,
	}
}

// State returns the current state.
func (r *Reader) State() State {
	return r.state
}

// ContentLength returns the body length announced so far.
func (r *Reader) ContentLength() int {
	return r.length
}

// Read steps the reader until it reaches StateDone or StateRejected.
// The only errors are transport failures: the stream ended or failed
// before a request line or the announced body arrived.
func (r *Reader) Read() (*ParsedRequest, error) {
	for !r.state.Terminal() {
		if err := r.Step(); err != nil {
			return nil, err
		}
	}
	return r.req, nil
}

// Step performs one transition.
func (r *Reader) Step() error {
	switch r.state {
	case StateStart:
		return r.readRequestLine()
	case StateReadQuery:
		r.req.QueryString = queryString(r.line)
		r.state = StateDone
		return nil
	case StateReadHeaders:
		return r.readHeader()
	case StateReadBody:
		return r.readBody()
	default:
		return nil
	}
}

func (r *Reader) readRequestLine() error {
	raw, err := r.readLine()
	if err != nil {
		return fmt.Errorf("read request line: %w", err)
	}
	r.line = trimEOL(raw)
	method, _, _ := strings.Cut(r.line, " ")
	r.req = &ParsedRequest{Method: method, Kind: Classify(method)}
	switch r.req.Kind {
	case KindQuery:
		r.state = StateReadQuery
	case KindBody:
		r.header = make(HeaderSet)
		r.state = StateReadHeaders
	default:
		r.state = StateRejected
	}
	return nil
}

func (r *Reader) readHeader() error {
	raw, err := r.readLine()
	if errors.Is(err, io.ErrUnexpectedEOF) {
		// No more headers will arrive; whatever length was announced
		// still has to be satisfied by the body read.
		r.endHeaders()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	line := trimEOL(raw)
	if line == "" {
		r.endHeaders()
		return nil
	}
	name, value, ok := strings.Cut(line, ":")
	if !ok {
		// A colon-less line ends a broken header section. With a length
		// already announced the body starts on the following line.
		r.endHeaders()
		return nil
	}
	name = strings.ToLower(strings.TrimSpace(name))
	value = strings.TrimSpace(value)
	r.header[name] = value
	if name == contentLengthKey {
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			r.length = n
		}
	}
	return nil
}

func (r *Reader) endHeaders() {
	r.header = nil
	if r.length == 0 {
		r.req.Body = []byte{}
		r.state = StateDone
		return
	}
	r.state = StateReadBody
}

func (r *Reader) readBody() error {
	buf := bodyBufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bodyBufPool.Put(buf)

	switch r.framing {
	case FramingExact:
		if _, err := io.CopyN(buf, r.br, int64(r.length)); err != nil {
			return fmt.Errorf("read body: %w", unexpected(err))
		}
	default:
		// Past the announced length the current line is only finished
		// from bytes that have already arrived.
		lineEnded := false
		for buf.Len() < r.length || (!lineEnded && r.br.Buffered() > 0) {
			c, err := r.br.ReadByte()
			if err != nil {
				if errors.Is(err, io.EOF) && buf.Len() >= r.length {
					break
				}
				return fmt.Errorf("read body: %w", unexpected(err))
			}
			buf.WriteByte(c)
			lineEnded = c == '\n'
		}
	}
	r.req.Body = bytes.Clone(buf.Bytes())
	r.state = StateDone
	return nil
}

// readLine returns one line including its terminator. A final line cut
// short by EOF is returned as is; EOF with nothing read is an error.
func (r *Reader) readLine() ([]byte, error) {
	line, err := r.br.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return line, nil
		}
		return nil, unexpected(err)
	}
	return line, nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func trimEOL(b []byte) string {
	b = bytes.TrimSuffix(b, []byte("\n"))
	b = bytes.TrimSuffix(b, []byte("\r"))
	return string(b)
}

// queryString returns what follows the first '?' of the request target,
// or "" when there is none. The protocol token is not part of the query.
func queryString(line string) string {
	_, rest, _ := strings.Cut(line, " ")
	target, _, _ := strings.Cut(rest, " ")
	_, query, ok := strings.Cut(target, "?")
	if !ok {
		return ""
	}
	return query
}
