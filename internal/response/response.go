package response

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/costaparas/shell-script-api/internal/request"
)

const (
	ContentType   = "application/json"
	NotAllowedMsg = "Not allowed"
)

// Payload is a response ready to be serialized.
type Payload struct {
	StatusCode  int
	StatusText  string
	ContentType string
	JSONBody    string
}

// Build computes the JSON summary for req. Every request yields a
// payload; malformed input only lowers the counts to zero.
func Build(req *request.ParsedRequest) Payload {
	switch req.Kind {
	case request.KindQuery:
		return ok(fmt.Sprintf(`{"method": %s, "num_params": %d}`, quote(http.MethodGet), CountParams(req.QueryString)))
	case request.KindBody:
		return ok(fmt.Sprintf(`{"method": %s, "num_keys": %d}`, quote(http.MethodPost), CountKeys(req.Body)))
	default:
		return Payload{
			StatusCode:  http.StatusMethodNotAllowed,
			StatusText:  http.StatusText(http.StatusMethodNotAllowed),
			ContentType: ContentType,
			JSONBody:    fmt.Sprintf(`{"method": %s, "msg": %s}`, quote(req.Method), quote(NotAllowedMsg)),
		}
	}
}

func ok(body string) Payload {
	return Payload{
		StatusCode:  http.StatusOK,
		StatusText:  http.StatusText(http.StatusOK),
		ContentType: ContentType,
		JSONBody:    body,
	}
}

// CountParams counts '=' in the raw query string. Nothing is decoded or
// deduplicated.
func CountParams(query string) int {
	return strings.Count(query, "=")
}

// CountKeys returns the number of distinct top-level keys when body is a
// JSON object, and 0 for anything else.
func CountKeys(body []byte) int {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return 0
	}
	return len(obj)
}

func quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return `""`
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// WriteRaw writes a complete HTTP/1.1 response.
func (p Payload) WriteRaw(w io.Writer) error {
	head := fmt.Sprintf("HTTP/1.1 %d %s\r\nContent-type: %s\r\n\r\n", p.StatusCode, p.StatusText, p.ContentType)
	return p.write(w, head)
}

// WriteCGI writes the response for a front-end server to post-process:
// a Status header instead of a status line, LF line endings.
func (p Payload) WriteCGI(w io.Writer) error {
	head := fmt.Sprintf("Status: %d\nContent-type: %s\n\n", p.StatusCode, p.ContentType)
	return p.write(w, head)
}

func (p Payload) write(w io.Writer, head string) error {
	if _, err := io.WriteString(w, head+p.JSONBody+"\n"); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}
