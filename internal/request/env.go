package request

import (
	"fmt"
	"io"
)

// CGI meta-variables consulted by FromEnv.
const (
	EnvRequestMethod = "REQUEST_METHOD"
	EnvQueryString   = "QUERY_STRING"
)

// FromEnv builds a request already framed by a front-end server. The
// method and query string come from lookup; for a POST the body is body
// read to EOF. Missing variables are treated as empty.
func FromEnv(lookup func(string) (string, bool), body io.Reader) (*ParsedRequest, error) {
	method, _ := lookup(EnvRequestMethod)
	req := &ParsedRequest{Method: method, Kind: Classify(method)}
	switch req.Kind {
	case KindQuery:
		req.QueryString, _ = lookup(EnvQueryString)
	case KindBody:
		b, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		req.Body = b
	}
	return req, nil
}
