package tests

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costaparas/shell-script-api/internal/request"
	"github.com/costaparas/shell-script-api/internal/schema"
)

const scenarioBBody = `{"field1":"test","field2":{"foo":"bar","hello":"world"},"field3":"test2"}`

func parseStatus(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

type scenario struct {
	name   string
	raw    string
	env    map[string]string
	body   string
	status int
	want   string
}

var scenarios = []scenario{
	{
		name:   "A_GetWithQuery",
		raw:    "GET /some/path?param1=value1&param2=value2 HTTP/1.1\r\nHost: localhost\r\nAccept: */*\r\n\r\n",
		env:    map[string]string{"REQUEST_METHOD": "GET", "QUERY_STRING": "param1=value1&param2=value2"},
		status: 200,
		want:   `{"method": "GET", "num_params": 2}`,
	},
	{
		name:   "B_PostObject",
		raw:    "POST / HTTP/1.1\r\nHost: localhost\r\nContent-Type: application/json\r\nContent-Length: " + strconv.Itoa(len(scenarioBBody)+1) + "\r\n\r\n" + scenarioBBody + "\n",
		env:    map[string]string{"REQUEST_METHOD": "POST"},
		body:   scenarioBBody + "\n",
		status: 200,
		want:   `{"method": "POST", "num_keys": 3}`,
	},
	{
		name:   "C_PostZeroLength",
		raw:    "POST / HTTP/1.1\r\nHost: localhost\r\nContent-Length: 0\r\n\r\n",
		env:    map[string]string{"REQUEST_METHOD": "POST"},
		status: 200,
		want:   `{"method": "POST", "num_keys": 0}`,
	},
	{
		name:   "C_PostNoLength",
		raw:    "POST / HTTP/1.1\r\nHost: localhost\r\n\r\n",
		env:    map[string]string{"REQUEST_METHOD": "POST"},
		status: 200,
		want:   `{"method": "POST", "num_keys": 0}`,
	},
	{
		name:   "D_Put",
		raw:    "PUT / HTTP/1.1\r\nHost: localhost\r\n\r\n",
		env:    map[string]string{"REQUEST_METHOD": "PUT"},
		status: 405,
		want:   `{"method": "PUT", "msg": "Not allowed"}`,
	},
	{
		name:   "PostArrayBody",
		raw:    "POST / HTTP/1.1\r\nContent-Length: 8\r\n\r\n[1,2,3]\n",
		env:    map[string]string{"REQUEST_METHOD": "POST"},
		body:   "[1,2,3]\n",
		status: 200,
		want:   `{"method": "POST", "num_keys": 0}`,
	},
	{
		name:   "PostInvalidJSON",
		raw:    "POST / HTTP/1.1\r\nContent-Length: 6\r\n\r\n{oops\n",
		env:    map[string]string{"REQUEST_METHOD": "POST"},
		body:   "{oops\n",
		status: 200,
		want:   `{"method": "POST", "num_keys": 0}`,
	},
	{
		name:   "LowerCaseDelete",
		raw:    "delete /x HTTP/1.1\r\n\r\n",
		env:    map[string]string{"REQUEST_METHOD": "delete"},
		status: 405,
		want:   `{"method": "delete", "msg": "Not allowed"}`,
	},
}

func checkResult(t *testing.T, sc scenario, got result) {
	t.Helper()
	assert.Equal(t, sc.status, got.Status)
	assert.Equal(t, "application/json", got.ContentType)
	assert.Equal(t, sc.want+"\n", got.Body)
	assert.Empty(t, got.Header.Get("Content-Length"))
	assert.Empty(t, got.Header.Get("Connection"))
	require.NoError(t, schema.ValidateBody([]byte(got.Body)))
}

func TestScenariosRawStream(t *testing.T) {
	t.Parallel()
	for _, framing := range []request.Framing{request.FramingLine, request.FramingExact} {
		t.Run(framing.String(), func(t *testing.T) {
			t.Parallel()
			svc := startService(t, framing)
			for _, sc := range scenarios {
				t.Run(sc.name, func(t *testing.T) {
					checkResult(t, sc, sendRaw(t, svc.Addr(), sc.raw))
				})
			}
		})
	}
}

func TestScenariosPreParsed(t *testing.T) {
	t.Parallel()
	for _, sc := range scenarios {
		t.Run(sc.name, func(t *testing.T) {
			t.Parallel()
			checkResult(t, sc, sendCGI(t, sc.env, sc.body))
		})
	}
}

func TestRepeatedRequestsAreIdentical(t *testing.T) {
	t.Parallel()
	svc := startService(t, request.FramingLine)
	for _, sc := range scenarios {
		first := sendRaw(t, svc.Addr(), sc.raw)
		for range 3 {
			assert.Equal(t, first.Body, sendRaw(t, svc.Addr(), sc.raw).Body, sc.name)
		}
	}
}

func TestPathIsIgnored(t *testing.T) {
	t.Parallel()
	svc := startService(t, request.FramingLine)
	for _, path := range []string{"/", "/a/b/c", "/index.html", "*"} {
		got := sendRaw(t, svc.Addr(), "GET "+path+"?k=v HTTP/1.1\r\n\r\n")
		assert.Equal(t, `{"method": "GET", "num_params": 1}`+"\n", got.Body, path)
	}
}
