package tests

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/costaparas/shell-script-api/internal/config"
	"github.com/costaparas/shell-script-api/internal/loggingtest"
	"github.com/costaparas/shell-script-api/internal/request"
	"github.com/costaparas/shell-script-api/internal/server"
	"github.com/costaparas/shell-script-api/internal/service"
)

// This file implements the harness shared by the end-to-end scenarios:
// a running service on an ephemeral port and a raw TCP client.

type result struct {
	Status      int
	ContentType string
	Header      http.Header
	Body        string
}

func startService(t *testing.T, framing request.Framing) *service.Service {
	t.Helper()
	cfg := config.Config{
		Host:                "127.0.0.1",
		Port:                0,
		Framing:             framing,
		ShutdownGracePeriod: time.Second,
	}
	svc := service.New(cfg, loggingtest.NewTestLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.Initialize(ctx))

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	require.Eventually(t, svc.IsRunning, 5*time.Second, 10*time.Millisecond)

	t.Cleanup(func() {
		svc.Shutdown()
		require.NoError(t, <-done)
		cancel()
	})
	return svc
}

// sendRaw writes raw to a fresh connection and parses the reply with the
// standard HTTP client reader.
func sendRaw(t *testing.T, addr, raw string) result {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = io.WriteString(conn, raw)
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return result{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Header:      resp.Header,
		Body:        string(body),
	}
}

// sendCGI runs the pre-parsed binding with the given meta-variables.
func sendCGI(t *testing.T, env map[string]string, body string) result {
	t.Helper()
	h := server.NewHandler(request.FramingLine, loggingtest.NewTestLogger(t))
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	var out bytes.Buffer
	require.NoError(t, h.ServeCGI(context.Background(), lookup, bytes.NewBufferString(body), &out))

	// Front-end servers turn the Status header into a status line.
	resp, err := http.ReadResponse(bufio.NewReader(io.MultiReader(
		bytes.NewBufferString("HTTP/1.1 200 OK\r\n"), &out)), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	status, err := parseStatus(resp.Header.Get("Status"))
	require.NoError(t, err)
	return result{
		Status:      status,
		ContentType: resp.Header.Get("Content-Type"),
		Header:      resp.Header,
		Body:        string(b),
	}
}
