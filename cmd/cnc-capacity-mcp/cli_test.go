package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ggoodman/cnc-capacity-mcp/capacity"
	"github.com/ggoodman/cnc-capacity-mcp/internal/config"
	"github.com/ggoodman/cnc-capacity-mcp/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func executeCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func testConfig() *config.Config {
	return &config.Config{
		Host:              "127.0.0.1",
		Port:              3000,
		SSEPath:           "/sse",
		MessagesPath:      "/messages",
		SessionsKeyPrefix: "cnc:sessions:",
		SessionsTTL:       time.Minute,
		LogLevel:          "debug",
		LogFormat:         "text",
	}
}

func newTestApp(t *testing.T) *app {
	t.Helper()
	a, err := newApp(testConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestCalcText(t *testing.T) {
	stdout, _, err := executeCLI(t, "calc", "--op1", "10", "--op2", "8", "--robot", "2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "CNC capacity simulation")
	assert.Contains(t, stdout, "● Bottleneck cycle (takt) time: 12 s")
	assert.Contains(t, stdout, "● Hourly output: 300.00 parts/hour")
	assert.Contains(t, stdout, "Configuration: 1 x OP1, 2 x OP2, 1 x robot.")
}

func TestCalcIsRepeatable(t *testing.T) {
	first, _, err := executeCLI(t, "calc", "--op1", "5", "--op2", "20", "--robot", "1")
	require.NoError(t, err)
	second, _, err := executeCLI(t, "calc", "--op1", "5", "--op2", "20", "--robot", "1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCalcJSONOutput(t *testing.T) {
	stdout, _, err := executeCLI(t, "calc", "--op1", "5", "--op2", "20", "--robot", "1", "--output", "json")
	require.NoError(t, err)
	require.True(t, json.Valid([]byte(stdout)))

	var r capacity.Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &r))
	assert.Equal(t, 11.0, r.BottleneckTime)
	assert.Equal(t, 327.27, r.HourlyOutput)
	assert.Equal(t, capacity.StationOP2, r.LimitingStation)
}

func TestCalcYAMLOutput(t *testing.T) {
	stdout, _, err := executeCLI(t, "calc", "--op1", "10", "--op2", "8", "--robot", "2", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, stdout, "hourly_output: 300")

	var r capacity.Report
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &r))
	assert.Equal(t, 12.0, r.BottleneckTime)
	assert.Equal(t, 83.3, r.Op1Utilization)
	assert.Equal(t, capacity.StationOP1, r.LimitingStation)
}

func TestCalcErrors(t *testing.T) {
	_, _, err := executeCLI(t, "calc", "--op1", "10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag(s)")

	_, _, err = executeCLI(t, "calc", "--op1", "0", "--op2", "0", "--robot", "0")
	require.ErrorIs(t, err, capacity.ErrDegenerateInput)

	_, _, err = executeCLI(t, "calc", "--op1=-1", "--op2", "8", "--robot", "2")
	require.ErrorIs(t, err, capacity.ErrInvalidArgument)

	_, _, err = executeCLI(t, "calc", "--op1", "10", "--op2", "8", "--robot", "2", "--output", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown output format "xml"`)
}

func TestVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "cnc-capacity-mcp dev")
	assert.Contains(t, stdout, planner.ServerName)
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	for _, k := range []string{"HOST", "PORT", "SSE_PATH", "MESSAGES_PATH", "KEEPALIVE_INTERVAL", "REDIS_ADDR", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(k, "")
	}

	_, _, err := executeCLI(t, "serve", "--env-file", "", "--port", "70000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	_, _, err = executeCLI(t, "serve", "--env-file", "", "--log-format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_FORMAT")
}

func TestStatusEndpoint(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(a.router)
	defer srv.Close()

	getStatus := func() statusResponse {
		resp, err := srv.Client().Get(srv.URL + "/")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

		var st statusResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
		return st
	}

	st := getStatus()
	assert.Equal(t, planner.ServerName, st.Name)
	assert.Equal(t, planner.ServerVersion, st.Version)
	assert.Equal(t, "ok", st.Status)
	assert.Equal(t, "none", st.Session)
	assert.Equal(t, []string{planner.ToolName}, st.Tools)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	endpoint := readEndpoint(t, resp.Body)
	assert.True(t, strings.HasPrefix(endpoint, "/messages?sessionId="), endpoint)
	assert.Equal(t, "active", getStatus().Session)

	post, err := srv.Client().Post(srv.URL+endpoint, "application/json", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(post.Body)
	post.Body.Close()
	assert.Equal(t, http.StatusAccepted, post.StatusCode)
	assert.Equal(t, "Accepted", string(body))
}

func TestCORSPreflight(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(a.router)
	defer srv.Close()

	for _, path := range []string{"/", "/sse", "/messages"} {
		req, err := http.NewRequest(http.MethodOptions, srv.URL+path, nil)
		require.NoError(t, err)
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode, path)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"), path)
		assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST", path)
	}
}

func TestPostWithoutStream(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(a.router)
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL+"/messages", "application/json", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"error":{"code":400,"message":"no active session"}}`, string(body))
}

func TestServeShutsDownWithOpenStream(t *testing.T) {
	a := newTestApp(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/sse")
	require.NoError(t, err)
	defer resp.Body.Close()
	readEndpoint(t, resp.Body)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func readEndpoint(t *testing.T, r io.Reader) string {
	t.Helper()
	lines := make(chan string, 1)
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			if data, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
				lines <- data
				return
			}
		}
		close(lines)
	}()
	select {
	case data, ok := <-lines:
		require.True(t, ok, "stream ended before the endpoint event")
		return data
	case <-time.After(3 * time.Second):
		t.Fatal("no endpoint event")
		return ""
	}
}

func TestStdioCommand(t *testing.T) {
	root := newRootCmd()
	stdout := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(`{"jsonrpc":"2.0","id":7,"method":"ping"}` + "\n"))
	root.SetArgs([]string{"stdio", "--env-file", ""})

	require.NoError(t, root.Execute())
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":7,"result":{}}`, strings.TrimSpace(stdout.String()))
}
