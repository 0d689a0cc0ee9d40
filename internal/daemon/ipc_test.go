package daemon

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homefs/internal/vfs"
)

func TestRequestConstants(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for _, value := range []string{RequestStatus, RequestStop, RequestMaintain, RequestReloadConfig} {
		assert.NotEmpty(t, value)
		assert.False(t, seen[value], "duplicate request type: %s", value)
		seen[value] = true
	}
}

func TestResponseJSON(t *testing.T) {
	t.Parallel()

	t.Run("error response omits empty fields", func(t *testing.T) {
		t.Parallel()
		data, err := json.Marshal(&Response{Success: false, Error: "Something went wrong"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"success":false,"error":"Something went wrong"}`, string(data))
	})

	t.Run("status without a run omits last_run", func(t *testing.T) {
		t.Parallel()
		data, err := json.Marshal(&Status{DataDirectory: "/data", Interval: time.Second})
		require.NoError(t, err)
		assert.JSONEq(t, `{"data_directory":"/data","interval":1000000000,"runs":0}`, string(data))
	})
}

func startTestServer(t *testing.T, handler Handler) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.sock")
	server := NewServer(path, handler)
	require.NoError(t, server.Start(context.Background()))
	t.Cleanup(server.Stop)
	return path
}

func TestServerRoundTrip(t *testing.T) {
	t.Parallel()

	path := startTestServer(t, func(ctx context.Context, req *Request) *Response {
		switch req.Type {
		case RequestStatus:
			return &Response{Success: true, PID: 42, Status: &Status{Runs: 3}}
		case RequestMaintain:
			return &Response{Success: true, Report: &vfs.MaintenanceReport{PurgedTrashRecords: 2, Shares: 1}}
		case RequestReloadConfig:
			return &Response{Success: false, Error: "bad settings"}
		}
		return &Response{Success: false, Error: "unknown request type"}
	})

	t.Run("status", func(t *testing.T) {
		t.Parallel()
		client, err := ConnectTo(path)
		require.NoError(t, err)
		defer client.Close()

		resp, err := client.Status()
		require.NoError(t, err)
		assert.True(t, resp.Success)
		assert.Equal(t, 42, resp.PID)
		require.NotNil(t, resp.Status)
		assert.Equal(t, 3, resp.Status.Runs)
	})

	t.Run("maintain returns report", func(t *testing.T) {
		t.Parallel()
		client, err := ConnectTo(path)
		require.NoError(t, err)
		defer client.Close()

		report, err := client.Maintain()
		require.NoError(t, err)
		assert.Equal(t, 2, report.PurgedTrashRecords)
		assert.Equal(t, 1, report.Shares)
	})

	t.Run("failure becomes error", func(t *testing.T) {
		t.Parallel()
		client, err := ConnectTo(path)
		require.NoError(t, err)
		defer client.Close()

		err = client.ReloadConfig()
		assert.ErrorContains(t, err, "bad settings")
	})

	t.Run("unknown request", func(t *testing.T) {
		t.Parallel()
		client, err := ConnectTo(path)
		require.NoError(t, err)
		defer client.Close()

		resp, err := client.Send(&Request{Type: "fly"})
		require.NoError(t, err)
		assert.False(t, resp.Success)
	})
}

func TestServerNilResponse(t *testing.T) {
	t.Parallel()

	path := startTestServer(t, func(ctx context.Context, req *Request) *Response { return nil })
	client, err := ConnectTo(path)
	require.NoError(t, err)
	defer client.Close()

	resp, err := client.Status()
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "no response", resp.Error)
}

func TestServerStopRemovesSocket(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "test.sock")
	server := NewServer(path, func(ctx context.Context, req *Request) *Response {
		return &Response{Success: true}
	})
	require.NoError(t, server.Start(context.Background()))
	assert.FileExists(t, path)

	server.Stop()
	assert.NoFileExists(t, path)
	_, err := ConnectTo(path)
	assert.Error(t, err)
}
