package job

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewJobIsPending(t *testing.T) {
	j := New("req-1", "GET", "/api/test/echo")
	require.Equal(t, StatusPending, j.Status)
	require.False(t, j.Terminal())
	require.False(t, j.UpdateTime.Before(j.CreateTime))
}

func TestCompleteClearsErrorMessage(t *testing.T) {
	j := New("req-1", "POST", "/api/test/echo")
	j.Fail("boom")
	require.Equal(t, StatusFailed, j.Status)
	require.NotEmpty(t, j.ErrorMessage)

	j.Complete(200, map[string]string{"content-type": "application/json"}, json.RawMessage(`{"ok":true}`))
	require.Equal(t, StatusCompleted, j.Status)
	require.Empty(t, j.ErrorMessage)
	require.True(t, j.Terminal())
}

func TestFailClearsResponseFields(t *testing.T) {
	j := New("req-1", "POST", "/api/test/echo")
	j.Complete(200, nil, json.RawMessage(`{}`))
	j.Fail("bad")
	require.Equal(t, StatusFailed, j.Status)
	require.Zero(t, j.ResponseStatus)
	require.Nil(t, j.ResponseBody)
}

func TestRoundTripJSON(t *testing.T) {
	j := New("req-42", "POST", "/api/test/echo")
	j.Headers = map[string]string{"x-api-version": "v2"}
	j.QueryParams = map[string][]string{"q": {"a", "b"}}
	j.JSONData = json.RawMessage(`{"msg":"hi"}`)
	j.Complete(200, map[string]string{"content-type": "application/json"}, json.RawMessage(`{"msg":"hi"}`))

	raw, err := j.ToJSON()
	require.NoError(t, err)

	back, err := FromJSON(raw)
	require.NoError(t, err)

	require.Equal(t, j.RequestID, back.RequestID)
	require.Equal(t, j.Status, back.Status)
	require.True(t, j.CreateTime.Equal(back.CreateTime))
	require.True(t, j.UpdateTime.Equal(back.UpdateTime))
	require.Equal(t, j.Headers, back.Headers)
	require.Equal(t, j.QueryParams, back.QueryParams)
	require.JSONEq(t, string(j.JSONData), string(back.JSONData))
	require.JSONEq(t, string(j.ResponseBody), string(back.ResponseBody))
}

func TestRoundTripWithFailure(t *testing.T) {
	j := New("req-7", "DELETE", "/api/test/thing")
	j.Fail("handler exploded")

	raw, err := j.ToJSON()
	require.NoError(t, err)
	back, err := FromJSON(raw)
	require.NoError(t, err)

	require.Equal(t, StatusFailed, back.Status)
	require.Equal(t, "handler exploded", back.ErrorMessage)
	require.Empty(t, back.ResponseBody)
}
