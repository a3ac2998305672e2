package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRequest(t *testing.T, reqType RequestType) *ActionRequest {
	t.Helper()
	req, err := NewActionRequest(reqType, validChunks())
	require.NoError(t, err)
	return req
}

func TestActionResponse_Lifecycle(t *testing.T) {
	v := NewSchemaValidator()
	req := newTestRequest(t, Blocking)

	resp := NewActionResponse(v, req)
	assert.Equal(t, StatusRunning, resp.Status())
	require.NoError(t, resp.Valid())

	resp.SetValidResultsAndEnd(map[string]any{"request_hops": []any{}}, "")
	assert.Equal(t, StatusSuccess, resp.Status())
	require.NoError(t, resp.Valid())
	require.NoError(t, resp.ValidFor(ResponseBlocking))

	start, _ := resp.Metadata()["start"].(string)
	end, _ := resp.Metadata()["end"].(string)
	assert.LessOrEqual(t, start, end)
}

func TestActionResponse_BadResults(t *testing.T) {
	v := NewSchemaValidator()
	req := newTestRequest(t, Blocking)
	resp := NewActionResponse(v, req)

	resp.SetBadResultsAndEnd("boom")
	assert.Equal(t, StatusFailure, resp.Status())
	require.NoError(t, resp.Valid())
	assert.Equal(t, "boom", resp.ToJSON(ResponseRPCError)["description"])
}

func TestActionResponse_ToJSON_Shapes(t *testing.T) {
	v := NewSchemaValidator()
	req := newTestRequest(t, Blocking)
	resp := NewActionResponse(v, req)
	resp.SetValidResultsAndEnd("anodaram", "")

	blocking := resp.ToJSON(ResponseBlocking)
	assert.ElementsMatch(t, []string{"transaction_id", "results"}, keysOf(blocking))

	resp.SetBadResultsAndEnd("nope")
	rpcErr := resp.ToJSON(ResponseRPCError)
	assert.ElementsMatch(t, []string{"id", "description"}, keysOf(rpcErr))

	resp.SetStreams("out", "err", 1)
	status := resp.ToJSON(ResponseStatus)
	assert.ElementsMatch(t, []string{"transaction_id", "status", "stdout", "stderr", "exitcode"}, keysOf(status))
}

func keysOf(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
