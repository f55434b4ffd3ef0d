package models_test

import (
	"encoding/json"
	"testing"

	"github.com/kiranshivaraju/operator-service/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflow_DerivedDIDs(t *testing.T) {
	var wf models.Workflow
	require.NoError(t, json.Unmarshal([]byte(`{
		"stages": [{
			"algorithm": {"id": "did:op:X", "rawcode": ""},
			"input": [{"id": "did:op:1"}, {"url": ["https://a"]}, {"id": "did:op:2"}]
		}]
	}`), &wf))

	assert.Equal(t, "did:op:X", wf.AlgorithmDID())
	assert.Equal(t, []string{"did:op:1", "did:op:2"}, wf.InputDIDs())
}

func TestWorkflow_RawAlgorithm(t *testing.T) {
	var wf models.Workflow
	require.NoError(t, json.Unmarshal([]byte(`{"stages": [{"algorithm": {"rawcode": "print(1)"}}]}`), &wf))
	assert.Equal(t, "raw", wf.AlgorithmDID())
	assert.Empty(t, wf.InputDIDs())
}

func TestWorkflow_PreservesUnknownFields(t *testing.T) {
	in := `{"chainId":"137","owner":"0xabc","stages":[{"algorithm":{"id":"a"},"custom":[1,2]}]}`
	var wf models.Workflow
	require.NoError(t, json.Unmarshal([]byte(in), &wf))
	require.NotNil(t, wf.ChainID)
	assert.Equal(t, int64(137), *wf.ChainID)

	out, err := json.Marshal(wf)
	require.NoError(t, err)
	assert.JSONEq(t, `{"chainId":137,"owner":"0xabc","stages":[{"algorithm":{"id":"a"},"custom":[1,2]}]}`, string(out))
}

func TestStage_ComputeRoundTrip(t *testing.T) {
	stage := models.Stage{"compute": json.RawMessage(`{"Instances": 1, "maxtime": 60}`)}
	c, err := stage.Compute()
	require.NoError(t, err)
	assert.Equal(t, int64(60), c.MaxTime)

	c.Resources = map[string]any{"requests_cpu": "200m"}
	require.NoError(t, stage.SetCompute(c))
	assert.JSONEq(t, `{"Instances":1,"maxtime":60,"resources":{"requests_cpu":"200m"}}`, string(stage["compute"]))
}

func TestNonce_AcceptsStringOrNumber(t *testing.T) {
	var body struct {
		Nonce models.Nonce `json:"nonce"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"nonce": 1700000000.123}`), &body))
	assert.Equal(t, models.Nonce("1700000000.123"), body.Nonce)

	require.NoError(t, json.Unmarshal([]byte(`{"nonce": "42"}`), &body))
	assert.Equal(t, models.Nonce("42"), body.Nonce)

	assert.Error(t, json.Unmarshal([]byte(`{"nonce": true}`), &body))
}

func TestEnvironmentStatus_AcceptsChain(t *testing.T) {
	tests := []struct {
		name   string
		status string
		chain  *int64
		want   bool
	}{
		{"listed", `{"allowedChainId": [1, 137]}`, ptr(137), true},
		{"unlisted", `{"allowedChainId": [1, 137]}`, ptr(42), false},
		{"no allow-list", `{"cpu": 2}`, ptr(42), true},
		{"empty allow-list", `{"allowedChainId": []}`, ptr(42), true},
		{"single value", `{"allowedChainId": 1}`, ptr(1), true},
		{"string values", `{"allowedChainId": ["1", "137"]}`, ptr(137), true},
		{"missing chain with allow-list", `{"allowedChainId": [1]}`, nil, false},
		{"missing chain without allow-list", `{}`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var st models.EnvironmentStatus
			require.NoError(t, json.Unmarshal([]byte(tt.status), &st))
			assert.Equal(t, tt.want, st.AcceptsChain(tt.chain))
		})
	}
}

func TestEnvironmentStatus_RoundTrip(t *testing.T) {
	var st models.EnvironmentStatus
	require.NoError(t, json.Unmarshal([]byte(`{"allowedChainId": 5, "desc": "gpu pool"}`), &st))
	out, err := json.Marshal(st)
	require.NoError(t, err)
	assert.JSONEq(t, `{"allowedChainId": [5], "desc": "gpu pool"}`, string(out))
}

func TestJobStatusText(t *testing.T) {
	assert.Equal(t, "Warming up", models.JobStatusText(models.JobStatusWarmingUp))
	assert.Equal(t, "Unknown", models.JobStatusText(999))
}

func ptr(v int64) *int64 { return &v }
