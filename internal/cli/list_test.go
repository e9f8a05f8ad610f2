package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCommand_Text(t *testing.T) {
	out, err := execute(NewListCommand(&RootOptions{Format: "text"}))
	require.NoError(t, err)
	assert.Equal(t, `
Available tests:
'unicode collation'
'memory allocation'
'exit boot services'
'real time clock'
'allocation stress' - on request
`, out)
}

func TestListCommand_JSON(t *testing.T) {
	out, err := execute(NewListCommand(&RootOptions{Format: "json"}))
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   []UnitInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 5)
	assert.Equal(t, UnitInfo{Name: "exit boot services", Phase: "setup_before_transition"}, resp.Data[2])
	assert.Equal(t, UnitInfo{Name: "allocation stress", Phase: "run_before_transition", OnRequest: true}, resp.Data[4])
}
