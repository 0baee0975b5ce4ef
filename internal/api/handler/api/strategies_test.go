package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/newthinker/signalbench/internal/app"
	"github.com/newthinker/signalbench/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrategiesHandler_List(t *testing.T) {
	engine := strategy.NewEngine()
	app.RegisterDefaultStrategies(engine)
	h := NewStrategiesHandler(engine)

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest("GET", "/api/v1/strategies", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []StrategyInfo `json:"data"`
		Meta struct {
			Count int `json:"count"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 5)
	assert.Equal(t, 5, resp.Meta.Count)

	byName := make(map[string]StrategyInfo)
	for _, info := range resp.Data {
		byName[info.Name] = info
	}
	assert.Equal(t, 26, byName["macd"].Lookback)
	assert.True(t, byName["vpvma"].Volatility)
	assert.True(t, byName["market"].Benchmark)
	assert.NotEmpty(t, byName["macd_zero_cross"].Description)
}
