package api

import (
	"net/http"

	"github.com/newthinker/signalbench/internal/api/response"
	"github.com/newthinker/signalbench/internal/strategy"
)

// StrategyInfo describes a registered strategy variant.
type StrategyInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Lookback    int    `json:"lookback"`
	Volatility  bool   `json:"requires_volatility"`
	Benchmark   bool   `json:"benchmark"`
}

// StrategiesHandler lists strategies.
type StrategiesHandler struct {
	engine *strategy.Engine
}

// NewStrategiesHandler creates a new strategies handler.
func NewStrategiesHandler(engine *strategy.Engine) *StrategiesHandler {
	return &StrategiesHandler{engine: engine}
}

// List returns every registered strategy sorted by name.
func (h *StrategiesHandler) List(w http.ResponseWriter, r *http.Request) {
	all := h.engine.GetAll()
	infos := make([]StrategyInfo, len(all))
	for i, s := range all {
		req := s.RequiredData()
		infos[i] = StrategyInfo{
			Name:        s.Name(),
			Description: s.Description(),
			Lookback:    req.Lookback,
			Volatility:  req.Volatility,
			Benchmark:   req.Benchmark,
		}
	}
	response.List(w, infos)
}
