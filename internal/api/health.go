package api

import (
	"net/http"

	"github.com/gaspardpetit/chatrelay/internal/logx"
)

// Health answers GET /health. It never consults the upstream.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "running", "service": a.opts.ServiceName})
}

// Models answers GET /api/models with the upstream model names.
func (a *API) Models(w http.ResponseWriter, r *http.Request) {
	models, err := a.up.Tags(r.Context())
	if err != nil {
		logx.Log.Warn().Err(err).Msg("list models")
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if models == nil {
		models = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

// StateResponse is the body of GET /api/state.
type StateResponse struct {
	Status   string `json:"status"`
	Draining bool   `json:"draining"`
	Inflight int64  `json:"inflight"`
}

// State answers GET /api/state.
func (a *API) State(w http.ResponseWriter, r *http.Request) {
	st := a.opts.State.Snapshot(r.Context())
	writeJSON(w, http.StatusOK, StateResponse{Status: st.Status, Draining: st.Draining, Inflight: a.opts.Inflight.Load()})
}
