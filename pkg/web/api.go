package web

import (
	"encoding/json"
	"net/http"

	"github.com/openmicromirror/dlpc900ctl/pkg/logger"
	"github.com/openmicromirror/dlpc900ctl/pkg/protocol"
)

// HardwareStatus is the snapshot of controller status this dashboard
// exposes: the current display mode and the three status-bit reads.
type HardwareStatus struct {
	DisplayMode string                  `json:"display_mode"`
	Hardware    protocol.StatusBits     `json:"hardware"`
	System      bool                    `json:"system"`
	Main        protocol.StatusBits     `json:"main"`
}

// StatusProvider is implemented by anything able to report the
// controller's current status, typically pkg/driver's Driver.
type StatusProvider interface {
	Status() (HardwareStatus, error)
}

// API handles the dashboard's REST endpoints.
type API struct {
	log      *logger.Logger
	provider StatusProvider
}

// NewAPI creates a new API instance.
func NewAPI(log *logger.Logger) *API {
	return &API{log: log}
}

// SetProvider wires the status provider after construction.
func (a *API) SetProvider(p StatusProvider) {
	a.provider = p
}

// HandleStatus handles GET /api/status.
func (a *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if a.provider == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "no status provider configured"})
		return
	}

	status, err := a.provider.Status()
	if err != nil {
		a.log.Error("failed to read status", logger.Error(err))
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		a.log.Error("failed to encode status response", logger.Error(err))
	}
}
