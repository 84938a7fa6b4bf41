package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/tradebook/internal/clients/finnhub"
	"github.com/aristath/tradebook/internal/database"
)

// SystemHandlers serves operational health endpoints
type SystemHandlers struct {
	ledgerDB *database.DB
	cacheDB  *database.DB
	stream   *finnhub.StreamSupervisor
	log      zerolog.Logger
}

// NewSystemHandlers creates the system handlers
func NewSystemHandlers(ledgerDB, cacheDB *database.DB, stream *finnhub.StreamSupervisor, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		ledgerDB: ledgerDB,
		cacheDB:  cacheDB,
		stream:   stream,
		log:      log.With().Str("handler", "system").Logger(),
	}
}

// HandleHealth reports process, database and stream health.
// `?deep=1` runs a full SQLite integrity check instead of a ping.
// GET /api/system/health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	deep := r.URL.Query().Get("deep") == "1"
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err == nil && len(cpuPercent) > 0 {
		health["cpu_percent"] = cpuPercent[0]
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		health["ram_percent"] = vm.UsedPercent
	}

	databases := map[string]string{}
	for _, db := range []*database.DB{h.ledgerDB, h.cacheDB} {
		if db == nil {
			continue
		}
		check := db.QuickCheck
		if deep {
			check = db.HealthCheck
		}
		if err := check(r.Context()); err != nil {
			databases[db.Name()] = "error: " + err.Error()
			health["status"] = "degraded"
		} else {
			databases[db.Name()] = "ok"
		}
	}
	health["databases"] = databases

	if h.stream != nil {
		health["stream_state"] = string(h.stream.State())
	}

	status := http.StatusOK
	if health["status"] != "ok" {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, health)
}

// writeJSON writes a JSON response with the given status code
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
