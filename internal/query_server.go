package internal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"call-lab/contract"
	"call-lab/observability"
)

// StartQueryServer exposes read-only engine state over HTTP, off the main
// websocket port. Best-effort observability: no auth, no writes.
func StartQueryServer(log *slog.Logger, port int, registry contract.IRegistry,
	monitoring *observability.Manager, archive contract.ICallArchive) {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /online", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"identities": registry.ActiveIdentities(),
		})
	})

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, monitoring.GetLatest())
	})

	mux.HandleFunc("GET /calls", func(w http.ResponseWriter, r *http.Request) {
		sessions, err := archive.List(50)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"calls": sessions})
	})

	go func() {
		addr := fmt.Sprintf("0.0.0.0:%d", port)
		log.Info("Query server listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("Query server stopped", "error", err)
		}
	}()
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(payload)
}
