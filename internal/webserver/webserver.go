package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/guardix/guardix/internal/engine"
	"github.com/guardix/guardix/internal/health"
	"github.com/guardix/guardix/internal/models"
	"github.com/guardix/guardix/internal/notifications"
	"github.com/guardix/guardix/internal/quarantine"
	"github.com/guardix/guardix/internal/storage"
)

// WebServer exposes the engine contract over JSON for the
// presentation layer. It adds no engine semantics: scan events are
// drained server-side into the notification log and counters, and
// clients poll status.
type WebServer struct {
	Coordinator   *engine.Coordinator
	Signatures    *engine.SignatureStore
	Quarantine    *quarantine.Store
	Notifications *notifications.Log
	Health        *health.Sampler
	Records       storage.Store
	ScanDefaults  *engine.Config
	config        *WebserverConfig
	Logger        *logrus.Logger
}

// NewWebServer initializes a new WebServer.
func NewWebServer(coordinator *engine.Coordinator, signatures *engine.SignatureStore, q *quarantine.Store, log *notifications.Log, sampler *health.Sampler, records storage.Store, scanDefaults *engine.Config, config *WebserverConfig, logger *logrus.Logger) *WebServer {
	return &WebServer{
		Coordinator:   coordinator,
		Signatures:    signatures,
		Quarantine:    q,
		Notifications: log,
		Health:        sampler,
		Records:       records,
		ScanDefaults:  scanDefaults,
		config:        config,
		Logger:        logger,
	}
}

// StartWebServer starts the HTTP server.
func StartWebServer(ctx context.Context, ws *WebServer) (*http.Server, error) {
	router := ws.InitRouter()

	corsOptions := cors.Options{
		AllowedOrigins: ws.config.CorsAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"Content-Length"},
	}
	handler := cors.New(corsOptions).Handler(router)

	server := &http.Server{
		Addr:    ws.config.ListenTo,
		Handler: handler,
	}

	go func() {
		ws.Logger.Infof("Server starting on %s", ws.config.ListenTo)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.Logger.Errorf("ListenAndServe(): %v", err)
		}
	}()

	return server, nil
}

// InitRouter initializes the HTTP routes.
func (ws *WebServer) InitRouter() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/scan", ws.handleStartScan).Methods(http.MethodPost)
	api.HandleFunc("/scan/cancel", ws.handleCancelScan).Methods(http.MethodPost)
	api.HandleFunc("/scan/status", ws.handleScanStatus).Methods(http.MethodGet)

	api.HandleFunc("/quarantine", ws.handleListQuarantine).Methods(http.MethodGet)
	api.HandleFunc("/quarantine", ws.handleIsolate).Methods(http.MethodPost)
	api.HandleFunc("/quarantine/{id}/restore", ws.handleRestore).Methods(http.MethodPost)
	api.HandleFunc("/quarantine/{id}", ws.handleDeleteQuarantine).Methods(http.MethodDelete)

	api.HandleFunc("/notifications", ws.handleListNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications", ws.handleClearNotifications).Methods(http.MethodDelete)

	api.HandleFunc("/signatures", ws.handleReplaceSignatures).Methods(http.MethodPut)
	api.HandleFunc("/health", ws.handleGetHealth).Methods(http.MethodGet)

	return r
}

// handleStartScan handles the POST /api/scan endpoint.
func (ws *WebServer) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var cfg models.ScanConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		ws.Logger.Errorf("Invalid JSON payload: %v", err)
		WriteErrorResponse(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if len(cfg.TargetPaths) == 0 {
		WriteErrorResponse(w, "target_paths is required", http.StatusBadRequest)
		return
	}

	ws.applyScanDefaults(&cfg)

	events, err := ws.Coordinator.Start(cfg)
	if err != nil {
		if errors.Is(err, engine.ErrScanAlreadyRunning) {
			WriteErrorResponse(w, "A scan is already in progress", http.StatusConflict)
			return
		}
		ws.Logger.WithError(err).Error("Failed to start scan")
		WriteErrorResponse(w, "Failed to start scan", http.StatusInternalServerError)
		return
	}

	// Drain the stream so the scan keeps its in-order delivery
	// guarantee; the coordinator mirrors events into the log.
	go func() {
		for range events {
		}
	}()

	WriteSuccessResponse(w, "Scan started", nil)
}

// applyScanDefaults fills fields the request left at their zero value
// from the configured scan defaults, so env-configured size caps and
// exclusions apply to API-initiated scans. A request that sets a field
// explicitly keeps its value.
func (ws *WebServer) applyScanDefaults(cfg *models.ScanConfig) {
	if ws.ScanDefaults == nil {
		return
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = ws.ScanDefaults.MaxFileSize
	}
	if len(cfg.ExcludedExtensions) == 0 {
		cfg.ExcludedExtensions = ws.ScanDefaults.ExcludedExtensions
	}
	if len(cfg.ExcludedPaths) == 0 {
		cfg.ExcludedPaths = ws.ScanDefaults.ExcludedPaths
	}
}

// handleCancelScan handles the POST /api/scan/cancel endpoint.
func (ws *WebServer) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	ws.Coordinator.Cancel()
	WriteSuccessResponse(w, "Cancellation requested", nil)
}

// handleScanStatus handles the GET /api/scan/status endpoint.
func (ws *WebServer) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	filesScanned, threatsFound := ws.Coordinator.Progress()
	WriteSuccessResponse(w, "Scan status retrieved", map[string]interface{}{
		"scanning":      ws.Coordinator.IsScanning(),
		"files_scanned": filesScanned,
		"threats_found": threatsFound,
	})
}

// handleListQuarantine handles the GET /api/quarantine endpoint.
func (ws *WebServer) handleListQuarantine(w http.ResponseWriter, r *http.Request) {
	items, err := ws.Quarantine.List(r.Context())
	if err != nil {
		ws.Logger.WithError(err).Error("Failed to list quarantine")
		WriteErrorResponse(w, "Failed to list quarantine", http.StatusInternalServerError)
		return
	}
	WriteSuccessResponse(w, "Quarantine retrieved", items)
}

type isolateRequest struct {
	Path       string `json:"path"`
	ThreatName string `json:"threat_name"`
}

// handleIsolate handles the POST /api/quarantine endpoint.
func (ws *WebServer) handleIsolate(w http.ResponseWriter, r *http.Request) {
	var req isolateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.Path == "" {
		WriteErrorResponse(w, "path is required", http.StatusBadRequest)
		return
	}

	item, err := ws.Quarantine.Isolate(r.Context(), req.Path, req.ThreatName)
	if err != nil {
		ws.writeQuarantineError(w, err)
		return
	}
	WriteSuccessResponse(w, "File quarantined", item)
}

// handleRestore handles the POST /api/quarantine/{id}/restore endpoint.
func (ws *WebServer) handleRestore(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	path, err := ws.Quarantine.Restore(r.Context(), id)
	if err != nil {
		ws.writeQuarantineError(w, err)
		return
	}
	WriteSuccessResponse(w, "File restored", map[string]string{"path": path})
}

// handleDeleteQuarantine handles the DELETE /api/quarantine/{id} endpoint.
func (ws *WebServer) handleDeleteQuarantine(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := ws.Quarantine.Delete(r.Context(), id); err != nil {
		ws.writeQuarantineError(w, err)
		return
	}
	WriteSuccessResponse(w, "Quarantine item deleted", nil)
}

func (ws *WebServer) writeQuarantineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, quarantine.ErrNotFound):
		WriteErrorResponse(w, "Source file not found", http.StatusNotFound)
	case errors.Is(err, quarantine.ErrNotFoundInQuarantine):
		WriteErrorResponse(w, "Quarantine item not found", http.StatusNotFound)
	case errors.Is(err, quarantine.ErrDestinationOccupied):
		WriteErrorResponse(w, "Restore destination is occupied", http.StatusConflict)
	case errors.Is(err, quarantine.ErrInternalInconsistency):
		ws.Logger.WithError(err).Error("Quarantine inconsistency")
		WriteErrorResponse(w, err.Error(), http.StatusInternalServerError)
	default:
		ws.Logger.WithError(err).Error("Quarantine operation failed")
		WriteErrorResponse(w, "Quarantine operation failed", http.StatusInternalServerError)
	}
}

// handleListNotifications handles the GET /api/notifications endpoint.
func (ws *WebServer) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	WriteSuccessResponse(w, "Notifications retrieved", ws.Notifications.List())
}

// handleClearNotifications handles the DELETE /api/notifications endpoint.
func (ws *WebServer) handleClearNotifications(w http.ResponseWriter, r *http.Request) {
	ws.Notifications.Clear()
	WriteSuccessResponse(w, "Notifications cleared", nil)
}

// handleReplaceSignatures handles the PUT /api/signatures endpoint.
func (ws *WebServer) handleReplaceSignatures(w http.ResponseWriter, r *http.Request) {
	var sigs []models.ThreatSignature
	if err := json.NewDecoder(r.Body).Decode(&sigs); err != nil {
		WriteErrorResponse(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	ws.Signatures.Replace(sigs)

	if ws.Records != nil {
		if err := ws.Records.PutSignatures(r.Context(), sigs); err != nil {
			ws.Logger.WithError(err).Error("Failed to persist signature database")
		}
	}

	WriteSuccessResponse(w, "Signature database replaced", map[string]int{"count": len(sigs)})
}

// handleGetHealth handles the GET /api/health endpoint.
func (ws *WebServer) handleGetHealth(w http.ResponseWriter, r *http.Request) {
	WriteSuccessResponse(w, "System health retrieved", ws.Health.Snapshot())
}
