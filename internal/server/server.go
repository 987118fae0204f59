package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/raysh454/lotsync/internal/app"
	"github.com/raysh454/lotsync/internal/images"
	"github.com/raysh454/lotsync/internal/logging"
	"github.com/raysh454/lotsync/internal/model"
	"github.com/raysh454/lotsync/internal/registry"
	_ "github.com/raysh454/lotsync/internal/server/docs" // swagger spec
	"github.com/raysh454/lotsync/internal/store"
)

// Server is the HTTP + WebSocket API surface for lotsync.
type Server struct {
	cfg          Config
	app          *app.Application
	ownsApp      bool
	orchestrator *app.Orchestrator
	router       chi.Router
	upgrader     websocket.Upgrader
	logger       logging.Logger
}

// NewServer creates a Server with its own Application.
func NewServer(cfg Config) (*Server, error) {
	if cfg.AppConfig == nil {
		cfg.AppConfig = app.DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("server")
	}

	a, err := app.NewApplication(context.Background(), cfg.AppConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("creating application: %w", err)
	}
	s := New(a, cfg)
	s.ownsApp = true
	return s, nil
}

// New creates a Server over an existing Application. The caller keeps
// ownership of a.
func New(a *app.Application, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = a.Logger
	}
	if cfg.ListenAddr == "" && a.Config != nil {
		cfg.ListenAddr = a.Config.ListenAddr
	}

	s := &Server{
		cfg:          cfg,
		app:          a,
		orchestrator: a.Orch,
		router:       chi.NewRouter(),
		logger:       logger.With(logging.Field{Key: "component", Value: "server"}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: restrict to configured dashboard origins once the UI ships
				return true
			},
		},
	}
	s.routes()
	return s
}

// Orchestrator returns the underlying orchestrator for advanced use (tests, etc.).
func (s *Server) Orchestrator() *app.Orchestrator {
	return s.orchestrator
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/dealerships", s.optionsHandler("GET"))
	r.Options("/dealerships/{dealer}/jobs/reconcile", s.optionsHandler("POST"))
	r.Options("/dealerships/{dealer}/jobs/enrich", s.optionsHandler("POST"))
	r.Options("/vehicles/{vehicleID}/views", s.optionsHandler("POST"))
	r.Options("/vehicles/{vehicleID}/conversations", s.optionsHandler("POST"))
	r.Options("/jobs", s.optionsHandler("GET"))
	r.Options("/jobs/{jobID}", s.optionsHandler("GET, DELETE"))

	// Dealerships
	r.Get("/dealerships", s.handleListDealerships)
	r.Get("/dealerships/{dealer}/vehicles", s.handleListVehicles)
	r.Get("/dealerships/{dealer}/checkpoint", s.handleGetCheckpoint)
	r.Get("/dealerships/{dealer}/runs", s.handleListRuns)

	// Vehicles
	r.Get("/vehicles/{vehicleID}", s.handleGetVehicle)
	r.Post("/vehicles/{vehicleID}/views", s.handleRecordView)
	r.Post("/vehicles/{vehicleID}/conversations", s.handleOpenConversation)

	// Jobs over REST
	r.Post("/dealerships/{dealer}/jobs/reconcile", s.handleStartReconcileJob)
	r.Post("/dealerships/{dealer}/jobs/enrich", s.handleStartEnrichJob)
	r.Get("/jobs", s.handleListJobs)
	r.Get("/jobs/{jobID}", s.handleGetJob)
	r.Delete("/jobs/{jobID}", s.handleCancelJob)

	// WebSockets for job progress
	r.Get("/ws/dealerships/{dealer}/reconcile", s.handleReconcileWS)
	r.Get("/ws/jobs/{jobID}", s.handleJobWS)

	// Hosted images
	r.Get("/images/{prefix}/{blobID}", s.handleGetImage)

	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}

	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			fields = append(fields, logging.Field{Key: "body", Value: string(bodyBytes)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// Close cancels running jobs and, when the server built its Application,
// releases it.
func (s *Server) Close() {
	if s.ownsApp {
		_ = s.app.Shutdown(context.Background())
		return
	}
	if s.orchestrator != nil {
		s.orchestrator.Close()
	}
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrUnknownDealership),
		errors.Is(err, registry.ErrDealershipNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, images.ErrBlobNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrOrchestratorClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// dealership resolves the {dealer} parameter against the registry.
func (s *Server) dealership(r *http.Request) (string, error) {
	id := registry.NormalizeID(chi.URLParam(r, "dealer"))
	d, err := s.app.Registry.GetDealership(r.Context(), id)
	if err != nil {
		return "", err
	}
	return d.ID, nil
}

// --- HTTP handlers ---

// Dealerships

// handleListDealerships godoc
// @Summary List dealerships
// @Tags dealerships
// @Produce json
// @Success 200 {array} model.Dealership
// @Failure 500 {object} ErrorResponse
// @Router /dealerships [get]
func (s *Server) handleListDealerships(w http.ResponseWriter, r *http.Request) {
	ds, err := s.orchestrator.Dealerships(r.Context())
	if err != nil {
		s.logger.Warn("listing dealerships", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

// handleListVehicles godoc
// @Summary List a dealership's canonical inventory
// @Tags dealerships
// @Produce json
// @Param dealer path string true "Dealership id"
// @Param vin query string false "Only the vehicle with this VIN"
// @Param url query string false "Only the vehicle with this detail page URL"
// @Param year query int false "With make and model, only matching vehicles"
// @Param make query string false "Make filter"
// @Param model query string false "Model filter"
// @Success 200 {object} VehicleListResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /dealerships/{dealer}/vehicles [get]
func (s *Server) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	id, err := s.dealership(r)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	vs, err := findVehicles(r.Context(), s.app.Store, id, r.URL.Query())
	if errors.Is(err, errBadFilter) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Warn("listing vehicles", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, VehicleListResponse{DealershipID: id, Count: len(vs), Vehicles: vs})
}

var errBadFilter = errors.New("bad vehicle filter")

// findVehicles applies the optional vin, url or year/make/model filter. A
// filter that matches nothing yields an empty list.
func findVehicles(ctx context.Context, lk vehicleFinder, id string, q url.Values) ([]model.VehicleRecord, error) {
	one := func(v *model.VehicleRecord, err error) ([]model.VehicleRecord, error) {
		if errors.Is(err, store.ErrNotFound) {
			return []model.VehicleRecord{}, nil
		}
		if err != nil {
			return nil, err
		}
		return []model.VehicleRecord{*v}, nil
	}
	switch {
	case q.Get("vin") != "":
		return one(lk.FindByVIN(ctx, id, q.Get("vin")))
	case q.Get("url") != "":
		return one(lk.FindByURL(ctx, id, q.Get("url")))
	case q.Has("year") || q.Has("make") || q.Has("model"):
		year, err := strconv.Atoi(q.Get("year"))
		if err != nil || q.Get("make") == "" || q.Get("model") == "" {
			return nil, fmt.Errorf("%w: year, make and model go together", errBadFilter)
		}
		return lk.FindByYearMakeModel(ctx, id, year, q.Get("make"), q.Get("model"))
	default:
		return lk.ListByDealership(ctx, id)
	}
}

type vehicleFinder interface {
	store.VehicleLookup
	ListByDealership(ctx context.Context, dealershipID string) ([]model.VehicleRecord, error)
}

// handleGetCheckpoint godoc
// @Summary Show the in-flight pass checkpoint
// @Tags dealerships
// @Produce json
// @Param dealer path string true "Dealership id"
// @Success 200 {object} CheckpointResponse
// @Failure 404 {object} ErrorResponse
// @Router /dealerships/{dealer}/checkpoint [get]
func (s *Server) handleGetCheckpoint(w http.ResponseWriter, r *http.Request) {
	id, err := s.dealership(r)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	cp, err := s.app.Store.LoadCheckpoint(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, CheckpointResponse{DealershipID: id, Checkpoint: cp})
}

// handleListRuns godoc
// @Summary List recent passes
// @Tags dealerships
// @Produce json
// @Param dealer path string true "Dealership id"
// @Param limit query int false "Max runs (default 50)"
// @Success 200 {array} model.RunRecord
// @Failure 404 {object} ErrorResponse
// @Router /dealerships/{dealer}/runs [get]
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	id, err := s.dealership(r)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	limit := 0
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if v, err := strconv.Atoi(ls); err == nil && v > 0 {
			limit = v
		}
	}
	runs, err := s.app.Store.ListRuns(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// Vehicles

// handleGetVehicle godoc
// @Summary Get one vehicle
// @Tags vehicles
// @Produce json
// @Param vehicleID path string true "Vehicle id"
// @Success 200 {object} model.VehicleRecord
// @Failure 404 {object} ErrorResponse
// @Router /vehicles/{vehicleID} [get]
func (s *Server) handleGetVehicle(w http.ResponseWriter, r *http.Request) {
	v, err := s.app.Store.Get(r.Context(), chi.URLParam(r, "vehicleID"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleRecordView godoc
// @Summary Record a shopper view
// @Tags vehicles
// @Accept json
// @Param vehicleID path string true "Vehicle id"
// @Param body body RecordViewRequest false "View source"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /vehicles/{vehicleID}/views [post]
func (s *Server) handleRecordView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "vehicleID")
	var body RecordViewRequest
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Source == "" {
		body.Source = "api"
	}
	if _, err := s.app.Store.Get(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if err := s.app.Store.RecordView(r.Context(), id, body.Source); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleOpenConversation godoc
// @Summary Open a conversation about a vehicle
// @Tags vehicles
// @Accept json
// @Produce json
// @Param vehicleID path string true "Vehicle id"
// @Param body body OpenConversationRequest true "Customer"
// @Success 201 {object} ConversationResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /vehicles/{vehicleID}/conversations [post]
func (s *Server) handleOpenConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "vehicleID")
	var body OpenConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Customer == "" {
		writeError(w, http.StatusBadRequest, "customer is required")
		return
	}
	if _, err := s.app.Store.Get(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	convID, err := s.app.Store.OpenConversation(r.Context(), id, body.Customer)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, ConversationResponse{ID: convID})
}

// Jobs (REST)

// handleStartReconcileJob godoc
// @Summary Start a reconcile pass (resumes an interrupted one)
// @Tags jobs
// @Produce json
// @Param dealer path string true "Dealership id"
// @Success 202 {object} app.Job
// @Failure 404 {object} ErrorResponse
// @Router /dealerships/{dealer}/jobs/reconcile [post]
func (s *Server) handleStartReconcileJob(w http.ResponseWriter, r *http.Request) {
	dealer := chi.URLParam(r, "dealer")
	job, err := s.orchestrator.StartReconcileJob(r.Context(), dealer)
	if err != nil {
		s.logger.Warn("starting reconcile job", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.logger.Info("started reconcile job", logging.Field{Key: "job_id", Value: job.ID}, logging.Field{Key: "dealership_id", Value: job.DealershipID})
	writeJSON(w, http.StatusAccepted, s.orchestrator.GetJob(job.ID))
}

// handleStartEnrichJob godoc
// @Summary Start cross-source enrichment
// @Tags jobs
// @Produce json
// @Param dealer path string true "Dealership id"
// @Success 202 {object} app.Job
// @Failure 404 {object} ErrorResponse
// @Router /dealerships/{dealer}/jobs/enrich [post]
func (s *Server) handleStartEnrichJob(w http.ResponseWriter, r *http.Request) {
	dealer := chi.URLParam(r, "dealer")
	job, err := s.orchestrator.StartEnrichJob(r.Context(), dealer)
	if err != nil {
		s.logger.Warn("starting enrich job", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.logger.Info("started enrich job", logging.Field{Key: "job_id", Value: job.ID})
	writeJSON(w, http.StatusAccepted, s.orchestrator.GetJob(job.ID))
}

// handleGetJob godoc
// @Summary Get a job
// @Tags jobs
// @Produce json
// @Param jobID path string true "Job id"
// @Success 200 {object} app.Job
// @Failure 404 {object} ErrorResponse
// @Router /jobs/{jobID} [get]
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		s.logger.Warn("getting job: not found", logging.Field{Key: "job_id", Value: jobID})
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleCancelJob godoc
// @Summary Cancel a job
// @Tags jobs
// @Param jobID path string true "Job id"
// @Success 204
// @Router /jobs/{jobID} [delete]
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	s.orchestrator.CancelJob(jobID)
	s.logger.Info("canceled job", logging.Field{Key: "job_id", Value: jobID})
	writeJSON(w, http.StatusNoContent, nil)
}

// handleListJobs godoc
// @Summary List retained jobs
// @Tags jobs
// @Produce json
// @Success 200 {array} app.Job
// @Router /jobs [get]
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.orchestrator.ListJobs()
	writeJSON(w, http.StatusOK, jobs)
}

// Images

// handleGetImage godoc
// @Summary Serve a hosted vehicle image
// @Tags images
// @Produce image/jpeg,image/png,image/webp
// @Param prefix path string true "First two hash characters"
// @Param blobID path string true "sha256 of the image"
// @Success 200
// @Failure 404 {object} ErrorResponse
// @Router /images/{prefix}/{blobID} [get]
func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	prefix := chi.URLParam(r, "prefix")
	id := chi.URLParam(r, "blobID")
	if len(id) < 2 || id[:2] != prefix {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	data, err := s.app.Blobs.Get(id)
	if err != nil {
		if !errors.Is(err, images.ErrBlobNotFound) {
			s.logger.Warn("reading image", logging.Field{Key: "blob_id", Value: id}, logging.Field{Key: "error", Value: err.Error()})
		}
		writeError(w, statusFor(err), "image not found")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// WebSockets

// streamJob forwards job events until the job ends or the client leaves.
func (s *Server) streamJob(conn *websocket.Conn, job *app.Job, events <-chan app.JobEvent) {
	_ = conn.WriteJSON(job)
	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			// Assume client disconnected; cancel job
			s.orchestrator.CancelJob(job.ID)
			return
		}
	}
}

func (s *Server) handleReconcileWS(w http.ResponseWriter, r *http.Request) {
	dealer := chi.URLParam(r, "dealer")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	job, err := s.orchestrator.StartReconcileJob(r.Context(), dealer)
	if err != nil {
		s.logger.Warn("starting reconcile job", logging.Field{Key: "error", Value: err.Error()})
		_ = conn.WriteJSON(ErrorResponse{Error: err.Error()})
		return
	}
	s.logger.Info("started reconcile job", logging.Field{Key: "job_id", Value: job.ID})
	s.streamJob(conn, s.orchestrator.GetJob(job.ID), job.Events)
}

func (s *Server) handleJobWS(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	events, ok := s.orchestrator.SubscribeJobEvents(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found or finished")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()
	s.streamJob(conn, s.orchestrator.GetJob(jobID), events)
}
