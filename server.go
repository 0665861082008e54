package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/Tutortoise/catascan-service/classification"
	"github.com/Tutortoise/catascan-service/config"
	"github.com/Tutortoise/catascan-service/metrics"
	"github.com/Tutortoise/catascan-service/models"
	"github.com/Tutortoise/catascan-service/store"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
)

// maxMultipartMemory is how much of a multipart body is kept in memory before
// spilling to temporary files.
const maxMultipartMemory = 32 << 20

const healthTimeout = 2 * time.Second

// PredictionStore is the persistence the HTTP handlers need.
type PredictionStore interface {
	SavePrediction(ctx context.Context, rec *models.PredictionRecord) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]models.PredictionRecord, error)
	Get(ctx context.Context, id uint) (*models.PredictionRecord, error)
	Ping(ctx context.Context) error
}

type AppState struct {
	Config     *config.Config
	Classifier *classification.Classifier
	Store      PredictionStore
	Uploads    *UploadStore
	Metrics    *metrics.Metrics
	Pool       *ModelSessionPool
	Logger     *slog.Logger
}

type PredictResponse struct {
	Prediction       string                       `json:"prediction"`
	Explanation      string                       `json:"explanation"`
	ConfidenceScores classification.ConfidenceMap `json:"confidence_scores"`
	PhotoURL         string                       `json:"photoUrl,omitempty"`
	ImagePath        string                       `json:"image_path,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type PredictionListResponse struct {
	UserID      int64                     `json:"user_id"`
	Count       int                       `json:"count"`
	Predictions []models.PredictionRecord `json:"predictions"`
}

type InfoResponse struct {
	Variant    string                `json:"variant"`
	Backend    string                `json:"backend"`
	Labels     []string              `json:"labels"`
	InputShape []int64               `json:"input_shape"`
	Normalize  bool                  `json:"normalize"`
	CPU        map[string]bool       `json:"cpu_features"`
	Host       HostInfo              `json:"host"`
	Pool       *metrics.PoolSnapshot `json:"pool,omitempty"`
	PoolErrors []string              `json:"pool_errors,omitempty"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func newRouter(state *AppState) http.Handler {
	r := mux.NewRouter()
	r.Use(state.withRequestID, state.withRequestMetrics)

	r.HandleFunc("/", state.handleHome).Methods("GET")
	r.Handle("/predict", state.predictHandler()).Methods("POST")
	r.HandleFunc("/users/{user_id}/predictions", state.handleListPredictions).Methods("GET")
	r.HandleFunc("/predictions/{id}", state.handleGetPrediction).Methods("GET")
	r.HandleFunc("/info", state.handleInfo).Methods("GET")
	r.HandleFunc("/health", state.handleHealth).Methods("GET")
	r.Handle("/metrics", state.Metrics.Handler()).Methods("GET")
	r.PathPrefix(state.Uploads.URLPrefix()).Handler(state.Uploads.Handler()).Methods("GET", "HEAD")

	return enableCORS(state.Config.Server.CORSOrigin, r)
}

// predictHandler applies the configured request rate limit to predictions.
func (s *AppState) predictHandler() http.Handler {
	next := http.Handler(http.HandlerFunc(s.handlePredict))
	limit := s.Config.Server.RateLimit
	if limit <= 0 {
		return next
	}
	burst := s.Config.Server.RateBurst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(limit), burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			sendErrorResponse(w, CodeRateLimited, MsgRateLimited, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(origin string, next http.Handler) http.Handler {
	if origin == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *AppState) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *AppState) withRequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.Metrics.ObserveRequest(route, rec.status)
	})
}

func (s *AppState) handleHome(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": MsgAlive})
}

func (s *AppState) handlePredict(w http.ResponseWriter, r *http.Request) {
	startTotal := time.Now()
	ctx := r.Context()
	timings := &models.ProcessingTimings{RequestID: requestIDFrom(ctx)}
	variant := s.Classifier.Variant()
	logger := s.Logger.With("request_id", timings.RequestID)

	r.Body = http.MaxBytesReader(w, r.Body, s.Config.Server.MaxUploadBytes)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendErrorResponse(w, CodePayloadTooLarge, MsgPayloadTooLarge, http.StatusRequestEntityTooLarge)
			return
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			sendErrorResponse(w, CodeMissingFields, variant.MissingFieldsMessage, http.StatusBadRequest)
			return
		}
		sendErrorResponse(w, CodeInvalidRequest, err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["image"]
	_, hasUserID := r.MultipartForm.Value["user_id"]
	if len(files) == 0 || (variant.RequireUserID && !hasUserID) {
		sendErrorResponse(w, CodeMissingFields, variant.MissingFieldsMessage, http.StatusBadRequest)
		return
	}

	uploadStart := time.Now()
	saved, err := s.Uploads.Save(files[0])
	timings.Upload = time.Since(uploadStart)
	if err != nil {
		logger.Error("failed to store upload", "error", err)
		sendErrorResponse(w, CodeUploadError, err.Error(), http.StatusInternalServerError)
		return
	}

	prediction, err := s.Classifier.ClassifyFile(ctx, saved.Path, timings)
	if err != nil {
		s.Metrics.ObserveError(classification.StageOf(err))
		logger.Error("prediction failed", "stage", classification.StageOf(err), "error", err)
		status := statusFor(err)
		if status == http.StatusServiceUnavailable {
			sendErrorResponse(w, CodeUnavailable, MsgBusy, status)
			return
		}
		sendErrorResponse(w, CodeProcessingError, err.Error(), status)
		return
	}

	persistStart := time.Now()
	err = s.persist(ctx, formValue(r.MultipartForm, "user_id"), saved, prediction)
	timings.Persist = time.Since(persistStart)
	if err != nil {
		s.Metrics.ObserveError("persist")
		logger.Error("failed to save prediction", "error", err)
		sendErrorResponse(w, CodePersistError, err.Error(), http.StatusInternalServerError)
		return
	}

	timings.Total = time.Since(startTotal)
	s.Metrics.ObservePrediction(variant.Name, prediction.Label)
	s.Metrics.ObserveTimings(timings)
	s.logTimings(timings)

	response := PredictResponse{
		Prediction:       prediction.Label,
		Explanation:      prediction.Explanation,
		ConfidenceScores: prediction.Confidence,
	}
	if variant.ExposePaths {
		response.PhotoURL = saved.PublicURL
		response.ImagePath = saved.RelativePath
	}
	respondJSON(w, http.StatusOK, response)
}

// persist stores one prediction row. A user id that is not an integer fails
// the insert the same way the database would.
func (s *AppState) persist(ctx context.Context, rawUserID string, saved SavedUpload, p classification.Prediction) error {
	userID, err := store.ParseUserID(rawUserID)
	if err != nil {
		return err
	}
	return s.Store.SavePrediction(ctx, &models.PredictionRecord{
		ImagePath:   saved.RelativePath,
		Prediction:  p.Label,
		Explanation: p.Explanation,
		UserID:      userID,
	})
}

func (s *AppState) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(mux.Vars(r)["user_id"], 10, 64)
	if err != nil {
		sendErrorResponse(w, CodeInvalidRequest, MsgInvalidUserID, http.StatusBadRequest)
		return
	}

	limit := store.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			sendErrorResponse(w, CodeInvalidRequest, "limit harus berupa angka positif", http.StatusBadRequest)
			return
		}
	}

	records, err := s.Store.ListByUser(r.Context(), userID, limit)
	if err != nil {
		s.Logger.Error("failed to list predictions", "user_id", userID, "error", err)
		sendErrorResponse(w, CodeInternal, err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []models.PredictionRecord{}
	}
	respondJSON(w, http.StatusOK, PredictionListResponse{
		UserID:      userID,
		Count:       len(records),
		Predictions: records,
	})
}

func (s *AppState) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		sendErrorResponse(w, CodeInvalidRequest, MsgInvalidID, http.StatusBadRequest)
		return
	}

	rec, err := s.Store.Get(r.Context(), uint(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sendErrorResponse(w, CodeNotFound, MsgNotFound, http.StatusNotFound)
			return
		}
		s.Logger.Error("failed to load prediction", "id", id, "error", err)
		sendErrorResponse(w, CodeInternal, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *AppState) handleInfo(w http.ResponseWriter, _ *http.Request) {
	v := s.Classifier.Variant()
	shape := v.InputShape()
	info := InfoResponse{
		Variant:    v.Name,
		Backend:    s.Config.Model.Backend,
		Labels:     v.Labels,
		InputShape: shape[:],
		Normalize:  s.Classifier.Preprocessor().Rescales(),
		CPU:        cpuFeatures(),
		Host:       hostInfo(s.Logger),
	}
	if s.Pool != nil {
		snap := s.Pool.Snapshot()
		info.Pool = &snap
		for _, err := range s.Pool.LastErrors() {
			info.PoolErrors = append(info.PoolErrors, err.Error())
		}
	}
	respondJSON(w, http.StatusOK, info)
}

// handleHealth reports whether the database answers within healthTimeout.
func (s *AppState) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := s.Store.Ping(ctx); err != nil {
		s.Logger.Warn("database ping failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Database: err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok", Database: "ok"})
}

// formValue returns the first value of key in the multipart body. The URL
// query is not consulted.
func formValue(form *multipart.Form, key string) string {
	if form == nil {
		return ""
	}
	if vs := form.Value[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrAcquireTimeout), errors.Is(err, ErrPoolClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *AppState) logTimings(t *models.ProcessingTimings) {
	s.Logger.Debug("processing times",
		"request_id", t.RequestID,
		"upload", t.Upload,
		"image_decode", t.ImageDecode,
		"resize", t.Resize,
		"preprocess", t.Preprocess,
		"inference", t.Inference,
		"postprocess", t.Postprocess,
		"persist", t.Persist,
		"total", t.Total,
		"cache_hit", t.CacheHit)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendErrorResponse(w http.ResponseWriter, code, message string, status int) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
