// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package http serves the gateway protocol over HTTP.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	gateway "github.com/featurebasedb/sqlgateway"
	gwcontext "github.com/featurebasedb/sqlgateway/context"
	"github.com/featurebasedb/sqlgateway/environment"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/logger"
	"github.com/featurebasedb/sqlgateway/processor"
	"github.com/featurebasedb/sqlgateway/tracing"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	uuid "github.com/satori/go.uuid"
)

// HeaderRequestID carries the request id of a call. The server generates
// one when the client sent none.
const HeaderRequestID = "X-Request-ID"

// Handler represents an HTTP handler.
type Handler struct {
	Handler http.Handler

	executor gateway.Executor
	logger   logger.Logger

	ln net.Listener

	// Requests slower than this are logged.
	longRequestTime time.Duration
	closeTimeout    time.Duration

	server *http.Server
}

// handlerOption is a functional option type for Handler.
type handlerOption func(h *Handler) error

func OptHandlerAllowedOrigins(origins []string) handlerOption {
	return func(h *Handler) error {
		h.Handler = handlers.CORS(
			handlers.AllowedOrigins(origins),
			handlers.AllowedHeaders([]string{"Content-Type", HeaderRequestID}),
			handlers.AllowedMethods([]string{"GET", "POST", "DELETE"}),
		)(h.Handler)
		return nil
	}
}

func OptHandlerExecutor(e gateway.Executor) handlerOption {
	return func(h *Handler) error {
		h.executor = e
		return nil
	}
}

func OptHandlerLogger(logger logger.Logger) handlerOption {
	return func(h *Handler) error {
		h.logger = logger
		return nil
	}
}

func OptHandlerListener(ln net.Listener) handlerOption {
	return func(h *Handler) error {
		h.ln = ln
		return nil
	}
}

// OptHandlerLongRequestTime sets the duration above which a request is
// logged. Zero disables the log.
func OptHandlerLongRequestTime(d time.Duration) handlerOption {
	return func(h *Handler) error {
		h.longRequestTime = d
		return nil
	}
}

// OptHandlerCloseTimeout controls how long to wait for the http Server to
// shutdown cleanly before forcibly destroying it. Default is 30 seconds.
func OptHandlerCloseTimeout(d time.Duration) handlerOption {
	return func(h *Handler) error {
		h.closeTimeout = d
		return nil
	}
}

// NewHandler returns a new instance of Handler with a default logger.
func NewHandler(opts ...handlerOption) (*Handler, error) {
	handler := &Handler{
		logger:       logger.NopLogger,
		closeTimeout: time.Second * 30,
	}
	handler.Handler = newRouter(handler)

	for _, opt := range opts {
		err := opt(handler)
		if err != nil {
			return nil, errors.Wrap(err, "applying option")
		}
	}

	if handler.executor == nil {
		return nil, errors.New(errors.ErrUncoded, "must pass OptHandlerExecutor")
	}

	handler.server = &http.Server{Handler: handler}

	return handler, nil
}

// Serve serves on the listener given with OptHandlerListener until Close
// is called.
func (h *Handler) Serve() error {
	if h.ln == nil {
		return errors.New(errors.ErrUncoded, "must pass OptHandlerListener")
	}
	err := h.server.Serve(h.ln)
	if err != nil && err != http.ErrServerClosed {
		h.logger.Errorf("HTTP handler terminated with error: %s", err)
		return errors.Wrap(err, "serve http")
	}
	return nil
}

// Close tries to cleanly shutdown the HTTP server, and failing that, after a
// timeout, calls Server.Close.
func (h *Handler) Close() error {
	deadlineCtx, cancelFunc := context.WithDeadline(context.Background(), time.Now().Add(h.closeTimeout))
	defer cancelFunc()
	err := h.server.Shutdown(deadlineCtx)
	if err != nil {
		err = h.server.Close()
	}
	return errors.Wrap(err, "shutdown/close http server")
}

// newRouter creates a new mux http router.
func newRouter(handler *Handler) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", handler.handleGetHealth).Methods("GET").Name("GetHealth")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET").Name("GetMetrics")

	router.HandleFunc("/session", handler.handlePostSession).Methods("POST").Name("PostSession")
	router.HandleFunc("/session/{session}", handler.handleDeleteSession).Methods("DELETE").Name("DeleteSession")
	router.HandleFunc("/session/{session}/properties", handler.handleGetProperties).Methods("GET").Name("GetProperties")
	router.HandleFunc("/session/{session}/properties", handler.handlePostProperty).Methods("POST").Name("PostProperty")
	router.HandleFunc("/session/{session}/properties", handler.handleDeleteProperties).Methods("DELETE").Name("DeleteProperties")
	router.HandleFunc("/session/{session}/properties/{key}", handler.handleDeleteProperty).Methods("DELETE").Name("DeleteProperty")
	router.HandleFunc("/session/{session}/statement", handler.handlePostStatement).Methods("POST").Name("PostStatement")
	router.HandleFunc("/session/{session}/query", handler.handlePostQuery).Methods("POST").Name("PostQuery")
	router.HandleFunc("/session/{session}/update", handler.handlePostUpdate).Methods("POST").Name("PostUpdate")
	router.HandleFunc("/session/{session}/result/{result}", handler.handleDeleteResult).Methods("DELETE").Name("DeleteResult")
	router.HandleFunc("/session/{session}/result/{result}/snapshot", handler.handlePostSnapshot).Methods("POST").Name("PostSnapshot")
	router.HandleFunc("/session/{session}/result/{result}/page/{page}", handler.handleGetPage).Methods("GET").Name("GetPage")
	router.HandleFunc("/session/{session}/result/{result}/changes", handler.handleGetChanges).Methods("GET").Name("GetChanges")
	router.HandleFunc("/session/{session}/job/{job}", handler.handleGetJob).Methods("GET").Name("GetJob")
	router.HandleFunc("/session/{session}/job/{job}", handler.handleDeleteJob).Methods("DELETE").Name("DeleteJob")
	router.HandleFunc("/session/{session}/modules", handler.handleGetModules).Methods("GET").Name("GetModules")
	router.HandleFunc("/session/{session}/complete", handler.handlePostComplete).Methods("POST").Name("PostComplete")

	router.Use(handler.addRequestContext)
	router.Use(handler.extractTracing)
	router.Use(handler.collectStats)
	return router
}

// ServeHTTP handles an HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if err := recover(); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			stack := debug.Stack()
			msg := "PANIC: %s\n%s"
			h.logger.Printf(msg, err, stack)
			fmt.Fprintf(w, msg, err, stack)
		}
	}()

	h.Handler.ServeHTTP(w, r)
}

// addRequestContext puts the request id, and the session id of session
// routes, on the request context.
func (h *Handler) addRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			if u, err := uuid.NewV4(); err == nil {
				id = u.String()
			}
		}
		w.Header().Set(HeaderRequestID, id)
		ctx := gwcontext.WithRequestID(r.Context(), id)
		if session, ok := mux.Vars(r)["session"]; ok {
			ctx = gwcontext.WithSessionID(ctx, session)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) extractTracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		span, ctx := tracing.GlobalTracer.ExtractHTTPHeaders(r)
		defer span.Finish()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) collectStats(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := time.Now()
		next.ServeHTTP(w, r)
		dur := time.Since(t)

		slow := "false"
		if h.longRequestTime > 0 && dur > h.longRequestTime {
			requestID, _ := gwcontext.RequestID(r.Context())
			h.logger.Printf("%s %s %v request=%s", r.Method, r.URL.String(), dur, requestID)
			slow = "true"
		}

		path, err := mux.CurrentRoute(r).GetPathTemplate()
		if err != nil {
			path = "unknown"
		}
		gateway.HistogramHTTPRequest.WithLabelValues(path, r.Method, slow).Observe(dur.Seconds())
	})
}

// statusCode maps the codes of an error chain to an HTTP status.
func statusCode(err error) int {
	switch {
	case errors.Is(err, gateway.ErrSessionNotFound),
		errors.Is(err, gateway.ErrResultNotFound),
		errors.Is(err, processor.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, gateway.ErrDuplicateSession):
		return http.StatusConflict
	case errors.Is(err, gateway.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, gateway.ErrExecutionFailure),
		errors.Is(err, gateway.ErrExecutionContextBuild),
		errors.Is(err, gateway.ErrCatalog),
		errors.Is(err, gateway.ErrInvalidPage),
		errors.Is(err, gateway.ErrSQLParse),
		errors.Is(err, gateway.ErrUnsupported),
		errors.Is(err, environment.ErrInvalidEnvironment),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

const errBadRequest errors.Code = "BadRequest"

// writeError writes err as a JSON coded error, which the client turns back
// into an error matching the same codes.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		requestID, _ := gwcontext.RequestID(r.Context())
		h.logger.Errorf("%s %s request=%s: %v", r.Method, r.URL.Path, requestID, err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintln(w, errors.MarshalJSON(err))
}

func (h *Handler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Printf("error writing response: %v", err)
	}
}

func decode(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrapc(err, errBadRequest, "decoding request body")
	}
	return nil
}

// GET /health
func (h *Handler) handleGetHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// POST /session
func (h *Handler) handlePostSession(w http.ResponseWriter, r *http.Request) {
	req := OpenSessionRequest{}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.ID == "" {
		h.writeError(w, r, errors.New(errBadRequest, "session id is required"))
		return
	}
	id, err := h.executor.OpenSession(gwcontext.WithSessionID(r.Context(), req.ID), req.ID, req.Environment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, OpenSessionResponse{ID: id})
}

// DELETE /session/{session}
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.executor.CloseSession(r.Context(), mux.Vars(r)["session"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GET /session/{session}/properties
func (h *Handler) handleGetProperties(w http.ResponseWriter, r *http.Request) {
	props, err := h.executor.GetSessionProperties(r.Context(), mux.Vars(r)["session"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, props)
}

// POST /session/{session}/properties
func (h *Handler) handlePostProperty(w http.ResponseWriter, r *http.Request) {
	req := SetPropertyRequest{}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.executor.SetSessionProperty(r.Context(), mux.Vars(r)["session"], req.Key, req.Value); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// DELETE /session/{session}/properties
func (h *Handler) handleDeleteProperties(w http.ResponseWriter, r *http.Request) {
	if err := h.executor.ResetSessionProperties(r.Context(), mux.Vars(r)["session"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// DELETE /session/{session}/properties/{key}
func (h *Handler) handleDeleteProperty(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.executor.ResetSessionProperty(r.Context(), vars["session"], vars["key"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// POST /session/{session}/statement
func (h *Handler) handlePostStatement(w http.ResponseWriter, r *http.Request) {
	req := StatementRequest{}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.executor.ExecuteSQL(r.Context(), mux.Vars(r)["session"], req.SQL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, res)
}

// POST /session/{session}/query
func (h *Handler) handlePostQuery(w http.ResponseWriter, r *http.Request) {
	req := StatementRequest{}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	desc, err := h.executor.ExecuteQuery(r.Context(), mux.Vars(r)["session"], req.SQL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, desc)
}

// POST /session/{session}/update
func (h *Handler) handlePostUpdate(w http.ResponseWriter, r *http.Request) {
	req := StatementRequest{}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	target, err := h.executor.ExecuteUpdate(r.Context(), mux.Vars(r)["session"], req.SQL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, target)
}

// DELETE /session/{session}/result/{result}
func (h *Handler) handleDeleteResult(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.executor.CancelQuery(r.Context(), vars["session"], vars["result"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// POST /session/{session}/result/{result}/snapshot
func (h *Handler) handlePostSnapshot(w http.ResponseWriter, r *http.Request) {
	req := SnapshotRequest{}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	snap, err := h.executor.SnapshotResult(r.Context(), vars["session"], vars["result"], req.PageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, snap)
}

// GET /session/{session}/result/{result}/page/{page}
func (h *Handler) handleGetPage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	page, err := strconv.Atoi(vars["page"])
	if err != nil {
		h.writeError(w, r, errors.Wrapc(err, gateway.ErrInvalidPage, "parsing page"))
		return
	}
	rows, err := h.executor.RetrieveResultPage(r.Context(), vars["session"], vars["result"], page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, PageResponse{Rows: rows})
}

// GET /session/{session}/result/{result}/changes
func (h *Handler) handleGetChanges(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	changes, err := h.executor.RetrieveResultChanges(r.Context(), vars["session"], vars["result"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, changes)
}

// GET /session/{session}/job/{job}
func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	info, err := h.executor.JobStatus(r.Context(), vars["session"], processor.JobID(vars["job"]))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, info)
}

// DELETE /session/{session}/job/{job}
func (h *Handler) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.executor.CancelJob(r.Context(), vars["session"], processor.JobID(vars["job"])); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GET /session/{session}/modules
func (h *Handler) handleGetModules(w http.ResponseWriter, r *http.Request) {
	mods, err := h.executor.ListModules(r.Context(), mux.Vars(r)["session"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, ModulesResponse{Modules: mods})
}

// POST /session/{session}/complete
func (h *Handler) handlePostComplete(w http.ResponseWriter, r *http.Request) {
	req := CompleteRequest{}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	hints, err := h.executor.CompleteStatement(r.Context(), mux.Vars(r)["session"], req.Text, req.Cursor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, CompleteResponse{Candidates: hints})
}
