// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The kocomstat Authors

// Package api serves the latest wallpad readings over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kocomstat/kocomstat/pkg/kocom"
	"github.com/kocomstat/kocomstat/pkg/sensor"
)

// Source provides the readings served by the API. *sensor.Poller implements it.
type Source interface {
	Latest() *kocom.Snapshot
	LastError() error
	LastPoll() time.Time
	Interval() time.Duration
	Stats() kocom.Statistics
	History() *sensor.History
	Refresh(ctx context.Context) (*kocom.Snapshot, error)
}

// Server is the HTTP API server.
type Server struct {
	source    Source
	addr      string
	router    *mux.Router
	logger    logrus.FieldLogger
	startTime time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates an API server for source listening on addr.
func NewServer(source Source, addr string, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger().WithField("component", "api")
	}
	s := &Server{
		source:    source,
		addr:      addr,
		router:    mux.NewRouter(),
		logger:    logger,
		startTime: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/usage", s.handleUsage).Methods(http.MethodGet)
	api.HandleFunc("/sensors", s.handleListSensors).Methods(http.MethodGet)
	api.HandleFunc("/sensors/{key}", s.handleGetSensor).Methods(http.MethodGet)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.addr)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	go func() {
		s.logger.WithField("addr", ln.Addr().String()).Info("Starting HTTP API server")
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server error")
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP API server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "HTTP server shutdown")
		}
	}
	return nil
}

type statusResponse struct {
	Status     string      `json:"status"`
	Uptime     string      `json:"uptime"`
	Interval   string      `json:"interval"`
	LastPoll   *time.Time  `json:"last_poll,omitempty"`
	LastError  string      `json:"last_error,omitempty"`
	HasReading bool        `json:"has_reading"`
	Stats      statsObject `json:"stats"`
}

type statsObject struct {
	TotalPolls       uint64            `json:"total_polls"`
	SuccessfulPolls  uint64            `json:"successful_polls"`
	DegradedPolls    uint64            `json:"degraded_polls"`
	FailedPolls      uint64            `json:"failed_polls"`
	ConnectionErrors uint64            `json:"connection_errors"`
	Timeouts         map[string]uint64 `json:"timeouts"`
	AuthRejections   uint64            `json:"auth_rejections"`
	MalformedReplies uint64            `json:"malformed_responses"`
	MalformedFields  uint64            `json:"malformed_fields"`
	StaleDuplicates  uint64            `json:"stale_duplicates"`
	InvalidValues    uint64            `json:"invalid_values"`
	PollRate         float64           `json:"polls_per_hour"`
	ErrorRate        float64           `json:"errors_per_hour"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.source.Stats()
	timeouts := make(map[string]uint64, len(st.TimeoutsByStep))
	for step, n := range st.TimeoutsByStep {
		timeouts[step.String()] = n
	}

	resp := statusResponse{
		Status:     "ok",
		Uptime:     time.Since(s.startTime).Truncate(time.Second).String(),
		Interval:   s.source.Interval().String(),
		HasReading: s.source.Latest() != nil,
		Stats: statsObject{
			TotalPolls:       st.TotalPolls,
			SuccessfulPolls:  st.SuccessfulPolls,
			DegradedPolls:    st.DegradedPolls,
			FailedPolls:      st.FailedPolls(),
			ConnectionErrors: st.ConnectionErrors,
			Timeouts:         timeouts,
			AuthRejections:   st.AuthRejections,
			MalformedReplies: st.MalformedReplies,
			MalformedFields:  st.MalformedFields,
			StaleDuplicates:  st.StaleDuplicates,
			InvalidValues:    st.InvalidValues,
			PollRate:         st.PollRate,
			ErrorRate:        st.ErrorRate,
		},
	}
	if lp := s.source.LastPoll(); !lp.IsZero() {
		resp.LastPoll = &lp
	}
	if err := s.source.LastError(); err != nil {
		resp.Status = "degraded"
		resp.LastError = kocom.FormatError(err)
	}
	s.writeJSON(w, resp, http.StatusOK)
}

// usageMap is the flat snapshot mapping plus its fetch time.
func usageMap(snap *kocom.Snapshot) map[string]interface{} {
	m := snap.Map()
	m["updated_at"] = snap.FetchedAt.Format(time.RFC3339)
	return m
}

func (s *Server) handleUsage(w http.ResponseWriter, _ *http.Request) {
	snap := s.source.Latest()
	if snap == nil {
		s.writeError(w, "No reading available yet", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, usageMap(snap), http.StatusOK)
}

type sensorResponse struct {
	Key        string                 `json:"key"`
	Name       string                 `json:"name"`
	Icon       string                 `json:"icon"`
	State      interface{}            `json:"state"`
	Label      string                 `json:"label,omitempty"`
	Suppressed bool                   `json:"suppressed"`
	UpdatedAt  *time.Time             `json:"updated_at,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

func (s *Server) sensors() []sensorResponse {
	snap := s.source.Latest()
	out := make([]sensorResponse, 0, len(sensor.Descriptors))
	for _, d := range sensor.Descriptors {
		r := sensorResponse{Key: d.Key, Name: d.Name, Icon: d.Icon, State: "unknown"}
		if d.Summary {
			if snap != nil {
				at := snap.FetchedAt
				r.State = at.Format("2006-01-02 15:04:05")
				r.UpdatedAt = &at
				r.Attributes = snap.Map()
			}
		} else if st, ok := s.source.History().State(d.Category); ok && st.Known {
			at := st.UpdatedAt
			r.State = st.Value
			r.Label = st.Label
			r.Suppressed = st.Suppressed
			r.UpdatedAt = &at
		}
		out = append(out, r)
	}
	return out
}

func (s *Server) handleListSensors(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"sensors": s.sensors(),
	}, http.StatusOK)
}

func (s *Server) handleGetSensor(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	for _, sr := range s.sensors() {
		if sr.Key == key {
			s.writeJSON(w, sr, http.StatusOK)
			return
		}
	}
	s.writeError(w, "Sensor not found", http.StatusNotFound)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.source.Refresh(r.Context())
	if err != nil {
		s.writeError(w, kocom.FormatError(err), http.StatusBadGateway)
		return
	}
	s.writeJSON(w, usageMap(snap), http.StatusOK)
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, map[string]string{"error": message}, statusCode)
}
