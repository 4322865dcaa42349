// Package service exposes the state of a tabsync node over HTTP.
package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/mosaicnetworks/tabsync/src/node"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// DefaultJournalLimit is the number of journal entries returned when the
// request does not specify a limit.
const DefaultJournalLimit = 100

// Service ...
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.Node
	mux         *http.ServeMux
	server      *http.Server
	logger      *logrus.Entry
}

// RosterInfo is the election view returned by /roster.
type RosterInfo struct {
	SelfID   *int  `json:"self_id"`
	IsLeader bool  `json:"leader"`
	Roster   []int `json:"roster"`
}

// NewService ...
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers()

	service.server = &http.Server{
		Addr:    bindAddress,
		Handler: service.mux,
	}

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering tabsync API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/state", s.makeHandler(s.GetState))
	s.mux.HandleFunc("/roster", s.makeHandler(s.GetRoster))
	s.mux.HandleFunc("/journal", s.makeHandler(s.GetJournal))
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.node.Registry(), promhttp.HandlerOpts{}))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the handler serving the API, for embedding in another
// server.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving tabsync API")

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		s.logger.Error(err)
	}
}

// Shutdown stops the HTTP server.
func (s *Service) Shutdown() {
	if err := s.server.Shutdown(context.Background()); err != nil {
		s.logger.WithError(err).Error("Shutting down tabsync API")
	}
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.node.GetStats()

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// GetState returns the local snapshot of the shared state.
func (s *Service) GetState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(s.node.Snapshot()); err != nil {
		s.logger.WithError(err).Error("Encoding state")
	}
}

// GetRoster ...
func (s *Service) GetRoster(w http.ResponseWriter, r *http.Request) {
	info := RosterInfo{
		IsLeader: s.node.IsLeader(),
		Roster:   s.node.CurrentRoster(),
	}

	if id, ok := s.node.SelfID(); ok {
		info.SelfID = &id
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(info)
}

// GetJournal returns journal entries. The optional from and limit query
// parameters select the first sequence number and the number of entries.
func (s *Service) GetJournal(w http.ResponseWriter, r *http.Request) {
	from, err := uintParam(r, "from", 0)
	if err != nil {
		s.logger.WithError(err).Errorf("Parsing from parameter %s", r.URL.Query().Get("from"))

		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	limit, err := uintParam(r, "limit", DefaultJournalLimit)
	if err != nil {
		s.logger.WithError(err).Errorf("Parsing limit parameter %s", r.URL.Query().Get("limit"))

		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	entries, err := s.node.Journal().Entries(from, int(limit))
	if err != nil {
		s.logger.WithError(err).Error("Retrieving journal entries")

		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(entries)
}

func uintParam(r *http.Request, name string, def uint64) (uint64, error) {
	param := r.URL.Query().Get(name)
	if param == "" {
		return def, nil
	}
	return strconv.ParseUint(param, 10, 64)
}
