// Package httpapi exposes the bridge's buffered history and pending
// downlink queues over HTTP, per spec.md §6: this surface is listed
// there as an external collaborator only "for completeness", but the
// ambient-stack rule still asks us to build it, since nothing else in
// this repo lets an operator see what the event loops are doing.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ifroglab/lora-gateway-bridge/pkg/broker"
	"github.com/ifroglab/lora-gateway-bridge/pkg/state"
)

// Role distinguishes which routes a Server registers: only the network
// bridge exposes the queue/{network_addr} endpoint. The downlink-injection
// POST is routed for both roles and answers 501 when the Server has no
// Sender.
type Role int

const (
	RoleNetwork Role = iota
	RoleApplication
)

// Sender is the outbound surface the POST /dldata handler needs to hand
// a freshly injected downlink to the broker, mirroring
// broker.ApplicationMgr.SendDLData.
type Sender interface {
	SendDLData(broker.DlData) error
}

// Server wires pkg/state's history/queue into an http.ServeMux. No
// router library appears anywhere in the retrieved example corpus, so
// this is the one component in the module built directly on net/http +
// encoding/json rather than a third-party library — see DESIGN.md.
type Server struct {
	state  *state.State
	sender Sender
	role   Role
	log    *logrus.Entry

	upgrader websocket.Upgrader
}

// New builds a Server. sender may be nil for RoleNetwork, which never
// injects downlinks of its own.
func New(st *state.State, sender Sender, role Role, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.WithField("component", "httpapi")
	}
	return &Server{
		state:  st,
		sender: sender,
		role:   role,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler builds the mux for this Server's role.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/data/uldata", s.handleUlData)
	mux.HandleFunc("/api/v1/data/dldata", s.handleDlData)
	mux.HandleFunc("/api/v1/ws/uldata", s.handleWSUlData)
	if s.role == RoleNetwork {
		mux.HandleFunc("/api/v1/data/queue/", s.handleQueue)
	}
	return mux
}

type ulDataResponse struct {
	Data []broker.UlData `json:"data"`
}

type dlDataResponse struct {
	Data []broker.DlData `json:"data"`
}

func (s *Server) handleUlData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, ulDataResponse{Data: s.state.Uplinks.Snapshot()})
}

func (s *Server) handleDlData(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, dlDataResponse{Data: s.state.Downlinks.Snapshot()})
	case http.MethodPost:
		s.handlePostDlData(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type postDlDataReq struct {
	NetworkAddr string `json:"network_addr"`
	Data        string `json:"data"`
}

type postDlDataRes struct {
	DataID        string `json:"data_id"`
	CorrelationID string `json:"correlation_id"`
}

// handlePostDlData is a supplemented application-bridge-style downlink
// injection endpoint, per spec.md §6: it generates a server-side
// data_id and a correlation_id (a timestamped id with a random 4-char
// suffix, via uuid.NewString()), then hands the record to Sender.
func (s *Server) handlePostDlData(w http.ResponseWriter, r *http.Request) {
	if s.sender == nil {
		http.Error(w, "downlink injection not available on this bridge", http.StatusNotImplemented)
		return
	}
	var req postDlDataReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	dataID := now.Format("20060102150405") + "-" + uuid.NewString()[:4]
	corrID := dataID

	dl := broker.DlData{
		DataID:        dataID,
		CorrelationID: corrID,
		CreatedAt:     now,
		NetworkAddr:   req.NetworkAddr,
		Data:          strings.ToLower(req.Data),
	}
	if err := s.sender.SendDLData(dl); err != nil {
		s.log.WithError(err).Warn("send_dldata failed")
		http.Error(w, "failed to queue downlink", http.StatusInternalServerError)
		return
	}
	writeJSON(w, postDlDataRes{DataID: dataID, CorrelationID: corrID})
}

type queueResponse struct {
	Data []broker.DlData `json:"data"`
}

// handleQueue serves GET /api/v1/data/queue/{network_addr}.
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	addr := strings.TrimPrefix(r.URL.Path, "/api/v1/data/queue/")
	if addr == "" {
		http.Error(w, "missing network_addr", http.StatusBadRequest)
		return
	}
	writeJSON(w, queueResponse{Data: s.state.Pending.Snapshot(addr)})
}

// handleWSUlData is a supplemented live-tail endpoint: every uplink
// freshly appended to history is pushed to connected clients as JSON,
// generalizing dividat-driver's util/websocket ServeHTTP pattern (one
// upgrade per connection; this handler is the connection's only writer,
// so no write mutex is used).
func (s *Server) handleWSUlData(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := s.log.WithField("remote", r.RemoteAddr)
	log.Info("uldata websocket connection opened")

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	sent := s.state.Uplinks.Len()
	for range ticker.C {
		snap := s.state.Uplinks.Snapshot()
		if len(snap) <= sent {
			if len(snap) < sent {
				sent = 0 // buffer wrapped/overflowed; resync
			}
			continue
		}
		for _, ul := range snap[sent:] {
			if err := conn.WriteJSON(ul); err != nil {
				log.WithError(err).Info("uldata websocket closed")
				return
			}
		}
		sent = len(snap)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
