package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/hvgate/hvgate/internal/api"
	"github.com/hvgate/hvgate/internal/auditlog"
	"github.com/hvgate/hvgate/internal/authgate"
	"github.com/hvgate/hvgate/internal/config"
	"github.com/hvgate/hvgate/internal/hyperv"
	"github.com/hvgate/hvgate/internal/poll"
)

type server struct {
	cfg   *config.Config
	gate  *authgate.Gate
	audit *auditlog.Log
	vms   *hyperv.Tool
	cache *poll.Snapshot[vmCache]
}

// vmCache is the background poller's last view of the hypervisor,
// consumed by the health endpoint.
type vmCache struct {
	Names    []string
	Err      string
	SyncedAt time.Time
}

// newPipeline wraps the route handlers in the boundary middleware. Order
// matters: every request is logged on arrival, then the origin filter runs
// before any routing or body parsing.
func newPipeline(s *server) http.Handler {
	return withRequestLog(s.audit, withIPFilter(s.gate, s.audit, newRouter(s)))
}

func newRouter(s *server) http.Handler {
	router := httprouter.New()

	router.GET("/healthz", s.getHealth)
	router.GET("/vms", s.getVMList)
	router.GET("/vms/:name/state", s.getVMState)
	router.GET("/vms/:name/details", s.getVMDetails)
	router.GET("/vms/:name/history", s.getHistory)
	router.GET("/history", s.getAllHistory)
	router.POST("/vms/:name/start", s.vmAction(auditlog.ActionStart, "start", s.vms.Start))
	router.POST("/vms/:name/shutdown", s.vmAction(auditlog.ActionStop, "shutdown", s.vms.Stop))
	router.POST("/vms/:name/restart", s.vmAction(auditlog.ActionRestart, "restart", s.vms.Restart))

	return router
}

// withRequestLog appends a "received" record to the app stream for every
// inbound request before anything else happens, so rejected requests still
// leave a trace. The request ID is smuggled to inner layers through the
// query string (same trick the rest of the stack uses to avoid context values).
func withRequestLog(audit *auditlog.Log, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.Must(uuid.NewRandom()).String()
		audit.Request(requestRecord(r, id), "received", "")

		q := r.URL.Query()
		q.Set("rid", id)
		r.URL.RawQuery = q.Encode()

		wp := &responseProxy{ResponseWriter: w, Status: 200}
		next.ServeHTTP(wp, r)
		log.Printf("%s %s - %d (%s)", r.Method, r.URL.Path, wp.Status, r.RemoteAddr)
	})
}

// withIPFilter enforces the origin allow-list at the boundary, before the
// router or any handler sees the request. Denials are logged as "rejected".
func withIPFilter(gate *authgate.Gate, audit *auditlog.Log, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := gate.VerifyIP(clientIP(r)); err != nil {
			audit.Request(requestRecord(r, r.URL.Query().Get("rid")), "rejected", err.Error())
			writeDenial(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestRecord(r *http.Request, id string) auditlog.RequestRecord {
	return auditlog.RequestRecord{
		RequestID: id,
		Method:    r.Method,
		Path:      r.URL.Path,
		ClientIP:  clientIP(r),
		Headers:   r.Header,
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// responseProxy is an annoying necessity to retain the response status for logging purposes.
type responseProxy struct {
	http.ResponseWriter
	Status int
}

func (r *responseProxy) WriteHeader(status int) {
	r.Status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *server) getHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	cache, ok := s.cache.Get()
	resp := &api.HealthResponse{Status: "starting"}
	if ok {
		resp.Status = "ok"
		resp.VMCount = len(cache.Names)
		resp.LastSync = cache.SyncedAt.Format(time.RFC3339)
		if cache.Err != "" {
			resp.Status = "degraded"
			resp.Error = cache.Err
		}
	}
	writeJSON(w, 200, resp)
}

func (s *server) getVMList(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpError(w, 400, "reading request body")
		return
	}
	if s.cfg.AuthenticateReads {
		if err := s.authenticate(r, body); err != nil {
			writeDenial(w, err)
			return
		}
	}

	names, err := s.vms.ListNames(r.Context())
	if err != nil {
		s.audit.Audit(auditlog.ActionList, "", clientIP(r), auditlog.StatusError, err.Error())
		httpError(w, 500, err.Error())
		return
	}

	s.audit.Audit(auditlog.ActionList, "", clientIP(r), auditlog.StatusOK, "")
	s.audit.App(map[string]any{"action": "list", "client_ip": clientIP(r), "result": names})
	writeJSON(w, 200, &api.VMListResponse{VMs: names})
}

func (s *server) getVMState(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.vmRead(w, r, ps.ByName("name"), auditlog.ActionGetState, func(name string) (any, string, error) {
		state, err := s.vms.State(r.Context(), name)
		return &api.VMStateResponse{VM: name, State: state}, state, err
	})
}

func (s *server) getVMDetails(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.vmRead(w, r, ps.ByName("name"), auditlog.ActionGetDetails, func(name string) (any, string, error) {
		details, err := s.vms.Details(r.Context(), name)
		return &api.VMDetailsResponse{VM: name, Details: details}, "", err
	})
}

// vmRead handles the authenticated read-only per-VM endpoints: state and
// details. fn returns the response payload plus the audit detail string.
func (s *server) vmRead(w http.ResponseWriter, r *http.Request, name string, action auditlog.Action, fn func(name string) (any, string, error)) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpError(w, 400, "reading request body")
		return
	}
	if err := s.authenticate(r, body); err != nil {
		writeDenial(w, err)
		return
	}

	if _, ok := s.requireVM(w, r, name); !ok {
		return
	}

	resp, details, err := fn(name)
	if err != nil {
		s.audit.Audit(action, name, clientIP(r), auditlog.StatusError, err.Error())
		httpError(w, 500, err.Error())
		return
	}

	s.audit.Audit(action, name, clientIP(r), auditlog.StatusOK, details)
	writeJSON(w, 200, resp)
}

// vmAction builds the handler for one privileged lifecycle operation.
// Every outcome of an attempted operation lands in the audit stream - a
// failed start/stop must stay auditable even though it failed.
func (s *server) vmAction(action auditlog.Action, verb string, fn func(ctx context.Context, name string) (string, error)) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, 400, "reading request body")
			return
		}
		if err := s.authenticate(r, body); err != nil {
			writeDenial(w, err)
			return
		}

		name := ps.ByName("name")
		if _, ok := s.requireVM(w, r, name); !ok {
			return
		}

		out, err := fn(r.Context(), name)
		if err != nil {
			s.audit.Audit(action, name, clientIP(r), auditlog.StatusError, err.Error())
			httpError(w, 500, err.Error())
			return
		}

		s.audit.Audit(action, name, clientIP(r), auditlog.StatusOK, out)
		s.audit.App(map[string]any{"action": verb, "vm": name, "ip": clientIP(r), "output": out})
		writeJSON(w, 200, &api.VMActionResponse{VM: name, Action: verb, Output: out})
	}
}

func (s *server) getAllHistory(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.history(w, r, "")
}

func (s *server) getHistory(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.history(w, r, ps.ByName("name"))
}

func (s *server) history(w http.ResponseWriter, r *http.Request, target string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpError(w, 400, "reading request body")
		return
	}
	if err := s.authenticate(r, body); err != nil {
		writeDenial(w, err)
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httpError(w, 400, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}

	entries, err := s.audit.History(target, limit)
	if err != nil {
		httpError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, map[string]any{"entries": entries})
}

func (s *server) authenticate(r *http.Request, body []byte) error {
	return s.gate.Authenticate(
		r.Header.Get(api.KeyHeader),
		r.Header.Get(api.SignatureHeader),
		r.Header.Get(api.TimestampHeader),
		body)
}

// requireVM confirms the target exists in the hypervisor's current name
// list. Unknown names get a 404 that enumerates the known ones.
func (s *server) requireVM(w http.ResponseWriter, r *http.Request, name string) ([]string, bool) {
	names, err := s.vms.ListNames(r.Context())
	if err != nil {
		httpError(w, 500, err.Error())
		return nil, false
	}

	for _, n := range names {
		if n == name {
			return names, true
		}
	}

	writeJSON(w, 404, &api.ErrorResponse{
		Error:    fmt.Sprintf("VM %q not found", name),
		KnownVMs: names,
	})
	return nil, false
}

func writeDenial(w http.ResponseWriter, err error) {
	if denial, ok := err.(*authgate.Denial); ok {
		httpError(w, denial.HTTPStatus(), denial.Error())
		return
	}
	httpError(w, 500, err.Error())
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, &api.ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
