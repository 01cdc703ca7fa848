package httpapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/types"
)

// ── Scanning ──

func (s *Server) handleScanQR(w http.ResponseWriter, r *http.Request) {
	var req types.ScanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.access.ScanCode(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

func (s *Server) handleVerifyFace(w http.ResponseWriter, r *http.Request) {
	var req types.FaceVerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.access.VerifyFace(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

// ── Visitors and gates ──

func (s *Server) handleCreateVisitor(w http.ResponseWriter, r *http.Request) {
	var req types.VisitorPassRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, _ := actor(r)
	pass, err := s.visitors.CreatePass(r.Context(), a, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, pass)
}

func (s *Server) handleListVisitors(w http.ResponseWriter, r *http.Request) {
	q := newQueryParser(r)
	pq := q.page()
	if err := q.err(); err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.visitors.ListPasses(r.Context(), pq)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (s *Server) handleListGates(w http.ResponseWriter, r *http.Request) {
	list, err := s.gates.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

// ── Violations ──

func (s *Server) handleListViolations(w http.ResponseWriter, r *http.Request) {
	q := newQueryParser(r)
	vq := types.ViolationQuery{
		Type:        q.str("type"),
		SubjectType: q.str("subjectType"),
		GateID:      q.str("gateId"),
		StartDate:   q.timePtr("startDate", false),
		EndDate:     q.timePtr("endDate", true),
		Resolved:    q.boolPtr("resolved"),
		PageQuery:   q.page(),
	}
	if err := q.err(); err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.violations.List(r.Context(), vq)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (s *Server) handleResolveViolation(w http.ResponseWriter, r *http.Request) {
	var req types.ResolveRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	a, _ := actor(r)
	view, err := s.violations.Resolve(r.Context(), chi.URLParam(r, "id"), a, req.Notes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, view)
}

// ── Vehicles ──

func (s *Server) handleRegisterVehicle(w http.ResponseWriter, r *http.Request) {
	var req types.RegisterVehicleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	v, err := s.vehicles.Register(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, v)
}

func (s *Server) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	q := newQueryParser(r)
	pq := q.page()
	if err := q.err(); err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.vehicles.List(r.Context(), pq)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (s *Server) handleVehicleEntry(w http.ResponseWriter, r *http.Request) {
	var req types.VehicleEntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.vehicles.LogEntry(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) handleVehicleExit(w http.ResponseWriter, r *http.Request) {
	var req types.VehicleExitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.vehicles.LogExit(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	q := newQueryParser(r)
	eq := types.EntryQuery{
		Plate:     q.str("plate"),
		Status:    q.str("status"),
		PageQuery: q.page(),
	}
	if open := q.boolPtr("open"); open != nil {
		eq.Open = *open
	}
	if err := q.err(); err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.vehicles.ListEntries(r.Context(), eq)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := newQueryParser(r)
	aq := types.AlertQuery{
		Type:      q.str("type"),
		Resolved:  q.boolPtr("resolved"),
		PageQuery: q.page(),
	}
	if err := q.err(); err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.vehicles.ListAlerts(r.Context(), aq)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	var req types.ResolveRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	a, _ := actor(r)
	view, err := s.vehicles.ResolveAlert(r.Context(), chi.URLParam(r, "id"), a, req.Notes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, view)
}

// decodeOptionalJSON accepts an empty body for endpoints whose payload is
// all optional.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength == 0 {
		return true
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_JSON", "unreadable body", nil)
		return false
	}
	if strings.TrimSpace(string(body)) == "" {
		return true
	}
	r.Body = io.NopCloser(strings.NewReader(string(body)))
	return decodeJSON(w, r, dst)
}
