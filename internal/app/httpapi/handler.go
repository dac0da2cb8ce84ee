// Package httpapi exposes the opportunity lifecycle over HTTP.
//
// Responses use the envelope {data|errors, meta}. Business-rule failures are
// HTTP 200 with the violation in the errors list; only transport problems
// (malformed JSON, unknown routes, wrong method) use error status codes.
// This mirrors the public API contract and is deliberate.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	app "github.com/plugng/plug-backend/internal/app"
	"github.com/plugng/plug-backend/internal/app/metrics"
	"github.com/plugng/plug-backend/internal/app/services/opportunities"
	"github.com/plugng/plug-backend/internal/app/storage"
	"github.com/plugng/plug-backend/internal/errors"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	audit *auditLog
}

// NewHandler returns a mux exposing the core REST API. Setting
// AUDIT_LOG_PATH additionally appends the audit trail to a JSON-lines file.
func NewHandler(application *app.Application) http.Handler {
	var sink auditSink
	if path := os.Getenv("AUDIT_LOG_PATH"); path != "" {
		sink = fileSink{path: path}
	}
	h := &handler{app: application, audit: newAuditLog(200, sink)}
	mux := http.NewServeMux()
	mux.HandleFunc("/opportunities", h.opportunities)
	mux.HandleFunc("/opportunities/", h.opportunityResources)
	mux.HandleFunc("/users/", h.userResources)
	mux.HandleFunc("/notifications/read", h.markNotificationsRead)
	mux.HandleFunc("/admin/audit", h.auditTrail)
	mux.HandleFunc("/healthz", h.health)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// actor returns the calling user's ID and admin flag. Authentication itself
// happens upstream; this layer only needs to know who is calling.
func actor(r *http.Request) (string, bool) {
	return r.Header.Get("X-User-ID"), strings.EqualFold(r.Header.Get("X-Admin"), "true")
}

func (h *handler) opportunities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		actorID, _ := actor(r)
		var payload struct {
			Title            string   `json:"title"`
			Responsibilities string   `json:"responsibilities"`
			Budget           int64    `json:"budget"`
			Deadline         string   `json:"deadline"`
			AllowedPlans     []string `json:"allowedPlans"`
			VerifiedOnly     bool     `json:"verifiedAchieversOnly"`
			CountryID        string   `json:"countryId"`
			LocationID       string   `json:"locationId"`
			LGAID            string   `json:"lgaId"`
			TagIDs           []string `json:"tags"`
			OccupationID     string   `json:"occupationId"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeTransportError(w, http.StatusBadRequest, err)
			return
		}
		deadline, err := time.Parse(time.RFC3339, payload.Deadline)
		if err != nil {
			writeBusinessError(w, errors.Validation("deadline must be RFC 3339"))
			return
		}

		created, err := h.app.Opportunities.Create(r.Context(), opportunities.CreateInput{
			PluggerID:        actorID,
			Title:            payload.Title,
			Responsibilities: payload.Responsibilities,
			Budget:           payload.Budget,
			Deadline:         deadline,
			AllowedPlans:     payload.AllowedPlans,
			VerifiedOnly:     payload.VerifiedOnly,
			CountryID:        payload.CountryID,
			LocationID:       payload.LocationID,
			LGAID:            payload.LGAID,
			TagIDs:           payload.TagIDs,
			OccupationID:     payload.OccupationID,
		})
		h.audit.record(r, actorID)
		if err != nil {
			writeBusinessError(w, err)
			return
		}
		writeData(w, created)

	case http.MethodGet:
		opps, err := h.app.Opportunities.List(r.Context(), storage.OpportunityFilter{
			PluggerID: r.URL.Query().Get("pluggerId"),
		})
		if err != nil {
			writeBusinessError(w, err)
			return
		}
		writeData(w, opps)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) opportunityResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/opportunities"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	opportunityID := parts[0]
	actorID, isAdmin := actor(r)

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			opp, err := h.app.Opportunities.Get(r.Context(), opportunityID, storage.Include{Applications: true, Reviews: true})
			if err != nil {
				writeBusinessError(w, err)
				return
			}
			writeData(w, opp)
		case http.MethodDelete:
			h.audit.record(r, actorID)
			if err := h.app.Opportunities.Delete(r.Context(), opportunityID, actorID, isAdmin); err != nil {
				writeBusinessError(w, err)
				return
			}
			writeData(w, map[string]string{"id": opportunityID, "deleted": "true"})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}

	case len(parts) == 2 && parts[1] == "applications":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.audit.record(r, actorID)
		if err := h.app.Opportunities.Apply(r.Context(), opportunityID, actorID); err != nil {
			writeBusinessError(w, err)
			return
		}
		writeData(w, map[string]string{"opportunityId": opportunityID, "userId": actorID})

	case len(parts) == 3 && parts[1] == "applications":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.audit.record(r, actorID)
		if err := h.app.Opportunities.SetAchiever(r.Context(), opportunityID, actorID, parts[2]); err != nil {
			writeBusinessError(w, err)
			return
		}
		writeData(w, map[string]string{"opportunityId": opportunityID, "achieverId": parts[2]})

	case len(parts) == 2 && parts[1] == "reviews":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var payload struct {
			Rating  int    `json:"rating"`
			Comment string `json:"comment"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeTransportError(w, http.StatusBadRequest, err)
			return
		}
		h.audit.record(r, actorID)
		rev, err := h.app.Opportunities.SubmitReview(r.Context(), opportunities.ReviewInput{
			OpportunityID: opportunityID,
			AuthorID:      actorID,
			Rating:        payload.Rating,
			Comment:       payload.Comment,
		})
		if err != nil {
			writeBusinessError(w, err)
			return
		}
		writeData(w, rev)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) userResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/users"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[1] != "notifications" || r.Method != http.MethodGet {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	msgs, err := h.app.Notifications.ListForUser(r.Context(), parts[0], 50)
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	writeData(w, msgs)
}

func (h *handler) markNotificationsRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	actorID, _ := actor(r)
	var payload struct {
		IDs []string `json:"ids"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeTransportError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.app.Notifications.MarkRead(r.Context(), actorID, payload.IDs); err != nil {
		writeBusinessError(w, err)
		return
	}
	writeData(w, map[string]int{"marked": len(payload.IDs)})
}

// auditTrail returns the recent mutating calls, admins only.
func (h *handler) auditTrail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, isAdmin := actor(r); !isAdmin {
		writeBusinessError(w, errors.Unauthorized("admin access required"))
		return
	}
	writeData(w, h.audit.snapshot())
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeData(w, map[string]string{"status": "ok"})
}

// --- envelope helpers -------------------------------------------------------

type envelopeMeta struct {
	Timestamp time.Time `json:"timestamp"`
}

type envelopeError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type envelope struct {
	Data   interface{}     `json:"data,omitempty"`
	Errors []envelopeError `json:"errors,omitempty"`
	Meta   envelopeMeta    `json:"meta"`
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeData(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(envelope{Data: data, Meta: envelopeMeta{Timestamp: time.Now().UTC()}})
}

// writeBusinessError reports a rule violation inside a 200 envelope, except
// internal faults which are a real 500.
func writeBusinessError(w http.ResponseWriter, err error) {
	se := errors.GetServiceError(err)
	status := http.StatusOK
	if se.Code == errors.CodeInternal {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Errors: []envelopeError{{Code: string(se.Code), Message: se.Message, Details: se.Details}},
		Meta:   envelopeMeta{Timestamp: time.Now().UTC()},
	})
}

func writeTransportError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Errors: []envelopeError{{Code: "BAD_REQUEST", Message: err.Error()}},
		Meta:   envelopeMeta{Timestamp: time.Now().UTC()},
	})
}
