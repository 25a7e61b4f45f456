package booking

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	httpmiddleware "github.com/keremoktener/zentra/internal/http/middleware"
	"github.com/keremoktener/zentra/pkg/logging"
)

// Handler exposes the booking engine over HTTP/JSON. It is a thin
// translation layer; all rules live in the coordinator.
type Handler struct {
	coordinator *Coordinator
	calendar    Calendar
	services    ServiceStore
	logger      *logging.Logger
}

// NewHandler creates the booking HTTP handler.
func NewHandler(coordinator *Coordinator, calendar Calendar, services ServiceStore, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{coordinator: coordinator, calendar: calendar, services: services, logger: logger}
}

// RegisterRoutes mounts the public endpoints under /api/v1.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/businesses/{businessID}/availability", h.getAvailability)
	r.Get("/businesses/{businessID}/hours", h.getHours)
	r.Get("/businesses/{businessID}/services", h.listServices)
	r.Get("/businesses/{businessID}/appointments", h.listBusinessAppointments)
	r.Post("/businesses/{businessID}/appointments", h.book)
	r.Get("/customers/{customerID}/appointments", h.listCustomerAppointments)
	r.Post("/appointments/{appointmentID}/cancel", h.cancel)
	r.Post("/appointments/{appointmentID}/reschedule", h.reschedule)
}

// RegisterAdminRoutes mounts the business-side management endpoints.
// Expected to be wrapped with the admin JWT middleware.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Put("/businesses/{businessID}/hours/{day}", h.upsertHours)
	r.Post("/businesses/{businessID}/services", h.createService)
	r.Put("/businesses/{businessID}/services/{serviceID}", h.updateService)
	r.Delete("/businesses/{businessID}/services/{serviceID}", h.deactivateService)
	r.Post("/appointments/{appointmentID}/confirm", h.confirm)
	r.Post("/appointments/{appointmentID}/complete", h.complete)
}

func (h *Handler) getAvailability(w http.ResponseWriter, r *http.Request) {
	businessID, err := pathUUID(r, "businessID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	serviceID, err := uuid.Parse(r.URL.Query().Get("service_id"))
	if err != nil {
		h.writeError(w, validationError("invalid service_id"))
		return
	}
	date, err := ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	var staffID *uuid.UUID
	if s := r.URL.Query().Get("staff_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			h.writeError(w, validationError("invalid staff_id"))
			return
		}
		staffID = &id
	}

	slots, err := h.coordinator.GetAvailability(r.Context(), businessID, serviceID, staffID, date)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"date":  date,
		"slots": slots,
		"count": len(slots),
	})
}

type bookPayload struct {
	ServiceID  uuid.UUID  `json:"service_id"`
	StaffID    *uuid.UUID `json:"staff_id,omitempty"`
	CustomerID uuid.UUID  `json:"customer_id"`
	Date       Date       `json:"date"`
	Start      TimeOfDay  `json:"start_time"`
	Notes      string     `json:"notes,omitempty"`
}

func (h *Handler) book(w http.ResponseWriter, r *http.Request) {
	businessID, err := pathUUID(r, "businessID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var payload bookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, validationError("invalid request body: %v", err))
		return
	}

	appt, err := h.coordinator.Book(r.Context(), BookRequest{
		BusinessID:     businessID,
		ServiceID:      payload.ServiceID,
		StaffID:        payload.StaffID,
		CustomerID:     payload.CustomerID,
		Date:           payload.Date,
		Start:          payload.Start,
		Notes:          payload.Notes,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, appt)
}

type cancelPayload struct {
	Actor  Actor  `json:"actor"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	appointmentID, err := pathUUID(r, "appointmentID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var payload cancelPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, validationError("invalid request body: %v", err))
		return
	}
	appt, err := h.coordinator.Cancel(r.Context(), appointmentID, payload.Actor, payload.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, appt)
}

type reschedulePayload struct {
	Actor Actor     `json:"actor"`
	Date  Date      `json:"date"`
	Start TimeOfDay `json:"start_time"`
}

func (h *Handler) reschedule(w http.ResponseWriter, r *http.Request) {
	appointmentID, err := pathUUID(r, "appointmentID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var payload reschedulePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, validationError("invalid request body: %v", err))
		return
	}
	appt, err := h.coordinator.Reschedule(r.Context(), RescheduleRequest{
		AppointmentID:  appointmentID,
		Date:           payload.Date,
		Start:          payload.Start,
		Actor:          payload.Actor,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.coordinator.Confirm)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.coordinator.Complete)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error)) {
	appointmentID, err := pathUUID(r, "appointmentID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	// A business-scoped admin token restricts the actor to its own
	// appointments; an unscoped token acts for any business.
	actor := Actor{ID: httpmiddleware.AdminBusinessID(r.Context()), Role: RoleBusiness}
	appt, err := apply(r.Context(), appointmentID, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) listBusinessAppointments(w http.ResponseWriter, r *http.Request) {
	businessID, err := pathUUID(r, "businessID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	opts, err := listOptionsFromQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	appts, err := h.coordinator.ListForBusiness(r.Context(), businessID, opts)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"appointments": appts, "count": len(appts)})
}

func (h *Handler) listCustomerAppointments(w http.ResponseWriter, r *http.Request) {
	customerID, err := pathUUID(r, "customerID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	opts, err := listOptionsFromQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	appts, err := h.coordinator.ListForCustomer(r.Context(), customerID, opts)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"appointments": appts, "count": len(appts)})
}

func (h *Handler) getHours(w http.ResponseWriter, r *http.Request) {
	businessID, err := pathUUID(r, "businessID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	week, err := h.calendar.Week(r.Context(), businessID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"hours": week})
}

type hoursPayload struct {
	Open     bool      `json:"open"`
	OpensAt  TimeOfDay `json:"opens_at"`
	ClosesAt TimeOfDay `json:"closes_at"`
}

func (h *Handler) upsertHours(w http.ResponseWriter, r *http.Request) {
	businessID, err := pathUUID(r, "businessID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	day, err := parseWeekday(chi.URLParam(r, "day"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	var payload hoursPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, validationError("invalid request body: %v", err))
		return
	}
	hours := WorkingHours{
		BusinessID: businessID,
		Day:        day,
		Open:       payload.Open,
		OpensAt:    payload.OpensAt,
		ClosesAt:   payload.ClosesAt,
	}
	if err := h.calendar.Upsert(r.Context(), hours); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, hours)
}

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	businessID, err := pathUUID(r, "businessID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	activeOnly := r.URL.Query().Get("include_inactive") != "true"
	services, err := h.services.ListServices(r.Context(), businessID, activeOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"services": services, "count": len(services)})
}

func (h *Handler) createService(w http.ResponseWriter, r *http.Request) {
	businessID, err := pathUUID(r, "businessID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var svc Service
	if err := json.NewDecoder(r.Body).Decode(&svc); err != nil {
		h.writeError(w, validationError("invalid request body: %v", err))
		return
	}
	svc.BusinessID = businessID
	if err := h.services.CreateService(r.Context(), &svc); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, svc)
}

func (h *Handler) updateService(w http.ResponseWriter, r *http.Request) {
	businessID, err := pathUUID(r, "businessID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	serviceID, err := pathUUID(r, "serviceID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var svc Service
	if err := json.NewDecoder(r.Body).Decode(&svc); err != nil {
		h.writeError(w, validationError("invalid request body: %v", err))
		return
	}
	svc.ID = serviceID
	svc.BusinessID = businessID
	if err := h.services.UpdateService(r.Context(), &svc); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, svc)
}

func (h *Handler) deactivateService(w http.ResponseWriter, r *http.Request) {
	businessID, err := pathUUID(r, "businessID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	serviceID, err := pathUUID(r, "serviceID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.services.DeactivateService(r.Context(), businessID, serviceID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func listOptionsFromQuery(r *http.Request) (ListOptions, error) {
	var opts ListOptions
	if s := r.URL.Query().Get("date"); s != "" {
		date, err := ParseDate(s)
		if err != nil {
			return opts, err
		}
		opts.Date = &date
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status, err := ParseStatus(s)
		if err != nil {
			return opts, err
		}
		opts.Status = &status
	}
	scope, err := ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		return opts, err
	}
	opts.Scope = scope
	return opts, nil
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		return uuid.Nil, validationError("invalid %s", param)
	}
	return id, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	for day := time.Sunday; day <= time.Saturday; day++ {
		if strings.EqualFold(day.String(), s) {
			return day, nil
		}
	}
	return 0, validationError("unknown day of week %q", s)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("booking handler: encode response", "error", err)
	}
}

// writeError maps engine errors to HTTP statuses. Conflicts carry a hint
// that the client should re-fetch availability rather than retry the
// same call.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case IsValidation(err):
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case IsNotFound(err):
		h.writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
	case IsConflict(err):
		h.writeJSON(w, http.StatusConflict, map[string]any{
			"error":                err.Error(),
			"refresh_availability": true,
		})
	case IsInvalidTransition(err):
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error()})
	default:
		h.logger.Error("booking handler: internal error", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}
