package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"tabour/internal/models"
	"tabour/internal/store"
)

// WaitEstimator produces the wait estimate surfaced on the wait-time
// endpoint. Satisfied by estimate.Estimator.
type WaitEstimator interface {
	WaitTime(ctx context.Context, branch models.Branch, queue []models.Booking, avgVisitMinutes float64) int
}

type Handler struct {
	store     store.Store
	estimator WaitEstimator
}

type Options struct {
	Estimator WaitEstimator
}

func NewHandler(st store.Store, options Options) *Handler {
	return &Handler{
		store:     st,
		estimator: options.Estimator,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/login", h.handleLogin)
	mux.HandleFunc("/api/bookings", h.handleBookings)
	mux.HandleFunc("/api/bookings/active", h.handleActiveBooking)
	mux.HandleFunc("/api/bookings/", h.handleBookingByID)
	mux.HandleFunc("/api/serving", h.handleServing)
	mux.HandleFunc("/api/queue", h.handleQueue)
	mux.HandleFunc("/api/branches", h.handleBranches)
	mux.HandleFunc("/api/branches/", h.handleBranchByID)
	mux.HandleFunc("/api/users", h.handleUsers)
	mux.HandleFunc("/api/settings", h.handleSettings)
	mux.HandleFunc("/api/stats/wait-times", h.handleWaitTimeStats)
	mux.HandleFunc("/api/stats/visit-log.csv", h.handleVisitLog)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type createBookingRequest struct {
	BranchID              string `json:"branch_id"`
	BookingType           string `json:"booking_type"`
	Name                  string `json:"name"`
	Mobile                string `json:"mobile"`
	Guests                int    `json:"guests"`
	SeatingArea           string `json:"seating_area"`
	AgreedToNotifications bool   `json:"agreed_to_notifications"`
	AppointmentDate       string `json:"appointment_date"`
	AppointmentTime       string `json:"appointment_time"`
}

// duplicateBookingResponse accompanies a 409 on create: the caller gets
// the customer's existing active booking instead of a new one.
type duplicateBookingResponse struct {
	Duplicate bool           `json:"duplicate"`
	Booking   models.Booking `json:"booking"`
}

func (h *Handler) handleBookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleCreateBooking(w, r)
	case http.MethodGet:
		h.handleListBookings(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.BranchID = strings.TrimSpace(req.BranchID)
	req.BookingType = strings.TrimSpace(req.BookingType)
	req.Name = strings.TrimSpace(req.Name)
	req.Mobile = strings.TrimSpace(req.Mobile)
	req.SeatingArea = strings.TrimSpace(req.SeatingArea)
	req.AppointmentDate = strings.TrimSpace(req.AppointmentDate)
	req.AppointmentTime = strings.TrimSpace(req.AppointmentTime)

	if req.BranchID == "" || req.Name == "" || req.Mobile == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "branch_id, name, and mobile are required")
		return
	}
	if !models.ValidBookingType(req.BookingType) {
		writeError(w, http.StatusBadRequest, "invalid_request", "booking_type must be waitlist or appointment")
		return
	}
	if req.Guests < 1 {
		writeError(w, http.StatusBadRequest, "invalid_request", "guests must be at least 1")
		return
	}
	if !models.ValidSeatingArea(req.SeatingArea) {
		writeError(w, http.StatusBadRequest, "invalid_request", "seating_area must be any, indoor, or outdoor")
		return
	}

	booking, created, err := h.store.CreateBooking(r.Context(), store.CreateBookingInput{
		BranchID:              req.BranchID,
		BookingType:           req.BookingType,
		Name:                  req.Name,
		Mobile:                req.Mobile,
		Guests:                req.Guests,
		SeatingArea:           req.SeatingArea,
		AgreedToNotifications: req.AgreedToNotifications,
		AppointmentDate:       req.AppointmentDate,
		AppointmentTime:       req.AppointmentTime,
		CreatedAt:             time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if !created {
		writeJSON(w, http.StatusConflict, duplicateBookingResponse{Duplicate: true, Booking: booking})
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (h *Handler) handleListBookings(w http.ResponseWriter, r *http.Request) {
	branchID := strings.TrimSpace(r.URL.Query().Get("branch_id"))
	bookings, err := h.store.ListBookings(r.Context(), branchID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	writeJSON(w, http.StatusOK, bookings)
}

func (h *Handler) handleActiveBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	mobile := strings.TrimSpace(r.URL.Query().Get("mobile"))
	if mobile == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "mobile is required")
		return
	}

	booking, found, err := h.store.FindActiveBookingByMobile(r.Context(), mobile)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *Handler) handleBookingByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/bookings/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	bookingID := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			h.handleGetBooking(w, r, bookingID)
		case http.MethodPatch:
			h.handleUpdateBooking(w, r, bookingID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case len(parts) == 2 && parts[1] == "wait-time":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleWaitTime(w, r, bookingID)
	case len(parts) == 2 && parts[1] == "notify":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleNotify(w, r, bookingID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetBooking(w http.ResponseWriter, r *http.Request, bookingID string) {
	booking, err := h.store.GetBooking(r.Context(), bookingID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

type updateBookingRequest struct {
	Status          string `json:"status"`
	Name            string `json:"name"`
	Guests          int    `json:"guests"`
	SeatingArea     string `json:"seating_area"`
	AppointmentDate string `json:"appointment_date"`
	AppointmentTime string `json:"appointment_time"`
}

func (h *Handler) handleUpdateBooking(w http.ResponseWriter, r *http.Request, bookingID string) {
	var req updateBookingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Status = strings.TrimSpace(req.Status)
	if req.Status != "" && !models.ValidStatus(req.Status) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown status")
		return
	}
	if req.SeatingArea != "" && !models.ValidSeatingArea(req.SeatingArea) {
		writeError(w, http.StatusBadRequest, "invalid_request", "seating_area must be any, indoor, or outdoor")
		return
	}

	booking, err := h.store.UpdateBooking(r.Context(), bookingID, store.BookingUpdate{
		Status:          req.Status,
		Name:            strings.TrimSpace(req.Name),
		Guests:          req.Guests,
		SeatingArea:     strings.TrimSpace(req.SeatingArea),
		AppointmentDate: strings.TrimSpace(req.AppointmentDate),
		AppointmentTime: strings.TrimSpace(req.AppointmentTime),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

type notifyRequest struct {
	Message string `json:"message"`
}

func (h *Handler) handleNotify(w http.ResponseWriter, r *http.Request, bookingID string) {
	var req notifyRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	if err := h.store.NotifyDirect(r.Context(), bookingID, strings.TrimSpace(req.Message)); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type waitTimeResponse struct {
	BookingID         string `json:"booking_id"`
	EstimatedWaitTime int    `json:"estimated_wait_time"`
}

func (h *Handler) handleWaitTime(w http.ResponseWriter, r *http.Request, bookingID string) {
	booking, err := h.store.GetBooking(r.Context(), bookingID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	// A booking that already has an estimate keeps it; repeat lookups
	// short-circuit without touching the estimator.
	if booking.EstimatedWaitTime > 0 {
		writeJSON(w, http.StatusOK, waitTimeResponse{BookingID: booking.ID, EstimatedWaitTime: booking.EstimatedWaitTime})
		return
	}

	branch, err := h.store.GetBranch(r.Context(), booking.BranchID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	queue, err := h.store.ListQueue(r.Context(), branch.ID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	avg, err := h.store.AverageVisitDuration(r.Context(), branch.ID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	minutes := len(queue) * 5
	if h.estimator != nil {
		minutes = h.estimator.WaitTime(r.Context(), branch, queue, avg)
	}

	if err := h.store.SetEstimatedWaitTime(r.Context(), booking.ID, minutes); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, waitTimeResponse{BookingID: booking.ID, EstimatedWaitTime: minutes})
}

type servingResponse struct {
	BranchID  string `json:"branch_id"`
	BookingID string `json:"booking_id"`
}

func (h *Handler) handleServing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	branchID := strings.TrimSpace(r.URL.Query().Get("branch_id"))
	if branchID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "branch_id is required")
		return
	}

	bookingID, err := h.store.CurrentlyServing(r.Context(), branchID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, servingResponse{BranchID: branchID, BookingID: bookingID})
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	branchID := strings.TrimSpace(r.URL.Query().Get("branch_id"))
	if branchID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "branch_id is required")
		return
	}

	queue, err := h.store.ListQueue(r.Context(), branchID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if queue == nil {
		queue = []models.Booking{}
	}
	writeJSON(w, http.StatusOK, queue)
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrBookingNotFound):
		return http.StatusNotFound, "booking_not_found", "booking not found"
	case errors.Is(err, store.ErrBranchNotFound):
		return http.StatusNotFound, "branch_not_found", "branch not found"
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", "user not found"
	case errors.Is(err, models.ErrInvalidMobile):
		return http.StatusBadRequest, "invalid_mobile", "mobile must be 05XXXXXXXX or +9665XXXXXXXX"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "booking state does not allow this action"
	case errors.Is(err, store.ErrBookingDisabled):
		return http.StatusForbidden, "booking_disabled", "booking is currently disabled"
	case errors.Is(err, store.ErrWaitlistClosed):
		return http.StatusConflict, "waitlist_closed", "waitlist is not available for this branch"
	case errors.Is(err, store.ErrAppointmentsClosed):
		return http.StatusConflict, "appointments_closed", "appointments are not available for this branch"
	case errors.Is(err, store.ErrAppointmentDetails):
		return http.StatusBadRequest, "invalid_request", "appointment_date and appointment_time are required"
	case errors.Is(err, store.ErrDayUnavailable):
		return http.StatusConflict, "day_unavailable", "appointments are not taken on that day"
	case errors.Is(err, store.ErrSlotUnavailable):
		return http.StatusConflict, "slot_unavailable", "no such appointment slot"
	case errors.Is(err, store.ErrSlotFull):
		return http.StatusConflict, "slot_full", "appointment slot is fully booked"
	case errors.Is(err, store.ErrTooManyGuests):
		return http.StatusBadRequest, "too_many_guests", "guest count exceeds the allowed maximum"
	case errors.Is(err, store.ErrDuplicateUser):
		return http.StatusConflict, "duplicate_user", "a user with this mobile already exists"
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid mobile or password"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
