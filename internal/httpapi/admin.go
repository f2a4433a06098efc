package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tabour/internal/models"
	"tabour/internal/stats"
)

func (h *Handler) handleBranches(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		branches, err := h.store.ListBranches(r.Context())
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, branches)
	case http.MethodPost:
		if !requireAdmin(w, r) {
			return
		}
		var branch models.Branch
		if err := json.NewDecoder(r.Body).Decode(&branch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		if strings.TrimSpace(branch.Name) == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
			return
		}
		added, err := h.store.AddBranch(r.Context(), branch)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusCreated, added)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleBranchByID(w http.ResponseWriter, r *http.Request) {
	branchID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/branches/"), "/")
	if branchID == "" || strings.Contains(branchID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		branch, err := h.store.GetBranch(r.Context(), branchID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, branch)
	case http.MethodPut:
		if !requireAdmin(w, r) {
			return
		}
		var branch models.Branch
		if err := json.NewDecoder(r.Body).Decode(&branch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		updated, err := h.store.UpdateBranch(r.Context(), branchID, branch)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		if !requireAdmin(w, r) {
			return
		}
		if err := h.store.DeleteBranch(r.Context(), branchID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type createUserRequest struct {
	Name     string `json:"name"`
	Mobile   string `json:"mobile"`
	Password string `json:"password"`
	Role     string `json:"role"`
	BranchID string `json:"branch_id"`
}

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		users, err := h.store.ListUsers(r.Context())
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, users)
	case http.MethodPost:
		var req createUserRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		req.Mobile = strings.TrimSpace(req.Mobile)
		req.Role = strings.TrimSpace(req.Role)
		if req.Name == "" || req.Mobile == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "name, mobile, and password are required")
			return
		}
		if req.Role != models.RoleAdmin && req.Role != models.RoleStaff {
			writeError(w, http.StatusBadRequest, "invalid_request", "role must be admin or staff")
			return
		}

		user, err := h.store.AddUser(r.Context(), models.User{
			Name:     req.Name,
			Mobile:   req.Mobile,
			Role:     req.Role,
			BranchID: strings.TrimSpace(req.BranchID),
		}, req.Password)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusCreated, user)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// publicSettingsResponse is the settings slice safe to hand to the
// customer UI. Channel credentials and templates stay behind a session.
type publicSettingsResponse struct {
	RestaurantName string                    `json:"restaurant_name"`
	LogoURL        string                    `json:"logo_url,omitempty"`
	WhatsappNumber string                    `json:"whatsapp_number"`
	CustomerUI     models.CustomerUISettings `json:"customer_ui"`
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := h.store.GetSettings(r.Context())
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		if _, ok := sessionFromContext(r.Context()); !ok {
			writeJSON(w, http.StatusOK, publicSettingsResponse{
				RestaurantName: settings.RestaurantName,
				LogoURL:        settings.LogoURL,
				WhatsappNumber: settings.WhatsappNumber,
				CustomerUI:     settings.CustomerUI,
			})
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		if !requireAdmin(w, r) {
			return
		}
		var settings models.Settings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		if err := h.store.UpdateSettings(r.Context(), settings); err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleWaitTimeStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	year := time.Now().UTC().Year()
	if raw := strings.TrimSpace(r.URL.Query().Get("year")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 2000 || parsed > 9999 {
			writeError(w, http.StatusBadRequest, "invalid_request", "year must be a four digit year")
			return
		}
		year = parsed
	}

	month := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("month")); raw != "" && raw != "all" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 12 {
			writeError(w, http.StatusBadRequest, "invalid_request", "month must be all or 1-12")
			return
		}
		month = parsed
	}

	branchID := strings.TrimSpace(r.URL.Query().Get("branch_id"))
	if branchID == "" {
		branchID = models.BranchAll
	}

	bookings, err := h.store.ListBookings(r.Context(), models.BranchAll)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, stats.WaitTimes(bookings, year, month, branchID))
}

func (h *Handler) handleVisitLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	bookings, err := h.store.ListBookings(r.Context(), models.BranchAll)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="visit-log.csv"`)
	if err := stats.WriteVisitLog(w, bookings); err != nil {
		// Headers are already out; nothing left to do but log upstream.
		return
	}
}
