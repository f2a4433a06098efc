package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tabour/internal/models"
	"tabour/internal/store"
)

type fakeStore struct {
	createBooking    func(ctx context.Context, input store.CreateBookingInput) (models.Booking, bool, error)
	getBooking       func(ctx context.Context, id string) (models.Booking, error)
	updateBooking    func(ctx context.Context, id string, upd store.BookingUpdate) (models.Booking, error)
	findActive       func(ctx context.Context, mobile string) (models.Booking, bool, error)
	listBookings     func(ctx context.Context, branchID string) ([]models.Booking, error)
	listQueue        func(ctx context.Context, branchID string) ([]models.Booking, error)
	currentlyServing func(ctx context.Context, branchID string) (string, error)
	setEstimate      func(ctx context.Context, id string, minutes int) error
	averageVisit     func(ctx context.Context, branchID string) (float64, error)
	notifyDirect     func(ctx context.Context, bookingID, message string) error
	getBranch        func(ctx context.Context, id string) (models.Branch, error)
	listBranches     func(ctx context.Context) ([]models.Branch, error)
	addUser          func(ctx context.Context, user models.User, password string) (models.User, error)
	login            func(ctx context.Context, mobile, password string) (store.Session, error)
	getSession       func(ctx context.Context, sessionID string) (store.Session, error)
	getSettings      func(ctx context.Context) (models.Settings, error)
}

var errNotImplemented = errors.New("not implemented")

func (f *fakeStore) CreateBooking(ctx context.Context, input store.CreateBookingInput) (models.Booking, bool, error) {
	if f.createBooking != nil {
		return f.createBooking(ctx, input)
	}
	return models.Booking{}, false, errNotImplemented
}

func (f *fakeStore) GetBooking(ctx context.Context, id string) (models.Booking, error) {
	if f.getBooking != nil {
		return f.getBooking(ctx, id)
	}
	return models.Booking{}, errNotImplemented
}

func (f *fakeStore) UpdateBooking(ctx context.Context, id string, upd store.BookingUpdate) (models.Booking, error) {
	if f.updateBooking != nil {
		return f.updateBooking(ctx, id, upd)
	}
	return models.Booking{}, errNotImplemented
}

func (f *fakeStore) FindActiveBookingByMobile(ctx context.Context, mobile string) (models.Booking, bool, error) {
	if f.findActive != nil {
		return f.findActive(ctx, mobile)
	}
	return models.Booking{}, false, errNotImplemented
}

func (f *fakeStore) ListBookings(ctx context.Context, branchID string) ([]models.Booking, error) {
	if f.listBookings != nil {
		return f.listBookings(ctx, branchID)
	}
	return nil, errNotImplemented
}

func (f *fakeStore) ListQueue(ctx context.Context, branchID string) ([]models.Booking, error) {
	if f.listQueue != nil {
		return f.listQueue(ctx, branchID)
	}
	return nil, errNotImplemented
}

func (f *fakeStore) CurrentlyServing(ctx context.Context, branchID string) (string, error) {
	if f.currentlyServing != nil {
		return f.currentlyServing(ctx, branchID)
	}
	return "", errNotImplemented
}

func (f *fakeStore) SetEstimatedWaitTime(ctx context.Context, id string, minutes int) error {
	if f.setEstimate != nil {
		return f.setEstimate(ctx, id, minutes)
	}
	return errNotImplemented
}

func (f *fakeStore) AverageVisitDuration(ctx context.Context, branchID string) (float64, error) {
	if f.averageVisit != nil {
		return f.averageVisit(ctx, branchID)
	}
	return 0, errNotImplemented
}

func (f *fakeStore) AutoDepart(ctx context.Context, threshold time.Duration) (int, error) {
	return 0, errNotImplemented
}

func (f *fakeStore) NotifyDirect(ctx context.Context, bookingID, message string) error {
	if f.notifyDirect != nil {
		return f.notifyDirect(ctx, bookingID, message)
	}
	return errNotImplemented
}

func (f *fakeStore) ListBranches(ctx context.Context) ([]models.Branch, error) {
	if f.listBranches != nil {
		return f.listBranches(ctx)
	}
	return nil, errNotImplemented
}

func (f *fakeStore) GetBranch(ctx context.Context, id string) (models.Branch, error) {
	if f.getBranch != nil {
		return f.getBranch(ctx, id)
	}
	return models.Branch{}, errNotImplemented
}

func (f *fakeStore) AddBranch(ctx context.Context, branch models.Branch) (models.Branch, error) {
	return models.Branch{}, errNotImplemented
}

func (f *fakeStore) UpdateBranch(ctx context.Context, id string, branch models.Branch) (models.Branch, error) {
	return models.Branch{}, errNotImplemented
}

func (f *fakeStore) DeleteBranch(ctx context.Context, id string) error {
	return errNotImplemented
}

func (f *fakeStore) ListUsers(ctx context.Context) ([]models.User, error) {
	return nil, errNotImplemented
}

func (f *fakeStore) AddUser(ctx context.Context, user models.User, password string) (models.User, error) {
	if f.addUser != nil {
		return f.addUser(ctx, user, password)
	}
	return models.User{}, errNotImplemented
}

func (f *fakeStore) GetSettings(ctx context.Context) (models.Settings, error) {
	if f.getSettings != nil {
		return f.getSettings(ctx)
	}
	return models.DefaultSettings(), nil
}

func (f *fakeStore) UpdateSettings(ctx context.Context, settings models.Settings) error {
	return errNotImplemented
}

func (f *fakeStore) Login(ctx context.Context, mobile, password string) (store.Session, error) {
	if f.login != nil {
		return f.login(ctx, mobile, password)
	}
	return store.Session{}, errNotImplemented
}

func (f *fakeStore) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	if f.getSession != nil {
		return f.getSession(ctx, sessionID)
	}
	return store.Session{}, store.ErrSessionNotFound
}

type fakeEstimator struct {
	minutes int
	calls   int
}

func (f *fakeEstimator) WaitTime(_ context.Context, _ models.Branch, _ []models.Booking, _ float64) int {
	f.calls++
	return f.minutes
}

func doRequest(handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateBookingCreated(t *testing.T) {
	fake := &fakeStore{
		createBooking: func(_ context.Context, input store.CreateBookingInput) (models.Booking, bool, error) {
			if input.BookingType != models.TypeWaitlist {
				t.Fatalf("booking type = %q", input.BookingType)
			}
			return models.Booking{ID: "001", Status: models.StatusWaiting}, true, nil
		},
	}
	h := NewHandler(fake, Options{})

	rec := doRequest(h.Routes(), http.MethodPost, "/api/bookings",
		`{"branch_id":"b1","booking_type":"waitlist","name":"سارة","mobile":"0512345678","guests":2,"agreed_to_notifications":true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	var booking models.Booking
	if err := json.Unmarshal(rec.Body.Bytes(), &booking); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if booking.ID != "001" {
		t.Fatalf("id = %q", booking.ID)
	}
}

func TestCreateBookingDuplicate(t *testing.T) {
	fake := &fakeStore{
		createBooking: func(context.Context, store.CreateBookingInput) (models.Booking, bool, error) {
			return models.Booking{ID: "001", Status: models.StatusWaiting}, false, nil
		},
	}
	h := NewHandler(fake, Options{})

	rec := doRequest(h.Routes(), http.MethodPost, "/api/bookings",
		`{"branch_id":"b1","booking_type":"waitlist","name":"سارة","mobile":"0512345678","guests":2}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp duplicateBookingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Duplicate || resp.Booking.ID != "001" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestCreateBookingValidation(t *testing.T) {
	h := NewHandler(&fakeStore{}, Options{})

	cases := []struct {
		name string
		body string
	}{
		{"missing fields", `{"booking_type":"waitlist","guests":2}`},
		{"bad type", `{"branch_id":"b1","booking_type":"drivethrough","name":"x","mobile":"0512345678","guests":2}`},
		{"zero guests", `{"branch_id":"b1","booking_type":"waitlist","name":"x","mobile":"0512345678","guests":0}`},
		{"bad seating", `{"branch_id":"b1","booking_type":"waitlist","name":"x","mobile":"0512345678","guests":2,"seating_area":"rooftop"}`},
		{"bad json", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(h.Routes(), http.MethodPost, "/api/bookings", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestGetBookingNotFound(t *testing.T) {
	fake := &fakeStore{
		getBooking: func(context.Context, string) (models.Booking, error) {
			return models.Booking{}, store.ErrBookingNotFound
		},
	}
	h := NewHandler(fake, Options{})

	rec := doRequest(h.Routes(), http.MethodGet, "/api/bookings/999", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error.Code != "booking_not_found" {
		t.Fatalf("code = %q", resp.Error.Code)
	}
}

func TestActiveBookingNoContent(t *testing.T) {
	fake := &fakeStore{
		findActive: func(context.Context, string) (models.Booking, bool, error) {
			return models.Booking{}, false, nil
		},
	}
	h := NewHandler(fake, Options{})

	rec := doRequest(h.Routes(), http.MethodGet, "/api/bookings/active?mobile=0512345678", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestWaitTimeComputesAndPersists(t *testing.T) {
	persisted := 0
	fake := &fakeStore{
		getBooking: func(context.Context, string) (models.Booking, error) {
			return models.Booking{ID: "003", BranchID: "b1", Status: models.StatusWaiting}, nil
		},
		getBranch: func(context.Context, string) (models.Branch, error) {
			return models.Branch{ID: "b1"}, nil
		},
		listQueue: func(context.Context, string) ([]models.Booking, error) {
			return make([]models.Booking, 3), nil
		},
		averageVisit: func(context.Context, string) (float64, error) {
			return 45, nil
		},
		setEstimate: func(_ context.Context, id string, minutes int) error {
			if id != "003" {
				t.Fatalf("persist id = %q", id)
			}
			persisted = minutes
			return nil
		},
	}
	estimator := &fakeEstimator{minutes: 25}
	h := NewHandler(fake, Options{Estimator: estimator})

	rec := doRequest(h.Routes(), http.MethodGet, "/api/bookings/003/wait-time", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp waitTimeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.EstimatedWaitTime != 25 || persisted != 25 {
		t.Fatalf("estimate = %d persisted = %d", resp.EstimatedWaitTime, persisted)
	}
	if estimator.calls != 1 {
		t.Fatalf("estimator calls = %d", estimator.calls)
	}
}

func TestWaitTimeShortCircuitsOnStoredEstimate(t *testing.T) {
	fake := &fakeStore{
		getBooking: func(context.Context, string) (models.Booking, error) {
			return models.Booking{ID: "003", BranchID: "b1", EstimatedWaitTime: 30}, nil
		},
	}
	estimator := &fakeEstimator{minutes: 99}
	h := NewHandler(fake, Options{Estimator: estimator})

	rec := doRequest(h.Routes(), http.MethodGet, "/api/bookings/003/wait-time", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp waitTimeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.EstimatedWaitTime != 30 {
		t.Fatalf("estimate = %d, want stored 30", resp.EstimatedWaitTime)
	}
	if estimator.calls != 0 {
		t.Fatalf("estimator called %d times for a stored estimate", estimator.calls)
	}
}

func TestServingEndpoint(t *testing.T) {
	fake := &fakeStore{
		currentlyServing: func(_ context.Context, branchID string) (string, error) {
			return "---", nil
		},
	}
	h := NewHandler(fake, Options{})

	rec := doRequest(h.Routes(), http.MethodGet, "/api/serving", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing branch status = %d", rec.Code)
	}

	rec = doRequest(h.Routes(), http.MethodGet, "/api/serving?branch_id=b1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp servingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.BookingID != "---" {
		t.Fatalf("booking id = %q", resp.BookingID)
	}
}

func TestLogin(t *testing.T) {
	fake := &fakeStore{
		login: func(_ context.Context, mobile, password string) (store.Session, error) {
			if password != "s3cret" {
				return store.Session{}, store.ErrInvalidCredentials
			}
			return store.Session{SessionID: "sess-1", Role: models.RoleAdmin, BranchID: models.BranchAll}, nil
		},
	}
	h := NewHandler(fake, Options{})

	rec := doRequest(h.Routes(), http.MethodPost, "/api/login", `{"mobile":"0599999999","password":"nope"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status = %d", rec.Code)
	}

	rec = doRequest(h.Routes(), http.MethodPost, "/api/login", `{"mobile":"0599999999","password":"s3cret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.SessionID != "sess-1" || resp.Role != models.RoleAdmin {
		t.Fatalf("response = %+v", resp)
	}
}

func TestAuthMiddlewareProtectsStaffEndpoints(t *testing.T) {
	fake := &fakeStore{
		updateBooking: func(_ context.Context, id string, upd store.BookingUpdate) (models.Booking, error) {
			return models.Booking{ID: id, Status: upd.Status}, nil
		},
		getSession: func(_ context.Context, sessionID string) (store.Session, error) {
			if sessionID == "valid" {
				return store.Session{SessionID: "valid", Role: models.RoleStaff}, nil
			}
			return store.Session{}, store.ErrSessionNotFound
		},
	}
	h := NewHandler(fake, Options{})
	handler := AuthMiddleware(fake, h.Routes())

	req := httptest.NewRequest(http.MethodPatch, "/api/bookings/001", strings.NewReader(`{"status":"seated"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no session status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPatch, "/api/bookings/001", strings.NewReader(`{"status":"seated"}`))
	req.Header.Set("Authorization", "Bearer valid")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid session status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestUserCreationRequiresAdmin(t *testing.T) {
	fake := &fakeStore{
		addUser: func(_ context.Context, user models.User, _ string) (models.User, error) {
			user.ID = "u1"
			return user, nil
		},
		getSession: func(_ context.Context, sessionID string) (store.Session, error) {
			switch sessionID {
			case "staff":
				return store.Session{SessionID: "staff", Role: models.RoleStaff}, nil
			case "admin":
				return store.Session{SessionID: "admin", Role: models.RoleAdmin}, nil
			}
			return store.Session{}, store.ErrSessionNotFound
		},
	}
	h := NewHandler(fake, Options{})
	handler := AuthMiddleware(fake, h.Routes())

	body := `{"name":"موظف","mobile":"0588888888","password":"x","role":"staff"}`

	req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer staff")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("staff status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer admin")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestSettingsHideCredentialsFromPublic(t *testing.T) {
	fake := &fakeStore{
		getSettings: func(context.Context) (models.Settings, error) {
			settings := models.DefaultSettings()
			settings.Notifications.Msegat.APIKey = "msegat-api-key"
			settings.Notifications.Karzoun.AuthKey = "karzoun-auth-key"
			return settings, nil
		},
		getSession: func(_ context.Context, sessionID string) (store.Session, error) {
			if sessionID == "admin" {
				return store.Session{SessionID: "admin", Role: models.RoleAdmin}, nil
			}
			return store.Session{}, store.ErrSessionNotFound
		},
	}
	h := NewHandler(fake, Options{})
	handler := AuthMiddleware(fake, h.Routes())

	req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("public status = %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "msegat-api-key") || strings.Contains(body, "karzoun-auth-key") {
		t.Fatalf("credentials leaked on public path: %s", body)
	}
	if !strings.Contains(body, "restaurant_name") || !strings.Contains(body, "customer_ui") {
		t.Fatalf("customer fields missing from public body: %s", body)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	req.Header.Set("Authorization", "Bearer admin")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("staff status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "msegat-api-key") {
		t.Fatalf("full settings missing for staff session: %s", rec.Body.String())
	}
}

func TestWaitTimeStatsEndpoint(t *testing.T) {
	completedAt := time.Date(2025, time.May, 10, 13, 0, 0, 0, time.UTC)
	fake := &fakeStore{
		listBookings: func(context.Context, string) ([]models.Booking, error) {
			return []models.Booking{
				{
					BranchID:          "b1",
					Status:            models.StatusCompleted,
					EstimatedWaitTime: 20,
					CreatedAt:         time.Date(2025, time.May, 10, 12, 0, 0, 0, time.UTC),
					CompletedAt:       &completedAt,
				},
			}, nil
		},
	}
	h := NewHandler(fake, Options{})

	rec := doRequest(h.Routes(), http.MethodGet, "/api/stats/wait-times?year=2025&month=all", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var buckets []struct {
		Label string `json:"label"`
		Value int    `json:"value"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &buckets); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(buckets) != 12 {
		t.Fatalf("buckets = %d, want 12", len(buckets))
	}
	if buckets[4].Value != 20 {
		t.Fatalf("May = %d, want 20", buckets[4].Value)
	}

	rec = doRequest(h.Routes(), http.MethodGet, "/api/stats/wait-times?month=13", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad month status = %d", rec.Code)
	}
}

func TestVisitLogExport(t *testing.T) {
	fake := &fakeStore{
		listBookings: func(context.Context, string) ([]models.Booking, error) {
			return []models.Booking{
				{Name: "سارة", Mobile: "+966512345678", Status: models.StatusCompleted},
			}, nil
		},
	}
	h := NewHandler(fake, Options{})

	rec := doRequest(h.Routes(), http.MethodGet, "/api/stats/visit-log.csv", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/csv") {
		t.Fatalf("content type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "Name,Mobile,VisitCount") {
		t.Fatalf("body = %q", body)
	}
	if !strings.Contains(body, "0512345678") {
		t.Fatalf("mobile not rendered in local form: %q", body)
	}
}

func TestRateLimiterThrottlesByIP(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 60, IPBurst: 2})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := limiter.Middleware(inner)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("burst requests rejected: %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", codes[2])
	}
}
