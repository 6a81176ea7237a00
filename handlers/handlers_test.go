package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"campusconnect/auth"
	"campusconnect/db"
	"campusconnect/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	db     *db.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := db.Open(context.Background(), db.Config{DSN: "file:" + filepath.Join(t.TempDir(), "api.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	router := NewRouter(RouterConfig{
		DB:             store,
		Tokens:         auth.NewIssuer("test-secret-0123456789", "campusconnect", 7*24*time.Hour, nil),
		Logger:         slog.New(slog.NewJSONHandler(io.Discard, nil)),
		FrontendURL:    "http://localhost:3000",
		RequestTimeout: 5 * time.Second,
	})
	return &testServer{t: t, router: router, db: store}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			s.t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

type errorBody struct {
	Error   string `json:"error"`
	Details []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"details"`
}

func expect(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d: %s", rec.Code, status, rec.Body.String())
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	expect(t, rec, status)
	if got := decode[errorBody](t, rec).Error; got != message {
		t.Fatalf("error = %q, want %q", got, message)
	}
}

// signup creates an account and returns its token and id.
func (s *testServer) signup(email string) (token, id string) {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": email, "password": "user123", "name": "Student",
	})
	expect(s.t, rec, http.StatusCreated)
	resp := decode[authResponse](s.t, rec)
	return resp.Token, resp.User.ID
}

// admin creates an admin account and returns a token for it.
func (s *testServer) admin() string {
	s.t.Helper()
	token, id := s.signup("admin@campusconnect.com")
	if _, err := s.db.UpdateRole(context.Background(), id, models.RoleAdmin); err != nil {
		s.t.Fatalf("promote admin: %v", err)
	}
	return token
}

func (s *testServer) createEvent(adminToken string, body map[string]any) models.Event {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/events", adminToken, body)
	expect(s.t, rec, http.StatusCreated)
	return decode[struct {
		Event models.Event `json:"event"`
	}](s.t, rec).Event
}

func eventBody(capacity any) map[string]any {
	return map[string]any{
		"title":       "Tech Fest 2025",
		"description": "Annual technical festival",
		"venue":       "Main Auditorium",
		"date":        time.Now().AddDate(0, 1, 0).Format("2006-01-02"),
		"time":        "10:00 AM",
		"capacity":    capacity,
		"category":    "Technical",
	}
}

func TestHealthAndUnknownRoute(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/health", "", nil)
	expect(t, rec, http.StatusOK)
	if got := decode[map[string]string](t, rec)["status"]; got != "ok" {
		t.Fatalf("status = %q", got)
	}

	expectError(t, s.do(http.MethodGet, "/api/nope", "", nil), http.StatusNotFound, "Route not found")
}

func TestSignupAndLogin(t *testing.T) {
	s := newTestServer(t)
	s.signup("student1@example.com")

	expectError(t, s.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "Student1@example.com", "password": "user123", "name": "Again",
	}), http.StatusBadRequest, "User with this email already exists")

	rec := s.do(http.MethodPost, "/api/auth/signup", "", map[string]string{"email": "not-an-email", "password": "123"})
	expectError(t, rec, http.StatusBadRequest, "Validation failed")
	fields := map[string]bool{}
	for _, d := range decode[errorBody](t, rec).Details {
		fields[d.Field] = true
	}
	for _, f := range []string{"email", "password", "name"} {
		if !fields[f] {
			t.Errorf("missing validation detail for %q in %v", f, fields)
		}
	}

	rec = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "student1@example.com", "password": "user123"})
	expect(t, rec, http.StatusOK)
	login := decode[authResponse](t, rec)
	if login.Token == "" || login.User.Email != "student1@example.com" {
		t.Fatalf("login = %+v", login)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatal("password hash leaked into the response")
	}

	expectError(t, s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "student1@example.com", "password": "wrong!!"}),
		http.StatusUnauthorized, "Invalid credentials")
	expectError(t, s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ghost@example.com", "password": "user123"}),
		http.StatusUnauthorized, "Invalid credentials")
	expectError(t, s.do(http.MethodPost, "/api/auth/login", "", "{not json"), http.StatusBadRequest, "Invalid request body")
}

func TestProfile(t *testing.T) {
	s := newTestServer(t)
	token, id := s.signup("student1@example.com")
	_, _ = s.signup("student2@example.com")

	rec := s.do(http.MethodGet, "/api/profile", token, nil)
	expect(t, rec, http.StatusOK)
	if got := decode[models.User](t, rec); got.ID != id {
		t.Fatalf("profile id = %q, want %q", got.ID, id)
	}

	rec = s.do(http.MethodPut, "/api/profile", token, map[string]string{"name": "Student One", "rollNumber": "CS2021001"})
	expect(t, rec, http.StatusOK)

	other, _ := s.signup("student3@example.com")
	expectError(t, s.do(http.MethodPut, "/api/profile", other, map[string]string{"name": "Copycat", "rollNumber": "CS2021001"}),
		http.StatusBadRequest, "Roll number already registered")

	expectError(t, s.do(http.MethodGet, "/api/profile", "", nil), http.StatusUnauthorized, "Access token required")
}

func TestCreateEventAcceptsStringCapacity(t *testing.T) {
	s := newTestServer(t)
	admin := s.admin()

	event := s.createEvent(admin, eventBody("10"))
	if event.Capacity != 10 {
		t.Fatalf("capacity = %d, want 10", event.Capacity)
	}

	stored, err := s.db.Event(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("load event: %v", err)
	}
	if stored.Capacity != 10 {
		t.Fatalf("stored capacity = %d, want 10", stored.Capacity)
	}

	for _, bad := range []any{0, "-3", "ten", 2.5, "9999999999999"} {
		rec := s.do(http.MethodPost, "/api/events", admin, eventBody(bad))
		expect(t, rec, http.StatusBadRequest)
	}

	body := eventBody(5)
	body["date"] = "next tuesday"
	rec := s.do(http.MethodPost, "/api/events", admin, body)
	expectError(t, rec, http.StatusBadRequest, "Validation failed")
}

func TestNonAdminCannotChangeEvents(t *testing.T) {
	s := newTestServer(t)
	admin := s.admin()
	student, _ := s.signup("student1@example.com")
	event := s.createEvent(admin, eventBody(50))

	expectError(t, s.do(http.MethodPut, "/api/events/"+event.ID, student, map[string]any{"title": "Hijacked", "capacity": 1}),
		http.StatusForbidden, "Admin access required")
	expectError(t, s.do(http.MethodDelete, "/api/events/"+event.ID, student, nil), http.StatusForbidden, "Admin access required")
	expectError(t, s.do(http.MethodPost, "/api/events", student, eventBody(5)), http.StatusForbidden, "Admin access required")

	stored, err := s.db.Event(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("load event: %v", err)
	}
	if stored.Title != event.Title || stored.Capacity != 50 {
		t.Fatalf("event changed: %+v", stored)
	}
}

func TestAdminUpdatesAndDeletesEvent(t *testing.T) {
	s := newTestServer(t)
	admin := s.admin()
	event := s.createEvent(admin, eventBody(50))

	rec := s.do(http.MethodPut, "/api/events/"+event.ID, admin, map[string]any{"title": "Tech Fest 2026", "capacity": "75"})
	expect(t, rec, http.StatusOK)
	updated := decode[struct {
		Event models.Event `json:"event"`
	}](t, rec).Event
	if updated.Title != "Tech Fest 2026" || updated.Capacity != 75 || updated.Venue != event.Venue {
		t.Fatalf("updated = %+v", updated)
	}

	expectError(t, s.do(http.MethodPut, "/api/events/"+event.ID, admin, map[string]any{"title": "  "}),
		http.StatusBadRequest, "Validation failed")
	expectError(t, s.do(http.MethodPut, "/api/events/"+event.ID, admin, map[string]any{"imageUrl": "not a url"}),
		http.StatusBadRequest, "Validation failed")

	expect(t, s.do(http.MethodDelete, "/api/events/"+event.ID, admin, nil), http.StatusOK)
	expectError(t, s.do(http.MethodGet, "/api/events/"+event.ID, admin, nil), http.StatusNotFound, "Event not found")
}

func TestRegistrationLifecycle(t *testing.T) {
	s := newTestServer(t)
	admin := s.admin()
	student, _ := s.signup("student1@example.com")
	event := s.createEvent(admin, eventBody(5))

	rec := s.do(http.MethodPost, "/api/events/"+event.ID+"/register", student, nil)
	expect(t, rec, http.StatusCreated)
	reg := decode[struct {
		Registration models.Registration `json:"registration"`
	}](t, rec).Registration
	if reg.Token == "" || !strings.HasPrefix(reg.QRCode, "data:image/png;base64,") {
		t.Fatalf("registration = %+v", reg)
	}

	expectError(t, s.do(http.MethodPost, "/api/events/"+event.ID+"/register", student, nil),
		http.StatusBadRequest, "Already registered for this event")
	expectError(t, s.do(http.MethodPost, "/api/events/missing/register", student, nil),
		http.StatusNotFound, "Event not found")

	rec = s.do(http.MethodGet, "/api/events/"+event.ID, student, nil)
	expect(t, rec, http.StatusOK)
	view := decode[models.EventView](t, rec)
	if !view.IsRegistered || view.RegisteredCount != 1 || view.IsFull {
		t.Fatalf("view = %+v", view)
	}

	rec = s.do(http.MethodGet, "/api/registrations/my", student, nil)
	expect(t, rec, http.StatusOK)
	if mine := decode[[]models.Registration](t, rec); len(mine) != 1 || mine[0].Event == nil {
		t.Fatalf("my registrations = %+v", mine)
	}
	expect(t, s.do(http.MethodGet, "/api/registrations/"+reg.ID, student, nil), http.StatusOK)

	verifyPath := "/api/registrations/verify/" + reg.Token
	expectError(t, s.do(http.MethodGet, verifyPath, student, nil), http.StatusForbidden, "Admin access required")

	rec = s.do(http.MethodGet, verifyPath, admin, nil)
	expect(t, rec, http.StatusOK)
	first := decode[struct {
		Message      string              `json:"message"`
		Registration models.Registration `json:"registration"`
	}](t, rec)
	if first.Message != "Check-in successful" || !first.Registration.Attended {
		t.Fatalf("first verify = %+v", first)
	}

	rec = s.do(http.MethodGet, verifyPath, admin, nil)
	expect(t, rec, http.StatusOK)
	if msg := decode[map[string]any](t, rec)["message"]; msg != "Already checked in" {
		t.Fatalf("second verify message = %v", msg)
	}

	expectError(t, s.do(http.MethodGet, "/api/registrations/verify/CAMPUSCONNECT:bogus", admin, nil),
		http.StatusNotFound, "Invalid QR code")

	stranger, _ := s.signup("stranger@example.com")
	for _, token := range []string{student, stranger, admin} {
		expectError(t, s.do(http.MethodDelete, "/api/registrations/"+reg.ID, token, nil),
			http.StatusBadRequest, "Cannot cancel a registration after attending the event")
	}
}

func TestCapacityOneOverHTTP(t *testing.T) {
	s := newTestServer(t)
	admin := s.admin()
	a, _ := s.signup("a@example.com")
	b, _ := s.signup("b@example.com")
	event := s.createEvent(admin, eventBody(1))

	expect(t, s.do(http.MethodPost, "/api/events/"+event.ID+"/register", a, nil), http.StatusCreated)

	rec := s.do(http.MethodGet, "/api/events/"+event.ID, b, nil)
	expect(t, rec, http.StatusOK)
	if view := decode[models.EventView](t, rec); !view.IsFull || view.IsRegistered {
		t.Fatalf("view for B = %+v", view)
	}

	expectError(t, s.do(http.MethodPost, "/api/events/"+event.ID+"/register", b, nil), http.StatusBadRequest, "Event is full")
}

func TestCancelThenReregister(t *testing.T) {
	s := newTestServer(t)
	admin := s.admin()
	owner, _ := s.signup("owner@example.com")
	stranger, _ := s.signup("stranger@example.com")
	event := s.createEvent(admin, eventBody(1))

	rec := s.do(http.MethodPost, "/api/events/"+event.ID+"/register", owner, nil)
	expect(t, rec, http.StatusCreated)
	regID := decode[struct {
		Registration models.Registration `json:"registration"`
	}](t, rec).Registration.ID

	expectError(t, s.do(http.MethodGet, "/api/registrations/"+regID, stranger, nil), http.StatusForbidden, "Access denied")
	expectError(t, s.do(http.MethodDelete, "/api/registrations/"+regID, stranger, nil),
		http.StatusForbidden, "Not authorized to cancel this registration")

	expect(t, s.do(http.MethodDelete, "/api/registrations/"+regID, owner, nil), http.StatusOK)
	expectError(t, s.do(http.MethodDelete, "/api/registrations/"+regID, owner, nil), http.StatusNotFound, "Registration not found")

	rec = s.do(http.MethodGet, "/api/events/"+event.ID, owner, nil)
	expect(t, rec, http.StatusOK)
	if view := decode[models.EventView](t, rec); view.RegisteredCount != 0 || view.IsFull {
		t.Fatalf("after cancel = %+v", view)
	}

	expect(t, s.do(http.MethodPost, "/api/events/"+event.ID+"/register", owner, nil), http.StatusCreated)
}

func TestListEventsOverHTTP(t *testing.T) {
	s := newTestServer(t)
	admin := s.admin()
	for i := 0; i < 3; i++ {
		s.createEvent(admin, eventBody(10))
	}

	rec := s.do(http.MethodGet, "/api/events?page=2&limit=2&filter=upcoming&search=tech", admin, nil)
	expect(t, rec, http.StatusOK)
	list := decode[models.EventList](t, rec)
	if len(list.Events) != 1 || list.Metadata.TotalEvents != 3 || list.Metadata.TotalPages != 2 || list.Metadata.CurrentPage != 2 {
		t.Fatalf("list = %+v", list.Metadata)
	}

	rec = s.do(http.MethodGet, "/api/events?page=4611686018427387904", admin, nil)
	expectError(t, rec, http.StatusBadRequest, "Validation failed")
	if d := decode[errorBody](t, rec).Details; len(d) != 1 || d[0].Field != "page" {
		t.Fatalf("details = %+v", d)
	}

	rec = s.do(http.MethodGet, "/api/events?filter=soon", admin, nil)
	expectError(t, rec, http.StatusBadRequest, "Validation failed")
	if d := decode[errorBody](t, rec).Details; len(d) != 1 || d[0].Field != "filter" {
		t.Fatalf("details = %+v", d)
	}

	expectError(t, s.do(http.MethodGet, "/api/events", "", nil), http.StatusUnauthorized, "Access token required")
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	admin := s.admin()
	student, studentID := s.signup("student1@example.com")
	event := s.createEvent(admin, eventBody(10))
	expect(t, s.do(http.MethodPost, "/api/events/"+event.ID+"/register", student, nil), http.StatusCreated)

	expectError(t, s.do(http.MethodGet, "/api/admin/stats", student, nil), http.StatusForbidden, "Admin access required")

	rec := s.do(http.MethodGet, "/api/admin/stats", admin, nil)
	expect(t, rec, http.StatusOK)
	stats := decode[models.DashboardStats](t, rec)
	if stats.TotalUsers != 2 || stats.TotalEvents != 1 || stats.TotalRegistrations != 1 || stats.AttendanceRate != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(stats.PopularEvents) != 1 || stats.PopularEvents[0].RegistrationCount != 1 {
		t.Fatalf("popular = %+v", stats.PopularEvents)
	}

	rec = s.do(http.MethodGet, "/api/admin/events/"+event.ID+"/registrations", admin, nil)
	expect(t, rec, http.StatusOK)
	roster := decode[models.EventRegistrations](t, rec)
	if roster.Stats.Total != 1 || roster.Stats.Pending != 1 {
		t.Fatalf("roster stats = %+v", roster.Stats)
	}

	rec = s.do(http.MethodGet, "/api/events/"+event.ID+"/registrations", admin, nil)
	expect(t, rec, http.StatusOK)
	if regs := decode[[]models.Registration](t, rec); len(regs) != 1 || regs[0].User == nil {
		t.Fatalf("event registrations = %+v", regs)
	}

	rec = s.do(http.MethodGet, "/api/admin/users", admin, nil)
	expect(t, rec, http.StatusOK)
	if users := decode[[]models.UserWithCount](t, rec); len(users) != 2 {
		t.Fatalf("users = %d, want 2", len(users))
	}

	expectError(t, s.do(http.MethodPatch, "/api/admin/users/"+studentID+"/role", admin, map[string]string{"role": "ROOT"}),
		http.StatusBadRequest, "Validation failed")
	expectError(t, s.do(http.MethodPatch, "/api/admin/users/ghost/role", admin, map[string]string{"role": "ADMIN"}),
		http.StatusNotFound, "User not found")

	rec = s.do(http.MethodPatch, "/api/admin/users/"+studentID+"/role", admin, map[string]string{"role": "ADMIN"})
	expect(t, rec, http.StatusOK)

	// The promotion applies on the very next request with the old token.
	expect(t, s.do(http.MethodGet, "/api/admin/stats", student, nil), http.StatusOK)
}
