package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"classbank/internal/domain/ledger"
	"classbank/internal/domain/session"
	"classbank/internal/domain/user"
	"classbank/internal/shared/auth"
	"classbank/internal/store"
)

type testEnv struct {
	store    *store.Memory
	users    *user.Registry
	ledgers  *ledger.Service
	sessions *session.Manager
	tokens   *auth.Tokens
}

func newTestEnv() *testEnv {
	mem := store.NewMemory()
	users := user.NewRegistry(mem)
	ledgers := ledger.NewService(mem, 100)
	return &testEnv{
		store:    mem,
		users:    users,
		ledgers:  ledgers,
		sessions: session.NewManager(mem, users, ledgers, "teacher123"),
		tokens:   auth.NewTokens("test-secret"),
	}
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandleLogin(t *testing.T) {
	env := newTestEnv()
	h := NewAuthHandler(env.sessions, env.users, env.tokens)

	tests := []struct {
		name           string
		request        LoginRequest
		expectedStatus int
	}{
		{
			name:           "demo student",
			request:        LoginRequest{Role: "student", Username: "student", Password: "demo123"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "demo admin",
			request:        LoginRequest{Role: "admin", Username: "admin", Password: "admin123"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "wrong password",
			request:        LoginRequest{Role: "student", Username: "student", Password: "nope"},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "unknown user",
			request:        LoginRequest{Role: "student", Username: "ghost", Password: "secret1"},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "bad role",
			request:        LoginRequest{Role: "root", Username: "student", Password: "demo123"},
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h.HandleLogin, "/api/auth/login", tt.request)
			if rec.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.expectedStatus, rec.Body.String())
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}

			var resp AuthResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Token == "" {
				t.Error("response has no token")
			}
			if _, err := env.tokens.Validate(resp.Token); err != nil {
				t.Errorf("returned token does not validate: %v", err)
			}

			cookies := rec.Result().Cookies()
			found := false
			for _, c := range cookies {
				if c.Name == "access_token" && c.HttpOnly {
					found = true
				}
			}
			if !found {
				t.Error("no HttpOnly access_token cookie set")
			}
		})
	}
}

func TestHandleSignup(t *testing.T) {
	env := newTestEnv()
	h := NewAuthHandler(env.sessions, env.users, env.tokens)

	rec := postJSON(t, h.HandleSignup, "/api/auth/signup", SignupRequest{
		Role:            "student",
		Username:        "alice",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		TeacherID:       "admin1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	var resp AuthResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.User.UserID != "student_alice" {
		t.Errorf("user id = %q, want student_alice", resp.User.UserID)
	}

	// Same username again conflicts.
	rec = postJSON(t, h.HandleSignup, "/api/auth/signup", SignupRequest{
		Role:            "student",
		Username:        "alice",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		TeacherID:       "admin1",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate signup status = %d, want 409", rec.Code)
	}

	// Validation failures are 400s.
	rec = postJSON(t, h.HandleSignup, "/api/auth/signup", SignupRequest{
		Role:            "admin",
		Username:        "jones",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		AdminCode:       "wrong",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad admin code status = %d, want 400", rec.Code)
	}
}

func TestHandleTeachers(t *testing.T) {
	env := newTestEnv()
	h := NewAuthHandler(env.sessions, env.users, env.tokens)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/teachers", nil)
	rec := httptest.NewRecorder()
	h.HandleTeachers(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var teachers []user.Teacher
	if err := json.Unmarshal(rec.Body.Bytes(), &teachers); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(teachers) != 1 || teachers[0].ID != "admin1" {
		t.Errorf("teachers = %v, want just the demo admin", teachers)
	}
}

func TestHandleCheckUsername(t *testing.T) {
	env := newTestEnv()
	h := NewAuthHandler(env.sessions, env.users, env.tokens)

	postJSON(t, h.HandleSignup, "/api/auth/signup", SignupRequest{
		Role:            "student",
		Username:        "alice",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		TeacherID:       "admin1",
	})

	tests := []struct {
		name          string
		query         string
		wantStatus    int
		wantAvailable bool
	}{
		{"free username", "?username=bob", http.StatusOK, true},
		{"taken username", "?username=alice&role=student", http.StatusOK, false},
		{"taken for one role only", "?username=alice&role=admin", http.StatusOK, true},
		{"reserved demo username", "?username=student", http.StatusOK, false},
		{"missing username", "", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/check-username"+tt.query, nil)
			rec := httptest.NewRecorder()
			h.HandleCheckUsername(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp map[string]bool
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp["available"] != tt.wantAvailable {
				t.Errorf("available = %v, want %v", resp["available"], tt.wantAvailable)
			}
		})
	}
}

func TestHandleLogout(t *testing.T) {
	env := newTestEnv()
	h := NewAuthHandler(env.sessions, env.users, env.tokens)

	postJSON(t, h.HandleLogin, "/api/auth/login", LoginRequest{
		Role: "student", Username: "student", Password: "demo123",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	rec := httptest.NewRecorder()
	h.HandleLogout(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}

	expired := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == "access_token" && c.MaxAge < 0 {
			expired = true
		}
	}
	if !expired {
		t.Error("logout did not expire the access_token cookie")
	}
}
