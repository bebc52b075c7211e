package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"classbank/internal/domain/session"
	"classbank/internal/domain/user"
	"classbank/internal/shared/auth"
	"classbank/internal/shared/middleware"
)

// AuthHandler serves login, signup and session endpoints.
type AuthHandler struct {
	sessions *session.Manager
	users    *user.Registry
	tokens   *auth.Tokens
}

func NewAuthHandler(sessions *session.Manager, users *user.Registry, tokens *auth.Tokens) *AuthHandler {
	return &AuthHandler{sessions: sessions, users: users, tokens: tokens}
}

type LoginRequest struct {
	Role     string `json:"role"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type SignupRequest struct {
	Role            string `json:"role"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	AdminCode       string `json:"adminCode"`
	TeacherID       string `json:"teacherId"`
}

type AuthResponse struct {
	Token string           `json:"token"`
	User  *session.Session `json:"user"`
}

// HandleLogin authenticates with role, username and password and sets
// the session cookie.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sess, err := h.sessions.Login(r.Context(), req.Role, req.Username, req.Password)
	if errors.Is(err, session.ErrInvalidCredentials) || errors.Is(err, session.ErrInvalidRole) {
		http.Error(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}
	if err != nil {
		log.Printf("Error logging in %s/%s: %v", req.Role, req.Username, err)
		http.Error(w, "Failed to log in", http.StatusInternalServerError)
		return
	}

	h.respondWithToken(w, r, sess)
}

// HandleSignup registers a new account and logs it in.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sess, err := h.sessions.Signup(r.Context(), session.SignupParams{
		Role:            req.Role,
		Username:        req.Username,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		AdminCode:       req.AdminCode,
		TeacherID:       req.TeacherID,
	})
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, user.ErrUsernameTaken) {
			status = http.StatusConflict
		} else if !isValidationError(err) {
			log.Printf("Error signing up %s/%s: %v", req.Role, req.Username, err)
			status = http.StatusInternalServerError
		}
		http.Error(w, err.Error(), status)
		return
	}

	h.respondWithToken(w, r, sess)
}

func isValidationError(err error) bool {
	for _, v := range []error{
		session.ErrInvalidUsername,
		session.ErrReservedUsername,
		session.ErrPasswordTooShort,
		session.ErrPasswordMismatch,
		session.ErrInvalidAdminCode,
		session.ErrTeacherRequired,
		session.ErrInvalidRole,
	} {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

// HandleLogout clears the session cookie and the persisted session.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.sessions.Logout(r.Context()); err != nil {
		log.Printf("Error logging out: %v", err)
		http.Error(w, "Failed to log out", http.StatusInternalServerError)
		return
	}

	clearAuthCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// HandleMe returns the authenticated user's identity.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":   middleware.UserID(r.Context()),
		"name": middleware.UserName(r.Context()),
		"role": middleware.Role(r.Context()),
	})
}

// HandleTeachers lists the admins offered in the signup teacher picker.
// Unauthenticated: the signup form needs it.
func (h *AuthHandler) HandleTeachers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	teachers, err := h.users.Teachers(r.Context())
	if err != nil {
		log.Printf("Error listing teachers: %v", err)
		http.Error(w, "Failed to list teachers", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, teachers)
}

// HandleCheckUsername reports whether a username is still free for a
// role. Unauthenticated: the signup form checks while the user types.
func (h *AuthHandler) HandleCheckUsername(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	username := r.URL.Query().Get("username")
	if username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}
	role := r.URL.Query().Get("role")
	if role == "" {
		role = user.RoleStudent
	}

	available, err := h.users.UsernameAvailable(r.Context(), role, username)
	if err != nil {
		log.Printf("Error checking username %q: %v", username, err)
		http.Error(w, "Failed to check username", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"available": available})
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	token, err := h.tokens.Generate(sess.UserID, sess.Name, sess.Role)
	if err != nil {
		log.Printf("Error generating token for %s: %v", sess.UserID, err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	setAuthCookie(w, r, token)
	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: sess})
}

func setAuthCookie(w http.ResponseWriter, r *http.Request, token string) {
	// Secure only when the request actually came over HTTPS.
	secure := r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"

	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   86400, // matches token expiry
	})
}

func clearAuthCookie(w http.ResponseWriter, r *http.Request) {
	secure := r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"

	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
