package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/cameronmore/go-admin-sessions/sessions"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type ctxKey string

const (
	requestIdKey ctxKey = "request_id"
	adminUserKey ctxKey = "admin_user"
)

const RequestIdHeader = "X-Request-Id"

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// The account as rendered over HTTP, without the password.
type accountView struct {
	Username  string             `json:"username"`
	CreatedAt sessions.Timestamp `json:"createdAt"`
}

func newAccountView(a sessions.Account) *accountView {
	return &accountView{Username: a.Username, CreatedAt: a.CreatedAt}
}

type loginResponse struct {
	Success bool         `json:"success"`
	User    *accountView `json:"user,omitempty"`
	Token   string       `json:"token,omitempty"`
	Message string       `json:"message,omitempty"`
}

type statusResponse struct {
	IsLoggedIn bool         `json:"isLoggedIn"`
	User       *accountView `json:"user"`
}

// Returns a chi router exposing the admin session under /admin.
func (ac *AuthContext) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestIdMiddleware)
	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", ac.LoginHandler)
		r.Post("/logout", ac.LogoutHandler)
		r.Get("/status", ac.StatusHandler)
		r.Group(func(r chi.Router) {
			r.Use(ac.Authmiddleware)
			r.Get("/accounts", ac.ListAccountsHandler)
			r.Post("/accounts", ac.AddAccountHandler)
		})
	})
	return r
}

// Tags every request with a uuid, echoed back in the X-Request-Id header.
func RequestIdMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestId := r.Header.Get(RequestIdHeader)
		if requestId == "" {
			requestId = uuid.NewString()
		}
		w.Header().Set(RequestIdHeader, requestId)
		ctx := context.WithValue(r.Context(), requestIdKey, requestId)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestLogger(r *http.Request) *log.Entry {
	requestId, _ := r.Context().Value(requestIdKey).(string)
	return log.WithFields(log.Fields{
		"request_id": requestId,
		"method":     r.Method,
		"path":       r.URL.Path,
	})
}

// Returns the admin account attached by Authmiddleware.
func AdminUserFromContext(ctx context.Context) (sessions.Account, bool) {
	account, ok := ctx.Value(adminUserKey).(sessions.Account)
	return account, ok
}

func readCredentials(r *http.Request) (credentials, error) {
	var creds credentials
	bodyData, err := io.ReadAll(r.Body)
	if err != nil {
		return creds, err
	}
	err = json.Unmarshal(bodyData, &creds)
	return creds, err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("auth: write response: %s", err)
	}
}

// Handles the login of an admin.
//
// The expected request to this endpoint is a JSON object with the form:
//
// { "username" : "VALUE", "password" : "PASSWORD" }
func (ac *AuthContext) LoginHandler(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r)
	creds, err := readCredentials(r)
	if err != nil {
		logger.Debugf("bad login request: %s", err)
		http.Error(w, "Malformed login request", http.StatusBadRequest)
		return
	}

	result, err := ac.Login(r.Context(), creds.Username, creds.Password)
	if err != nil {
		logger.Errorf("Error logging in user %s: %s", creds.Username, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if !result.Success {
		writeJSON(w, http.StatusUnauthorized, loginResponse{Success: false, Message: result.Message})
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Success: true,
		User:    newAccountView(*result.User),
		Token:   result.Token,
	})
}

// Logs out the admin. There is no expected request body for this endpoint.
func (ac *AuthContext) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := ac.Logout(r.Context()); err != nil {
		requestLogger(r).Errorf("Error clearing session: %s", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Write([]byte("Logged out"))
}

func (ac *AuthContext) StatusHandler(w http.ResponseWriter, r *http.Request) {
	status, err := ac.CheckLoginStatus(r.Context())
	if err != nil {
		requestLogger(r).Errorf("Error checking login status: %s", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	resp := statusResponse{IsLoggedIn: status.IsLoggedIn}
	if status.User != nil {
		resp.User = newAccountView(*status.User)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (ac *AuthContext) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := ac.GetAdminAccounts(r.Context())
	if err != nil {
		requestLogger(r).Errorf("Error loading admin accounts: %s", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	views := make([]*accountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, newAccountView(a))
	}
	writeJSON(w, http.StatusOK, views)
}

// Adds an admin account. The request body has the same form as the login request.
func (ac *AuthContext) AddAccountHandler(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r)
	creds, err := readCredentials(r)
	if err != nil {
		http.Error(w, "Malformed account request", http.StatusBadRequest)
		return
	}

	account, err := ac.AddAdminAccount(r.Context(), creds.Username, creds.Password)
	switch {
	case errors.Is(err, sessions.ErrUsernameRequired), errors.Is(err, sessions.ErrPasswordRequired):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, sessions.ErrUsernameExists):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		logger.Errorf("Error adding admin account %s: %s", creds.Username, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, newAccountView(account))
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return ""
	}
	return strings.TrimSpace(token)
}

// A middleware that lets a request through only if there is a valid admin session and the request
// carries its token as a bearer token.
func (ac *AuthContext) Authmiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if err := sessions.CheckToken(token); err != nil {
			requestLogger(r).Debugf("rejected bearer token: %s", err)
			http.Error(w, "Not authenticated, no session token", http.StatusUnauthorized)
			return
		}

		status, err := ac.CheckLoginStatus(r.Context())
		if err != nil {
			requestLogger(r).Errorf("Error loading session: %s", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if !status.IsLoggedIn || subtle.ConstantTimeCompare([]byte(*status.Token), []byte(token)) != 1 {
			http.Error(w, "Unauthorized: no active session for this token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), adminUserKey, *status.User)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
