package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/glr76/PlannyWeb/internal/config"
	"github.com/glr76/PlannyWeb/internal/obs"
)

const maxLoginBody = 16 << 10

type Options struct {
	Users        Users
	Secret       string
	SessionTTL   time.Duration
	CookieSecure bool
	// OpenWrites lets anonymous callers write when no users are
	// configured, as the local disk variant did.
	OpenWrites bool
	Throttle   *LoginThrottle
	Logger     zerolog.Logger
	Metrics    *obs.Metrics
	Now        func() time.Time
}

type Authenticator struct {
	users        Users
	sessions     *Sessions
	cookieSecure bool
	openWrites   bool
	throttle     *LoginThrottle
	logger       zerolog.Logger
	metrics      *obs.Metrics
}

type contextKey struct{}

func New(opts Options) (*Authenticator, error) {
	sessions, err := NewSessions(opts.Secret, opts.SessionTTL, opts.Now)
	if err != nil {
		return nil, err
	}
	users := opts.Users
	if users == nil {
		users = Users{}
	}
	return &Authenticator{
		users:        users,
		sessions:     sessions,
		cookieSecure: opts.CookieSecure,
		openWrites:   opts.OpenWrites,
		throttle:     opts.Throttle,
		logger:       obs.Component(opts.Logger, "auth"),
		metrics:      opts.Metrics,
	}, nil
}

// FromConfig builds an Authenticator from the auth section. A malformed
// users document is logged and leaves the service with no users.
func FromConfig(cfg config.AuthConfig, logger zerolog.Logger, metrics *obs.Metrics) (*Authenticator, error) {
	users, err := ParseUsers(cfg.UsersJSON)
	if err != nil {
		authLog := obs.Component(logger, "auth")
		authLog.Error().Err(err).Msg("USERS_JSON is malformed, no users loaded")
		users = Users{}
	}
	return New(Options{
		Users:        users,
		Secret:       cfg.SessionSecret,
		SessionTTL:   time.Duration(cfg.SessionTTLMS) * time.Millisecond,
		CookieSecure: cfg.CookieSecure,
		OpenWrites:   cfg.OpenWrites,
		Throttle:     NewLoginThrottle(ThrottleFromConfig(cfg)),
		Logger:       logger,
		Metrics:      metrics,
	})
}

func (a *Authenticator) Sessions() *Sessions {
	return a.sessions
}

// Session returns the claims of a valid session cookie on r.
func (a *Authenticator) Session(r *http.Request) (Claims, bool) {
	if claims, ok := r.Context().Value(contextKey{}).(Claims); ok {
		return claims, true
	}
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return Claims{}, false
	}
	claims, err := a.sessions.Parse(cookie.Value)
	if err != nil {
		return Claims{}, false
	}
	return claims, true
}

// Authorize checks that r carries a session allowed to act with min.
func (a *Authenticator) Authorize(r *http.Request, min Role) (Claims, error) {
	claims, ok := a.Session(r)
	if !ok {
		if a.openWrites && len(a.users) == 0 {
			return Claims{Role: RoleWrite}, nil
		}
		return Claims{}, errAuthRequired
	}
	if !claims.Role.Allows(min) {
		return claims, errPermissionDenied
	}
	return claims, nil
}

func (a *Authenticator) RequireRole(min Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.Authorize(r, min)
		if err != nil {
			var authErr *AuthError
			if errors.As(err, &authErr) {
				writeError(w, authErr)
				return
			}
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		if claims.User != "" {
			SetUser(r.Context(), claims.User)
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, claims)))
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *Authenticator) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if wait, ok := a.throttle.Check(r.RemoteAddr); !ok {
		a.metrics.RecordLoginFailure("rate_limited")
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		writeError(w, errTooManyAttempts)
		return
	}

	var req loginRequest
	data, err := io.ReadAll(io.LimitReader(r.Body, maxLoginBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid request body"})
		return
	}
	if err := json.Unmarshal(data, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid JSON"})
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		a.metrics.RecordLoginFailure("missing")
		writeError(w, errMissingCreds)
		return
	}

	user, ok := a.users[username]
	if !ok || !VerifyPassword(req.Password, user.PasswordHash) {
		a.throttle.Failed(r.RemoteAddr)
		a.metrics.RecordLoginFailure("invalid")
		a.logger.Info().Str("user", username).Msg("login rejected")
		writeError(w, errInvalidCreds)
		return
	}
	a.throttle.Succeeded(r.RemoteAddr)

	token, claims, err := a.sessions.Issue(username, user.Role)
	if err != nil {
		a.logger.Error().Err(err).Msg("issue session")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "session error"})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  claims.ExpiresAt,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	SetUser(r.Context(), username)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "user": username, "role": user.Role})
}

func (a *Authenticator) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *Authenticator) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := a.Session(r)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "user": nil, "role": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "user": claims.User, "role": claims.Role})
}

func writeError(w http.ResponseWriter, err *AuthError) {
	writeJSON(w, err.Status, map[string]any{"ok": false, "error": err.Message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
