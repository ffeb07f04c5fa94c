package rbac

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/stockbook/stockbook/internal/platform/httpx"
	"github.com/stockbook/stockbook/internal/shared"
)

const deniedMessage = "Your role does not allow this action."

// Middleware guards routes by the permissions of the signed-in role.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny passes when the role holds at least one of perms.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.guard(perms, false)
}

// RequireAll passes only when the role holds every one of perms.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.guard(perms, true)
}

func (m Middleware) guard(perms []string, all bool) func(http.Handler) http.Handler {
	required := make([]string, 0, len(perms))
	for _, p := range perms {
		if p = strings.TrimSpace(strings.ToLower(p)); p != "" {
			required = append(required, p)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if len(required) == 0 || (sess != nil && sess.User() != "" && satisfied(sess.Role(), required, all)) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil && sess != nil {
				m.Logger.Warn("permission denied",
					slog.String("user_id", sess.User()),
					slog.String("role", sess.Role()),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Any("required", required))
			}
			deny(w, r, sess)
		})
	}
}

func satisfied(role string, required []string, all bool) bool {
	for _, p := range required {
		ok := Allowed(role, p)
		if ok && !all {
			return true
		}
		if !ok && all {
			return false
		}
	}
	return all
}

// deny answers JSON clients with a problem document. A browser form post is
// sent back where it came from with a flash so the page explains itself.
func deny(w http.ResponseWriter, r *http.Request, sess *shared.Session) {
	switch {
	case strings.HasPrefix(r.URL.Path, "/api/"):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", deniedMessage)
	case sess == nil || r.Method == http.MethodGet:
		http.Error(w, deniedMessage, http.StatusForbidden)
	default:
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: deniedMessage})
		http.Redirect(w, r, backTo(r), http.StatusSeeOther)
	}
}

// backTo returns the referring path when it points at this host, else "/".
func backTo(r *http.Request) string {
	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Path == "" || !strings.HasPrefix(ref.Path, "/") {
		return "/"
	}
	if ref.Host != "" && ref.Host != r.Host {
		return "/"
	}
	if strings.HasPrefix(ref.Path, "//") {
		return "/"
	}
	if ref.RawQuery != "" {
		return ref.Path + "?" + ref.RawQuery
	}
	return ref.Path
}
