package httpx

import (
	"net/http"
	"strings"
)

// RequireAnyRole admits the caller only when the authenticated role set
// intersects required. It must run after AuthnMiddleware.
func RequireAnyRole(required ...string) Middleware {
	want := make(map[string]struct{}, len(required))
	for _, s := range required {
		want[s] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := ClaimsFromContext(r.Context()); !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			for _, have := range RolesFromContext(r.Context()) {
				if _, ok := want[have]; ok {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeRoleError(w, required...)
		})
	}
}

func writeRoleError(w http.ResponseWriter, required ...string) {
	w.Header().
		Set("WWW-Authenticate", `Bearer error="insufficient_role", roles="`+strings.Join(required, " ")+`"`)
	WriteError(w, http.StatusForbidden, "insufficient_role", "requires one of: "+strings.Join(required, ", "))
}
