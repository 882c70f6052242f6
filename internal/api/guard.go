package api

import (
	"net/http"

	"github.com/nerrad567/servicedesk-core/internal/auth"
)

// IdentityHandler handles a request whose caller has already been resolved
// and authorised. id is never nil.
type IdentityHandler func(w http.ResponseWriter, r *http.Request, id *auth.Identity)

// OptionalHandler handles a request where the caller may be anonymous. id is
// nil for anonymous callers and for callers whose credential failed
// verification.
type OptionalHandler func(w http.ResponseWriter, r *http.Request, id *auth.Identity)

// guard resolves the caller, checks req and hands the identity to next.
// A missing identity and an invalid credential both end in 401; a failed
// role check ends in 403.
func (s *Server) guard(req auth.Requirement, next IdentityHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := s.resolver.Resolve(r)
		if err != nil {
			s.logRejectedToken(r, err)
			writeAuthError(w, err)
			return
		}
		if err := req(id); err != nil {
			writeAuthError(w, err)
			return
		}
		next(w, r.WithContext(auth.WithIdentity(r.Context(), id)), id)
	}
}

// optional resolves the caller if it can. Verification failures are logged
// and treated as anonymous.
func (s *Server) optional(next OptionalHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := s.resolver.Resolve(r)
		if err != nil {
			s.logRejectedToken(r, err)
			id = nil
		}
		if id != nil {
			r = r.WithContext(auth.WithIdentity(r.Context(), id))
		}
		next(w, r, id)
	}
}

func (s *Server) logRejectedToken(r *http.Request, err error) {
	reason, _ := auth.TokenReason(err)
	s.logger.Debug("access token rejected",
		"reason", string(reason),
		"path", r.URL.Path,
		"request_id", r.Context().Value(ctxKeyRequestID),
	)
}
