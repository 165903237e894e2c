package auth

import (
	"net/http"

	"github.com/jmcleod/sessiongate/member"
	"github.com/jmcleod/sessiongate/pipeline"
)

// CurrentPrincipal returns the authenticated principal for r. It prefers
// the principal the gate already resolved and otherwise looks up the
// session cookie. It never redirects or writes to the response.
func CurrentPrincipal(r *http.Request) (member.Principal, bool) {
	if rc, ok := pipeline.FromContext(r.Context()); ok {
		if p, ok := rc.Principal(); ok {
			return p, true
		}
	}
	a, ok := r.Context().Value(resolverKey{}).(*Authenticator)
	if !ok || a == nil {
		return member.Principal{}, false
	}
	return a.Resolve(r)
}
