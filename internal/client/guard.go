package client

import (
	"net/url"
	"strings"
)

// protectedPrefixes are the views that need a logged-in user.
var protectedPrefixes = []string{PathDashboard, "/goals", "/profile"}

// Decision is the outcome of Guard. When Allow is false the caller must
// navigate to Redirect without rendering the requested view.
type Decision struct {
	Allow    bool
	Redirect string
}

// Guard decides whether path may be shown in state. Anonymous users are
// sent to the login view with the requested path as return target;
// logged-in users skip the login and registration views.
func Guard(state State, path string) Decision {
	clean := path
	if i := strings.IndexAny(clean, "?#"); i >= 0 {
		clean = clean[:i]
	}

	if state.Authenticated {
		if clean == PathLogin || clean == PathRegister {
			return Decision{Redirect: PathDashboard}
		}
		return Decision{Allow: true}
	}

	for _, prefix := range protectedPrefixes {
		if clean == prefix || strings.HasPrefix(clean, prefix+"/") {
			return Decision{Redirect: PathLogin + "?from=" + url.QueryEscape(path)}
		}
	}
	return Decision{Allow: true}
}
