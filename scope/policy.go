package scope

import "sync"

// Policy resolves the effective scope set for a token request.
//
// The zero value is ready to use. Policy is stateless; all inputs come from
// the client record and the request.
type Policy struct{}

// DefaultFor returns the scope set granted when a request names no scope:
// the client's full default scope set.
func (Policy) DefaultFor(clientScopes []string) Set {
	return New(clientScopes...)
}

// Resolve returns the effective scope set for a request. An empty request
// yields the client default; otherwise the requested set is returned
// unchanged. Permission checks are the caller's responsibility via IsSubset.
func (p Policy) Resolve(requested Set, clientScopes []string) Set {
	if requested.IsEmpty() {
		return p.DefaultFor(clientScopes)
	}
	return requested
}

// Requirements records the scope sets protected endpoints demand. Resource
// servers register their endpoints once at startup and query Satisfies per
// request. Safe for concurrent use.
type Requirements struct {
	mu        sync.RWMutex
	endpoints map[string]Set
}

// NewRequirements returns an empty requirements registry.
func NewRequirements() *Requirements {
	return &Requirements{endpoints: make(map[string]Set)}
}

// Require registers the scopes endpoint demands, replacing any previous
// registration for that endpoint.
func (r *Requirements) Require(endpoint string, scopes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[endpoint] = New(scopes...)
}

// Required returns the scope set registered for endpoint, or the empty set
// when the endpoint has no registration.
func (r *Requirements) Required(endpoint string) Set {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.endpoints[endpoint]; ok {
		// Copy so callers cannot mutate the registry.
		return s.Union(nil)
	}
	return New()
}

// Satisfies reports whether granted covers the requirement registered for
// endpoint. Endpoints with no registration are unrestricted.
func (r *Requirements) Satisfies(endpoint string, granted Set) bool {
	r.mu.RLock()
	required, ok := r.endpoints[endpoint]
	r.mu.RUnlock()
	if !ok {
		return true
	}
	return required.IsSubset(granted)
}
