package authz

import (
	"context"
	"sync"
)

// Decision is the outcome of a route guard.
type Decision int

const (
	// DecisionPending means the current account is not known yet. Callers
	// render a neutral pending state and neither allow nor deny.
	DecisionPending Decision = iota
	DecisionAllow
	DecisionRedirectSignIn
	DecisionRedirectUnauthorized
)

func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionRedirectSignIn:
		return "redirect_signin"
	case DecisionRedirectUnauthorized:
		return "redirect_unauthorized"
	default:
		return "pending"
	}
}

// Requirement is what a route demands. Zero fields are not checked.
type Requirement struct {
	Role       Role
	Permission Permission
}

// Session is the guard's view of the current account.
type Session struct {
	// Resolved is false while the account lookup is in flight.
	Resolved      bool
	Authenticated bool
	Role          Role
	Permissions   *Permissions
}

// GrantedPermissions implements Holder.
func (s Session) GrantedPermissions() *Permissions {
	return s.Permissions
}

// Decide applies req to s.
func Decide(req Requirement, s Session) Decision {
	if !s.Resolved {
		return DecisionPending
	}
	if !s.Authenticated {
		return DecisionRedirectSignIn
	}
	if req.Role != RoleUnknown && !s.Role.AtLeast(req.Role) {
		return DecisionRedirectUnauthorized
	}
	if req.Permission != "" && !HasPermission(s, req.Permission) {
		return DecisionRedirectUnauthorized
	}
	return DecisionAllow
}

// Gate holds a single guard decision that starts pending and is settled
// exactly once.
type Gate struct {
	req      Requirement
	mu       sync.Mutex
	decision Decision
	done     chan struct{}
}

func NewGate(req Requirement) *Gate {
	return &Gate{req: req, done: make(chan struct{})}
}

// Decision returns the settled decision, or DecisionPending.
func (g *Gate) Decision() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decision
}

// Resolve settles the gate from s. An unresolved session leaves the gate
// pending. Once settled, later calls return the first decision unchanged.
func (g *Gate) Resolve(s Session) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.decision != DecisionPending {
		return g.decision
	}
	d := Decide(g.req, s)
	if d == DecisionPending {
		return d
	}
	g.decision = d
	close(g.done)
	return d
}

// Wait blocks until the gate is settled or ctx is done.
func (g *Gate) Wait(ctx context.Context) (Decision, error) {
	select {
	case <-g.done:
		return g.Decision(), nil
	case <-ctx.Done():
		return DecisionPending, ctx.Err()
	}
}
