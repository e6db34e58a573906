package access

import "github.com/chaiacademy/academy/internal/core/domain"

// State is the position of a request in the gate's state machine.
type State int

const (
	StateUnchecked State = iota
	StateDecoding
	StateAllowed
	StateDenied
)

func (s State) String() string {
	switch s {
	case StateDecoding:
		return "DECODING"
	case StateAllowed:
		return "ALLOWED"
	case StateDenied:
		return "DENIED"
	default:
		return "UNCHECKED"
	}
}

// Reason qualifies a denial.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonUnauthenticated
	ReasonForbidden
)

func (r Reason) String() string {
	switch r {
	case ReasonUnauthenticated:
		return "UNAUTHENTICATED"
	case ReasonForbidden:
		return "FORBIDDEN"
	default:
		return "NONE"
	}
}

// Decision is the terminal outcome of Gate.Evaluate.
type Decision struct {
	State  State
	Reason Reason
	// Rule is the matched policy entry; nil for unprotected paths.
	Rule *Rule
	// Session is set whenever a credential decoded successfully.
	Session *domain.Session
}

func (d Decision) Allowed() bool   { return d.State == StateAllowed }
func (d Decision) Protected() bool { return d.Rule != nil }

// Err maps a denial onto the domain error taxonomy.
func (d Decision) Err() error {
	switch d.Reason {
	case ReasonUnauthenticated:
		return domain.ErrInvalidSession
	case ReasonForbidden:
		return domain.ErrForbidden
	}
	return nil
}

// SessionDecoder turns a presented credential into a session.
type SessionDecoder interface {
	Decode(token string) (domain.Session, error)
}

// Gate makes the allow/deny decision for a single request. It keeps no
// per-request state and may be shared by any number of goroutines.
type Gate struct {
	policy   *Policy
	sessions SessionDecoder
}

func NewGate(policy *Policy, sessions SessionDecoder) *Gate {
	return &Gate{policy: policy, sessions: sessions}
}

// Policy returns the route table the gate enforces.
func (g *Gate) Policy() *Policy { return g.policy }

// Identify decodes token without consulting the policy. It never denies; a
// missing or invalid credential simply yields no session.
func (g *Gate) Identify(token string) (domain.Session, bool) {
	if token == "" {
		return domain.Session{}, false
	}
	sess, err := g.sessions.Decode(token)
	if err != nil {
		return domain.Session{}, false
	}
	return sess, true
}

// Evaluate decides whether a request for urlPath carrying token may proceed.
// Unprotected paths are allowed without decoding anything.
func (g *Gate) Evaluate(urlPath, token string) Decision {
	d := Decision{State: StateUnchecked}

	rule, ok := g.policy.Match(urlPath)
	if !ok {
		d.State = StateAllowed
		return d
	}
	d.Rule = &rule

	d.State = StateDecoding
	sess, err := g.sessions.Decode(token)
	if err != nil {
		d.State, d.Reason = StateDenied, ReasonUnauthenticated
		return d
	}
	d.Session = &sess

	if !rule.Allows(sess.Identity.Role) {
		d.State, d.Reason = StateDenied, ReasonForbidden
		return d
	}
	d.State = StateAllowed
	return d
}
