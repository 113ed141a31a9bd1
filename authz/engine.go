package authz

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/spaarke-dev/sdap-bff/access"
)

// Verdict is the terminal or abstaining result a Rule returns.
type Verdict int

const (
	Continue Verdict = iota
	Allowed
	Denied
)

// Decision is the outcome of evaluating the full rule chain.
type Decision struct {
	Verdict Verdict
	Reason  string // short, non-secret tag, e.g. "ExplicitDeny", "Admin", "Grant", "Team", "NoAccess", "RuleError"
}

func allow(reason string) Decision { return Decision{Verdict: Allowed, Reason: reason} }
func deny(reason string) Decision  { return Decision{Verdict: Denied, Reason: reason} }

// Rule is a deterministic function over (snapshot, operation). It MUST be
// side-effect free and MUST NOT panic in normal operation; Engine treats a
// panic as fail-closed (Deny "RuleError").
type Rule func(snapshot access.Snapshot, op Operation) Decision

// Engine evaluates an ordered Rule chain and emits an audit record for every
// decision, per §4.G.
type Engine struct {
	rules []Rule
	log   *logrus.Entry
}

// New builds an Engine with the default chain, in the mandatory order:
// ExplicitDenyRule, AdminRule, ExplicitGrantRule, TeamMembershipRule,
// DefaultDenyRule. Tie-breaks resolve by position — the first non-Continue
// result wins.
func New(log *logrus.Entry) *Engine {
	return &Engine{
		rules: []Rule{
			ExplicitDenyRule,
			AdminRule,
			ExplicitGrantRule,
			TeamMembershipRule,
			DefaultDenyRule,
		},
		log: log,
	}
}

// Evaluate runs the chain for (userID, resourceID, operation, snapshot) and
// emits the audit record §4.G requires: one record per decision, Info on
// Allow, Warning on Deny (including RuleError paths).
func (e *Engine) Evaluate(userID, resourceID string, op Operation, snapshot access.Snapshot, correlationID string) Decision {
	start := time.Now()
	decision := e.run(snapshot, op)
	e.audit(userID, resourceID, op, decision, time.Since(start), correlationID)
	return decision
}

func (e *Engine) run(snapshot access.Snapshot, op Operation) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			decision = deny("RuleError")
		}
	}()

	for _, rule := range e.rules {
		d := rule(snapshot, op)
		if d.Verdict != Continue {
			return d
		}
	}
	return deny("NoAccess")
}

func (e *Engine) audit(userID, resourceID string, op Operation, d Decision, duration time.Duration, correlationID string) {
	if e.log == nil {
		return
	}
	fields := logrus.Fields{
		"userId":        userID,
		"resourceId":    resourceID,
		"operation":     string(op),
		"result":        d.Verdict,
		"reason":        d.Reason,
		"durationMs":    duration.Milliseconds(),
		"correlationId": correlationID,
	}
	entry := e.log.WithFields(fields)
	if d.Verdict == Allowed {
		entry.Info("authorization decision")
		return
	}
	entry.Warn("authorization decision")
}

func (v Verdict) String() string {
	switch v {
	case Allowed:
		return "Allow"
	case Denied:
		return "Deny"
	default:
		return "Continue"
	}
}
