package authz

import "github.com/spaarke-dev/sdap-bff/access"

// ExplicitDenyRule is rule 1: an explicit blocker overrides every other
// grant, irrespective of roles or team membership (§8 property 2).
func ExplicitDenyRule(snapshot access.Snapshot, op Operation) Decision {
	if snapshot.ExplicitDeny {
		return deny("ExplicitDeny")
	}
	return Decision{Verdict: Continue}
}

// AdminRule is rule 2: the admin role allows any operation, unless
// ExplicitDenyRule already fired (§8 property 3).
func AdminRule(snapshot access.Snapshot, op Operation) Decision {
	if snapshot.HasRole("admin") {
		return allow("Admin")
	}
	return Decision{Verdict: Continue}
}

// ExplicitGrantRule is rule 3: the snapshot's own accessLevel satisfies the
// operation's required level.
func ExplicitGrantRule(snapshot access.Snapshot, op Operation) Decision {
	if snapshot.Satisfies(RequiredLevel(op)) {
		return allow("Grant")
	}
	return Decision{Verdict: Continue}
}

// TeamMembershipRule is rule 4: a team the caller belongs to grants the
// required level, resolved via the resource's own per-team grants
// (snapshot.TeamGrants) rather than the caller's personal accessLevel —
// this is what keeps the rule distinct from ExplicitGrantRule, which only
// ever looks at AccessLevel.
func TeamMembershipRule(snapshot access.Snapshot, op Operation) Decision {
	if snapshot.TeamSatisfies(RequiredLevel(op)) {
		return allow("Team")
	}
	return Decision{Verdict: Continue}
}

// DefaultDenyRule is rule 5: the final fallthrough.
func DefaultDenyRule(snapshot access.Snapshot, op Operation) Decision {
	return deny("NoAccess")
}
