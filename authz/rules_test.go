package authz

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spaarke-dev/sdap-bff/access"
)

func TestExplicitDenyWinsOverEverything(t *testing.T) {
	e := New(nil)
	snap := access.Snapshot{
		ExplicitDeny:    true,
		AccessLevel:     access.LevelAdmin,
		Roles:           []string{"admin"},
		TeamMemberships: []string{"t1"},
	}
	d := e.Evaluate("u1", "docX", OpShareFile, snap, "corr-1")
	require.Equal(t, Denied, d.Verdict)
	require.Equal(t, "ExplicitDeny", d.Reason)
}

func TestAdminAllowsUnlessExplicitDeny(t *testing.T) {
	e := New(nil)
	snap := access.Snapshot{Roles: []string{"admin"}}
	d := e.Evaluate("u2", "docY", OpManageContainers, snap, "corr-2")
	require.Equal(t, Allowed, d.Verdict)
	require.Equal(t, "Admin", d.Reason)
}

func TestExplicitGrantAllowsSufficientLevel(t *testing.T) {
	e := New(nil)
	snap := access.Snapshot{AccessLevel: access.LevelWrite}
	d := e.Evaluate("u3", "docZ", OpUploadFile, snap, "corr-3")
	require.Equal(t, Allowed, d.Verdict)
	require.Equal(t, "Grant", d.Reason)
}

func TestTeamMembershipGrantsIndependentlyOfAccessLevel(t *testing.T) {
	e := New(nil)
	snap := access.Snapshot{
		AccessLevel:     access.LevelNone,
		TeamMemberships: []string{"t1", "t2"},
		TeamGrants:      map[string]access.Level{"t1": access.LevelRead, "t2": access.LevelWrite},
	}
	d := e.Evaluate("u6", "docT", OpUploadFile, snap, "corr-6")
	require.Equal(t, Allowed, d.Verdict)
	require.Equal(t, "Team", d.Reason)
}

func TestTeamMembershipWithoutMatchingGrantFallsThrough(t *testing.T) {
	e := New(nil)
	snap := access.Snapshot{
		AccessLevel:     access.LevelNone,
		TeamMemberships: []string{"t1"},
		TeamGrants:      map[string]access.Level{"t1": access.LevelRead},
	}
	d := e.Evaluate("u7", "docT2", OpUploadFile, snap, "corr-7")
	require.Equal(t, Denied, d.Verdict)
	require.Equal(t, "NoAccess", d.Reason)
}

func TestInsufficientLevelFallsThroughToDefaultDeny(t *testing.T) {
	e := New(nil)
	snap := access.Snapshot{AccessLevel: access.LevelRead}
	d := e.Evaluate("u4", "docW", OpDeleteFile, snap, "corr-4")
	require.Equal(t, Denied, d.Verdict)
	require.Equal(t, "NoAccess", d.Reason)
}

func TestPanicInRuleFailsClosed(t *testing.T) {
	e := &Engine{rules: []Rule{
		func(snapshot access.Snapshot, op Operation) Decision { panic("boom") },
	}}
	d := e.Evaluate("u5", "docV", OpReadMetadata, access.Snapshot{AccessLevel: access.LevelAdmin}, "corr-5")
	require.Equal(t, Denied, d.Verdict)
	require.Equal(t, "RuleError", d.Reason)
}

func TestRequiredLevelMappingTable(t *testing.T) {
	require.Equal(t, access.LevelRead, RequiredLevel(OpPreviewFile))
	require.Equal(t, access.LevelRead, RequiredLevel(OpListContainers))
	require.Equal(t, access.LevelRead, RequiredLevel(OpReadMetadata))
	require.Equal(t, access.LevelWrite, RequiredLevel(OpUploadFile))
	require.Equal(t, access.LevelWrite, RequiredLevel(OpUpdateFile))
	require.Equal(t, access.LevelWrite, RequiredLevel(OpUpdateMetadata))
	require.Equal(t, access.LevelWrite, RequiredLevel(OpCreateContainer))
	require.Equal(t, access.LevelDelete, RequiredLevel(OpDeleteFile))
	require.Equal(t, access.LevelDelete, RequiredLevel(OpDeleteContainer))
	require.Equal(t, access.LevelShare, RequiredLevel(OpShareFile))
	require.Equal(t, access.LevelShare, RequiredLevel(OpManagePermissions))
	require.Equal(t, access.LevelAdmin, RequiredLevel(OpManageContainers))
}
