package access

import "context"

// Source produces an AccessSnapshot for (userId, resourceId). Implementations
// fail with sdaperr.Unavailable or sdaperr.Timeout; a resource with no stored
// record is NOT an error — it returns the empty snapshot (accessLevel=none,
// explicitDeny=false) per §4.F, never a silent Allow.
type Source interface {
	GetAccess(ctx context.Context, userID, resourceID string) (Snapshot, error)
}
