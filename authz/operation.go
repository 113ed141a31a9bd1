// Package authz implements the Authorization Engine (component G): a
// deterministic, order-sensitive rule chain evaluating (snapshot, operation)
// to Allow, Deny, or Continue.
package authz

import "github.com/spaarke-dev/sdap-bff/access"

// Operation names one authorization-relevant action a route performs.
// Routes declare their operation at compile time (§6.1).
type Operation string

const (
	OpPreviewFile       Operation = "preview_file"
	OpListContainers    Operation = "list_containers"
	OpReadMetadata      Operation = "read_metadata"
	OpUploadFile        Operation = "upload_file"
	OpUpdateFile        Operation = "update_file"
	OpUpdateMetadata    Operation = "update_metadata"
	OpCreateContainer   Operation = "create_container"
	OpDeleteFile        Operation = "delete_file"
	OpDeleteContainer   Operation = "delete_container"
	OpShareFile         Operation = "share_file"
	OpManagePermissions Operation = "manage_permissions"
	OpManageContainers  Operation = "manage_containers"
)

// requiredLevel is the complete operation -> required access level mapping
// from §4.G.
var requiredLevel = map[Operation]access.Level{
	OpPreviewFile:       access.LevelRead,
	OpListContainers:    access.LevelRead,
	OpReadMetadata:      access.LevelRead,
	OpUploadFile:        access.LevelWrite,
	OpUpdateFile:        access.LevelWrite,
	OpUpdateMetadata:    access.LevelWrite,
	OpCreateContainer:   access.LevelWrite,
	OpDeleteFile:        access.LevelDelete,
	OpDeleteContainer:   access.LevelDelete,
	OpShareFile:         access.LevelShare,
	OpManagePermissions: access.LevelShare,
	OpManageContainers:  access.LevelAdmin,
}

// RequiredLevel returns the access level an operation demands. Operations
// outside the table above default to LevelAdmin, the strictest level, so an
// unrecognized operation fails closed rather than silently allowing.
func RequiredLevel(op Operation) access.Level {
	if l, ok := requiredLevel[op]; ok {
		return l
	}
	return access.LevelAdmin
}
