package permissions

import "strings"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleHR       Role = "hr"
	RoleEmployee Role = "employee"
	RoleClient   Role = "client"
)

// ParseRole normalises a role string. ok is false for unknown roles.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleHR, RoleEmployee, RoleClient:
		return r, true
	}
	return "", false
}

func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

type Capability string

const (
	CanCreateProject        Capability = "canCreateProject"
	CanEditAllProjects      Capability = "canEditAllProjects"
	CanEditOwnProject       Capability = "canEditOwnProject"
	CanDeleteProject        Capability = "canDeleteProject"
	CanViewAllProjects      Capability = "canViewAllProjects"
	CanManageProjectMembers Capability = "canManageProjectMembers"

	CanCreateBoard        Capability = "canCreateBoard"
	CanEditBoard          Capability = "canEditBoard"
	CanDeleteBoard        Capability = "canDeleteBoard"
	CanArchiveBoard       Capability = "canArchiveBoard"
	CanManageBoardMembers Capability = "canManageBoardMembers"

	CanCreateColumn   Capability = "canCreateColumn"
	CanEditColumn     Capability = "canEditColumn"
	CanDeleteColumn   Capability = "canDeleteColumn"
	CanReorderColumns Capability = "canReorderColumns"

	CanCreateTask              Capability = "canCreateTask"
	CanEditAllTasks            Capability = "canEditAllTasks"
	CanEditAssignedTask        Capability = "canEditAssignedTask"
	CanEditOwnTask             Capability = "canEditOwnTask"
	CanDeleteTask              Capability = "canDeleteTask"
	CanAssignTasks             Capability = "canAssignTasks"
	CanMoveTasksBetweenColumns Capability = "canMoveTasksBetweenColumns"
	CanCommentOnTasks          Capability = "canCommentOnTasks"
	CanViewActivity            Capability = "canViewActivity"

	CanViewAllUsers     Capability = "canViewAllUsers"
	CanApproveUsers     Capability = "canApproveUsers"
	CanBlockUsers       Capability = "canBlockUsers"
	CanDeleteUsers      Capability = "canDeleteUsers"
	CanEditUsers        Capability = "canEditUsers"
	CanManageHRUsers    Capability = "canManageHRUsers"
	CanViewStorageStats Capability = "canViewStorageStats"
)

// AllCapabilities lists every capability in a stable order.
var AllCapabilities = []Capability{
	CanCreateProject, CanEditAllProjects, CanEditOwnProject, CanDeleteProject, CanViewAllProjects, CanManageProjectMembers,
	CanCreateBoard, CanEditBoard, CanDeleteBoard, CanArchiveBoard, CanManageBoardMembers,
	CanCreateColumn, CanEditColumn, CanDeleteColumn, CanReorderColumns,
	CanCreateTask, CanEditAllTasks, CanEditAssignedTask, CanEditOwnTask, CanDeleteTask, CanAssignTasks,
	CanMoveTasksBetweenColumns, CanCommentOnTasks, CanViewActivity,
	CanViewAllUsers, CanApproveUsers, CanBlockUsers, CanDeleteUsers, CanEditUsers, CanManageHRUsers, CanViewStorageStats,
}

type capabilitySet map[Capability]bool

func setOf(caps ...Capability) capabilitySet {
	s := make(capabilitySet, len(caps))
	for _, c := range caps {
		s[c] = true
	}
	return s
}

// roleTable is read-only after package init.
var roleTable = map[Role]capabilitySet{
	RoleAdmin: setOf(AllCapabilities...),
	RoleHR: setOf(
		CanCreateProject, CanEditAllProjects, CanEditOwnProject, CanViewAllProjects, CanManageProjectMembers,
		CanCreateBoard, CanEditBoard, CanArchiveBoard, CanManageBoardMembers,
		CanCreateColumn, CanEditColumn, CanDeleteColumn, CanReorderColumns,
		CanCreateTask, CanEditAllTasks, CanEditAssignedTask, CanEditOwnTask, CanDeleteTask, CanAssignTasks,
		CanMoveTasksBetweenColumns, CanCommentOnTasks, CanViewActivity,
		CanViewAllUsers, CanApproveUsers, CanBlockUsers, CanEditUsers,
	),
	RoleEmployee: setOf(
		CanCreateProject, CanEditOwnProject,
		CanCreateBoard,
		CanCreateColumn,
		CanCreateTask, CanEditAssignedTask, CanEditOwnTask, CanMoveTasksBetweenColumns,
		CanCommentOnTasks, CanViewActivity,
	),
	RoleClient: setOf(
		CanCommentOnTasks, CanViewActivity,
	),
}

// HasPermission reports whether role grants capability. It reads only the
// static role table.
func HasPermission(role Role, capability Capability) bool {
	caps, ok := roleTable[role]
	if !ok {
		return false
	}
	return caps[capability]
}

// Capabilities returns the capability flags for a role, for the client to
// render menus with.
func Capabilities(role Role) map[Capability]bool {
	out := make(map[Capability]bool, len(AllCapabilities))
	for _, c := range AllCapabilities {
		out[c] = HasPermission(role, c)
	}
	return out
}

// IsElevated reports whether role is admin or hr.
func IsElevated(role Role) bool {
	return role == RoleAdmin || role == RoleHR
}
