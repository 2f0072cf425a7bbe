package permissions

import "slices"

// Actor is the minimum the checks need to know about the caller.
type Actor struct {
	ID   string
	Role Role
}

// Resource is implemented by the resource contexts a capability can be
// checked against. The set is closed to this package.
type Resource interface {
	isResource()
}

type ProjectResource struct {
	OwnerID   string
	MemberIDs []string
}

type BoardResource struct {
	ProjectOwnerID string
	MemberIDs      []string
	AdminIDs       []string
}

type TaskResource struct {
	CreatorID      string
	AssigneeIDs    []string
	ProjectOwnerID string
	BoardAdminIDs  []string
}

func (ProjectResource) isResource() {}
func (BoardResource) isResource()   {}
func (TaskResource) isResource()    {}

// Can evaluates capability for actor, refined by the resource when the role
// table alone does not grant it. A nil resource falls back to HasPermission.
func Can(actor Actor, capability Capability, res Resource) bool {
	if HasPermission(actor.Role, CanEditAllProjects) && isProjectCapability(capability) {
		return true
	}
	if HasPermission(actor.Role, CanEditAllTasks) && isTaskCapability(capability) {
		return true
	}

	switch r := res.(type) {
	case nil:
		return HasPermission(actor.Role, capability)
	case ProjectResource:
		return canOnProject(actor, capability, r)
	case BoardResource:
		return canOnBoard(actor, capability, r)
	case TaskResource:
		return canOnTask(actor, capability, r)
	}
	return false
}

func canOnProject(actor Actor, capability Capability, r ProjectResource) bool {
	isOwner := actor.ID != "" && actor.ID == r.OwnerID
	isMember := isOwner || slices.Contains(r.MemberIDs, actor.ID)

	switch capability {
	case CanViewAllProjects:
		return HasPermission(actor.Role, capability) || isMember
	case CanEditOwnProject, CanManageProjectMembers, CanDeleteProject:
		if HasPermission(actor.Role, capability) && capability != CanEditOwnProject {
			return true
		}
		return isOwner && HasPermission(actor.Role, CanEditOwnProject)
	case CanCreateBoard:
		return HasPermission(actor.Role, capability) && (isMember || HasPermission(actor.Role, CanViewAllProjects))
	}
	return HasPermission(actor.Role, capability)
}

func canOnBoard(actor Actor, capability Capability, r BoardResource) bool {
	isProjectOwner := actor.ID != "" && actor.ID == r.ProjectOwnerID
	isAdmin := isProjectOwner || slices.Contains(r.AdminIDs, actor.ID)
	isMember := isAdmin || slices.Contains(r.MemberIDs, actor.ID)

	switch capability {
	case CanViewActivity:
		return isMember || HasPermission(actor.Role, CanViewAllProjects)
	case CanEditBoard, CanArchiveBoard, CanManageBoardMembers, CanDeleteBoard,
		CanEditColumn, CanDeleteColumn, CanReorderColumns:
		return HasPermission(actor.Role, capability) || (isAdmin && actor.Role != RoleClient)
	case CanCreateColumn, CanCreateTask:
		return HasPermission(actor.Role, capability) && (isMember || HasPermission(actor.Role, CanViewAllProjects))
	}
	return HasPermission(actor.Role, capability)
}

func canOnTask(actor Actor, capability Capability, r TaskResource) bool {
	isCreator := actor.ID != "" && actor.ID == r.CreatorID
	isAssignee := slices.Contains(r.AssigneeIDs, actor.ID)
	isOwner := (actor.ID != "" && actor.ID == r.ProjectOwnerID) || slices.Contains(r.BoardAdminIDs, actor.ID)

	editable := (isCreator && HasPermission(actor.Role, CanEditOwnTask)) ||
		(isAssignee && HasPermission(actor.Role, CanEditAssignedTask)) ||
		(isOwner && actor.Role != RoleClient)

	switch capability {
	case CanEditAllTasks, CanEditOwnTask, CanEditAssignedTask:
		return editable
	case CanMoveTasksBetweenColumns:
		return HasPermission(actor.Role, capability) && editable
	case CanDeleteTask, CanAssignTasks:
		return HasPermission(actor.Role, capability) || isOwner || (isCreator && HasPermission(actor.Role, CanEditOwnTask))
	}
	return HasPermission(actor.Role, capability)
}

func isProjectCapability(c Capability) bool {
	switch c {
	case CanEditOwnProject, CanViewAllProjects, CanManageProjectMembers:
		return true
	}
	return false
}

func isTaskCapability(c Capability) bool {
	switch c {
	case CanEditOwnTask, CanEditAssignedTask, CanMoveTasksBetweenColumns, CanAssignTasks:
		return true
	}
	return false
}

// Convenience wrappers used by the services.

func CanEditProject(actor Actor, p ProjectResource) bool {
	return Can(actor, CanEditOwnProject, p)
}

func CanViewProject(actor Actor, p ProjectResource) bool {
	return Can(actor, CanViewAllProjects, p)
}

func CanManageBoard(actor Actor, b BoardResource) bool {
	return Can(actor, CanEditBoard, b)
}

func CanEditTask(actor Actor, t TaskResource) bool {
	return Can(actor, CanEditOwnTask, t)
}

func CanMoveTask(actor Actor, t TaskResource) bool {
	return Can(actor, CanMoveTasksBetweenColumns, t)
}
