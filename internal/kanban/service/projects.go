package service

import (
	"context"
	"regexp"
	"strings"

	"github.com/staffboard/staffboard-backend/internal/auth"
	"github.com/staffboard/staffboard-backend/internal/kanban/domain"
	"github.com/staffboard/staffboard-backend/internal/permissions"
)

var projectKeyPattern = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)

func (s *Service) CreateProject(ctx context.Context, actor auth.Principal, in domain.NewProject) (*domain.Project, error) {
	if !permissions.HasPermission(actor.Role, permissions.CanCreateProject) {
		return nil, domain.ErrForbidden
	}
	var err error
	if in.Name, err = requiredText("name", in.Name, 200); err != nil {
		return nil, err
	}
	in.Key = strings.ToUpper(strings.TrimSpace(in.Key))
	if !projectKeyPattern.MatchString(in.Key) {
		return nil, domain.Invalid("key", "must be 2-10 letters or digits")
	}
	if in.Status == "" {
		in.Status = domain.ProjectPlanning
	}
	if !in.Status.Valid() {
		return nil, domain.Invalid("status", "unknown project status")
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return nil, domain.Invalid("endDate", "is before startDate")
	}
	in.OwnerID = actor.UserID
	in.MemberIDs = normalizeIDs(in.MemberIDs)
	return s.projects.Create(ctx, in)
}

// ListProjects returns every project for roles that may view all of them,
// otherwise the projects the caller owns or belongs to.
func (s *Service) ListProjects(ctx context.Context, actor auth.Principal, status domain.ProjectStatus) ([]domain.Project, error) {
	if status != "" && !status.Valid() {
		return nil, domain.Invalid("status", "unknown project status")
	}
	all := permissions.HasPermission(actor.Role, permissions.CanViewAllProjects)
	return s.projects.List(ctx, actor.UserID, all, status)
}

func (s *Service) projectFor(ctx context.Context, actor auth.Principal, id string, capability permissions.Capability) (domain.ProjectAccess, error) {
	a, err := s.projects.Access(ctx, id)
	if err != nil {
		return a, err
	}
	if !permissions.Can(actor.Actor(), capability, projectResource(a)) {
		return a, domain.ErrForbidden
	}
	return a, nil
}

func (s *Service) GetProject(ctx context.Context, actor auth.Principal, id string) (*domain.ProjectView, error) {
	if _, err := s.projectFor(ctx, actor, id, permissions.CanViewAllProjects); err != nil {
		return nil, err
	}
	p, err := s.projects.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	boards, err := s.boards.ListByProject(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.ProjectView{Project: *p, Boards: boards}, nil
}

func (s *Service) UpdateProject(ctx context.Context, actor auth.Principal, id string, p domain.ProjectPatch) (*domain.Project, error) {
	if _, err := s.projectFor(ctx, actor, id, permissions.CanEditOwnProject); err != nil {
		return nil, err
	}
	if p.Name != nil {
		name, err := requiredText("name", *p.Name, 200)
		if err != nil {
			return nil, err
		}
		p.Name = &name
	}
	if p.Status != nil && !p.Status.Valid() {
		return nil, domain.Invalid("status", "unknown project status")
	}
	if p.StartDate != nil && p.EndDate != nil && p.EndDate.Before(*p.StartDate) {
		return nil, domain.Invalid("endDate", "is before startDate")
	}
	return s.projects.Update(ctx, id, p)
}

// SetProjectStatus is UpdateProject restricted to the status field.
func (s *Service) SetProjectStatus(ctx context.Context, actor auth.Principal, id string, status domain.ProjectStatus) (*domain.Project, error) {
	return s.UpdateProject(ctx, actor, id, domain.ProjectPatch{Status: &status})
}

func (s *Service) AddProjectMember(ctx context.Context, actor auth.Principal, id, userID string) (*domain.Project, error) {
	if _, err := s.projectFor(ctx, actor, id, permissions.CanManageProjectMembers); err != nil {
		return nil, err
	}
	ids := normalizeIDs([]string{userID})
	if len(ids) == 0 {
		return nil, domain.Invalid("userId", "is required")
	}
	return s.projects.AddMember(ctx, id, ids[0])
}

func (s *Service) RemoveProjectMember(ctx context.Context, actor auth.Principal, id, userID string) (*domain.Project, error) {
	a, err := s.projectFor(ctx, actor, id, permissions.CanManageProjectMembers)
	if err != nil {
		return nil, err
	}
	userID = strings.ToLower(strings.TrimSpace(userID))
	if userID == a.OwnerID {
		return nil, domain.Invalid("userId", "the owner cannot be removed")
	}
	return s.projects.RemoveMember(ctx, id, userID)
}

func (s *Service) DeleteProject(ctx context.Context, actor auth.Principal, id string) error {
	if _, err := s.projectFor(ctx, actor, id, permissions.CanDeleteProject); err != nil {
		return err
	}
	return s.projects.Delete(ctx, id)
}
