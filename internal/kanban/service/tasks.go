package service

import (
	"context"
	"strings"

	"github.com/staffboard/staffboard-backend/internal/auth"
	"github.com/staffboard/staffboard-backend/internal/events"
	"github.com/staffboard/staffboard-backend/internal/kanban/domain"
	"github.com/staffboard/staffboard-backend/internal/permissions"
)

func validateTaskFields(priority *domain.Priority, completion *int, hours *float64) error {
	if priority != nil && !priority.Valid() {
		return domain.Invalid("priority", "must be low, medium, high or urgent")
	}
	if completion != nil && (*completion < 0 || *completion > 100) {
		return domain.Invalid("completionPercentage", "must be between 0 and 100")
	}
	if hours != nil && *hours < 0 {
		return domain.Invalid("estimatedHours", "must not be negative")
	}
	return nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// CreateTask appends a task to the bottom of a column.
func (s *Service) CreateTask(ctx context.Context, actor auth.Principal, in domain.NewTask) (*domain.Task, error) {
	col, err := s.columns.Get(ctx, in.ColumnID)
	if err != nil {
		return nil, err
	}
	if err := s.liveBoard(ctx, actor, col.BoardID, permissions.CanCreateTask); err != nil {
		return nil, err
	}
	if in.Title, err = requiredText("title", in.Title, 300); err != nil {
		return nil, err
	}
	if in.Priority == "" {
		in.Priority = domain.PriorityMedium
	}
	if err := validateTaskFields(&in.Priority, nil, in.EstimatedHours); err != nil {
		return nil, err
	}
	if len(in.AssigneeIDs) > 0 && !permissions.HasPermission(actor.Role, permissions.CanAssignTasks) &&
		!(len(in.AssigneeIDs) == 1 && strings.EqualFold(in.AssigneeIDs[0], actor.UserID)) {
		return nil, domain.ErrForbidden
	}
	in.ColumnID = col.ID
	in.CreatorID = actor.UserID
	in.AssigneeIDs = normalizeIDs(in.AssigneeIDs)
	in.Tags = cleanTags(in.Tags)

	t, err := s.tasks.Create(ctx, in, s.table)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.BoardEvent{
		Type: events.TaskCreated, BoardID: t.BoardID, TaskID: t.ID, ColumnID: t.ColumnID, ActorID: actor.UserID,
		Payload: map[string]any{"position": t.Position},
	})
	return t, nil
}

func (s *Service) GetTask(ctx context.Context, actor auth.Principal, id string) (*domain.Task, error) {
	t, a, err := s.tasks.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canViewBoard(actor, a.Board) {
		return nil, domain.ErrForbidden
	}
	return t, nil
}

// ListTasks lists a column's or a board's tasks. One of the two is required.
func (s *Service) ListTasks(ctx context.Context, actor auth.Principal, f domain.TaskFilter) ([]domain.Task, error) {
	boardID := f.BoardID
	if f.ColumnID != "" {
		col, err := s.columns.Get(ctx, f.ColumnID)
		if err != nil {
			return nil, err
		}
		boardID = col.BoardID
	}
	if boardID == "" {
		return nil, domain.Invalid("columnId", "a column or board is required")
	}
	if _, err := s.boardFor(ctx, actor, boardID, permissions.CanViewActivity); err != nil {
		return nil, err
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, domain.Invalid("status", "unknown task status")
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return nil, domain.Invalid("priority", "unknown priority")
	}
	return s.tasks.List(ctx, f)
}

func (s *Service) UpdateTask(ctx context.Context, actor auth.Principal, id string, p domain.TaskPatch) (*domain.Task, error) {
	if p.Title != nil {
		title, err := requiredText("title", *p.Title, 300)
		if err != nil {
			return nil, err
		}
		p.Title = &title
	}
	if p.Status != nil && !p.Status.Valid() {
		return nil, domain.Invalid("status", "unknown task status")
	}
	if err := validateTaskFields(p.Priority, p.CompletionPercentage, p.EstimatedHours); err != nil {
		return nil, err
	}
	if p.Tags != nil {
		p.Tags = cleanTags(p.Tags)
	}

	t, err := s.tasks.Update(ctx, id, actor.UserID, p, taskAuthorizer(actor, permissions.CanEditOwnTask))
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.BoardEvent{Type: events.TaskUpdated, BoardID: t.BoardID, TaskID: t.ID, ColumnID: t.ColumnID, ActorID: actor.UserID})
	return t, nil
}

// MoveTask relocates a task. Permission is checked inside the move
// transaction against the locked task.
func (s *Service) MoveTask(ctx context.Context, actor auth.Principal, req domain.MoveRequest) (*domain.MoveResult, error) {
	req.SourceColumnID = strings.ToLower(strings.TrimSpace(req.SourceColumnID))
	req.DestColumnID = strings.ToLower(strings.TrimSpace(req.DestColumnID))
	if req.SourceColumnID == "" {
		return nil, domain.Invalid("sourceColumnId", "is required")
	}
	if req.DestColumnID == "" {
		return nil, domain.Invalid("destinationColumnId", "is required")
	}
	if req.Index < 0 {
		req.Index = 0
	}
	req.ActorID = actor.UserID

	res, err := s.tasks.Move(ctx, req, s.table, taskAuthorizer(actor, permissions.CanMoveTasksBetweenColumns))
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.BoardEvent{
		Type: events.TaskMoved, BoardID: res.Task.BoardID, TaskID: res.Task.ID, ColumnID: res.ToColumnID, ActorID: actor.UserID,
		Payload: map[string]any{
			"fromColumnId": res.FromColumnID,
			"toColumnId":   res.ToColumnID,
			"position":     res.Task.Position,
			"status":       res.Task.Status,
		},
	})
	return res, nil
}

func (s *Service) AssignTask(ctx context.Context, actor auth.Principal, id string, userIDs []string) (*domain.Task, error) {
	ids := normalizeIDs(userIDs)
	if len(ids) == 0 {
		return nil, domain.Invalid("userIds", "is required")
	}
	t, err := s.tasks.Assign(ctx, id, actor.UserID, ids, taskAuthorizer(actor, permissions.CanAssignTasks))
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.BoardEvent{Type: events.TaskUpdated, BoardID: t.BoardID, TaskID: t.ID, ActorID: actor.UserID})
	return t, nil
}

// UnassignTask removes assignees. Anyone may take themselves off a task.
func (s *Service) UnassignTask(ctx context.Context, actor auth.Principal, id string, userIDs []string) (*domain.Task, error) {
	ids := normalizeIDs(userIDs)
	if len(ids) == 0 {
		return nil, domain.Invalid("userIds", "is required")
	}
	authorize := taskAuthorizer(actor, permissions.CanAssignTasks)
	if len(ids) == 1 && ids[0] == actor.UserID {
		authorize = func(a domain.TaskAccess) error {
			if a.Board.Archived {
				return domain.ErrBoardArchived
			}
			return nil
		}
	}
	t, err := s.tasks.Unassign(ctx, id, actor.UserID, ids, authorize)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.BoardEvent{Type: events.TaskUpdated, BoardID: t.BoardID, TaskID: t.ID, ActorID: actor.UserID})
	return t, nil
}

func (s *Service) ArchiveTask(ctx context.Context, actor auth.Principal, id string) (*domain.Task, error) {
	t, err := s.tasks.Archive(ctx, id, actor.UserID, taskAuthorizer(actor, permissions.CanEditOwnTask))
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.BoardEvent{Type: events.TaskUpdated, BoardID: t.BoardID, TaskID: t.ID, ActorID: actor.UserID,
		Payload: map[string]any{"status": t.Status}})
	return t, nil
}

func (s *Service) DeleteTask(ctx context.Context, actor auth.Principal, id string) error {
	t, err := s.tasks.Delete(ctx, id, actor.UserID, taskAuthorizer(actor, permissions.CanDeleteTask))
	if err != nil {
		return err
	}
	s.publish(ctx, events.BoardEvent{Type: events.TaskDeleted, BoardID: t.BoardID, TaskID: t.ID, ColumnID: t.ColumnID, ActorID: actor.UserID})
	return nil
}

func (s *Service) TaskActivity(ctx context.Context, actor auth.Principal, id string, p domain.Page) ([]domain.Activity, error) {
	if _, err := s.GetTask(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.activity.ListByTask(ctx, id, page(p))
}
