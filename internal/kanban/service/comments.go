package service

import (
	"context"

	"github.com/staffboard/staffboard-backend/internal/auth"
	"github.com/staffboard/staffboard-backend/internal/events"
	"github.com/staffboard/staffboard-backend/internal/kanban/domain"
	"github.com/staffboard/staffboard-backend/internal/permissions"
)

const maxCommentLength = 5000

func (s *Service) AddComment(ctx context.Context, actor auth.Principal, taskID, body string) (*domain.Comment, error) {
	t, a, err := s.tasks.Load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !canViewBoard(actor, a.Board) || !permissions.Can(actor.Actor(), permissions.CanCommentOnTasks, taskResource(a)) {
		return nil, domain.ErrForbidden
	}
	if body, err = requiredText("body", body, maxCommentLength); err != nil {
		return nil, err
	}

	c := &domain.Comment{TaskID: t.ID, AuthorID: actor.UserID, Body: body}
	if err := s.comments.Add(ctx, t.BoardID, c); err != nil {
		return nil, err
	}
	s.publish(ctx, events.BoardEvent{
		Type: events.CommentAdded, BoardID: t.BoardID, TaskID: t.ID, ActorID: actor.UserID,
		Payload: map[string]any{"commentId": c.ID},
	})
	return c, nil
}

func (s *Service) ListComments(ctx context.Context, actor auth.Principal, taskID string) ([]domain.Comment, error) {
	if _, err := s.GetTask(ctx, actor, taskID); err != nil {
		return nil, err
	}
	return s.comments.List(ctx, taskID)
}

// DeleteComment is allowed to the comment's author and to admins.
func (s *Service) DeleteComment(ctx context.Context, actor auth.Principal, id string) error {
	c, err := s.comments.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.AuthorID != actor.UserID && actor.Role != permissions.RoleAdmin {
		return domain.ErrForbidden
	}
	return s.comments.Delete(ctx, id)
}
