package service

import (
	"context"
	"strings"

	"github.com/staffboard/staffboard-backend/internal/auth"
	"github.com/staffboard/staffboard-backend/internal/events"
	"github.com/staffboard/staffboard-backend/internal/kanban/domain"
	"github.com/staffboard/staffboard-backend/internal/permissions"
)

// CreateBoard adds a board to a project. The creator becomes a board admin.
func (s *Service) CreateBoard(ctx context.Context, actor auth.Principal, in domain.NewBoard) (*domain.Board, error) {
	if _, err := s.projectFor(ctx, actor, in.ProjectID, permissions.CanCreateBoard); err != nil {
		return nil, err
	}
	var err error
	if in.Title, err = requiredText("title", in.Title, 200); err != nil {
		return nil, err
	}
	in.CreatedBy = actor.UserID
	in.MemberIDs = normalizeIDs(append(in.MemberIDs, actor.UserID))
	in.AdminIDs = normalizeIDs(append(in.AdminIDs, actor.UserID))
	return s.boards.Create(ctx, in)
}

func (s *Service) ListBoards(ctx context.Context, actor auth.Principal, projectID string) ([]domain.Board, error) {
	if _, err := s.projectFor(ctx, actor, projectID, permissions.CanViewAllProjects); err != nil {
		return nil, err
	}
	return s.boards.ListByProject(ctx, projectID)
}

// GetBoard returns the nested board read model.
func (s *Service) GetBoard(ctx context.Context, actor auth.Principal, id string, includeArchived bool) (*domain.BoardView, error) {
	if _, err := s.boardFor(ctx, actor, id, permissions.CanViewActivity); err != nil {
		return nil, err
	}
	return s.boards.View(ctx, id, includeArchived)
}

// AuthorizeBoardView reports whether actor may watch the board's events.
func (s *Service) AuthorizeBoardView(ctx context.Context, actor auth.Principal, id string) error {
	_, err := s.boardFor(ctx, actor, id, permissions.CanViewActivity)
	return err
}

func (s *Service) UpdateBoard(ctx context.Context, actor auth.Principal, id string, p domain.BoardPatch) (*domain.Board, error) {
	if _, err := s.boardFor(ctx, actor, id, permissions.CanEditBoard); err != nil {
		return nil, err
	}
	if p.Title != nil {
		title, err := requiredText("title", *p.Title, 200)
		if err != nil {
			return nil, err
		}
		p.Title = &title
	}
	b, err := s.boards.Update(ctx, id, p)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.BoardEvent{Type: events.BoardUpdated, BoardID: id, ActorID: actor.UserID})
	return b, nil
}

func (s *Service) ArchiveBoard(ctx context.Context, actor auth.Principal, id string, archived bool) (*domain.Board, error) {
	if _, err := s.boardFor(ctx, actor, id, permissions.CanArchiveBoard); err != nil {
		return nil, err
	}
	b, err := s.boards.SetArchived(ctx, id, archived)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.BoardEvent{
		Type: events.BoardUpdated, BoardID: id, ActorID: actor.UserID,
		Payload: map[string]any{"archived": archived},
	})
	return b, nil
}

func (s *Service) AddBoardMember(ctx context.Context, actor auth.Principal, id, userID string, admin bool) (*domain.Board, error) {
	if _, err := s.boardFor(ctx, actor, id, permissions.CanManageBoardMembers); err != nil {
		return nil, err
	}
	ids := normalizeIDs([]string{userID})
	if len(ids) == 0 {
		return nil, domain.Invalid("userId", "is required")
	}
	return s.boards.AddMember(ctx, id, ids[0], admin)
}

func (s *Service) RemoveBoardMember(ctx context.Context, actor auth.Principal, id, userID string) (*domain.Board, error) {
	if _, err := s.boardFor(ctx, actor, id, permissions.CanManageBoardMembers); err != nil {
		return nil, err
	}
	return s.boards.RemoveMember(ctx, id, strings.ToLower(strings.TrimSpace(userID)))
}

func (s *Service) DeleteBoard(ctx context.Context, actor auth.Principal, id string) error {
	if _, err := s.boardFor(ctx, actor, id, permissions.CanDeleteBoard); err != nil {
		return err
	}
	return s.boards.Delete(ctx, id)
}

func (s *Service) BoardActivity(ctx context.Context, actor auth.Principal, id string, p domain.Page) ([]domain.Activity, error) {
	if _, err := s.boardFor(ctx, actor, id, permissions.CanViewActivity); err != nil {
		return nil, err
	}
	return s.activity.ListByBoard(ctx, id, page(p))
}
