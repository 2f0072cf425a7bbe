package service

import (
	"context"

	"github.com/staffboard/staffboard-backend/internal/auth"
	"github.com/staffboard/staffboard-backend/internal/events"
	"github.com/staffboard/staffboard-backend/internal/kanban/domain"
	"github.com/staffboard/staffboard-backend/internal/permissions"
)

func validateColumnShape(wip *int, mapped *domain.TaskStatus) error {
	if wip != nil && *wip < 0 {
		return domain.Invalid("wipLimit", "must not be negative")
	}
	if mapped != nil && *mapped != "" && !mapped.Mappable() {
		return domain.Invalid("mappedStatus", "must be todo, in-progress, review or done")
	}
	return nil
}

// liveBoard is boardFor that also refuses archived boards.
func (s *Service) liveBoard(ctx context.Context, actor auth.Principal, boardID string, capability permissions.Capability) error {
	a, err := s.boardFor(ctx, actor, boardID, capability)
	if err != nil {
		return err
	}
	if a.Archived {
		return domain.ErrBoardArchived
	}
	return nil
}

func (s *Service) CreateColumn(ctx context.Context, actor auth.Principal, in domain.NewColumn) (*domain.Column, error) {
	if err := s.liveBoard(ctx, actor, in.BoardID, permissions.CanCreateColumn); err != nil {
		return nil, err
	}
	var err error
	if in.Title, err = requiredText("title", in.Title, 100); err != nil {
		return nil, err
	}
	if err := validateColumnShape(in.WIPLimit, in.MappedStatus); err != nil {
		return nil, err
	}
	if in.WIPLimit != nil && *in.WIPLimit == 0 {
		in.WIPLimit = nil
	}
	c, err := s.columns.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.BoardEvent{Type: events.ColumnCreated, BoardID: c.BoardID, ColumnID: c.ID, ActorID: actor.UserID})
	return c, nil
}

func (s *Service) UpdateColumn(ctx context.Context, actor auth.Principal, id string, p domain.ColumnPatch) (*domain.Column, error) {
	c, err := s.columns.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.liveBoard(ctx, actor, c.BoardID, permissions.CanEditColumn); err != nil {
		return nil, err
	}
	if p.Title != nil {
		title, err := requiredText("title", *p.Title, 100)
		if err != nil {
			return nil, err
		}
		p.Title = &title
	}
	if err := validateColumnShape(p.WIPLimit, p.MappedStatus); err != nil {
		return nil, err
	}
	updated, err := s.columns.Update(ctx, id, p)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.BoardEvent{Type: events.ColumnUpdated, BoardID: c.BoardID, ColumnID: id, ActorID: actor.UserID})
	return updated, nil
}

// DeleteColumn removes a column. A column holding tasks is only removed, with
// its tasks, when force is set.
func (s *Service) DeleteColumn(ctx context.Context, actor auth.Principal, id string, force bool) error {
	c, err := s.columns.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.liveBoard(ctx, actor, c.BoardID, permissions.CanDeleteColumn); err != nil {
		return err
	}
	boardID, err := s.columns.Delete(ctx, id, force)
	if err != nil {
		return err
	}
	s.publish(ctx, events.BoardEvent{Type: events.ColumnDeleted, BoardID: boardID, ColumnID: id, ActorID: actor.UserID})
	return nil
}

// ReorderColumns applies a full new column order. The board read back has
// columnOrder equal to the submitted sequence.
func (s *Service) ReorderColumns(ctx context.Context, actor auth.Principal, boardID string, order []string) (*domain.Board, error) {
	if err := s.liveBoard(ctx, actor, boardID, permissions.CanReorderColumns); err != nil {
		return nil, err
	}
	ids := normalizeIDs(order)
	if len(ids) != len(order) {
		return nil, domain.ErrInvalidOrder
	}
	if err := s.columns.Reorder(ctx, boardID, ids); err != nil {
		return nil, err
	}
	b, err := s.boards.Get(ctx, boardID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.BoardEvent{
		Type: events.ColumnsReordered, BoardID: boardID, ActorID: actor.UserID,
		Payload: map[string]any{"columnOrder": b.ColumnOrder},
	})
	return b, nil
}
