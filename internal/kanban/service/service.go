package service

import (
	"context"
	"strings"
	"time"

	"github.com/staffboard/staffboard-backend/internal/auth"
	"github.com/staffboard/staffboard-backend/internal/events"
	"github.com/staffboard/staffboard-backend/internal/kanban/domain"
	"github.com/staffboard/staffboard-backend/internal/permissions"
	"go.uber.org/zap"
)

type ProjectStore interface {
	Create(ctx context.Context, in domain.NewProject) (*domain.Project, error)
	Get(ctx context.Context, id string) (*domain.Project, error)
	Access(ctx context.Context, id string) (domain.ProjectAccess, error)
	List(ctx context.Context, userID string, all bool, status domain.ProjectStatus) ([]domain.Project, error)
	Update(ctx context.Context, id string, p domain.ProjectPatch) (*domain.Project, error)
	AddMember(ctx context.Context, id, userID string) (*domain.Project, error)
	RemoveMember(ctx context.Context, id, userID string) (*domain.Project, error)
	Delete(ctx context.Context, id string) error
}

type BoardStore interface {
	Create(ctx context.Context, in domain.NewBoard) (*domain.Board, error)
	Get(ctx context.Context, id string) (*domain.Board, error)
	Access(ctx context.Context, id string) (domain.BoardAccess, error)
	ListByProject(ctx context.Context, projectID string) ([]domain.Board, error)
	View(ctx context.Context, id string, includeArchived bool) (*domain.BoardView, error)
	Update(ctx context.Context, id string, p domain.BoardPatch) (*domain.Board, error)
	SetArchived(ctx context.Context, id string, archived bool) (*domain.Board, error)
	AddMember(ctx context.Context, id, userID string, admin bool) (*domain.Board, error)
	RemoveMember(ctx context.Context, id, userID string) (*domain.Board, error)
	Delete(ctx context.Context, id string) error
}

type ColumnStore interface {
	Create(ctx context.Context, in domain.NewColumn) (*domain.Column, error)
	Get(ctx context.Context, id string) (*domain.Column, error)
	Update(ctx context.Context, id string, p domain.ColumnPatch) (*domain.Column, error)
	Delete(ctx context.Context, id string, force bool) (string, error)
	Reorder(ctx context.Context, boardID string, ids []string) error
}

type TaskStore interface {
	Create(ctx context.Context, in domain.NewTask, table domain.StatusTable) (*domain.Task, error)
	Load(ctx context.Context, id string) (*domain.Task, domain.TaskAccess, error)
	List(ctx context.Context, f domain.TaskFilter) ([]domain.Task, error)
	Move(ctx context.Context, req domain.MoveRequest, table domain.StatusTable, authorize domain.Authorizer) (*domain.MoveResult, error)
	Update(ctx context.Context, id, actorID string, p domain.TaskPatch, authorize domain.Authorizer) (*domain.Task, error)
	Assign(ctx context.Context, id, actorID string, userIDs []string, authorize domain.Authorizer) (*domain.Task, error)
	Unassign(ctx context.Context, id, actorID string, userIDs []string, authorize domain.Authorizer) (*domain.Task, error)
	Archive(ctx context.Context, id, actorID string, authorize domain.Authorizer) (*domain.Task, error)
	Delete(ctx context.Context, id, actorID string, authorize domain.Authorizer) (*domain.Task, error)
}

type CommentStore interface {
	Add(ctx context.Context, boardID string, c *domain.Comment) error
	Get(ctx context.Context, id string) (*domain.Comment, error)
	List(ctx context.Context, taskID string) ([]domain.Comment, error)
	Delete(ctx context.Context, id string) error
}

type ActivityStore interface {
	ListByTask(ctx context.Context, taskID string, page domain.Page) ([]domain.Activity, error)
	ListByBoard(ctx context.Context, boardID string, page domain.Page) ([]domain.Activity, error)
}

// Stores groups the persistence dependencies of the service.
type Stores struct {
	Projects ProjectStore
	Boards   BoardStore
	Columns  ColumnStore
	Tasks    TaskStore
	Comments CommentStore
	Activity ActivityStore
}

// Service implements the project, board, column and task operations. Every
// operation takes the calling principal and checks it against the role table
// refined by the resource it touches.
type Service struct {
	projects ProjectStore
	boards   BoardStore
	columns  ColumnStore
	tasks    TaskStore
	comments CommentStore
	activity ActivityStore

	table  domain.StatusTable
	events events.Publisher
	logger *zap.Logger
}

func New(stores Stores, table domain.StatusTable, pub events.Publisher, logger *zap.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if table.Rules == nil {
		table = domain.DefaultStatusTable()
	}
	return &Service{
		projects: stores.Projects,
		boards:   stores.Boards,
		columns:  stores.Columns,
		tasks:    stores.Tasks,
		comments: stores.Comments,
		activity: stores.Activity,
		table:    table,
		events:   pub,
		logger:   logger,
	}
}

// StatusTable reports the title table in use.
func (s *Service) StatusTable() domain.StatusTable {
	return s.table
}

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200
	publishTimeout       = 2 * time.Second
)

func projectResource(a domain.ProjectAccess) permissions.ProjectResource {
	return permissions.ProjectResource{OwnerID: a.OwnerID, MemberIDs: a.MemberIDs}
}

func boardResource(a domain.BoardAccess) permissions.BoardResource {
	return permissions.BoardResource{ProjectOwnerID: a.ProjectOwnerID, MemberIDs: a.MemberIDs, AdminIDs: a.AdminIDs}
}

func taskResource(a domain.TaskAccess) permissions.TaskResource {
	return permissions.TaskResource{
		CreatorID:      a.CreatorID,
		AssigneeIDs:    a.AssigneeIDs,
		ProjectOwnerID: a.Board.ProjectOwnerID,
		BoardAdminIDs:  a.Board.AdminIDs,
	}
}

func canViewBoard(actor auth.Principal, a domain.BoardAccess) bool {
	return permissions.Can(actor.Actor(), permissions.CanViewActivity, boardResource(a))
}

// boardFor loads a board's access context and checks capability on it.
func (s *Service) boardFor(ctx context.Context, actor auth.Principal, boardID string, capability permissions.Capability) (domain.BoardAccess, error) {
	a, err := s.boards.Access(ctx, boardID)
	if err != nil {
		return a, err
	}
	if !canViewBoard(actor, a) || !permissions.Can(actor.Actor(), capability, boardResource(a)) {
		return a, domain.ErrForbidden
	}
	return a, nil
}

// taskAuthorizer checks capability against the locked task and requires the
// board to be live for writes.
func taskAuthorizer(actor auth.Principal, capability permissions.Capability) domain.Authorizer {
	return func(a domain.TaskAccess) error {
		if !permissions.Can(actor.Actor(), capability, taskResource(a)) {
			return domain.ErrForbidden
		}
		if a.Board.Archived {
			return domain.ErrBoardArchived
		}
		return nil
	}
}

// publish sends ev after the change committed. Failures are logged only;
// clients resynchronise by re-reading the board.
func (s *Service) publish(ctx context.Context, ev events.BoardEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	s.events.Publish(ctx, ev)
}

func page(p domain.Page) domain.Page {
	if p.Limit <= 0 {
		p.Limit = defaultActivityLimit
	}
	if p.Limit > maxActivityLimit {
		p.Limit = maxActivityLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func requiredText(field, v string, limit int) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", domain.Invalid(field, "is required")
	}
	if len([]rune(v)) > limit {
		return "", domain.Invalid(field, "is too long")
	}
	return v, nil
}
