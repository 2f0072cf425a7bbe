package http

import (
	"context"
	"time"

	"github.com/staffboard/staffboard-backend/internal/events"
	"github.com/staffboard/staffboard-backend/internal/kanban/domain"
	"github.com/staffboard/staffboard-backend/internal/kanban/service"
	"go.uber.org/zap"
)

// Subscriber feeds the board event stream.
type Subscriber interface {
	Subscribe(ctx context.Context, boardID string) (<-chan events.BoardEvent, func(), error)
}

type Handler struct {
	svc    *service.Service
	bus    Subscriber
	logger *zap.Logger
}

// New builds the kanban handlers. bus may be nil, in which case the events
// endpoint answers 503.
func New(svc *service.Service, bus Subscriber, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, bus: bus, logger: logger}
}

type createProjectRequest struct {
	Name        string     `json:"name" binding:"required"`
	Key         string     `json:"key" binding:"required"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	MemberIDs   []string   `json:"memberIds"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
}

type updateProjectRequest struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
}

func (r updateProjectRequest) patch() domain.ProjectPatch {
	p := domain.ProjectPatch{Name: r.Name, Description: r.Description, StartDate: r.StartDate, EndDate: r.EndDate}
	if r.Status != nil {
		s := domain.ProjectStatus(*r.Status)
		p.Status = &s
	}
	return p
}

type memberRequest struct {
	UserID string `json:"userId" binding:"required"`
	Admin  bool   `json:"admin"`
}

type createBoardRequest struct {
	Title          string   `json:"title" binding:"required"`
	Description    string   `json:"description"`
	MemberIDs      []string `json:"memberIds"`
	AdminIDs       []string `json:"adminIds"`
	DefaultColumns *bool    `json:"defaultColumns"`
}

type updateBoardRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

type createColumnRequest struct {
	Title        string  `json:"title" binding:"required"`
	WIPLimit     *int    `json:"wipLimit"`
	MappedStatus *string `json:"mappedStatus"`
	Color        string  `json:"color"`
}

type updateColumnRequest struct {
	Title        *string `json:"title"`
	WIPLimit     *int    `json:"wipLimit"`
	MappedStatus *string `json:"mappedStatus"`
	Color        *string `json:"color"`
}

func statusPtr(s *string) *domain.TaskStatus {
	if s == nil {
		return nil
	}
	v := domain.TaskStatus(*s)
	return &v
}

type reorderColumnsRequest struct {
	ColumnOrder []string `json:"columnOrder" binding:"required"`
}

type createTaskRequest struct {
	Title          string     `json:"title" binding:"required"`
	Description    string     `json:"description"`
	Priority       string     `json:"priority"`
	AssigneeIDs    []string   `json:"assigneeIds"`
	DueDate        *time.Time `json:"dueDate"`
	StartDate      *time.Time `json:"startDate"`
	Tags           []string   `json:"tags"`
	EstimatedHours *float64   `json:"estimatedHours"`
}

type updateTaskRequest struct {
	Title                *string    `json:"title"`
	Description          *string    `json:"description"`
	Priority             *string    `json:"priority"`
	Status               *string    `json:"status"`
	DueDate              *time.Time `json:"dueDate"`
	StartDate            *time.Time `json:"startDate"`
	CompletionPercentage *int       `json:"completionPercentage"`
	Tags                 []string   `json:"tags"`
	EstimatedHours       *float64   `json:"estimatedHours"`
}

func (r updateTaskRequest) patch() domain.TaskPatch {
	p := domain.TaskPatch{
		Title:                r.Title,
		Description:          r.Description,
		Status:               statusPtr(r.Status),
		DueDate:              r.DueDate,
		StartDate:            r.StartDate,
		CompletionPercentage: r.CompletionPercentage,
		Tags:                 r.Tags,
		EstimatedHours:       r.EstimatedHours,
	}
	if r.Priority != nil {
		pr := domain.Priority(*r.Priority)
		p.Priority = &pr
	}
	return p
}

// moveTaskRequest carries the drag result. Index is a pointer so a missing
// index is told apart from the top of the column.
type moveTaskRequest struct {
	SourceColumnID      string `json:"sourceColumnId" binding:"required"`
	DestinationColumnID string `json:"destinationColumnId" binding:"required"`
	Index               *int   `json:"index" binding:"required"`
}

type assigneesRequest struct {
	UserIDs []string `json:"userIds" binding:"required"`
}

type commentRequest struct {
	Body string `json:"body" binding:"required"`
}
