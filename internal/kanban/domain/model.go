package domain

import (
	"encoding/json"
	"time"
)

type ProjectStatus string

const (
	ProjectPlanning  ProjectStatus = "planning"
	ProjectActive    ProjectStatus = "active"
	ProjectOnHold    ProjectStatus = "on-hold"
	ProjectCompleted ProjectStatus = "completed"
	ProjectArchived  ProjectStatus = "archived"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectPlanning, ProjectActive, ProjectOnHold, ProjectCompleted, ProjectArchived:
		return true
	}
	return false
}

type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in-progress"
	StatusReview     TaskStatus = "review"
	StatusDone       TaskStatus = "done"
	StatusArchived   TaskStatus = "archived"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusReview, StatusDone, StatusArchived:
		return true
	}
	return false
}

// Mappable reports whether a column may map to s. Archiving is not a column.
func (s TaskStatus) Mappable() bool {
	return s.Valid() && s != StatusArchived
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type Project struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Key         string        `json:"key"`
	Description string        `json:"description"`
	Status      ProjectStatus `json:"status"`
	OwnerID     string        `json:"ownerId"`
	MemberIDs   []string      `json:"memberIds"`
	BoardIDs    []string      `json:"boardIds"`
	StartDate   *time.Time    `json:"startDate,omitempty"`
	EndDate     *time.Time    `json:"endDate,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Board.ColumnOrder is never stored; it is read back ordered by column position.
type Board struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ColumnOrder []string  `json:"columnOrder"`
	MemberIDs   []string  `json:"memberIds"`
	AdminIDs    []string  `json:"adminIds"`
	Archived    bool      `json:"archived"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Column.TaskIDs is derived from the tasks' own column_id and position.
type Column struct {
	ID           string      `json:"id"`
	BoardID      string      `json:"boardId"`
	Title        string      `json:"title"`
	Position     int         `json:"position"`
	TaskIDs      []string    `json:"taskIds"`
	WIPLimit     *int        `json:"wipLimit,omitempty"`
	MappedStatus *TaskStatus `json:"mappedStatus,omitempty"`
	Color        string      `json:"color,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

type Task struct {
	ID                   string     `json:"id"`
	ProjectID            string     `json:"projectId"`
	BoardID              string     `json:"boardId"`
	ColumnID             string     `json:"columnId"`
	Title                string     `json:"title"`
	Description          string     `json:"description"`
	Position             int        `json:"position"`
	Status               TaskStatus `json:"status"`
	Priority             Priority   `json:"priority"`
	AssigneeIDs          []string   `json:"assigneeIds"`
	CreatorID            string     `json:"creatorId"`
	DueDate              *time.Time `json:"dueDate,omitempty"`
	StartDate            *time.Time `json:"startDate,omitempty"`
	CompletionPercentage int        `json:"completionPercentage"`
	Tags                 []string   `json:"tags"`
	EstimatedHours       *float64   `json:"estimatedHours,omitempty"`
	CompletedAt          *time.Time `json:"completedAt,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

type ActivityType string

const (
	ActivityCreated       ActivityType = "created"
	ActivityUpdated       ActivityType = "updated"
	ActivityMoved         ActivityType = "moved"
	ActivityAssigned      ActivityType = "assigned"
	ActivityUnassigned    ActivityType = "unassigned"
	ActivityCommented     ActivityType = "commented"
	ActivityStatusChanged ActivityType = "status_changed"
	ActivityArchived      ActivityType = "archived"
	ActivityDeleted       ActivityType = "deleted"
)

// Activity is an append-only audit record for a task.
type Activity struct {
	ID          string          `json:"id"`
	TaskID      string          `json:"taskId"`
	BoardID     string          `json:"boardId"`
	ActorID     string          `json:"actorId"`
	Type        ActivityType    `json:"type"`
	Description string          `json:"description"`
	Before      json.RawMessage `json:"before,omitempty"`
	After       json.RawMessage `json:"after,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskId"`
	AuthorID  string    `json:"authorId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ColumnView and BoardView are the nested read model of a board.
type ColumnView struct {
	Column
	Tasks []Task `json:"tasks"`
}

type BoardView struct {
	Board
	Columns []ColumnView `json:"columns"`
}

type ProjectView struct {
	Project
	Boards []Board `json:"boards"`
}

// Access contexts loaded alongside resources for permission checks.

type ProjectAccess struct {
	ProjectID string
	OwnerID   string
	MemberIDs []string
}

type BoardAccess struct {
	BoardID        string
	ProjectID      string
	ProjectOwnerID string
	MemberIDs      []string // board members plus project members
	AdminIDs       []string
	Archived       bool
}

type TaskAccess struct {
	Board       BoardAccess
	TaskID      string
	ColumnID    string
	CreatorID   string
	AssigneeIDs []string
}

// Authorizer is called inside a task transaction, after the task row is
// locked and before anything is written. A non-nil error aborts the change.
type Authorizer func(TaskAccess) error

// Inputs

type NewProject struct {
	Name        string
	Key         string
	Description string
	Status      ProjectStatus
	OwnerID     string
	MemberIDs   []string
	StartDate   *time.Time
	EndDate     *time.Time
}

type ProjectPatch struct {
	Name        *string
	Description *string
	Status      *ProjectStatus
	StartDate   *time.Time
	EndDate     *time.Time
}

type NewBoard struct {
	ProjectID      string
	Title          string
	Description    string
	MemberIDs      []string
	AdminIDs       []string
	CreatedBy      string
	DefaultColumns bool
}

type BoardPatch struct {
	Title       *string
	Description *string
}

type NewColumn struct {
	BoardID      string
	Title        string
	WIPLimit     *int
	MappedStatus *TaskStatus
	Color        string
}

// ColumnPatch edits a column. A zero WIPLimit or empty MappedStatus clears it.
type ColumnPatch struct {
	Title        *string
	WIPLimit     *int
	MappedStatus *TaskStatus
	Color        *string
}

type NewTask struct {
	ColumnID       string
	Title          string
	Description    string
	Priority       Priority
	AssigneeIDs    []string
	CreatorID      string
	DueDate        *time.Time
	StartDate      *time.Time
	Tags           []string
	EstimatedHours *float64
}

type TaskPatch struct {
	Title                *string
	Description          *string
	Priority             *Priority
	Status               *TaskStatus
	DueDate              *time.Time
	StartDate            *time.Time
	CompletionPercentage *int
	Tags                 []string
	EstimatedHours       *float64
}

// MoveRequest relocates a task. SourceColumnID must be the task's current
// column; Index is clamped to the destination's bounds.
type MoveRequest struct {
	TaskID         string
	SourceColumnID string
	DestColumnID   string
	Index          int
	ActorID        string
}

type MoveResult struct {
	Task          Task       `json:"task"`
	FromColumnID  string     `json:"fromColumnId"`
	ToColumnID    string     `json:"toColumnId"`
	PrevStatus    TaskStatus `json:"previousStatus"`
	StatusChanged bool       `json:"statusChanged"`
}

type TaskFilter struct {
	ColumnID        string
	BoardID         string
	AssigneeID      string
	Status          TaskStatus
	Priority        Priority
	IncludeArchived bool
}

type Page struct {
	Limit  int
	Offset int
}
