package kanbantest

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/staffboard/staffboard-backend/internal/events"
	"github.com/staffboard/staffboard-backend/internal/kanban/domain"
)

// Store is an in-memory kanban store for tests. Membership lives only on the
// child (task.ColumnID, column.BoardID), as it does in postgres.
type Store struct {
	mu       sync.Mutex
	projects map[string]*domain.Project
	boards   map[string]*domain.Board
	columns  map[string]*domain.Column
	tasks    map[string]*domain.Task
	comments map[string]*domain.Comment
	activity []domain.Activity
}

func New() *Store {
	return &Store{
		projects: map[string]*domain.Project{},
		boards:   map[string]*domain.Board{},
		columns:  map[string]*domain.Column{},
		tasks:    map[string]*domain.Task{},
		comments: map[string]*domain.Comment{},
	}
}

func (s *Store) columnsOf(boardID string) []*domain.Column {
	var out []*domain.Column
	for _, c := range s.columns {
		if c.BoardID == boardID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (s *Store) tasksOf(columnID string) []*domain.Task {
	var out []*domain.Task
	for _, t := range s.tasks {
		if t.ColumnID == columnID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (s *Store) board(id string) *domain.Board {
	b := *s.boards[id]
	b.ColumnOrder = []string{}
	for _, c := range s.columnsOf(id) {
		b.ColumnOrder = append(b.ColumnOrder, c.ID)
	}
	return &b
}

func (s *Store) column(id string) *domain.Column {
	c := *s.columns[id]
	c.TaskIDs = []string{}
	for _, t := range s.tasksOf(id) {
		c.TaskIDs = append(c.TaskIDs, t.ID)
	}
	return &c
}

func (s *Store) boardAccess(id string) (domain.BoardAccess, error) {
	b, ok := s.boards[id]
	if !ok {
		return domain.BoardAccess{}, domain.ErrBoardNotFound
	}
	p := s.projects[b.ProjectID]
	return domain.BoardAccess{
		BoardID: b.ID, ProjectID: p.ID, ProjectOwnerID: p.OwnerID,
		MemberIDs: append(slices.Clone(b.MemberIDs), p.MemberIDs...),
		AdminIDs:  slices.Clone(b.AdminIDs), Archived: b.Archived,
	}, nil
}

func (s *Store) taskAccess(t *domain.Task) domain.TaskAccess {
	ba, _ := s.boardAccess(t.BoardID)
	return domain.TaskAccess{
		Board: ba, TaskID: t.ID, ColumnID: t.ColumnID, CreatorID: t.CreatorID,
		AssigneeIDs: slices.Clone(t.AssigneeIDs),
	}
}

// Stores returned by the accessors share s.
func (s *Store) Projects() Projects { return Projects{s} }
func (s *Store) Boards() Boards     { return Boards{s} }
func (s *Store) Columns() Columns   { return Columns{s} }
func (s *Store) Tasks() Tasks       { return Tasks{s} }
func (s *Store) Comments() Comments { return Comments{s} }
func (s *Store) Activity() Activity { return Activity{s} }

type Projects struct{ s *Store }

func (f Projects) Create(_ context.Context, in domain.NewProject) (*domain.Project, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, p := range f.s.projects {
		if p.Key == in.Key {
			return nil, domain.ErrProjectKeyTaken
		}
	}
	p := &domain.Project{
		ID: uuid.NewString(), Name: in.Name, Key: in.Key, Status: in.Status,
		OwnerID: in.OwnerID, MemberIDs: nonNilIDs(in.MemberIDs), BoardIDs: []string{},
	}
	f.s.projects[p.ID] = p
	cp := *p
	return &cp, nil
}

func (f Projects) Get(_ context.Context, id string) (*domain.Project, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	p, ok := f.s.projects[id]
	if !ok {
		return nil, domain.ErrProjectNotFound
	}
	cp := *p
	cp.BoardIDs = []string{}
	for _, b := range f.s.boards {
		if b.ProjectID == id {
			cp.BoardIDs = append(cp.BoardIDs, b.ID)
		}
	}
	return &cp, nil
}

func (f Projects) Access(_ context.Context, id string) (domain.ProjectAccess, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	p, ok := f.s.projects[id]
	if !ok {
		return domain.ProjectAccess{}, domain.ErrProjectNotFound
	}
	return domain.ProjectAccess{ProjectID: id, OwnerID: p.OwnerID, MemberIDs: slices.Clone(p.MemberIDs)}, nil
}

func (f Projects) List(_ context.Context, userID string, all bool, status domain.ProjectStatus) ([]domain.Project, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := []domain.Project{}
	for _, p := range f.s.projects {
		if !all && p.OwnerID != userID && !slices.Contains(p.MemberIDs, userID) {
			continue
		}
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (f Projects) Update(ctx context.Context, id string, p domain.ProjectPatch) (*domain.Project, error) {
	f.s.mu.Lock()
	cur, ok := f.s.projects[id]
	if ok {
		if p.Name != nil {
			cur.Name = *p.Name
		}
		if p.Status != nil {
			cur.Status = *p.Status
		}
	}
	f.s.mu.Unlock()
	if !ok {
		return nil, domain.ErrProjectNotFound
	}
	return f.Get(ctx, id)
}

func (f Projects) AddMember(ctx context.Context, id, userID string) (*domain.Project, error) {
	f.s.mu.Lock()
	if p, ok := f.s.projects[id]; ok && !slices.Contains(p.MemberIDs, userID) {
		p.MemberIDs = append(p.MemberIDs, userID)
	}
	f.s.mu.Unlock()
	return f.Get(ctx, id)
}

func (f Projects) RemoveMember(ctx context.Context, id, userID string) (*domain.Project, error) {
	f.s.mu.Lock()
	if p, ok := f.s.projects[id]; ok {
		p.MemberIDs = slices.DeleteFunc(p.MemberIDs, func(m string) bool { return m == userID })
	}
	f.s.mu.Unlock()
	return f.Get(ctx, id)
}

func (f Projects) Delete(_ context.Context, id string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.projects[id]; !ok {
		return domain.ErrProjectNotFound
	}
	delete(f.s.projects, id)
	return nil
}

type Boards struct{ s *Store }

func (f Boards) Create(_ context.Context, in domain.NewBoard) (*domain.Board, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.projects[in.ProjectID]; !ok {
		return nil, domain.ErrProjectNotFound
	}
	b := &domain.Board{
		ID: uuid.NewString(), ProjectID: in.ProjectID, Title: in.Title,
		MemberIDs: nonNilIDs(in.MemberIDs), AdminIDs: nonNilIDs(in.AdminIDs), CreatedBy: in.CreatedBy,
	}
	f.s.boards[b.ID] = b
	if in.DefaultColumns {
		for i, title := range []string{"To Do", "In Progress", "Review", "Done"} {
			c := &domain.Column{ID: uuid.NewString(), BoardID: b.ID, Title: title, Position: i}
			f.s.columns[c.ID] = c
		}
	}
	return f.s.board(b.ID), nil
}

func (f Boards) Get(_ context.Context, id string) (*domain.Board, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.boards[id]; !ok {
		return nil, domain.ErrBoardNotFound
	}
	return f.s.board(id), nil
}

func (f Boards) Access(_ context.Context, id string) (domain.BoardAccess, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.s.boardAccess(id)
}

func (f Boards) ListByProject(_ context.Context, projectID string) ([]domain.Board, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := []domain.Board{}
	for id, b := range f.s.boards {
		if b.ProjectID == projectID {
			out = append(out, *f.s.board(id))
		}
	}
	return out, nil
}

func (f Boards) View(_ context.Context, id string, includeArchived bool) (*domain.BoardView, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.boards[id]; !ok {
		return nil, domain.ErrBoardNotFound
	}
	v := &domain.BoardView{Board: *f.s.board(id), Columns: []domain.ColumnView{}}
	for _, c := range f.s.columnsOf(id) {
		cv := domain.ColumnView{Column: *f.s.column(c.ID), Tasks: []domain.Task{}}
		for _, t := range f.s.tasksOf(c.ID) {
			if includeArchived || t.Status != domain.StatusArchived {
				cv.Tasks = append(cv.Tasks, *t)
			}
		}
		v.Columns = append(v.Columns, cv)
	}
	return v, nil
}

func (f Boards) Update(ctx context.Context, id string, p domain.BoardPatch) (*domain.Board, error) {
	f.s.mu.Lock()
	if b, ok := f.s.boards[id]; ok && p.Title != nil {
		b.Title = *p.Title
	}
	f.s.mu.Unlock()
	return f.Get(ctx, id)
}

func (f Boards) SetArchived(ctx context.Context, id string, archived bool) (*domain.Board, error) {
	f.s.mu.Lock()
	if b, ok := f.s.boards[id]; ok {
		b.Archived = archived
	}
	f.s.mu.Unlock()
	return f.Get(ctx, id)
}

func (f Boards) AddMember(ctx context.Context, id, userID string, admin bool) (*domain.Board, error) {
	f.s.mu.Lock()
	if b, ok := f.s.boards[id]; ok {
		if !slices.Contains(b.MemberIDs, userID) {
			b.MemberIDs = append(b.MemberIDs, userID)
		}
		if admin && !slices.Contains(b.AdminIDs, userID) {
			b.AdminIDs = append(b.AdminIDs, userID)
		}
	}
	f.s.mu.Unlock()
	return f.Get(ctx, id)
}

func (f Boards) RemoveMember(ctx context.Context, id, userID string) (*domain.Board, error) {
	f.s.mu.Lock()
	if b, ok := f.s.boards[id]; ok {
		drop := func(m string) bool { return m == userID }
		b.MemberIDs = slices.DeleteFunc(b.MemberIDs, drop)
		b.AdminIDs = slices.DeleteFunc(b.AdminIDs, drop)
	}
	f.s.mu.Unlock()
	return f.Get(ctx, id)
}

func (f Boards) Delete(_ context.Context, id string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	delete(f.s.boards, id)
	return nil
}

type Columns struct{ s *Store }

func (f Columns) Create(_ context.Context, in domain.NewColumn) (*domain.Column, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c := &domain.Column{
		ID: uuid.NewString(), BoardID: in.BoardID, Title: in.Title, Position: len(f.s.columnsOf(in.BoardID)),
		WIPLimit: in.WIPLimit, MappedStatus: in.MappedStatus, Color: in.Color,
	}
	f.s.columns[c.ID] = c
	return f.s.column(c.ID), nil
}

func (f Columns) Get(_ context.Context, id string) (*domain.Column, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.columns[id]; !ok {
		return nil, domain.ErrColumnNotFound
	}
	return f.s.column(id), nil
}

func (f Columns) Update(ctx context.Context, id string, p domain.ColumnPatch) (*domain.Column, error) {
	f.s.mu.Lock()
	if c, ok := f.s.columns[id]; ok {
		if p.Title != nil {
			c.Title = *p.Title
		}
		if p.WIPLimit != nil {
			c.WIPLimit = p.WIPLimit
			if *p.WIPLimit == 0 {
				c.WIPLimit = nil
			}
		}
		if p.MappedStatus != nil {
			c.MappedStatus = p.MappedStatus
			if *p.MappedStatus == "" {
				c.MappedStatus = nil
			}
		}
	}
	f.s.mu.Unlock()
	return f.Get(ctx, id)
}

func (f Columns) Delete(_ context.Context, id string, force bool) (string, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c, ok := f.s.columns[id]
	if !ok {
		return "", domain.ErrColumnNotFound
	}
	if len(f.s.tasksOf(id)) > 0 && !force {
		return "", domain.ErrColumnNotEmpty
	}
	for _, t := range f.s.tasksOf(id) {
		delete(f.s.tasks, t.ID)
	}
	delete(f.s.columns, id)
	for _, other := range f.s.columnsOf(c.BoardID) {
		if other.Position > c.Position {
			other.Position--
		}
	}
	return c.BoardID, nil
}

func (f Columns) Reorder(_ context.Context, boardID string, ids []string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	cols := f.s.columnsOf(boardID)
	if len(cols) != len(ids) {
		return domain.ErrInvalidOrder
	}
	for _, c := range cols {
		if !slices.Contains(ids, c.ID) {
			return domain.ErrInvalidOrder
		}
	}
	for i, id := range ids {
		f.s.columns[id].Position = i
	}
	return nil
}

type Tasks struct{ s *Store }

func (f Tasks) Create(_ context.Context, in domain.NewTask, table domain.StatusTable) (*domain.Task, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c, ok := f.s.columns[in.ColumnID]
	if !ok {
		return nil, domain.ErrColumnNotFound
	}
	if f.s.boards[c.BoardID].Archived {
		return nil, domain.ErrBoardArchived
	}
	if c.WIPLimit != nil && len(f.s.tasksOf(c.ID)) >= *c.WIPLimit {
		return nil, domain.ErrWIPLimitReached
	}
	status, ok := table.Resolve(*c)
	if !ok {
		status = domain.StatusTodo
	}
	t := &domain.Task{
		ID: uuid.NewString(), ProjectID: f.s.boards[c.BoardID].ProjectID, BoardID: c.BoardID, ColumnID: c.ID,
		Title: in.Title, Position: len(f.s.tasksOf(c.ID)), Status: status, Priority: in.Priority,
		AssigneeIDs: nonNilIDs(in.AssigneeIDs), CreatorID: in.CreatorID, Tags: nonNilIDs(in.Tags),
	}
	f.s.tasks[t.ID] = t
	f.s.activity = append(f.s.activity, domain.Activity{TaskID: t.ID, BoardID: t.BoardID, ActorID: in.CreatorID, Type: domain.ActivityCreated})
	cp := *t
	return &cp, nil
}

func (f Tasks) Load(_ context.Context, id string) (*domain.Task, domain.TaskAccess, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	t, ok := f.s.tasks[id]
	if !ok {
		return nil, domain.TaskAccess{}, domain.ErrTaskNotFound
	}
	cp := *t
	return &cp, f.s.taskAccess(t), nil
}

func (f Tasks) List(_ context.Context, flt domain.TaskFilter) ([]domain.Task, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := []domain.Task{}
	for _, t := range f.s.tasks {
		if flt.ColumnID != "" && t.ColumnID != flt.ColumnID {
			continue
		}
		if flt.BoardID != "" && t.BoardID != flt.BoardID {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (f Tasks) Move(_ context.Context, req domain.MoveRequest, table domain.StatusTable, authorize domain.Authorizer) (*domain.MoveResult, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	t, ok := f.s.tasks[req.TaskID]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	if err := authorize(f.s.taskAccess(t)); err != nil {
		return nil, err
	}
	src, ok1 := f.s.columns[req.SourceColumnID]
	dst, ok2 := f.s.columns[req.DestColumnID]
	if !ok1 || !ok2 {
		return nil, domain.ErrColumnNotFound
	}
	if src.BoardID != dst.BoardID || dst.BoardID != t.BoardID {
		return nil, domain.ErrCrossBoardMove
	}
	if t.ColumnID != src.ID {
		return nil, domain.ErrStaleSource
	}

	var dest []*domain.Task
	for _, other := range f.s.tasksOf(dst.ID) {
		if other.ID != t.ID {
			dest = append(dest, other)
		}
	}
	if src.ID != dst.ID && dst.WIPLimit != nil && len(dest) >= *dst.WIPLimit {
		return nil, domain.ErrWIPLimitReached
	}
	if src.ID != dst.ID {
		i := 0
		for _, other := range f.s.tasksOf(src.ID) {
			if other.ID != t.ID {
				other.Position = i
				i++
			}
		}
	}
	index := min(max(req.Index, 0), len(dest))
	dest = slices.Insert(dest, index, t)
	for i, other := range dest {
		other.Position = i
	}
	prev := t.Status
	t.ColumnID = dst.ID
	if src.ID != dst.ID {
		if s, ok := table.Resolve(*dst); ok {
			t.Status = s
		}
	}
	f.s.activity = append(f.s.activity, domain.Activity{TaskID: t.ID, BoardID: t.BoardID, ActorID: req.ActorID, Type: domain.ActivityMoved})
	return &domain.MoveResult{
		Task: *t, FromColumnID: src.ID, ToColumnID: dst.ID, PrevStatus: prev, StatusChanged: prev != t.Status,
	}, nil
}

func (f Tasks) mutate(id string, authorize domain.Authorizer, fn func(t *domain.Task)) (*domain.Task, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	t, ok := f.s.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	if err := authorize(f.s.taskAccess(t)); err != nil {
		return nil, err
	}
	fn(t)
	cp := *t
	return &cp, nil
}

func (f Tasks) Update(_ context.Context, id, _ string, p domain.TaskPatch, authorize domain.Authorizer) (*domain.Task, error) {
	return f.mutate(id, authorize, func(t *domain.Task) {
		if p.Title != nil {
			t.Title = *p.Title
		}
		if p.Status != nil {
			t.Status = *p.Status
		}
	})
}

func (f Tasks) Assign(_ context.Context, id, _ string, userIDs []string, authorize domain.Authorizer) (*domain.Task, error) {
	return f.mutate(id, authorize, func(t *domain.Task) {
		for _, u := range userIDs {
			if !slices.Contains(t.AssigneeIDs, u) {
				t.AssigneeIDs = append(t.AssigneeIDs, u)
			}
		}
	})
}

func (f Tasks) Unassign(_ context.Context, id, _ string, userIDs []string, authorize domain.Authorizer) (*domain.Task, error) {
	return f.mutate(id, authorize, func(t *domain.Task) {
		t.AssigneeIDs = slices.DeleteFunc(t.AssigneeIDs, func(u string) bool { return slices.Contains(userIDs, u) })
	})
}

func (f Tasks) Archive(_ context.Context, id, _ string, authorize domain.Authorizer) (*domain.Task, error) {
	return f.mutate(id, authorize, func(t *domain.Task) { t.Status = domain.StatusArchived })
}

func (f Tasks) Delete(_ context.Context, id, actorID string, authorize domain.Authorizer) (*domain.Task, error) {
	t, err := f.mutate(id, authorize, func(*domain.Task) {})
	if err != nil {
		return nil, err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	delete(f.s.tasks, id)
	for _, other := range f.s.tasks {
		if other.ColumnID == t.ColumnID && other.Position > t.Position {
			other.Position--
		}
	}
	for i := range f.s.activity {
		if f.s.activity[i].TaskID == id {
			f.s.activity[i].TaskID = ""
		}
	}
	f.s.activity = append(f.s.activity, domain.Activity{BoardID: t.BoardID, ActorID: actorID, Type: domain.ActivityDeleted, Description: t.Title})
	return t, nil
}

type Comments struct{ s *Store }

func (f Comments) Add(_ context.Context, boardID string, c *domain.Comment) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c.ID = uuid.NewString()
	cp := *c
	f.s.comments[c.ID] = &cp
	f.s.activity = append(f.s.activity, domain.Activity{TaskID: c.TaskID, BoardID: boardID, ActorID: c.AuthorID, Type: domain.ActivityCommented})
	return nil
}

func (f Comments) Get(_ context.Context, id string) (*domain.Comment, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c, ok := f.s.comments[id]
	if !ok {
		return nil, domain.ErrCommentNotFound
	}
	cp := *c
	return &cp, nil
}

func (f Comments) List(_ context.Context, taskID string) ([]domain.Comment, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := []domain.Comment{}
	for _, c := range f.s.comments {
		if c.TaskID == taskID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f Comments) Delete(_ context.Context, id string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	delete(f.s.comments, id)
	return nil
}

type Activity struct{ s *Store }

func (f Activity) ListByTask(_ context.Context, taskID string, p domain.Page) ([]domain.Activity, error) {
	return f.filter(func(a domain.Activity) bool { return a.TaskID == taskID }, p), nil
}

func (f Activity) ListByBoard(_ context.Context, boardID string, p domain.Page) ([]domain.Activity, error) {
	return f.filter(func(a domain.Activity) bool { return a.BoardID == boardID }, p), nil
}

func (f Activity) filter(keep func(domain.Activity) bool, p domain.Page) []domain.Activity {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := []domain.Activity{}
	for i := len(f.s.activity) - 1; i >= 0; i-- {
		if keep(f.s.activity[i]) {
			out = append(out, f.s.activity[i])
		}
	}
	if len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out
}

func nonNilIDs(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}

// Recorder is an events.Publisher that keeps what it was given.
type Recorder struct {
	mu  sync.Mutex
	evs []events.BoardEvent
}

func (r *Recorder) Publish(_ context.Context, ev events.BoardEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, ev)
}

func (r *Recorder) Events() []events.BoardEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.evs)
}

func (r *Recorder) Types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.evs))
	for _, ev := range r.evs {
		out = append(out, ev.Type)
	}
	return out
}
