package service

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/staffboard/staffboard-backend/internal/accounts/domain"
	"github.com/staffboard/staffboard-backend/internal/auth"
	"github.com/staffboard/staffboard-backend/internal/notify"
	"github.com/staffboard/staffboard-backend/internal/permissions"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var identifierPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9-]{2,31}$`)

// sameUser compares account ids the way the store does, so a differently
// spelled uuid still names the same account.
func sameUser(a, b string) bool {
	ua, errA := uuid.Parse(strings.TrimSpace(a))
	ub, errB := uuid.Parse(strings.TrimSpace(b))
	if errA != nil || errB != nil {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return ua == ub
}

// canManage reports whether actor may act on an account with the target role.
// Admin and HR accounts are reserved for callers with canManageHRUsers.
func canManage(actor auth.Principal, target permissions.Role) bool {
	if permissions.IsElevated(target) {
		return permissions.HasPermission(actor.Role, permissions.CanManageHRUsers)
	}
	return true
}

func (s *Service) ListUsers(ctx context.Context, actor auth.Principal, f domain.UserFilter) (*domain.UserPage, error) {
	if !permissions.HasPermission(actor.Role, permissions.CanViewAllUsers) {
		return nil, domain.ErrForbidden
	}
	if f.Role != "" && !f.Role.Valid() {
		return nil, domain.Invalid("role", "unknown role")
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, domain.Invalid("status", "unknown status")
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if !permissions.HasPermission(actor.Role, permissions.CanManageHRUsers) {
		if f.Role != "" && !canManage(actor, f.Role) {
			return nil, domain.ErrForbidden
		}
		f.OnlyRoles = []permissions.Role{permissions.RoleEmployee, permissions.RoleClient}
	}
	return s.users.List(ctx, f)
}

func (s *Service) GetUser(ctx context.Context, actor auth.Principal, id string) (*domain.User, error) {
	if !permissions.HasPermission(actor.Role, permissions.CanViewAllUsers) && actor.UserID != id {
		return nil, domain.ErrForbidden
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.UserID != id && !canManage(actor, u.Role) {
		return nil, domain.ErrForbidden
	}
	return u, nil
}

// target loads the user an admin operation acts on and checks the actor may
// perform capability against it.
func (s *Service) target(ctx context.Context, actor auth.Principal, id string, capability permissions.Capability) (*domain.User, error) {
	if !permissions.HasPermission(actor.Role, capability) {
		return nil, domain.ErrForbidden
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(actor, u.Role) {
		return nil, domain.ErrForbidden
	}
	return u, nil
}

func normalizeIdentifier(field, raw string) (string, error) {
	id := strings.ToUpper(strings.TrimSpace(raw))
	if id == "" {
		return "", nil
	}
	if !identifierPattern.MatchString(id) {
		return "", domain.Invalid(field, "must be 3-32 letters, digits or dashes")
	}
	return id, nil
}

// ApproveUser approves a pending or declined account. Clients must end up with
// a client ID and employees with an employee ID, taken from the request or
// already on the record. The approval email is queued in the same transaction.
func (s *Service) ApproveUser(ctx context.Context, actor auth.Principal, id string, req domain.ApproveRequest) (*domain.User, error) {
	u, err := s.target(ctx, actor, id, permissions.CanApproveUsers)
	if err != nil {
		return nil, err
	}

	employeeID, err := normalizeIdentifier("employeeId", req.EmployeeID)
	if err != nil {
		return nil, err
	}
	clientID, err := normalizeIdentifier("clientId", req.ClientID)
	if err != nil {
		return nil, err
	}

	upd := domain.StatusUpdate{
		Status: domain.StatusApproved,
		From:   []domain.AccountStatus{domain.StatusPending, domain.StatusDeclined},
	}
	var assigned, label string

	switch u.Role {
	case permissions.RoleClient:
		label = "client ID"
		switch {
		case clientID != "":
			upd.ClientID, assigned = &clientID, clientID
		case u.ClientID != nil && *u.ClientID != "":
			assigned = *u.ClientID
		default:
			return nil, domain.Invalid("clientId", "is required to approve a client")
		}
	case permissions.RoleEmployee:
		label = "employee ID"
		switch {
		case employeeID != "":
			upd.EmployeeID, assigned = &employeeID, employeeID
		case u.EmployeeID != nil && *u.EmployeeID != "":
			assigned = *u.EmployeeID
		default:
			return nil, domain.Invalid("employeeId", "is required to approve an employee")
		}
	default:
		if employeeID != "" {
			label = "employee ID"
			upd.EmployeeID, assigned = &employeeID, employeeID
		}
	}
	if assigned != "" {
		t := true
		upd.IDAssigned = &t
	}
	empty := ""
	upd.DeclineReason = &empty

	note := notify.Notification{
		Kind:      notify.KindAccountApproved,
		Recipient: u.Email,
		Payload: map[string]any{
			"name":        u.Name,
			"role":        string(u.Role),
			"assigned_id": assigned,
			"id_label":    label,
		},
	}
	return s.users.UpdateStatus(ctx, u.ID, upd, note)
}

func (s *Service) DeclineUser(ctx context.Context, actor auth.Principal, id, reason string) (*domain.User, error) {
	u, err := s.target(ctx, actor, id, permissions.CanApproveUsers)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if len(reason) > 500 {
		return nil, domain.Invalid("reason", "must be at most 500 characters")
	}
	note := notify.Notification{
		Kind:      notify.KindAccountDeclined,
		Recipient: u.Email,
		Payload:   map[string]any{"name": u.Name, "reason": reason},
	}
	return s.users.UpdateStatus(ctx, u.ID, domain.StatusUpdate{
		Status:        domain.StatusDeclined,
		From:          []domain.AccountStatus{domain.StatusPending},
		DeclineReason: &reason,
	}, note)
}

func (s *Service) BlockUser(ctx context.Context, actor auth.Principal, id string) (*domain.User, error) {
	if sameUser(actor.UserID, id) {
		return nil, domain.ErrForbidden
	}
	u, err := s.target(ctx, actor, id, permissions.CanBlockUsers)
	if err != nil {
		return nil, err
	}
	note := notify.Notification{
		Kind:      notify.KindAccountBlocked,
		Recipient: u.Email,
		Payload:   map[string]any{"name": u.Name},
	}
	return s.users.UpdateStatus(ctx, u.ID, domain.StatusUpdate{
		Status: domain.StatusBlocked,
		From:   []domain.AccountStatus{domain.StatusPending, domain.StatusApproved, domain.StatusDeclined},
	}, note)
}

func (s *Service) UnblockUser(ctx context.Context, actor auth.Principal, id string) (*domain.User, error) {
	u, err := s.target(ctx, actor, id, permissions.CanBlockUsers)
	if err != nil {
		return nil, err
	}
	return s.users.UpdateStatus(ctx, u.ID, domain.StatusUpdate{
		Status: domain.StatusApproved,
		From:   []domain.AccountStatus{domain.StatusBlocked},
	})
}

func (s *Service) DeleteUser(ctx context.Context, actor auth.Principal, id string) error {
	if sameUser(actor.UserID, id) {
		return domain.ErrForbidden
	}
	u, err := s.target(ctx, actor, id, permissions.CanDeleteUsers)
	if err != nil {
		return err
	}
	return s.users.Delete(ctx, u.ID)
}

func (s *Service) UpdateUser(ctx context.Context, actor auth.Principal, id string, p domain.UserPatch) (*domain.User, error) {
	u, err := s.target(ctx, actor, id, permissions.CanEditUsers)
	if err != nil {
		return nil, err
	}

	if p.Name != nil {
		n := strings.TrimSpace(*p.Name)
		if n == "" {
			return nil, domain.Invalid("name", "must not be empty")
		}
		p.Name = &n
	}
	if p.Role != nil {
		if !p.Role.Valid() {
			return nil, domain.Invalid("role", "unknown role")
		}
		if !canManage(actor, *p.Role) {
			return nil, domain.ErrForbidden
		}
		if actor.UserID == u.ID && *p.Role != u.Role {
			return nil, domain.ErrForbidden
		}
	}
	if p.EmployeeID != nil {
		v, err := normalizeIdentifier("employeeId", *p.EmployeeID)
		if err != nil {
			return nil, err
		}
		p.EmployeeID = &v
	}
	if p.ClientID != nil {
		v, err := normalizeIdentifier("clientId", *p.ClientID)
		if err != nil {
			return nil, err
		}
		p.ClientID = &v
	}
	return s.users.Update(ctx, u.ID, p)
}

func (s *Service) Stats(ctx context.Context, actor auth.Principal) (*domain.Stats, error) {
	if !permissions.HasPermission(actor.Role, permissions.CanViewAllUsers) {
		return nil, domain.ErrForbidden
	}
	return s.users.Stats(ctx)
}
