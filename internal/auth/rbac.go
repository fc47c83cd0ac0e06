package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GachokiR/far-clarity-advisor-sub001/internal/metrics"
)

// Permission is an opaque tag from the closed permission catalog. Values
// outside the catalog never enter the authority.
type Permission string

const (
	PermReadDocuments    Permission = "read:documents"
	PermUploadDocuments  Permission = "upload:documents"
	PermDeleteDocuments  Permission = "delete:documents"
	PermRunAnalysis      Permission = "run:analysis"
	PermViewReports      Permission = "view:reports"
	PermExportReports    Permission = "export:reports"
	PermManageUsers      Permission = "manage:users"
	PermAdminSecurity    Permission = "admin:security"
	PermComplianceManage Permission = "compliance:manage"
	PermViewDashboard    Permission = "view:dashboard"
)

// Role is one of the four canonical roles. The role→permission mapping is
// process-wide and read-only after initialization.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleAnalyst   Role = "analyst"
	RoleUser      Role = "user"
)

// rolePermissions is the canonical catalog. Assignments copy from it by
// value, never reference it, so concurrent reads need no locking.
var rolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermReadDocuments, PermUploadDocuments, PermDeleteDocuments,
		PermRunAnalysis, PermViewReports, PermExportReports,
		PermManageUsers, PermAdminSecurity, PermComplianceManage,
		PermViewDashboard,
	},
	RoleModerator: {
		PermReadDocuments, PermUploadDocuments, PermDeleteDocuments,
		PermRunAnalysis, PermViewReports, PermExportReports,
		PermComplianceManage, PermViewDashboard,
	},
	RoleAnalyst: {
		PermReadDocuments, PermRunAnalysis, PermViewReports,
		PermViewDashboard,
	},
	RoleUser: {
		PermReadDocuments, PermViewDashboard,
	},
}

// RolePermissions returns a copy of the canonical permission set for a role.
func RolePermissions(role Role) ([]Permission, bool) {
	perms, ok := rolePermissions[role]
	if !ok {
		return nil, false
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out, true
}

var (
	ErrUnknownRole = errors.New("unknown role")
)

// Assignment binds a user to a role plus a snapshot of the role's
// permission set. The snapshot may drift from the catalog after ad-hoc
// AddPermission/RemovePermission edits; that is the per-user override
// mechanism, not a bug.
type Assignment struct {
	UserID      string
	Role        Role
	Permissions map[Permission]struct{}
	AssignedAt  time.Time
	AssignedBy  string
}

// clone returns a deep copy so callers can never mutate authority state
// through a returned assignment.
func (a *Assignment) clone() *Assignment {
	perms := make(map[Permission]struct{}, len(a.Permissions))
	for p := range a.Permissions {
		perms[p] = struct{}{}
	}
	return &Assignment{
		UserID:      a.UserID,
		Role:        a.Role,
		Permissions: perms,
		AssignedAt:  a.AssignedAt,
		AssignedBy:  a.AssignedBy,
	}
}

// PermissionList returns the snapshot permissions in unspecified order.
func (a *Assignment) PermissionList() []Permission {
	out := make([]Permission, 0, len(a.Permissions))
	for p := range a.Permissions {
		out = append(out, p)
	}
	return out
}

// Authority answers authorization queries from an in-memory role assignment
// table. All checks fail closed: a user with no assignment is denied
// everything, which keeps the authority safe under partial initialization.
type Authority struct {
	mu          sync.RWMutex
	assignments map[string]*Assignment
}

// NewAuthority creates an empty authority. Instances are independent so
// tests can construct isolated authorities instead of sharing a global.
func NewAuthority() *Authority {
	return &Authority{
		assignments: make(map[string]*Assignment),
	}
}

// AssignRole replaces any prior assignment for userID with a fresh snapshot
// of the role's canonical permission set. Fails with ErrUnknownRole for a
// role outside the catalog.
func (a *Authority) AssignRole(userID string, role Role, assignedBy string) (*Assignment, error) {
	catalog, ok := rolePermissions[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	perms := make(map[Permission]struct{}, len(catalog))
	for _, p := range catalog {
		perms[p] = struct{}{}
	}

	assignment := &Assignment{
		UserID:      userID,
		Role:        role,
		Permissions: perms,
		AssignedAt:  time.Now(),
		AssignedBy:  assignedBy,
	}

	a.mu.Lock()
	a.assignments[userID] = assignment
	a.mu.Unlock()

	metrics.RoleAssignmentsTotal.WithLabelValues(string(role)).Inc()

	return assignment.clone(), nil
}

// RevokeRole removes the user's assignment. Returns false if none existed.
func (a *Authority) RevokeRole(userID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.assignments[userID]; !ok {
		return false
	}
	delete(a.assignments, userID)
	return true
}

// GetAssignment returns a copy of the user's assignment, if any.
func (a *Authority) GetAssignment(userID string) (*Assignment, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	assignment, ok := a.assignments[userID]
	if !ok {
		return nil, false
	}
	return assignment.clone(), true
}

// GetRole returns the user's role, if assigned.
func (a *Authority) GetRole(userID string) (Role, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	assignment, ok := a.assignments[userID]
	if !ok {
		return "", false
	}
	return assignment.Role, true
}

// HasPermission reports whether the user's snapshot contains the permission.
// No assignment means false.
func (a *Authority) HasPermission(userID string, perm Permission) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	assignment, ok := a.assignments[userID]
	if !ok {
		return false
	}
	_, has := assignment.Permissions[perm]
	return has
}

// HasAnyPermission reports whether the user holds at least one of the given
// permissions. An empty list is vacuously false: "any of nothing" names no
// capability, so granting it would widen access by accident.
func (a *Authority) HasAnyPermission(userID string, perms []Permission) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	assignment, ok := a.assignments[userID]
	if !ok {
		return false
	}
	for _, p := range perms {
		if _, has := assignment.Permissions[p]; has {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the user holds every given permission.
// An empty list is vacuously true, but only for users that have an
// assignment at all; unknown users stay denied.
func (a *Authority) HasAllPermissions(userID string, perms []Permission) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	assignment, ok := a.assignments[userID]
	if !ok {
		return false
	}
	for _, p := range perms {
		if _, has := assignment.Permissions[p]; !has {
			return false
		}
	}
	return true
}

// AddPermission adds a permission to the user's snapshot. Returns false
// when the user has no assignment; idempotent otherwise.
func (a *Authority) AddPermission(userID string, perm Permission) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	assignment, ok := a.assignments[userID]
	if !ok {
		return false
	}
	assignment.Permissions[perm] = struct{}{}
	return true
}

// RemovePermission removes a permission from the user's snapshot. Returns
// false when the user has no assignment; idempotent otherwise.
func (a *Authority) RemovePermission(userID string, perm Permission) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	assignment, ok := a.assignments[userID]
	if !ok {
		return false
	}
	delete(assignment.Permissions, perm)
	return true
}
