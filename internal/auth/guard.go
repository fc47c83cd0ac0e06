package auth

import (
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/metrics"
)

// AccessDeniedError carries the requirement that failed. The requirement is
// for logs and audit trails only; HTTP handlers must surface a generic
// "access denied" and never echo it to untrusted callers.
type AccessDeniedError struct {
	UserID      string
	Requirement string
}

func (e *AccessDeniedError) Error() string {
	return "access denied"
}

// Guard checks a single user against a fixed requirement.
type Guard func(userID string) error

// RequirePermission returns a guard that fails with AccessDeniedError
// unless the user holds the permission.
func RequirePermission(a *Authority, perm Permission) Guard {
	return func(userID string) error {
		if a.HasPermission(userID, perm) {
			metrics.PermissionChecksTotal.WithLabelValues("allowed").Inc()
			return nil
		}
		metrics.PermissionChecksTotal.WithLabelValues("denied").Inc()
		return &AccessDeniedError{UserID: userID, Requirement: "permission " + string(perm)}
	}
}

// RequireRole returns a guard that fails unless the user is assigned
// exactly the given role.
func RequireRole(a *Authority, role Role) Guard {
	return func(userID string) error {
		if got, ok := a.GetRole(userID); ok && got == role {
			metrics.PermissionChecksTotal.WithLabelValues("allowed").Inc()
			return nil
		}
		metrics.PermissionChecksTotal.WithLabelValues("denied").Inc()
		return &AccessDeniedError{UserID: userID, Requirement: "role " + string(role)}
	}
}

// RequireAnyRole returns a guard that fails unless the user's role is one
// of the given roles. An empty list always denies, matching the
// HasAnyPermission convention.
func RequireAnyRole(a *Authority, roles ...Role) Guard {
	return func(userID string) error {
		got, ok := a.GetRole(userID)
		if ok {
			for _, role := range roles {
				if got == role {
					metrics.PermissionChecksTotal.WithLabelValues("allowed").Inc()
					return nil
				}
			}
		}
		metrics.PermissionChecksTotal.WithLabelValues("denied").Inc()
		return &AccessDeniedError{UserID: userID, Requirement: "one of roles"}
	}
}
