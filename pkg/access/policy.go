// Package access decides whether a user may read or write a project.
//
// Each role has its own AccessPolicy. Policies are pure predicates over an
// already-fetched project; callers decide how a denial maps onto HTTP.
package access

import "project-hub-backend/pkg/models"

// ReasonInvalidRole is the denial reason for unknown roles.
const ReasonInvalidRole = "Invalid role"

// Decision is the outcome of an access check.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// AccessPolicy is the access rule of a single role.
type AccessPolicy interface {
	CanAccess(project *models.Project, userID string) Decision
}

type pmPolicy struct{}

// CanAccess always allows: project managers see every project.
func (pmPolicy) CanAccess(*models.Project, string) Decision {
	return allow()
}

type customerPolicy struct{}

// CanAccess allows the customer who owns the project.
func (customerPolicy) CanAccess(project *models.Project, userID string) Decision {
	if project != nil && userID != "" && project.CustomerID == userID {
		return allow()
	}
	return deny("Access denied: not the project customer")
}

type employeePolicy struct{}

// CanAccess allows employees on the project team.
func (employeePolicy) CanAccess(project *models.Project, userID string) Decision {
	if project != nil && userID != "" && project.HasTeamMember(userID) {
		return allow()
	}
	return deny("Access denied: not assigned to this project")
}

type invalidRolePolicy struct{}

func (invalidRolePolicy) CanAccess(*models.Project, string) Decision {
	return deny(ReasonInvalidRole)
}

// PolicyFor returns the policy of role. Unknown roles get a policy that
// denies everything.
func PolicyFor(role models.Role) AccessPolicy {
	switch role {
	case models.RolePM:
		return pmPolicy{}
	case models.RoleCustomer:
		return customerPolicy{}
	case models.RoleEmployee:
		return employeePolicy{}
	default:
		return invalidRolePolicy{}
	}
}

// CheckAccess decides whether userID acting as role may access project.
func CheckAccess(project *models.Project, userID string, role models.Role) Decision {
	return PolicyFor(role).CanAccess(project, userID)
}
