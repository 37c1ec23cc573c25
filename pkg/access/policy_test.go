package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"project-hub-backend/pkg/models"
)

func TestCheckAccess(t *testing.T) {
	project := &models.Project{
		ID:           "p1",
		CustomerID:   "cust-1",
		AssignedTeam: []string{"emp-1", "emp-2"},
	}

	tests := []struct {
		name    string
		userID  string
		role    models.Role
		allowed bool
		reason  string
	}{
		{"pm always allowed", "pm-1", models.RolePM, true, ""},
		{"pm allowed on foreign project", "someone", models.RolePM, true, ""},
		{"owning customer", "cust-1", models.RoleCustomer, true, ""},
		{"other customer", "cust-2", models.RoleCustomer, false, ""},
		{"team employee", "emp-2", models.RoleEmployee, true, ""},
		{"employee off team", "emp-3", models.RoleEmployee, false, ""},
		{"customer id used as employee", "cust-1", models.RoleEmployee, false, ""},
		{"unknown role", "cust-1", models.Role("admin"), false, ReasonInvalidRole},
		{"empty role", "cust-1", models.Role(""), false, ReasonInvalidRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CheckAccess(project, tt.userID, tt.role)
			assert.Equal(t, tt.allowed, d.Allowed)
			if tt.allowed {
				assert.Empty(t, d.Reason)
			} else {
				assert.NotEmpty(t, d.Reason)
			}
			if tt.reason != "" {
				assert.Equal(t, tt.reason, d.Reason)
			}
		})
	}
}

func TestCheckAccess_EmptyUserNeverMatches(t *testing.T) {
	project := &models.Project{CustomerID: "", AssignedTeam: []string{""}}

	assert.False(t, CheckAccess(project, "", models.RoleCustomer).Allowed)
	assert.False(t, CheckAccess(project, "", models.RoleEmployee).Allowed)
}

func TestPolicyFor_IsPure(t *testing.T) {
	project := &models.Project{CustomerID: "c", AssignedTeam: []string{"e"}}
	before := *project

	for _, role := range []models.Role{models.RolePM, models.RoleCustomer, models.RoleEmployee, "x"} {
		PolicyFor(role).CanAccess(project, "e")
	}

	assert.Equal(t, before, *project)
}
