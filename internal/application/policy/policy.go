// Package policy decides which actor may perform which action on which
// branch. Every mutating operation in the service layer consults Authorize;
// nothing else in the codebase inspects roles.
package policy

import (
	"fmt"

	"github.com/garyjia/office-ledger/internal/domain/apperror"
	"github.com/garyjia/office-ledger/internal/domain/entity"
)

// Action is an operation an actor requests
type Action string

const (
	ActionRead    Action = "read"
	ActionWrite   Action = "write"
	ActionDelete  Action = "delete"
	ActionManage  Action = "manage"
	ActionTrigger Action = "trigger"
)

// Resource is the kind of record an action targets
type Resource string

const (
	ResourceClient       Resource = "client"
	ResourceProcess      Resource = "process"
	ResourceContract     Resource = "contract"
	ResourceTransaction  Resource = "transaction"
	ResourceUser         Resource = "user"
	ResourceNotification Resource = "notification"
)

// Target addresses a resource in a branch. Global targets, such as a
// deployment-wide reminder run, carry no branch.
type Target struct {
	Resource Resource
	BranchID int64
	Global   bool
}

// InBranch builds a branch-scoped target
func InBranch(resource Resource, branchID int64) Target {
	return Target{Resource: resource, BranchID: branchID}
}

// Deployment builds a global target
func Deployment(resource Resource) Target {
	return Target{Resource: resource, Global: true}
}

// Decision is the result of an authorization check
type Decision struct {
	Allowed bool
	Reason  string
}

// Err converts a denial into an AuthorizationError
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return apperror.Denied(d.Reason)
}

type grant struct {
	actions   []Action
	financial bool // requires User.FinancialAccess
}

type rule struct {
	allBranches bool
	grants      map[Resource]grant
}

var every = []Action{ActionRead, ActionWrite, ActionDelete, ActionManage, ActionTrigger}

var recordActions = []Action{ActionRead, ActionWrite, ActionDelete}

var table = map[string]rule{
	entity.RoleSuperAdmin: {
		allBranches: true,
		grants: map[Resource]grant{
			ResourceClient:       {actions: every},
			ResourceProcess:      {actions: every},
			ResourceContract:     {actions: every},
			ResourceTransaction:  {actions: every},
			ResourceUser:         {actions: every},
			ResourceNotification: {actions: every},
		},
	},
	entity.RoleBranchAdmin: {
		grants: map[Resource]grant{
			ResourceClient:       {actions: every},
			ResourceProcess:      {actions: every},
			ResourceContract:     {actions: every},
			ResourceTransaction:  {actions: every},
			ResourceUser:         {actions: every},
			ResourceNotification: {actions: every},
		},
	},
	entity.RoleStaff: {
		grants: map[Resource]grant{
			ResourceClient:      {actions: recordActions},
			ResourceProcess:     {actions: recordActions},
			ResourceContract:    {actions: recordActions},
			ResourceTransaction: {actions: recordActions, financial: true},
		},
	},
}

// Authorize decides whether actor may perform action on target. It has no
// side effects.
func Authorize(actor *entity.User, action Action, target Target) Decision {
	if actor == nil {
		return deny("no actor")
	}
	if !actor.Active {
		return deny("user is inactive")
	}

	r, ok := table[actor.Role]
	if !ok {
		return deny(fmt.Sprintf("unknown role %q", actor.Role))
	}

	g, ok := r.grants[target.Resource]
	if !ok || !permits(g.actions, action) {
		return deny(fmt.Sprintf("role %s may not %s %s", actor.Role, action, target.Resource))
	}
	if g.financial && !actor.FinancialAccess {
		return deny(fmt.Sprintf("%s access requires financial access", target.Resource))
	}

	if r.allBranches {
		return Decision{Allowed: true}
	}
	if len(actor.BranchIDs) == 0 {
		return deny("no branch selected")
	}
	if target.Global {
		return Decision{Allowed: true}
	}
	if !actor.InBranch(target.BranchID) {
		return deny(fmt.Sprintf("branch %d is not assigned to user %d", target.BranchID, actor.ID))
	}
	return Decision{Allowed: true}
}

// VisibleBranches narrows all to the branches in which actor may read
// resource. The result preserves the order of all.
func VisibleBranches(actor *entity.User, resource Resource, all []int64) []int64 {
	visible := make([]int64, 0, len(all))
	for _, id := range all {
		if Authorize(actor, ActionRead, InBranch(resource, id)).Allowed {
			visible = append(visible, id)
		}
	}
	return visible
}

func permits(actions []Action, action Action) bool {
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}

func deny(reason string) Decision {
	return Decision{Reason: reason}
}
