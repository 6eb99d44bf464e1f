package domain

// Role is the enumerated authorization role of a user.
type Role string

// Roles known to the permission evaluator.
const (
	RoleAdmin          Role = "ADMIN"
	RoleLabDirector    Role = "LAB_DIRECTOR"
	RoleProductManager Role = "PRODUCT_MANAGER"
	RoleDesigner       Role = "DESIGNER"
	RoleMarketer       Role = "MARKETER"
	RoleAnalyst        Role = "ANALYST"
	RoleMiddleOffice   Role = "MIDDLE_OFFICE"
	RoleExecutive      Role = "EXECUTIVE"
	RoleTeamMember     Role = "TEAM_MEMBER"
	RoleViewer         Role = "VIEWER"
	RoleStakeholder    Role = "STAKEHOLDER"
)

var (
	adminRoles  = map[Role]struct{}{RoleAdmin: {}}
	viewerRoles = map[Role]struct{}{RoleViewer: {}, RoleStakeholder: {}}
	teamRoles   = map[Role]struct{}{
		RoleProductManager: {},
		RoleDesigner:       {},
		RoleMarketer:       {},
		RoleAnalyst:        {},
		RoleMiddleOffice:   {},
		RoleExecutive:      {},
		RoleTeamMember:     {},
	}
)

// IsAdminRole reports membership in the admin partition.
func IsAdminRole(r Role) bool { _, ok := adminRoles[r]; return ok }

// IsTeamRole reports membership in the team partition.
func IsTeamRole(r Role) bool { _, ok := teamRoles[r]; return ok }

// IsViewerRole reports membership in the read-only partition.
func IsViewerRole(r Role) bool { _, ok := viewerRoles[r]; return ok }

// Known reports whether the role is recognised at all.
func (r Role) Known() bool {
	return IsAdminRole(r) || IsTeamRole(r) || IsViewerRole(r) || r == RoleLabDirector
}

// Permission is an action requested on a resource.
type Permission string

// Permission actions.
const (
	PermissionView   Permission = "view"
	PermissionCreate Permission = "create"
	PermissionEdit   Permission = "edit"
	PermissionDelete Permission = "delete"
)

// Resource identifies the object of a permission check. CreatedBy drives the
// ownership override.
type Resource struct {
	Type      EntityType
	ID        string
	CreatedBy string
}

// Policy carries the LAB_DIRECTOR capability flags. They are kept apart
// because oversight (view/edit) and deletion are granted separately.
type Policy struct {
	DirectorOversight bool
	DirectorDelete    bool
}

// DefaultPolicy grants LAB_DIRECTOR edit oversight but not deletion.
var DefaultPolicy = Policy{DirectorOversight: true}

// Evaluator applies the permission rules under a policy. It holds no state
// beyond the policy and is safe for concurrent use.
type Evaluator struct {
	Policy Policy
}

// NewEvaluator constructs an evaluator for the given policy.
func NewEvaluator(policy Policy) Evaluator {
	return Evaluator{Policy: policy}
}

// CanView allows any authenticated role.
func (e Evaluator) CanView(actor *User) bool {
	return actor != nil
}

// CanCreate allows admin, team and director roles.
func (e Evaluator) CanCreate(actor *User) bool {
	if actor == nil {
		return false
	}
	return IsAdminRole(actor.Role) || IsTeamRole(actor.Role) || actor.Role == RoleLabDirector
}

// CanEdit allows admins unconditionally and never allows viewers. Other roles
// may edit a named resource only when they created it, or hold the general
// capability when no resource is named.
func (e Evaluator) CanEdit(actor *User, resource *Resource) bool {
	if actor == nil {
		return false
	}
	switch {
	case IsAdminRole(actor.Role):
		return true
	case IsViewerRole(actor.Role):
		return false
	case actor.Role == RoleLabDirector && e.Policy.DirectorOversight:
		return true
	}
	if resource != nil {
		return resource.CreatedBy != "" && resource.CreatedBy == actor.ID
	}
	return IsTeamRole(actor.Role) || actor.Role == RoleLabDirector
}

// CanDelete allows admins and the resource creator.
func (e Evaluator) CanDelete(actor *User, resource *Resource) bool {
	if actor == nil {
		return false
	}
	if IsAdminRole(actor.Role) {
		return true
	}
	if actor.Role == RoleLabDirector && e.Policy.DirectorDelete {
		return true
	}
	return resource != nil && resource.CreatedBy != "" && resource.CreatedBy == actor.ID
}

// Allowed dispatches on the requested action.
func (e Evaluator) Allowed(actor *User, action Permission, resource *Resource) bool {
	switch action {
	case PermissionView:
		return e.CanView(actor)
	case PermissionCreate:
		return e.CanCreate(actor)
	case PermissionEdit:
		return e.CanEdit(actor, resource)
	case PermissionDelete:
		return e.CanDelete(actor, resource)
	default:
		return false
	}
}

// Check returns nil when allowed, an Unauthorized error when the actor is
// missing or inactive, and a *PermissionError otherwise.
func (e Evaluator) Check(actor *User, action Permission, resource *Resource) error {
	if err := RequireActor(actor); err != nil {
		return err
	}
	if !e.Allowed(actor, action, resource) {
		return NewPermissionError(actor, action, resource)
	}
	return nil
}

// RequireActor fails with Unauthorized unless the actor is present and active.
func RequireActor(actor *User) error {
	if actor == nil || actor.ID == "" {
		return UnauthorizedError("no actor")
	}
	if !actor.IsActive || (actor.Status != "" && actor.Status != UserStatusActive) {
		return UnauthorizedError("actor " + actor.ID + " is not active")
	}
	if !actor.Role.Known() {
		return UnauthorizedError("actor " + actor.ID + " has unknown role " + string(actor.Role))
	}
	return nil
}

// CheckPermission evaluates under DefaultPolicy.
func CheckPermission(actor *User, action Permission, resource *Resource) error {
	return NewEvaluator(DefaultPolicy).Check(actor, action, resource)
}
