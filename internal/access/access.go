package access

import "deepthoughts/api/internal/auth"

type Role string
type Action string

const (
	RoleAnonymous Role = "anonymous"
	RoleMember    Role = "member"
)

const (
	// ActionRead covers public reads.
	ActionRead Action = "read"
	// ActionReadOwn covers reads about the caller themself.
	ActionReadOwn Action = "read_own"
	ActionWrite   Action = "write"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleMember:
		return action == ActionRead || action == ActionReadOwn || action == ActionWrite
	case RoleAnonymous:
		return action == ActionRead
	default:
		return false
	}
}

func RoleOf(identity auth.Identity) Role {
	if identity.IsAuthenticated() {
		return RoleMember
	}
	return RoleAnonymous
}
