package cluster

import "fmt"

// Kind enumerates the wire-visible error taxonomy.
type Kind string

const (
	LeaderNotFound   Kind = "leader_not_found"
	ActorNotFound    Kind = "actor_not_found"
	AlreadyRegistered Kind = "already_registered"
	InvalidService   Kind = "invalid_service"
	RPCError         Kind = "rpc_error"
)

// Error is the typed, wrapped error every public MasterLoop request replies
// with on failure, matching the cos.ErrNotFound-style typed-error
// idiom rather than bare errors.New strings.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func NewError(kind Kind, detail string) *Error { return &Error{Kind: kind, Detail: detail} }

func IsKind(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
