package collab

// Kind classifies the errors returned to callers of the lifecycle and
// content operations.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindPermission
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPermission:
		return "permission"
	default:
		return "unknown"
	}
}

// Error is a caller-facing collaboration error.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches another *Error of the same kind. A target without a message
// matches every error of its kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

var (
	// ErrNotFound matches every not-found error.
	ErrNotFound = &Error{Kind: KindNotFound}
	// ErrPermission matches every permission error.
	ErrPermission = &Error{Kind: KindPermission}

	ErrSessionNotFound     = &Error{Kind: KindNotFound, Message: "Session not found"}
	ErrParticipantNotFound = &Error{Kind: KindNotFound, Message: "Participant not found"}
	ErrEditDenied          = &Error{Kind: KindPermission, Message: "Insufficient permissions to edit"}
	ErrCommentDenied       = &Error{Kind: KindPermission, Message: "Insufficient permissions to comment"}
	ErrNotOwner            = &Error{Kind: KindPermission, Message: "Only the session owner can perform this action"}
	ErrSessionEnded        = &Error{Kind: KindPermission, Message: "Session has ended"}
)
