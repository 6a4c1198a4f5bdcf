package projector

import "ideasync/internal/models"

// State is the client's derived view of its current session. Values are
// never mutated in place; every transition produces a new State.
type State struct {
	IsConnected    bool
	CurrentSession *models.Session
	Participants   []models.Participant
	Cursors        map[string]models.Cursor
	TypingUsers    map[string]struct{}
	Comments       []models.Comment
	IsCreating     bool
	IsJoining      bool
	Error          string
}

func emptyState() State {
	return State{
		Cursors:     map[string]models.Cursor{},
		TypingUsers: map[string]struct{}{},
	}
}

// clone deep-copies s so the copy can be modified freely.
func (s State) clone() State {
	out := s
	out.CurrentSession = s.CurrentSession.Clone()
	out.Participants = append([]models.Participant(nil), s.Participants...)
	out.Comments = append([]models.Comment(nil), s.Comments...)
	out.Cursors = make(map[string]models.Cursor, len(s.Cursors))
	for k, v := range s.Cursors {
		out.Cursors[k] = v
	}
	out.TypingUsers = make(map[string]struct{}, len(s.TypingUsers))
	for k := range s.TypingUsers {
		out.TypingUsers[k] = struct{}{}
	}
	return out
}

// IsTyping reports whether userID currently shows a typing indicator.
func (s State) IsTyping(userID string) bool {
	_, ok := s.TypingUsers[userID]
	return ok
}

// withSession replaces the session and the lists derived from it.
func (s State) withSession(se *models.Session) State {
	s.CurrentSession = se
	if se == nil {
		s.Participants = nil
		s.Comments = nil
		s.Cursors = map[string]models.Cursor{}
		s.TypingUsers = map[string]struct{}{}
		return s
	}
	s.Participants = append([]models.Participant(nil), se.Participants...)
	s.Comments = append([]models.Comment(nil), se.Comments...)
	for _, p := range se.Participants {
		if p.Cursor != nil {
			s.Cursors[p.UserID] = *p.Cursor
		}
	}
	return s
}
