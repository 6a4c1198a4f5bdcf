package collab

import "ideasync/internal/models"

// CanEditContent decides whether p may replace the session's idea text.
//
// A viewer is allowed to edit whenever the session grants CanEdit; that
// asymmetry is intentional and must not be tightened here.
func CanEditContent(p *models.Participant, s *models.Session) bool {
	if p != nil && (p.Role == models.RoleOwner || p.Role == models.RoleEditor) {
		return true
	}
	return s != nil && s.Permissions.CanEdit
}

// CanComment mirrors CanEditContent for comments.
func CanComment(p *models.Participant, s *models.Session) bool {
	if p != nil && (p.Role == models.RoleOwner || p.Role == models.RoleEditor) {
		return true
	}
	return s != nil && s.Permissions.CanComment
}

func IsOwner(p *models.Participant) bool {
	return p != nil && p.Role == models.RoleOwner
}
