package service

import "github.com/noah-isme/internlog-api/internal/models"

// Actor is the authenticated caller performing an operation.
type Actor struct {
	ID   uint
	Role models.Role
}

// canAccess reports whether actor may see log. Mentors must be the assigned
// mentor; advisors must be the assigned advisor unless none is assigned yet.
func canAccess(actor Actor, log models.DailyLog) bool {
	switch actor.Role {
	case models.RoleStudent:
		return log.StudentID == actor.ID
	case models.RoleMentor:
		return log.MentorID == actor.ID
	case models.RoleAdvisor:
		return log.AdvisorID == 0 || log.AdvisorID == actor.ID
	case models.RoleAdmin:
		return true
	default:
		return false
	}
}
