package lifecycle

import "github.com/noah-isme/internlog-api/internal/models"

type edge struct {
	from models.LogStatus
	to   models.LogStatus
}

// permissions is the single source of truth for who may move a log where.
var permissions = map[models.Role]map[edge]struct{}{
	models.RoleStudent: {
		{models.LogStatusDraft, models.LogStatusSubmitted}:        {},
		{models.LogStatusNeedsRevision, models.LogStatusRevised}: {},
	},
	models.RoleMentor: {
		{models.LogStatusSubmitted, models.LogStatusUnderReview}:     {},
		{models.LogStatusUnderReview, models.LogStatusApproved}:      {},
		{models.LogStatusUnderReview, models.LogStatusNeedsRevision}: {},
		{models.LogStatusRevised, models.LogStatusUnderReview}:       {},
	},
	models.RoleAdvisor: {
		{models.LogStatusApproved, models.LogStatusValidated}: {},
	},
}

// Allowed reports whether role may move a log from one status to another.
func Allowed(role models.Role, from, to models.LogStatus) bool {
	edges, ok := permissions[role]
	if !ok {
		return false
	}
	_, ok = edges[edge{from: from, to: to}]
	return ok
}

// AvailableTargets lists the statuses role may request from the given status,
// in lifecycle order.
func AvailableTargets(role models.Role, from models.LogStatus) []models.LogStatus {
	targets := make([]models.LogStatus, 0, 2)
	for _, candidate := range models.LogStatuses {
		if Allowed(role, from, candidate) {
			targets = append(targets, candidate)
		}
	}
	return targets
}

// Editable reports whether the student may change log content in this status.
func Editable(status models.LogStatus) bool {
	return status == models.LogStatusDraft || status == models.LogStatusNeedsRevision
}

// Terminal reports whether no further transitions exist from status.
func Terminal(status models.LogStatus) bool {
	return status == models.LogStatusValidated
}
