package app

import (
	"regexp"
	"strings"

	"github.com/rooftopsai/rooftopsgpt-sub003/internal/domain"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*\}\}`)

// TemplateContext carries the CRM state a message can reference. Any of
// the fields may be nil.
type TemplateContext struct {
	Customer  *domain.Customer
	CRMJob    *domain.CRMJob
	Workspace *domain.Workspace
}

// RenderTemplate substitutes {{variable}} placeholders from an
// explicitly enumerated variable set. Unresolved placeholders stay
// verbatim: a missing field degrades the message, it never blocks the
// step.
func RenderTemplate(template string, tc TemplateContext) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if value, ok := tc.resolve(name); ok {
			return value
		}
		return match
	})
}

// resolve is the whole variable surface. Keeping it a closed switch
// (rather than reflection over arbitrary fields) is what stops a
// template from reaching internal state.
func (tc TemplateContext) resolve(name string) (string, bool) {
	switch strings.ToLower(name) {
	case "customer.name", "name":
		if tc.Customer != nil {
			return tc.Customer.Name, true
		}
	case "customer.first_name", "first_name":
		if tc.Customer != nil {
			return tc.Customer.FirstName, true
		}
	case "customer.phone":
		if tc.Customer != nil {
			return tc.Customer.Phone, true
		}
	case "customer.email":
		if tc.Customer != nil {
			return tc.Customer.Email, true
		}
	case "job.status":
		if tc.CRMJob != nil {
			return tc.CRMJob.Status, true
		}
	case "job.title":
		if tc.CRMJob != nil {
			return tc.CRMJob.Title, true
		}
	case "workspace.name", "company":
		if tc.Workspace != nil {
			return tc.Workspace.Name, true
		}
	}
	return "", false
}

// EvaluateCondition checks a step condition against current CRM state.
// An unresolvable field evaluates false, so a condition on missing data
// skips the send rather than guessing.
func EvaluateCondition(cond *domain.StepCondition, tc TemplateContext) bool {
	if cond == nil {
		return true
	}
	value, ok := tc.resolve(cond.Field)
	if !ok {
		return false
	}
	switch cond.Op {
	case domain.ConditionEq:
		return value == cond.Value
	case domain.ConditionNeq:
		return value != cond.Value
	}
	return false
}
