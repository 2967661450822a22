/**
 * @description
 * Role-based access policy for savings operations. The allowed-action set per
 * role is declared once here and consulted once per service operation, instead
 * of ad hoc role string comparisons scattered through the business logic.
 */

package app

import "github.com/kopkad/savings-service/internal/domain"

// Action names one service-level operation for permission checks.
type Action string

const (
	ActionCreatePlan  Action = "plan.create"
	ActionUpdatePlan  Action = "plan.update"
	ActionDeletePlan  Action = "plan.delete"
	ActionExtendPlan  Action = "plan.extend"
	ActionEndPlan     Action = "plan.end"
	ActionMarkPayment Action = "payment.mark"
	ActionConfirmPay  Action = "payment.confirm"
	ActionViewPlan    Action = "plan.view"
	ActionViewPayouts Action = "payout.view"
)

// Policy is the capability table consulted by the service layer.
type Policy struct {
	allowed map[domain.Role]map[Action]bool
}

// NewPolicy builds the default capability table. Customers operate on their
// own plans only (ownership is enforced separately); agents run day-to-day
// plan and payment operations; admins additionally terminate and delete.
func NewPolicy() *Policy {
	grant := func(actions ...Action) map[Action]bool {
		m := make(map[Action]bool, len(actions))
		for _, a := range actions {
			m[a] = true
		}
		return m
	}

	return &Policy{
		allowed: map[domain.Role]map[Action]bool{
			domain.RoleCustomer: grant(
				ActionMarkPayment, ActionConfirmPay, ActionViewPlan,
			),
			domain.RoleAgent: grant(
				ActionCreatePlan, ActionUpdatePlan, ActionExtendPlan,
				ActionMarkPayment, ActionConfirmPay, ActionViewPlan, ActionViewPayouts,
			),
			domain.RoleAdmin: grant(
				ActionCreatePlan, ActionUpdatePlan, ActionDeletePlan, ActionExtendPlan,
				ActionEndPlan, ActionMarkPayment, ActionConfirmPay, ActionViewPlan, ActionViewPayouts,
			),
			domain.RoleSuperAdmin: grant(
				ActionCreatePlan, ActionUpdatePlan, ActionDeletePlan, ActionExtendPlan,
				ActionEndPlan, ActionMarkPayment, ActionConfirmPay, ActionViewPlan, ActionViewPayouts,
			),
		},
	}
}

// Allows reports whether the role may perform the action.
func (p *Policy) Allows(role domain.Role, action Action) bool {
	actions, ok := p.allowed[role]
	if !ok {
		return false
	}
	return actions[action]
}

// OwnershipExempt reports whether the role may act on plans it does not own.
func (p *Policy) OwnershipExempt(role domain.Role) bool {
	switch role {
	case domain.RoleAgent, domain.RoleAdmin, domain.RoleSuperAdmin:
		return true
	default:
		return false
	}
}
