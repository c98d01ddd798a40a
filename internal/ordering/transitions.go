package ordering

import "tosti/internal/models"

const (
	ActionEnable   = "enable"
	ActionClose    = "close"
	ActionReopen   = "reopen"
	ActionFinalize = "finalize"
)

var transitionMap = map[string][]models.ShiftState{
	ActionEnable:   {models.ShiftDraft},
	ActionClose:    {models.ShiftOpen},
	ActionReopen:   {models.ShiftClosed},
	ActionFinalize: {models.ShiftDraft, models.ShiftOpen, models.ShiftClosed},
}

func ValidTransition(action string, from models.ShiftState) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, state := range allowed {
		if state == from {
			return true
		}
	}
	return false
}

// canOrderAction names the transition that toggling can_order to enabled
// performs from state.
func canOrderAction(from models.ShiftState, enabled bool) string {
	if !enabled {
		return ActionClose
	}
	if from == models.ShiftClosed {
		return ActionReopen
	}
	return ActionEnable
}
