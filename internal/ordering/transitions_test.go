package ordering

import (
	"testing"

	"tosti/internal/models"
)

func TestValidTransition(t *testing.T) {
	cases := []struct {
		action string
		from   models.ShiftState
		valid  bool
	}{
		{ActionEnable, models.ShiftDraft, true},
		{ActionEnable, models.ShiftClosed, false},
		{ActionClose, models.ShiftOpen, true},
		{ActionClose, models.ShiftDraft, false},
		{ActionReopen, models.ShiftClosed, true},
		{ActionReopen, models.ShiftOpen, false},
		{ActionFinalize, models.ShiftDraft, true},
		{ActionFinalize, models.ShiftOpen, true},
		{ActionFinalize, models.ShiftClosed, true},
		{ActionFinalize, models.ShiftFinalized, false},
		{ActionEnable, models.ShiftFinalized, false},
		{"unknown", models.ShiftOpen, false},
	}

	for _, tt := range cases {
		if got := ValidTransition(tt.action, tt.from); got != tt.valid {
			t.Fatalf("ValidTransition(%q, %q)=%v, want %v", tt.action, tt.from, got, tt.valid)
		}
	}
}
