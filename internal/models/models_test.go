package models

import "testing"

func TestActionStepNormalizeRepeatCount(t *testing.T) {
	cases := []struct {
		name string
		in   int
		want int
	}{
		{"zero", 0, 1},
		{"negative", -3, 1},
		{"in range", 7, 7},
		{"above cap", 200, MaxRepeatCount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := ActionStep{Action: ActionPress, Keys: []string{"n"}, RepeatCount: tc.in}
			s.Normalize(DefaultMaxDuration)
			if s.RepeatCount != tc.want {
				t.Errorf("RepeatCount = %d, want %d", s.RepeatCount, tc.want)
			}
		})
	}
}

func TestActionStepNormalizeDelayBetween(t *testing.T) {
	s := ActionStep{Action: ActionPress, Keys: []string{"n"}, DelayBetween: 0.005}
	s.Normalize(DefaultMaxDuration)
	if s.DelayBetween != MinRepeatDelay {
		t.Errorf("DelayBetween = %v, want %v", s.DelayBetween, MinRepeatDelay)
	}

	s = ActionStep{Action: ActionPress, Keys: []string{"n"}, DelayBetween: 0}
	s.Normalize(DefaultMaxDuration)
	if s.DelayBetween != 0 {
		t.Errorf("zero DelayBetween should stay zero, got %v", s.DelayBetween)
	}
}

func TestActionStepNormalizeClampsDurations(t *testing.T) {
	s := ActionStep{Action: ActionHold, Keys: []string{"n"}, Duration: 99, DelayAfter: -1, DelayBetween: 10}
	s.Normalize(DefaultMaxDuration)
	if s.Duration != DefaultMaxDuration {
		t.Errorf("Duration = %v, want %v", s.Duration, DefaultMaxDuration)
	}
	if s.DelayAfter != 0 {
		t.Errorf("negative DelayAfter should clamp to 0, got %v", s.DelayAfter)
	}
	if s.DelayBetween != DefaultMaxDuration {
		t.Errorf("DelayBetween = %v, want %v", s.DelayBetween, DefaultMaxDuration)
	}
}

func TestCommandPredicates(t *testing.T) {
	kb := Command{Type: CommandKeyCombo}
	if !kb.IsKeyboardAction() || kb.IsMacroAction() {
		t.Error("key_combo should be a keyboard action and not a macro action")
	}
	cm := Command{Type: CommandCreateMacro}
	if cm.IsKeyboardAction() || !cm.IsMacroAction() {
		t.Error("create_macro should be a macro action and not a keyboard action")
	}
	if (Command{Type: CommandSpeakOnly}).IsKeyboardAction() {
		t.Error("speak_only is not a keyboard action")
	}
}

func TestCommandKeyAction(t *testing.T) {
	if got := (Command{Type: CommandHoldKey}).KeyAction(); got != ActionHold {
		t.Errorf("hold_key → %v, want hold", got)
	}
	if got := (Command{Type: CommandKeyCombo}).KeyAction(); got != ActionCombo {
		t.Errorf("key_combo → %v, want combo", got)
	}
	if got := (Command{Type: CommandPressKey}).KeyAction(); got != ActionPress {
		t.Errorf("press_key → %v, want press", got)
	}
}

func TestMacroValidateRejectsMixedPayload(t *testing.T) {
	m := Macro{
		Name:        "both",
		Keys:        []string{"n"},
		ActionType:  LegacyActionPress,
		ActionSteps: []ActionStep{{Action: ActionPress, Keys: []string{"g"}}},
	}
	if err := m.Validate(); err != ErrMixedMacroPayload {
		t.Errorf("Validate() = %v, want ErrMixedMacroPayload", err)
	}
}

func TestMacroInferSchemaVersion(t *testing.T) {
	legacy := Macro{Name: "a", Keys: []string{"n"}, ActionType: LegacyActionPress}
	if v := legacy.InferSchemaVersion(); v != MacroSchemaLegacy {
		t.Errorf("legacy macro schema = %d, want %d", v, MacroSchemaLegacy)
	}
	v2 := Macro{Name: "b", ActionSteps: []ActionStep{{Action: ActionPress, Keys: []string{"g"}}}}
	if v := v2.InferSchemaVersion(); v != MacroSchemaSteps {
		t.Errorf("steps macro schema = %d, want %d", v, MacroSchemaSteps)
	}
}

func TestKindForActionType(t *testing.T) {
	if KindForActionType("hold_key") != ActionHold {
		t.Error("hold_key should map to hold")
	}
	if KindForActionType("key_combo") != ActionCombo {
		t.Error("key_combo should map to combo")
	}
	if KindForActionType("something_else") != ActionPress {
		t.Error("unknown action types default to press")
	}
}
