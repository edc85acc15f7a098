package resolver

import (
	"testing"

	"github.com/OpenVoxLab/VoxPilot/internal/keybinds"
	"github.com/OpenVoxLab/VoxPilot/internal/models"
	"github.com/OpenVoxLab/VoxPilot/internal/store"
)

const testCatalogYAML = `
flight:
  landing_gear:
    keys: ["l"]
    action: press
    aliases: ["landing gear", "gear"]
    response: "Landing gear toggled."
  power_weapons:
    keys: ["up"]
    action: press
    aliases: ["power to weapons", "divert power weapons"]
    response: "Power to weapons."
targeting:
  target_ahead:
    keys: ["t"]
    action: press
    aliases: ["target ahead"]
    response: "Target locked."
`

func testCatalog(t *testing.T) *keybinds.Catalog {
	t.Helper()
	c := keybinds.NewCatalog()
	if err := c.LoadYAML([]byte(testCatalogYAML)); err != nil {
		t.Fatalf("LoadYAML failed: %v", err)
	}
	return c
}

func TestResolveKeybindExactAlias(t *testing.T) {
	r := New(testCatalog(t), nil)
	kb := r.ResolveKeybind("Landing Gear")
	if kb == nil || kb.Name != "landing_gear" {
		t.Fatalf("ResolveKeybind = %v, want landing_gear", kb)
	}
}

func TestResolveKeybindContainment(t *testing.T) {
	r := New(testCatalog(t), nil)
	kb := r.ResolveKeybind("please lower the landing gear now")
	if kb == nil || kb.Name != "landing_gear" {
		t.Fatalf("ResolveKeybind = %v, want landing_gear", kb)
	}
}

func TestResolveKeybindFuzzy(t *testing.T) {
	r := New(testCatalog(t), nil)
	// Two of the three alias words ("power", "weapons") appear, so the
	// overlap score is 2/3 and clears the threshold.
	kb := r.ResolveKeybind("weapons need more power")
	if kb == nil || kb.Name != "power_weapons" {
		t.Fatalf("ResolveKeybind = %v, want power_weapons", kb)
	}
}

func TestResolveKeybindBelowThreshold(t *testing.T) {
	r := New(testCatalog(t), nil)
	if kb := r.ResolveKeybind("weapons"); kb != nil {
		t.Errorf("one of three alias words should not match, got %v", kb)
	}
	if kb := r.ResolveKeybind("open the cargo bay"); kb != nil {
		t.Errorf("unrelated utterance matched %v", kb)
	}
}

func TestResolveMacroBeforeKeybind(t *testing.T) {
	macros := store.NewInMemoryStore()
	if _, err := macros.Create(models.Macro{
		Name:          "gear",
		TriggerPhrase: "landing gear",
		ActionType:    models.LegacyActionPress,
		Keys:          []string{"g"},
	}); err != nil {
		t.Fatal(err)
	}

	r := New(testCatalog(t), macros)
	res, err := r.Resolve("landing gear")
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || res.Macro == nil || res.Macro.Name != "gear" {
		t.Fatalf("macro should win over keybind, got %+v", res)
	}
}

func TestResolveMacroFuzzy(t *testing.T) {
	macros := store.NewInMemoryStore()
	if _, err := macros.Create(models.Macro{
		Name:          "salvo",
		TriggerPhrase: "fire full salvo",
		ActionType:    models.LegacyActionPress,
		Keys:          []string{"f"},
	}); err != nil {
		t.Fatal(err)
	}

	r := New(nil, macros)
	m, err := r.ResolveMacro("salvo fire everything")
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || m.Name != "salvo" {
		t.Fatalf("ResolveMacro = %v, want salvo", m)
	}
}

func TestResolveNoMatch(t *testing.T) {
	r := New(testCatalog(t), store.NewInMemoryStore())
	res, err := r.Resolve("tell me a story")
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Errorf("Resolve = %+v, want nil", res)
	}
}
