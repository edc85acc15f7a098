package store

import (
	"errors"
	"testing"

	"github.com/OpenVoxLab/VoxPilot/internal/models"
)

func TestInMemoryStoreCRUD(t *testing.T) {
	s := NewInMemoryStore(WithMaxMacros(3))

	created, err := s.Create(legacyMacro("Alpha"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID == 0 || created.Name != "alpha" {
		t.Errorf("created = %+v", created)
	}

	if _, err := s.Create(legacyMacro("alpha")); !errors.Is(err, models.ErrMacroExists) {
		t.Errorf("duplicate Create = %v, want ErrMacroExists", err)
	}

	got, err := s.Get("ALPHA")
	if err != nil || got == nil {
		t.Fatalf("Get: %v, %v", got, err)
	}
	byID, err := s.GetByID(created.ID)
	if err != nil || byID == nil || byID.Name != "alpha" {
		t.Errorf("GetByID: %v, %v", byID, err)
	}

	if err := s.Delete("alpha"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got, _ := s.Get("alpha"); got != nil {
		t.Error("macro should be gone after Delete")
	}
}

func TestInMemoryStoreCapacityAndList(t *testing.T) {
	s := NewInMemoryStore(WithMaxMacros(2))
	for _, name := range []string{"bravo", "alpha"} {
		if _, err := s.Create(legacyMacro(name)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Create(legacyMacro("charlie")); !errors.Is(err, models.ErrMacroLimitReached) {
		t.Errorf("Create at capacity = %v, want ErrMacroLimitReached", err)
	}

	list, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "bravo" {
		t.Errorf("List should be sorted by name, got %v", list)
	}
}

func TestInMemoryStoreIsolation(t *testing.T) {
	s := NewInMemoryStore()
	if _, err := s.Create(stepsMacro("salvo")); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get("salvo")
	got.ActionSteps[0].Keys[0] = "mutated"
	again, _ := s.Get("salvo")
	if again.ActionSteps[0].Keys[0] != "g" {
		t.Error("Get must return a copy, not shared state")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src := NewInMemoryStore()
	if _, err := src.Create(legacyMacro("panic")); err != nil {
		t.Fatal(err)
	}
	if _, err := src.Create(stepsMacro("salvo")); err != nil {
		t.Fatal(err)
	}

	data, err := ExportJSON(src)
	if err != nil {
		t.Fatalf("ExportJSON failed: %v", err)
	}

	dst := NewInMemoryStore()
	imported, err := ImportJSON(dst, data, false)
	if err != nil {
		t.Fatalf("ImportJSON failed: %v", err)
	}
	if imported != 2 {
		t.Errorf("imported = %d, want 2", imported)
	}

	got, _ := dst.Get("salvo")
	if got == nil || got.SchemaVersion != models.MacroSchemaSteps || len(got.ActionSteps) != 2 {
		t.Errorf("steps macro did not survive round trip: %+v", got)
	}
	got, _ = dst.Get("panic")
	if got == nil || got.SchemaVersion != models.MacroSchemaLegacy || got.ActionType != models.LegacyActionPress {
		t.Errorf("legacy macro did not survive round trip: %+v", got)
	}
}

func TestImportSkipsDuplicates(t *testing.T) {
	src := NewInMemoryStore()
	if _, err := src.Create(legacyMacro("panic")); err != nil {
		t.Fatal(err)
	}
	data, err := ExportJSON(src)
	if err != nil {
		t.Fatal(err)
	}

	dst := NewInMemoryStore()
	if _, err := ImportJSON(dst, data, false); err != nil {
		t.Fatal(err)
	}
	imported, err := ImportJSON(dst, data, false)
	if err != nil {
		t.Fatalf("re-import failed: %v", err)
	}
	if imported != 0 {
		t.Errorf("re-import without overwrite imported %d, want 0", imported)
	}
}

func TestImportOverwrite(t *testing.T) {
	dst := NewInMemoryStore()
	if _, err := dst.Create(legacyMacro("panic")); err != nil {
		t.Fatal(err)
	}

	src := NewInMemoryStore()
	updated := stepsMacro("panic")
	updated.Response = "New behavior."
	if _, err := src.Create(updated); err != nil {
		t.Fatal(err)
	}
	data, err := ExportJSON(src)
	if err != nil {
		t.Fatal(err)
	}

	imported, err := ImportJSON(dst, data, true)
	if err != nil {
		t.Fatalf("ImportJSON overwrite failed: %v", err)
	}
	if imported != 1 {
		t.Errorf("imported = %d, want 1", imported)
	}
	got, _ := dst.Get("panic")
	if got == nil || got.Response != "New behavior." || got.SchemaVersion != models.MacroSchemaSteps {
		t.Errorf("overwrite did not replace macro: %+v", got)
	}
}
