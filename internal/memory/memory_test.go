package memory

import (
	"errors"
	"testing"
	"time"
)

func TestNewValidation(t *testing.T) {
	if _, err := New("", 5, TypeEpisodic, "vec-1"); !errors.Is(err, ErrEmptyDescription) {
		t.Errorf("empty description: got %v, want ErrEmptyDescription", err)
	}
	if _, err := New("something", -1, TypeEpisodic, "vec-1"); !errors.Is(err, ErrNegativeImportance) {
		t.Errorf("negative importance: got %v, want ErrNegativeImportance", err)
	}
	if _, err := New("something", 5, Type("dreamlike"), "vec-1"); err == nil {
		t.Error("unknown memory type accepted")
	}

	m, err := New("walked to the plaza", 5, TypeEpisodic, "vec-1")
	if err != nil {
		t.Fatalf("valid memory rejected: %v", err)
	}
	if m.CreatedAt.IsZero() || m.LastAccessed.IsZero() {
		t.Error("timestamps not initialized")
	}
	if m.CreatedAt.Location() != time.UTC {
		t.Errorf("created_at not UTC: %v", m.CreatedAt.Location())
	}
}

func TestTypeValid(t *testing.T) {
	for _, valid := range []Type{TypeEpisodic, TypeSemantic, TypeProcedural, TypeReflective} {
		if !valid.Valid() {
			t.Errorf("%q reported invalid", valid)
		}
	}
	if Type("speculative").Valid() {
		t.Error("unknown type reported valid")
	}
}

func TestMarkAccessed(t *testing.T) {
	m, err := New("fed the cat", 3, TypeEpisodic, "vec-1")
	if err != nil {
		t.Fatalf("new memory: %v", err)
	}

	loc := time.FixedZone("UTC+2", 2*3600)
	when := time.Date(2026, 8, 1, 14, 0, 0, 0, loc)
	m.MarkAccessed(when)
	if !m.LastAccessed.Equal(when) {
		t.Errorf("got last accessed %v, want %v", m.LastAccessed, when)
	}
	if m.LastAccessed.Location() != time.UTC {
		t.Errorf("last accessed not normalized to UTC: %v", m.LastAccessed.Location())
	}

	before := time.Now().UTC()
	m.MarkAccessed(time.Time{})
	if m.LastAccessed.Before(before) {
		t.Errorf("zero when did not default to now: %v", m.LastAccessed)
	}
}
