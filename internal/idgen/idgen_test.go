package idgen

import (
	"regexp"
	"testing"
)

var runIDPattern = regexp.MustCompile(`^run-[0-9a-z]{12}$`)

func TestNewRunID_Shape(t *testing.T) {
	for i := 0; i < 100; i++ {
		id, err := NewRunID()
		if err != nil {
			t.Fatalf("NewRunID() error on iteration %d: %v", i, err)
		}
		if !runIDPattern.MatchString(id) {
			t.Fatalf("NewRunID() = %q, does not match %s", id, runIDPattern)
		}
	}
}

func TestNewRunID_Uniqueness(t *testing.T) {
	const count = 10_000
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		id, err := NewRunID()
		if err != nil {
			t.Fatalf("NewRunID() error on iteration %d: %v", i, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate ID after %d generations: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}
