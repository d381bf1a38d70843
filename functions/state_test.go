package functions

import (
	"errors"
	"testing"

	"github.com/calanthe/periscope/wire"
)

// ---------------------------------------------------------------------------
// Bind / Object
// ---------------------------------------------------------------------------

func TestState_BindDeduplicatesComparableObjects(t *testing.T) {
	s := NewState(1)
	g := newGadget()

	first := s.Bind(g)
	second := s.Bind(g)
	if first != second {
		t.Errorf("Bind gave two ids for one object: %v, %v", first, second)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestState_BindDistinctObjectsGetDistinctIds(t *testing.T) {
	s := NewState(1)
	a := s.Bind(newGadget())
	b := s.Bind(newGadget())
	if a == b {
		t.Errorf("two objects share id %v", a)
	}
}

func TestState_BindNonComparable(t *testing.T) {
	s := NewState(1)
	ref := s.Bind([]int{1, 2, 3})

	obj, err := s.Object(uint64(ref))
	if err != nil {
		t.Fatalf("Object returned error: %v", err)
	}
	if got := obj.([]int); len(got) != 3 {
		t.Errorf("resolved object = %v", got)
	}
}

func TestState_ObjectMissIsHandleNotFound(t *testing.T) {
	s := NewState(4)
	_, err := s.Object(777)
	if err == nil {
		t.Fatal("Object succeeded for unknown id")
	}
	if !errors.Is(err, wire.ErrHandleNotFound) {
		t.Errorf("error = %v, want ErrHandleNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// ResolveRefs
// ---------------------------------------------------------------------------

func TestState_ResolveRefsSwapsHandlesForObjects(t *testing.T) {
	s := NewState(1)
	g := newGadget()
	ref := s.Bind(g)

	args, kwargs, err := s.ResolveRefs(
		[]any{ref, "literal"},
		map[string]any{"target": ref},
	)
	if err != nil {
		t.Fatalf("ResolveRefs returned error: %v", err)
	}
	if args[0] != any(g) {
		t.Errorf("args[0] = %v (%T), want the bound gadget", args[0], args[0])
	}
	if args[1] != "literal" {
		t.Errorf("args[1] = %v, want literal", args[1])
	}
	if kwargs["target"] != any(g) {
		t.Errorf("kwargs[target] = %v (%T), want the bound gadget", kwargs["target"], kwargs["target"])
	}
}

func TestState_ResolveRefsNested(t *testing.T) {
	s := NewState(1)
	g := newGadget()
	ref := s.Bind(g)

	args, _, err := s.ResolveRefs([]any{[]any{ref}}, nil)
	if err != nil {
		t.Fatalf("ResolveRefs returned error: %v", err)
	}
	inner := args[0].([]any)
	if inner[0] != any(g) {
		t.Errorf("nested ref not resolved: %v (%T)", inner[0], inner[0])
	}
}

func TestState_ResolveRefsUnknownIdFails(t *testing.T) {
	s := NewState(1)
	_, _, err := s.ResolveRefs([]any{wire.Ref(555)}, nil)
	if err == nil {
		t.Fatal("ResolveRefs succeeded for unknown id")
	}
	if !errors.Is(err, wire.ErrHandleNotFound) {
		t.Errorf("error = %v, want ErrHandleNotFound", err)
	}
}
