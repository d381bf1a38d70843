package remote

import (
	"testing"
)

// ---------------------------------------------------------------------------
// Worker caching
// ---------------------------------------------------------------------------

func TestRegistry_OneWorkerPerIdentity(t *testing.T) {
	registry := NewRegistry()
	defer registry.Close()

	command := Command{Exec: "/usr/bin/periscope-worker", SupportRoot: "/srv/lib"}
	first := registry.Get(command)
	second := registry.Get(command)
	if first != second {
		t.Error("same identity produced two workers")
	}
}

func TestRegistry_DistinctIdentitiesDistinctWorkers(t *testing.T) {
	registry := NewRegistry()
	defer registry.Close()

	a := registry.Get(Command{Exec: "/usr/bin/worker-a"})
	b := registry.Get(Command{Exec: "/usr/bin/worker-b"})
	if a == b {
		t.Error("distinct executables share a worker")
	}

	// Same executable, different bootstrap arguments: a different
	// process identity.
	c := registry.Get(Command{Exec: "/usr/bin/worker-a", Args: []string{"-v"}})
	if a == c {
		t.Error("distinct bootstrap arguments share a worker")
	}
}

func TestRegistry_DropMakesRoomForFreshWorker(t *testing.T) {
	registry := NewRegistry()
	defer registry.Close()

	command := Command{Exec: "/usr/bin/worker"}
	old := registry.Get(command)
	registry.Drop(old)

	if registry.Get(command) == old {
		t.Error("dropped worker still cached")
	}
}

// ---------------------------------------------------------------------------
// Session ids
// ---------------------------------------------------------------------------

func TestRegistry_SessionIdsNeverReused(t *testing.T) {
	registry := NewRegistry()
	defer registry.Close()

	command := Command{Exec: "/usr/bin/worker"}
	seen := map[uint64]bool{}
	for i := 0; i < 100; i++ {
		eval := registry.NewEvaluator(command)
		if seen[eval.SessionID()] {
			t.Fatalf("session id %d reused", eval.SessionID())
		}
		seen[eval.SessionID()] = true
		eval.Close()
	}
}

func TestRegistry_LocalAndSubprocessShareIdSpace(t *testing.T) {
	registry := NewRegistry()
	defer registry.Close()

	local := registry.NewLocalEvaluator()
	sub := registry.NewEvaluator(Command{Exec: "/usr/bin/worker"})
	if local.SessionID() == sub.SessionID() {
		t.Errorf("id %d handed out twice", local.SessionID())
	}
}

// ---------------------------------------------------------------------------
// Shutdown
// ---------------------------------------------------------------------------

func TestRegistry_CloseWithUnstartedWorkers(t *testing.T) {
	registry := NewRegistry()
	registry.Get(Command{Exec: "/usr/bin/never-started"})

	// Workers that never spawned a process have nothing to stop.
	if err := registry.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
}
