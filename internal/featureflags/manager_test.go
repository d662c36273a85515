package featureflags

import "testing"

func TestEnabled_BooleanValues(t *testing.T) {
	m := NewManager("a=on,b=off,c=true,d=false,e=1,f=0")

	if !m.Enabled("a", "actor-1") || !m.Enabled("c", "actor-1") || !m.Enabled("e", "actor-1") {
		t.Fatal("expected enabled boolean values to evaluate true")
	}
	if m.Enabled("b", "actor-1") || m.Enabled("d", "actor-1") || m.Enabled("f", "actor-1") {
		t.Fatal("expected disabled boolean values to evaluate false")
	}
}

func TestEnabled_PercentageValues(t *testing.T) {
	m := NewManager("always=100%,never=0%,canary=25%")

	if !m.Enabled("always", "actor-1") {
		t.Fatal("100% rollout should always be enabled")
	}
	if m.Enabled("never", "actor-1") {
		t.Fatal("0% rollout should always be disabled")
	}

	first := m.Enabled("canary", "actor-42")
	for i := 0; i < 5; i++ {
		if got := m.Enabled("canary", "actor-42"); got != first {
			t.Fatal("rollout evaluation must be deterministic per actor")
		}
	}

	if m.Enabled("canary", "") {
		t.Fatal("percentage rollout requires a non-empty actor ID")
	}
}

func TestParseAndSnapshot(t *testing.T) {
	m := NewManager(" bad ,x=on, y = 20% ,z=off ")

	raw := m.Raw()
	if len(raw) != 3 {
		t.Fatalf("expected 3 parsed flags, got %d", len(raw))
	}
	if raw["x"] != "on" || raw["y"] != "20%" || raw["z"] != "off" {
		t.Fatalf("unexpected raw flags: %#v", raw)
	}

	snap := m.Snapshot("actor-123")
	if len(snap) != 3 {
		t.Fatalf("expected snapshot size 3, got %d", len(snap))
	}
}
