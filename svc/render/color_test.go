package render

import "testing"

func TestColorForDeterministic(t *testing.T) {
	a := ColorFor("alice")
	b := ColorFor("alice")
	if a != b {
		t.Errorf("color not stable: %s vs %s", a, b)
	}
}

func TestColorForShape(t *testing.T) {
	for _, name := range []string{"alice", "bob", "", "名前", "a b c"} {
		c := ColorFor(name)
		if len(c) != 6 {
			t.Fatalf("ColorFor(%q) = %q, want 6 hex chars", name, c)
		}
		for _, r := range c {
			if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
				t.Fatalf("ColorFor(%q) = %q, non-hex rune %q", name, c, r)
			}
		}
	}
}

func TestColorForDistinguishesNames(t *testing.T) {
	if ColorFor("alice") == ColorFor("bob") {
		t.Error("distinct names mapped to the same color")
	}
}
