package unit

import "testing"

func TestSourceKeyStable(t *testing.T) {
	a := Source{Path: "/tmp/a.cpp", Compiler: "clang++", Args: []string{"-I/inc", "-DFOO"}}
	b := Source{Path: "/tmp/a.cpp", Compiler: "clang++", Args: []string{"-DFOO", "-I/inc"}}
	if a.Key() != b.Key() {
		t.Fatalf("expected reordered args to produce the same fingerprint, got %d != %d", a.Key(), b.Key())
	}

	c := Source{Path: "/tmp/b.cpp", Compiler: "clang++", Args: []string{"-I/inc", "-DFOO"}}
	if a.Key() == c.Key() {
		t.Fatalf("expected different paths to produce different fingerprints")
	}
}

func TestMarkCompleteFirstWins(t *testing.T) {
	u := NewUnit(Source{Path: "/tmp/a.cpp"})
	if !u.MarkComplete(StatusCompleteLocal) {
		t.Fatalf("first MarkComplete should transition")
	}
	if u.MarkComplete(StatusCompleteRemote) {
		t.Fatalf("second MarkComplete should be a no-op")
	}
	if !u.Status.Has(StatusCompleteLocal) {
		t.Fatalf("expected CompleteLocal to stick, got %s", u.Status)
	}
	if u.Status.Has(StatusCompleteRemote) {
		t.Fatalf("expected CompleteRemote to be rejected")
	}
}

func TestHasPreprocessed(t *testing.T) {
	u := NewUnit(Source{Path: "/tmp/a.cpp"})
	if u.HasPreprocessed() {
		t.Fatalf("fresh unit should have no preprocessed content")
	}
	u.Preprocessed = []byte("int main(){}")
	if !u.HasPreprocessed() {
		t.Fatalf("expected preprocessed content to be detected")
	}
}
