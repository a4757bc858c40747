package checksum

import "testing"

func TestIdentity_KnownDigest(t *testing.T) {
	if got := Identity("abc"); got != "900150983cd24fb0d6963f7d28e17f72" {
		t.Fatalf("Identity(abc) = %q", got)
	}
	if Identity("BuiltIn") != Identity("BuiltIn") {
		t.Error("digest is not stable")
	}
	if Identity("BuiltIn") == Identity("builtin") {
		t.Error("digest should be case sensitive")
	}
}

func TestSum_Length(t *testing.T) {
	if got := Sum([]byte("x")); len(got) != 64 {
		t.Errorf("len = %d, want 64", len(got))
	}
}
