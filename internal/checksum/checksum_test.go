package checksum

import "testing"

func TestSum_Stable(t *testing.T) {
	a := Sum([]byte("buy milk"))
	b := Sum([]byte("buy milk"))
	if a != b {
		t.Fatalf("digest not stable: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("digest length = %d, want 64", len(a))
	}
}

func TestSumFields_SeparatorPreventsCollision(t *testing.T) {
	if SumFields("ab", "c") == SumFields("a", "bc") {
		t.Error("field boundaries should change the digest")
	}
}

func TestSumFields_SingleFieldMatchesSum(t *testing.T) {
	if SumFields("note") != Sum([]byte("note")) {
		t.Error("single field digest should equal Sum of the same bytes")
	}
}
