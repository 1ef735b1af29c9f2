package driver

import "testing"

func TestRegisterOnceIsIdempotent(t *testing.T) {
	r := NewRegistry()
	nv := &NumberVector{}

	first := r.RegisterOnce("Mount", "EXPOSURE", ReadWrite, KindNumber, nv)
	second := r.RegisterOnce("Mount", "EXPOSURE", ReadOnly, KindText, &TextVector{})

	if first != second {
		t.Fatalf("expected the same entry pointer to be returned on re-registration")
	}
	if second.Perm != ReadWrite || second.Kind != KindNumber {
		t.Fatalf("re-registration must not alter the original entry: got perm=%v kind=%v", second.Perm, second.Kind)
	}
	if second.Back != any(nv) {
		t.Fatalf("re-registration must not alter the original back-reference")
	}
}

func TestLookupUndefinedReturnsNil(t *testing.T) {
	r := NewRegistry()
	if e := r.Lookup("Mount", "NOPE"); e != nil {
		t.Fatalf("expected nil for an undefined property, got %+v", e)
	}
}

func TestLookupReturnsStablePointerAcrossInsertions(t *testing.T) {
	r := NewRegistry()
	first := r.RegisterOnce("Mount", "A", ReadWrite, KindNumber, &NumberVector{})

	for i := 0; i < 100; i++ {
		r.RegisterOnce("Mount", string(rune('B'+i)), ReadWrite, KindNumber, &NumberVector{})
	}

	if got := r.Lookup("Mount", "A"); got != first {
		t.Fatalf("entry pointer must remain stable after further insertions")
	}
}
