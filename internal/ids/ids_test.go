package ids

import "testing"

func TestNewIsSortableAndUnique(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		if len(next) != 26 {
			t.Fatalf("unexpected ulid length: %q", next)
		}
		if next <= prev {
			t.Fatalf("ids not monotonic: %q then %q", prev, next)
		}
		prev = next
	}
}

func TestUUIDHelpers(t *testing.T) {
	id := NewUUID()
	if !ValidUUID(id) {
		t.Fatalf("generated uuid does not validate: %q", id)
	}
	if ValidUUID("not-a-uuid") {
		t.Fatal("garbage validated as uuid")
	}
	if NewUUID() == id {
		t.Fatal("uuids collide")
	}
}
