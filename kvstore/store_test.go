package kvstore

import "testing"

func TestPutGetDelete(t *testing.T) {
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	key, value := []byte("foo"), []byte("bar")
	if err := s.Put(key, value); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "bar" {
		t.Fatalf("got %q, want %q", got, value)
	}

	if err := s.Delete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(key); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestHas(t *testing.T) {
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ok, err := s.Has([]byte("missing"))
	if err != nil {
		t.Fatalf("has: %v", err)
	}
	if ok {
		t.Fatalf("expected missing key to report false")
	}

	s.Put([]byte("present"), []byte("1"))
	ok, err = s.Has([]byte("present"))
	if err != nil {
		t.Fatalf("has: %v", err)
	}
	if !ok {
		t.Fatalf("expected present key to report true")
	}
}

func TestBatchWrite(t *testing.T) {
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	b := s.NewBatch()
	b.Put([]byte("a"), []byte("1"))
	b.Put([]byte("b"), []byte("2"))
	if err := b.Write(); err != nil {
		t.Fatalf("batch write: %v", err)
	}

	for k, want := range map[string]string{"a": "1", "b": "2"} {
		got, err := s.Get([]byte(k))
		if err != nil {
			t.Fatalf("get %q: %v", k, err)
		}
		if string(got) != want {
			t.Fatalf("key %q: got %q want %q", k, got, want)
		}
	}
}
