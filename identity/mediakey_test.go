package identity

import (
	"strings"
	"testing"
)

func TestMediaKeyStable(t *testing.T) {
	a := MediaKey([]byte("photo"), ".jpg")
	b := MediaKey([]byte("photo"), ".jpg")
	if a != b {
		t.Fatalf("keys differ for same content: %s vs %s", a, b)
	}
	if c := MediaKey([]byte("other"), ".jpg"); c == a {
		t.Fatal("different content produced the same key")
	}
}

func TestMediaKeyLayout(t *testing.T) {
	key := MediaKey([]byte("photo"), "PNG")
	h := ContentHash([]byte("photo"))

	want := "media/" + h[:2] + "/" + h + ".png"
	if key != want {
		t.Fatalf("key = %s, want %s", key, want)
	}
	if len(h) != 64 {
		t.Fatalf("hash length = %d", len(h))
	}
}

func TestMediaKeyNoExtension(t *testing.T) {
	key := MediaKey([]byte("photo"), "")
	if strings.Contains(key[len("media/xx/"):], ".") {
		t.Fatalf("unexpected extension in %s", key)
	}
}
