package murmur

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Reference values computed with the canonical C implementation of
// MurmurHash64A.
func TestHash64A(t *testing.T) {
	cases := []struct {
		key  string
		seed uint64
		want uint64
	}{
		{"", 0, 0},
		{"", 10, 0xc26e8bc196329b0f},
		{"Pizza & Mandolino", 2915580697, 0x472ff7d324321dfe},
		{"hello", 0, 0x1e68d17c457bf117},
		{"hello, world", 0, 0x9659ad0699a8465f},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Hash64A([]byte(c.key), c.seed), "key %q seed %d", c.key, c.seed)
	}
}

func TestHash64ATails(t *testing.T) {
	// every tail length exercises a distinct switch arm
	full := []byte("abcdefghijklmnop")
	seen := make(map[uint64]bool)
	for i := 0; i <= len(full); i++ {
		h := Hash64A(full[:i], 0)
		require.False(t, seen[h], "collision at length %d", i)
		seen[h] = true
	}
}
