package sha256

import "testing"

func TestHex(t *testing.T) {
	t.Parallel()

	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got := Hex([]byte("hello world")); got != want {
		t.Fatalf("Hex() = %s, want %s", got, want)
	}
}

func TestShort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n    int
		want string
	}{
		{n: 10, want: "b94d27b993"},
		{n: 0, want: "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"},
		{n: 500, want: "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"},
	}
	for _, tt := range tests {
		if got := Short("hello world", tt.n); got != tt.want {
			t.Fatalf("Short(%d) = %s, want %s", tt.n, got, tt.want)
		}
	}
}
