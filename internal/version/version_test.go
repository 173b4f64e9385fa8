// SPDX-License-Identifier: MPL-2.0

package version

import (
	"errors"
	"testing"
)

func TestParse_Normalizes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"18.19.0", "v18.19.0"},
		{"v18.19.0", "v18.19.0"},
		{"  12.9.1 ", "v12.9.1"},
		{"21.0.0-rc.1", "v21.0.0-rc.1"},
	}

	for _, tt := range tests {
		v, err := Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q): unexpected error: %v", tt.in, err)
		}
		if v.String() != tt.want {
			t.Errorf("Parse(%q) = %q, want %q", tt.in, v.String(), tt.want)
		}
	}
}

func TestParse_Rejects(t *testing.T) {
	t.Parallel()

	tests := []string{
		"",
		"18",
		"18.19",
		"v18.19.0+build.5",
		"latest",
		"lts",
		"not-a-version",
		"18.x.0",
	}

	for _, in := range tests {
		if _, err := Parse(in); !errors.Is(err, ErrInvalidVersion) {
			t.Errorf("Parse(%q): got %v, want ErrInvalidVersion", in, err)
		}
	}
}

func TestCompare(t *testing.T) {
	t.Parallel()

	a := MustParse("12.9.1")
	b := MustParse("12.18.3")
	c := MustParse("12.18.3")

	if Compare(a, b) >= 0 {
		t.Errorf("Compare(%s, %s) = %d, want negative", a, b, Compare(a, b))
	}
	if Compare(b, a) <= 0 {
		t.Errorf("Compare(%s, %s) = %d, want positive", b, a, Compare(b, a))
	}
	if Compare(b, c) != 0 {
		t.Errorf("Compare(%s, %s) = %d, want 0", b, c, Compare(b, c))
	}

	// Pre-releases sort before the release they precede.
	pre := MustParse("12.18.3-rc.1")
	if Compare(pre, b) >= 0 {
		t.Errorf("Compare(%s, %s) = %d, want negative", pre, b, Compare(pre, b))
	}
}

func TestSortDescending(t *testing.T) {
	t.Parallel()

	versions := []Version{
		MustParse("12.9.1"),
		MustParse("20.11.1"),
		MustParse("12.18.3"),
		MustParse("18.19.0"),
	}

	SortDescending(versions)

	want := []string{"v20.11.1", "v18.19.0", "v12.18.3", "v12.9.1"}
	for i, w := range want {
		if versions[i].String() != w {
			t.Errorf("versions[%d] = %s, want %s", i, versions[i], w)
		}
	}
}

func TestVersion_Equality(t *testing.T) {
	t.Parallel()

	if MustParse("18.19.0") != MustParse("v18.19.0") {
		t.Error("normalized versions with and without v prefix should be equal")
	}
	if !(Version{}).IsZero() {
		t.Error("zero Version should report IsZero")
	}
	if MustParse("18.19.0").IsZero() {
		t.Error("parsed Version should not report IsZero")
	}
}
