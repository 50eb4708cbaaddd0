package version

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"semver", "1.2.3", "1.2.3", false},
		{"short major", "1", "1.0.0", false},
		{"short minor", "1.2", "1.2.0", false},
		{"legacy", "1.2.3.4", "1.2.3.4", false},
		{"legacy zero revision", "1.2.3.0", "1.2.3", false},
		{"prerelease", "1.0.0-beta.1", "1.0.0-beta.1", false},
		{"metadata", "1.0.0+build.5", "1.0.0", false},
		{"leading zeros", "01.002.0003", "1.2.3", false},
		{"empty", "", "", true},
		{"too many parts", "1.2.3.4.5", "", true},
		{"negative", "-1.0.0", "", true},
		{"letters", "a.b.c", "", true},
		{"empty label", "1.0.0-", "", true},
		{"empty metadata", "1.0.0+", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := v.ToNormalizedString(); got != tt.want {
				t.Errorf("Parse(%q).ToNormalizedString() = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name     string
		v1       string
		v2       string
		expected int
	}{
		{"equal", "1.0.0", "1.0.0", 0},
		{"major less", "1.0.0", "2.0.0", -1},
		{"minor greater", "1.1.0", "1.0.0", 1},
		{"patch less", "1.0.0", "1.0.1", -1},
		{"release > prerelease", "1.0.0", "1.0.0-beta", 1},
		{"prerelease alpha < beta", "1.0.0-alpha", "1.0.0-beta", -1},
		{"numeric < alphanumeric", "1.0.0-1", "1.0.0-alpha", -1},
		{"numeric labels compare numerically", "1.0.0-beta.2", "1.0.0-beta.10", -1},
		{"labels are case insensitive", "1.0.0-BETA", "1.0.0-beta", 0},
		{"shorter label list", "1.0.0-alpha", "1.0.0-alpha.1", -1},
		{"metadata ignored", "1.0.0+a", "1.0.0+b", 0},
		{"legacy revision", "1.0.0.0", "1.0.0.1", -1},
		{"legacy vs semver", "1.0.0.1", "1.0.0", 1},
		{"short form equal", "1.0", "1.0.0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MustParse(tt.v1).Compare(MustParse(tt.v2))
			if got != tt.expected {
				t.Errorf("Compare(%s, %s) = %d, want %d", tt.v1, tt.v2, got, tt.expected)
			}
		})
	}
}

func TestNuGetVersion_String(t *testing.T) {
	v := &NuGetVersion{Major: 1, Minor: 2, Patch: 3, ReleaseLabels: []string{"rc", "1"}, Metadata: "sha.abc"}
	if got := v.String(); got != "1.2.3-rc.1+sha.abc" {
		t.Errorf("String() = %q", got)
	}
	if got := v.ToNormalizedString(); got != "1.2.3-rc.1" {
		t.Errorf("ToNormalizedString() = %q", got)
	}
}

func TestNormalize(t *testing.T) {
	if got, err := Normalize("1.01"); err != nil || got != "1.1.0" {
		t.Errorf("Normalize(1.01) = %q, %v", got, err)
	}
	if got := NormalizeOrOriginal("not-a-version"); got != "not-a-version" {
		t.Errorf("NormalizeOrOriginal() = %q", got)
	}
}

func TestDedupe(t *testing.T) {
	got := Dedupe([]*NuGetVersion{
		MustParse("2.0.0"),
		MustParse("1.0"),
		MustParse("1.0.0"),
		MustParse("1.5.0-beta"),
	})

	want := []string{"1.0.0", "1.5.0-beta", "2.0.0"}
	if len(got) != len(want) {
		t.Fatalf("Dedupe() returned %d versions, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ToNormalizedString() != want[i] {
			t.Errorf("Dedupe()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
