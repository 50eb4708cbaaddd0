package version

import "testing"

func TestParseFloatRange(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		behavior FloatBehavior
		wantErr  bool
	}{
		{"wildcard only", "*", FloatMajor, false},
		{"major float", "1.*", FloatMinor, false},
		{"minor float", "1.0.*", FloatPatch, false},
		{"patch float", "1.0.0.*", FloatRevision, false},
		{"prerelease float", "1.0.0-*", FloatPrerelease, false},
		{"prerelease prefix float", "1.0.0-beta*", FloatPrerelease, false},
		{"no wildcard", "1.0.0", FloatNone, true},
		{"inner wildcard", "1.*.0", FloatNone, true},
		{"empty", "", FloatNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFloatRange(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseFloatRange() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got.FloatBehavior != tt.behavior {
				t.Errorf("ParseFloatRange() behavior = %v, want %v", got.FloatBehavior, tt.behavior)
			}
		})
	}
}

func TestFloatRange_Satisfies(t *testing.T) {
	tests := []struct {
		name     string
		floatStr string
		version  string
		expected bool
	}{
		{"major float any", "*", "5.0.0", true},
		{"major float skips prerelease", "*", "1.0.0-beta", false},
		{"minor float match", "1.*", "1.5.0", true},
		{"minor float no match", "1.*", "2.0.0", false},
		{"minor float exact", "1.*", "1.0.0", true},
		{"patch float match", "1.2.*", "1.2.9", true},
		{"patch float other minor", "1.2.*", "1.3.0", false},
		{"prerelease float release", "1.0.0-*", "1.0.0", true},
		{"prerelease float label", "1.0.0-*", "1.0.0-rc.1", true},
		{"prerelease prefix match", "1.0.0-beta*", "1.0.0-beta.2", true},
		{"prerelease prefix miss", "1.0.0-beta*", "1.0.0-alpha", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFloatRange(tt.floatStr)
			if err != nil {
				t.Fatalf("ParseFloatRange(%q) error = %v", tt.floatStr, err)
			}
			if got := f.Satisfies(MustParse(tt.version)); got != tt.expected {
				t.Errorf("Satisfies(%s) = %v, want %v", tt.version, got, tt.expected)
			}
		})
	}
}

func TestFloatRange_String(t *testing.T) {
	for _, s := range []string{"*", "1.*", "1.2.*", "1.2.3.*", "1.0.0-*", "1.0.0-beta*"} {
		f, err := ParseFloatRange(s)
		if err != nil {
			t.Fatalf("ParseFloatRange(%q) error = %v", s, err)
		}
		if f.String() != s {
			t.Errorf("String() = %q, want %q", f.String(), s)
		}
	}
}
