package util

import "testing"

func TestGetEnvDefault(t *testing.T) {
	t.Setenv("VOX_TEST_STR", "value")
	if got := GetEnvDefault("VOX_TEST_STR", "fallback"); got != "value" {
		t.Errorf("GetEnvDefault = %q", got)
	}
	if got := GetEnvDefault("VOX_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("GetEnvDefault = %q", got)
	}
}

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		val  string
		def  bool
		want bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"off", true, false},
		{"0", true, false},
		{"garbage", true, true},
		{"", false, false},
	}
	for _, tc := range cases {
		t.Setenv("VOX_TEST_BOOL", tc.val)
		if got := ParseBoolEnv("VOX_TEST_BOOL", tc.def); got != tc.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tc.val, tc.def, got, tc.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("VOX_TEST_INT", "42")
	if got := ParseIntEnv("VOX_TEST_INT", 7); got != 42 {
		t.Errorf("ParseIntEnv = %d", got)
	}
	t.Setenv("VOX_TEST_INT", "not a number")
	if got := ParseIntEnv("VOX_TEST_INT", 7); got != 7 {
		t.Errorf("ParseIntEnv invalid = %d, want default", got)
	}
}

func TestParseFloatEnv(t *testing.T) {
	t.Setenv("VOX_TEST_FLOAT", "0.8")
	if got := ParseFloatEnv("VOX_TEST_FLOAT", 1.5); got != 0.8 {
		t.Errorf("ParseFloatEnv = %v", got)
	}
	t.Setenv("VOX_TEST_FLOAT", "")
	if got := ParseFloatEnv("VOX_TEST_FLOAT", 1.5); got != 1.5 {
		t.Errorf("ParseFloatEnv empty = %v, want default", got)
	}
}
