package flow

import "testing"

func TestNormalizeDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1985-03-15", "1985-03-15", true},
		{"03/15/1985", "1985-03-15", true},
		{"3/15/1985", "1985-03-15", true},
		{"March 15, 1985", "1985-03-15", true},
		{"march 15 1985", "1985-03-15", true},
		{"Jul 22, 1990", "1990-07-22", true},
		{"22 July 1990", "1990-07-22", true},
		{"07/22/1990.", "1990-07-22", true},
		{"not a date", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeDate(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("NormalizeDate(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNormalizeMemberID(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"MB123456", "MB123456", true},
		{"mb123456", "MB123456", true},
		{"MB-123456", "MB123456", true},
		{"M B 1 2 3 4 5 6", "MB123456", true},
		{"123456", "", false},
		{"MEMBER", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeMemberID(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("NormalizeMemberID(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNormalizeNDC(t *testing.T) {
	if got, ok := NormalizeNDC("50090-3568-00"); !ok || got != "50090-3568-00" {
		t.Errorf("dashed NDC = (%q, %v)", got, ok)
	}
	if got, ok := NormalizeNDC("50090356800"); !ok || got != "50090-3568-00" {
		t.Errorf("contiguous NDC = (%q, %v)", got, ok)
	}
	if _, ok := NormalizeNDC("50090-3568"); ok {
		t.Error("short NDC should not normalize")
	}
}

func TestNormalizeCPT(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"70553", "70553", true},
		{"j9035", "J9035", true},
		{"G0438", "G0438", true},
		{"705", "", false},
		{"ABCDE", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeCPT(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("NormalizeCPT(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
