package safename

import "testing"

func TestName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Trip Notes", "Trip_Notes"},
		{"  spaced   out  ", "spaced_out"},
		{"../../etc/passwd", "etc_passwd"},
		{"My-Notes.v2", "My-Notes.v2"},
		{"._hidden_.", "hidden"},
		{"café au lait", "cafe_au_lait"},
		{"日本語", DefaultToken},
		{"", DefaultToken},
		{"!!!", DefaultToken},
		{`C:\Users\me`, "C_Users_me"},
	}
	for _, tc := range cases {
		if got := Name(tc.in); got != tc.want {
			t.Errorf("Name(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNameIdempotent(t *testing.T) {
	inputs := []string{
		"Trip Notes", "../a b/c", " .x. ", "naïve résumé", "a\tb\nc", "___", "ok",
		"weird*chars?<>|", "mixed/slashes\\and spaces", "-dash-", "…",
	}
	for _, in := range inputs {
		once := Name(in)
		if twice := Name(once); twice != once {
			t.Errorf("Name not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
}

func TestSplitExt(t *testing.T) {
	cases := []struct {
		in, base, ext string
	}{
		{"photo.JPG", "photo", ".jpg"},
		{"archive.tar.gz", "archive.tar", ".gz"},
		{"README", "README", ""},
		{".bashrc", "file", ".bashrc"},
		{"../evil.SH", "evil", ".sh"},
		{"???.png", "file", ".png"},
	}
	for _, tc := range cases {
		base, ext := SplitExt(tc.in)
		if base != tc.base || ext != tc.ext {
			t.Errorf("SplitExt(%q) = (%q, %q), want (%q, %q)", tc.in, base, ext, tc.base, tc.ext)
		}
	}
}

func TestSearch(t *testing.T) {
	if got := SearchKey("My-Notes"); got != "mynotes" {
		t.Errorf("SearchKey = %q", got)
	}
	if !Matches("Trip_Notes", "tripnotes") {
		t.Error("Trip_Notes should match tripnotes")
	}
	if Matches("Trip_Notes", "xyz") {
		t.Error("Trip_Notes should not match xyz")
	}
	if !Matches("anything", " - ") {
		t.Error("query normalizing to empty should match everything")
	}
}
