package pathutil

import "testing"

func TestToRelative(t *testing.T) {
	cases := []struct {
		name, abs, root, want string
	}{
		{"inside root", "/proj/src/A.php", "/proj", "src/A.php"},
		{"outside root falls back to absolute", "/other/A.php", "/proj", "/other/A.php"},
		{"already relative", "src/A.php", "/proj", "src/A.php"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ToRelative(c.abs, c.root); got != c.want {
				t.Errorf("ToRelative(%q, %q) = %q, want %q", c.abs, c.root, got, c.want)
			}
		})
	}
}

func TestCanonicalJoinsRelativeAgainstBaseDir(t *testing.T) {
	got := Canonical("../lib/helper.php", "/proj/src")
	want := "/proj/lib/helper.php"
	if got != want {
		t.Errorf("Canonical() = %q, want %q", got, want)
	}
}

func TestCanonicalPassesThroughAbsolute(t *testing.T) {
	got := Canonical("/proj/lib/helper.php", "/proj/src")
	if got != "/proj/lib/helper.php" {
		t.Errorf("Canonical() = %q", got)
	}
}

func TestSameMatchesByCanonicalBasenameOrSuffix(t *testing.T) {
	if !Same("/proj/lib/helper.php", "/proj/lib/helper.php") {
		t.Error("identical paths should match")
	}
	if !Same("/proj/lib/helper.php", "helper.php") {
		t.Error("basename match should match")
	}
	if !Same("./lib/helper.php", "/proj/lib/helper.php") {
		t.Error("suffix match should match")
	}
	if Same("/proj/lib/a.php", "/proj/lib/b.php") {
		t.Error("distinct basenames must not match")
	}
}

func TestMatchesAny(t *testing.T) {
	bundled := []string{"/proj/lib/a.php", "/proj/lib/b.php"}
	if !MatchesAny("/proj/lib/b.php", bundled) {
		t.Error("expected match against bundled set")
	}
	if MatchesAny("/proj/lib/c.php", bundled) {
		t.Error("unexpected match against bundled set")
	}
}

func TestHasDirToken(t *testing.T) {
	if !HasDirToken(`__DIR__ . '/lib/helper.php'`) {
		t.Error("expected __DIR__ detection")
	}
	if HasDirToken(`'lib/helper.php'`) {
		t.Error("unexpected __DIR__ detection")
	}
}

func TestSubstituteDirToken(t *testing.T) {
	got := SubstituteDirToken(`__DIR__ . '/lib/helper.php'`, "/proj/src")
	want := "/proj/src/lib/helper.php"
	if got != want {
		t.Errorf("SubstituteDirToken() = %q, want %q", got, want)
	}
}

func TestSubstituteDirTokenLeavesNonDirExprUnchanged(t *testing.T) {
	expr := `'lib/helper.php'`
	if got := SubstituteDirToken(expr, "/proj/src"); got != expr {
		t.Errorf("SubstituteDirToken() = %q, want unchanged %q", got, expr)
	}
}
