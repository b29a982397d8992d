package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// setupRoot creates:
//
//	<tmp>/root/a.txt
//	<tmp>/root/sub/b.jpg
//	<tmp>/rootsibling/secret.txt
//	<tmp>/outside.txt
func setupRoot(t *testing.T) (root, base string) {
	t.Helper()
	base, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	root = filepath.Join(base, "root")
	for _, dir := range []string{root, filepath.Join(root, "sub"), filepath.Join(base, "rootsibling")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}
	files := map[string]string{
		filepath.Join(root, "a.txt"):                     "alpha",
		filepath.Join(root, "sub", "b.jpg"):              "jpeg",
		filepath.Join(base, "rootsibling", "secret.txt"): "secret",
		filepath.Join(base, "outside.txt"):               "outside",
	}
	for p, body := range files {
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root, base
}

func TestResolveClassifies(t *testing.T) {
	root, _ := setupRoot(t)

	tests := []struct {
		path    string
		kind    Kind
		rel     string
		wantErr error
	}{
		{"", KindDir, "", nil},
		{".", KindDir, "", nil},
		{"a.txt", KindFile, "a.txt", nil},
		{"sub", KindDir, "sub", nil},
		{"sub/", KindDir, "sub", nil},
		{"sub//b.jpg", KindFile, "sub/b.jpg", nil},
		{"sub/../a.txt", KindFile, "a.txt", nil},
		{"missing.txt", 0, "", ErrNotFound},
		{"a.txt/child", 0, "", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			r, err := Resolve(root, tt.path)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve(%q) err = %v, want %v", tt.path, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tt.path, err)
			}
			if r.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", r.Kind, tt.kind)
			}
			if r.Rel != tt.rel {
				t.Errorf("rel = %q, want %q", r.Rel, tt.rel)
			}
			if !Within(root, r.Abs) {
				t.Errorf("abs %q not within root", r.Abs)
			}
		})
	}
}

func TestResolveRejectsEscapes(t *testing.T) {
	root, base := setupRoot(t)

	escapes := []string{
		"..",
		"../outside.txt",
		"sub/../../outside.txt",
		"../rootsibling/secret.txt",
		"..\\outside.txt",
		filepath.Join(base, "outside.txt"),
		"/etc/passwd",
		"//etc/passwd",
		"C:\\Windows\\win.ini",
		"a.txt\x00.jpg",
	}
	for _, p := range escapes {
		if _, err := Resolve(root, p); !errors.Is(err, ErrAccessDenied) {
			t.Errorf("Resolve(%q) err = %v, want ErrAccessDenied", p, err)
		}
	}
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root, base := setupRoot(t)

	if err := os.Symlink(filepath.Join(base, "outside.txt"), filepath.Join(root, "leak.txt")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(base, "rootsibling"), filepath.Join(root, "leakdir")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(root, "a.txt"), filepath.Join(root, "alias.txt")); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{"leak.txt", "leakdir", "leakdir/secret.txt"} {
		if _, err := Resolve(root, p); !errors.Is(err, ErrAccessDenied) {
			t.Errorf("Resolve(%q) err = %v, want ErrAccessDenied", p, err)
		}
	}

	r, err := Resolve(root, "alias.txt")
	if err != nil {
		t.Fatalf("in-root symlink: %v", err)
	}
	if r.Rel != "alias.txt" || r.Kind != KindFile {
		t.Errorf("alias resolved to %+v", r)
	}
}

func TestWithin(t *testing.T) {
	sep := string(filepath.Separator)
	root := sep + filepath.Join("a", "b")
	tests := []struct {
		candidate string
		want      bool
	}{
		{root, true},
		{root + sep, true},
		{filepath.Join(root, "c"), true},
		{filepath.Join(root, "c", "d"), true},
		{sep + filepath.Join("a", "bc"), false},
		{sep + filepath.Join("a", "bc", "d"), false},
		{sep + "a", false},
		{filepath.Join(root, "..", "b2"), false},
		{filepath.Join(root, "..c"), true},
	}
	for _, tt := range tests {
		if got := Within(root, tt.candidate); got != tt.want {
			t.Errorf("Within(%q, %q) = %v, want %v", root, tt.candidate, got, tt.want)
		}
	}
}

func TestCleanRelPath(t *testing.T) {
	tests := map[string]string{
		"":           "",
		".":          "",
		"/":          "",
		"/a/b":       "a/b",
		"a//b/":      "a/b",
		`a\b`:        "a/b",
		"a/./b/../c": "a/c",
		"../../x":    "x",
		"  spaced  ": "spaced",
	}
	for in, want := range tests {
		if got := CleanRelPath(in); got != want {
			t.Errorf("CleanRelPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParentRel(t *testing.T) {
	tests := map[string]string{
		"":      "",
		"a":     "",
		"a/b":   "a",
		"a/b/c": "a/b",
		"/a/b/": "a",
	}
	for in, want := range tests {
		if got := ParentRel(in); got != want {
			t.Errorf("ParentRel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestJoinWithinRoot(t *testing.T) {
	root := filepath.FromSlash("/srv/files")
	got, err := JoinWithinRoot(root, "photos/2024/a.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(root, "photos", "2024", "a.jpg"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got, err := JoinWithinRoot(root, ""); err != nil || got != root {
		t.Errorf("root join = %q, %v", got, err)
	}
	for _, bad := range []string{"../etc", "a/../../etc", "/etc/passwd", "x\x00y"} {
		if _, err := JoinWithinRoot(root, bad); !errors.Is(err, ErrAccessDenied) {
			t.Errorf("JoinWithinRoot(%q) err = %v", bad, err)
		}
	}
}
