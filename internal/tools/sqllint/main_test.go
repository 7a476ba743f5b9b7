package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRepositoryQueriesAreMarked(t *testing.T) {
	var stderr bytes.Buffer
	if code := run([]string{"../../sqlinline"}, &stderr); code != 0 {
		t.Fatalf("sqllint exit %d:\n%s", code, stderr.String())
	}
}

func TestMissingMarker(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "q.go", "package q\n\nconst QBad = `\nselect 1;\n`\n")

	vs, err := lintTargets([]string{dir})
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(vs) != 1 || vs[0].name != "QBad" {
		t.Fatalf("violations = %v, want one for QBad", vs)
	}
}

func TestDuplicateMarker(t *testing.T) {
	dir := t.TempDir()
	const id = "--sql 4f55a9b7-4e9f-4e45-a3b3-5a532d21d9db"
	writeFile(t, dir, "a.go", "package q\n\nconst QA = `"+id+"\nselect 1;\n`\n")
	writeFile(t, dir, "b.go", "package q\n\nconst QB = `"+id+"\nselect 2;\n`\n")

	vs, err := lintTargets([]string{dir})
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(vs) != 1 || !strings.Contains(vs[0].message, "already used") {
		t.Fatalf("violations = %v, want one duplicate", vs)
	}
}

func TestConcatenatedQueryUsesLeadingMarker(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "q.go", "package q\n\nconst cols = `\n    id, name`\n\nconst QSel = `--sql 30ad599d-a4a2-4e8c-a91d-2f16b3e046ba\nselect` + cols + `\nfrom things;\n`\n")

	vs, err := lintTargets([]string{dir})
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(vs) != 0 {
		t.Fatalf("unexpected violations: %v", vs)
	}
}
