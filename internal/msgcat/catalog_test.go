package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedDefaultsLoad(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := c.Render("participant.joined", map[string]any{
		"Name": "Ann", "Title": "Range duel", "Count": 3,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "Ann") || !strings.Contains(out, "Range duel") {
		t.Fatalf("unexpected render: %q", out)
	}
}

func TestRenderMissingKeyFails(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Render("no.such.key", nil); err == nil {
		t.Fatalf("expected error for unknown key")
	}
	// missing data field must also fail so broken overrides surface early
	if _, err := c.Render("participant.joined", map[string]any{"Name": "Ann"}); err == nil {
		t.Fatalf("expected error for missing data field")
	}
}

func TestOverrideDirWins(t *testing.T) {
	dir := t.TempDir()
	override := "challenge:\n  started: \"GO GO {{.Title}}\"\n"
	if err := os.WriteFile(filepath.Join(dir, "local.yaml"), []byte(override), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := c.Render("challenge.started", map[string]any{"Title": "Range duel"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "GO GO Range duel" {
		t.Fatalf("override not applied: %q", out)
	}
	// untouched keys keep their embedded defaults
	if _, err := c.Render("conn.online", nil); err != nil {
		t.Fatalf("default lost after override: %v", err)
	}
}

func TestDuplicateOverrideKeysRejected(t *testing.T) {
	dir := t.TempDir()
	body := "conn:\n  online: \"a\"\n"
	for _, name := range []string{"a.yaml", "b.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if _, err := New(dir); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}
