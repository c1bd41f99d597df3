package main

import (
	"bytes"
	"encoding/hex"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/Fraser999/safe-core/config"
)

func newSession(t *testing.T, cfg *config.Config) *session {
	t.Helper()
	s, err := openSession(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestDemoScript(t *testing.T) {
	s := newSession(t, config.Default())

	var out bytes.Buffer
	failed, err := runScript(s, strings.NewReader(demoScript), &out)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.close(); err != nil {
		t.Fatal(err)
	}
	if failed != 0 {
		t.Fatalf("%d commands failed:\n%s", failed, out.String())
	}

	got := out.String()
	for _, want := range []string{
		"> create-account alice correct-horse\n  ok",
		`content="second"`,
		"(2 chunks, 6 bytes)",
		`content="day-one+day-two"`,
		`name="home"`,
		"> get notes\n  error 7: not found",
		"gets=",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunScript_BadCommands(t *testing.T) {
	s := newSession(t, config.Default())
	defer s.close()

	var out bytes.Buffer
	failed, err := runScript(s, strings.NewReader("# comment\n\nfrobnicate\nget\npost k x y\n"), &out)
	if err != nil {
		t.Fatal(err)
	}
	if failed != 3 {
		t.Fatalf("failed = %d:\n%s", failed, out.String())
	}
	if !strings.Contains(out.String(), `unknown command "frobnicate"`) {
		t.Fatal(out.String())
	}
}

func TestRunScript_BridgeErrors(t *testing.T) {
	s := newSession(t, config.Default())
	defer s.close()

	var out bytes.Buffer
	failed, err := runScript(s, strings.NewReader("put notes x\nfetch abcd\nstream notes -1\n"), &out)
	if err != nil {
		t.Fatal(err)
	}
	if failed != 0 {
		t.Fatalf("failed = %d", failed)
	}
	got := out.String()
	for _, want := range []string{"error 2:", "error -103:", "error -104:"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunScript_NetworkLimit(t *testing.T) {
	s := newSession(t, config.Default())
	defer s.close()

	var out bytes.Buffer
	script := "create-account carol pw\nlimit 1\nput-recover k x\nput-recover k x\nlimit 0\nput-recover k x\n"
	if _, err := runScript(s, strings.NewReader(script), &out); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	if strings.Count(got, "error 1: network operation limit reached") != 1 {
		t.Fatalf("limit not enforced once:\n%s", got)
	}
	lines := strings.Split(strings.TrimSpace(got), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	k := keyName("k")
	if !strings.HasPrefix(last, "ok Data{") || !strings.Contains(last, hex.EncodeToString(k[:])) {
		t.Fatalf("recovered put:\n%s", got)
	}
}

func TestSession_SQLiteVaultPersists(t *testing.T) {
	cfg := config.Default()
	cfg.Native.Vault = filepath.Join(t.TempDir(), "vault.db")
	cfg.Native.Compression = "zstd"

	first := newSession(t, cfg)
	var out bytes.Buffer
	if _, err := runScript(first, strings.NewReader("create-account bob pw\nput k persisted\nset-root user home\n"), &out); err != nil {
		t.Fatal(err)
	}
	if err := first.close(); err != nil {
		t.Fatal(err)
	}

	second := newSession(t, cfg)
	defer second.close()
	out.Reset()
	if _, err := runScript(second, strings.NewReader("login bob pw\nget k\nroot user\nroot config\n"), &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `content="persisted"`) {
		t.Fatalf("data lost across sessions:\n%s", out.String())
	}
	home := keyName("home")
	if !strings.Contains(out.String(), "name="+hex.EncodeToString(home[:])) {
		t.Fatalf("user root lost across sessions:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "> root config\n  ok\n") {
		t.Fatalf("config root reported:\n%s", out.String())
	}
}

func TestFormat(t *testing.T) {
	if got := format(outcome{failed: true, code: -200, message: "get cancelled"}); got != "error -200: get cancelled" {
		t.Fatal(got)
	}
	if got := format(outcome{}); got != "ok" {
		t.Fatal(got)
	}
}
