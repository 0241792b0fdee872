package main

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kartiknair/pasc/pkg/compiler"
)

const helloProgram = "program Hello; var s: string; begin s := 'hi'; writeln(s) end.\n"

func writeSource(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "hello.pas")
	if err := ioutil.WriteFile(path, []byte(helloProgram), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFailedLinkRemovesTempDir(t *testing.T) {
	tmp := t.TempDir()
	old, had := os.LookupEnv("TMPDIR")
	os.Setenv("TMPDIR", tmp)
	defer func() {
		if had {
			os.Setenv("TMPDIR", old)
		} else {
			os.Unsetenv("TMPDIR")
		}
	}()

	exePath, err := compileIRToExecutable(context.Background(), "", filepath.Join(tmp, "no-such-cc"))
	if err == nil {
		t.Fatalf("expected the compile to fail, got %s", exePath)
	}

	entries, err := ioutil.ReadDir(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected the temp directory to be removed, found %s", entries[0].Name())
	}
}

func TestCheckAcceptsFilterQuoted(t *testing.T) {
	path := writeSource(t, t.TempDir())

	if err := newApp().Run([]string{"pasc", "check", "--filter-quoted", path}); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
}

func TestBuildWritesOutput(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir)
	output := filepath.Join(dir, "out.vm")

	if err := newApp().Run([]string{"pasc", "build", "-o", output, path}); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	code, err := ioutil.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(code), "WRITES") {
		t.Errorf("unexpected output:\n%s", code)
	}
}

func TestPrintTimings(t *testing.T) {
	var buf bytes.Buffer
	printTimings(&buf, []compiler.Timing{
		{Phase: "lexing", Duration: 12 * time.Microsecond},
		{Phase: "ewvm generation", Duration: 3 * time.Millisecond},
	})

	expected := "time: 12us for lexing\ntime: 3000us for ewvm generation\n"
	if buf.String() != expected {
		t.Errorf("got %q, want %q", buf.String(), expected)
	}
}
