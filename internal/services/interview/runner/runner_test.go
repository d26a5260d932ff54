package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeTool writes an executable shell script that stands in for an external
// toolchain binary.
func fakeTool(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write fake tool: %v", err)
	}
	return path
}

func TestRunUnsupportedLanguage(t *testing.T) {
	e := &Exec{}
	out, err := e.Run(context.Background(), "cobol", "DISPLAY 'HI'.")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "Unsupported language: cobol" {
		t.Fatalf("output = %q", out)
	}
}

func TestRunScriptMissingInterpreter(t *testing.T) {
	e := &Exec{WorkDir: t.TempDir(), PythonBin: "definitely-not-a-real-binary"}
	out, err := e.Run(context.Background(), "python", "print(1)")
	if err != nil {
		t.Fatalf("expected interpreter failure in output channel, got error: %v", err)
	}
	if out == "" {
		t.Fatal("expected failure text in output")
	}
}

func TestRunScriptCapturesOutput(t *testing.T) {
	// /bin/sh stands in for an interpreter: it runs the written script file.
	e := &Exec{WorkDir: t.TempDir(), PythonBin: "/bin/sh"}
	out, err := e.Run(context.Background(), "python", "echo hello")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "hello" {
		t.Fatalf("output = %q, want hello", out)
	}
}

func TestRunScriptNoOutput(t *testing.T) {
	e := &Exec{WorkDir: t.TempDir(), PythonBin: "/bin/sh"}
	out, err := e.Run(context.Background(), "python", "true")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "(no output)" {
		t.Fatalf("output = %q, want (no output)", out)
	}
}

func TestRunCSharpScaffoldsProject(t *testing.T) {
	work := t.TempDir()
	e := &Exec{WorkDir: work, DotnetBin: fakeTool(t, `echo "$@"`)}

	out, err := e.Run(context.Background(), "csharp", `Console.WriteLine("hi");`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(out, "run --project ") {
		t.Fatalf("output = %q, want run-stage invocation", out)
	}

	csproj, err := os.ReadFile(filepath.Join(work, "csharp_runner", "DevReadyRunner.csproj"))
	if err != nil {
		t.Fatalf("read csproj: %v", err)
	}
	if !strings.Contains(string(csproj), "Microsoft.NET.Sdk") {
		t.Fatalf("csproj = %s", csproj)
	}
	program, err := os.ReadFile(filepath.Join(work, "csharp_runner", "Program.cs"))
	if err != nil {
		t.Fatalf("read program: %v", err)
	}
	if string(program) != `Console.WriteLine("hi");` {
		t.Fatalf("program = %s", program)
	}
}

func TestRunCSharpRestoreFailureSurfaces(t *testing.T) {
	e := &Exec{
		WorkDir:   t.TempDir(),
		DotnetBin: fakeTool(t, `if [ "$1" = restore ]; then echo "restore failed"; exit 1; fi; echo ran`),
	}
	out, err := e.Run(context.Background(), "csharp", "Console.WriteLine(1);")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "restore failed" {
		t.Fatalf("output = %q", out)
	}
}

func TestRunJavaCompilesThenRuns(t *testing.T) {
	work := t.TempDir()
	e := &Exec{
		WorkDir:  work,
		JavacBin: fakeTool(t, "exit 0"),
		JavaBin:  fakeTool(t, "echo compiled-and-ran"),
	}
	out, err := e.Run(context.Background(), "java", "public class Main {}")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "compiled-and-ran" {
		t.Fatalf("output = %q", out)
	}

	source, err := os.ReadFile(filepath.Join(work, "java_runner", "Main.java"))
	if err != nil {
		t.Fatalf("read source: %v", err)
	}
	if string(source) != "public class Main {}" {
		t.Fatalf("source = %s", source)
	}
}

func TestRunJavaCompileErrorSurfaces(t *testing.T) {
	e := &Exec{
		WorkDir:  t.TempDir(),
		JavacBin: fakeTool(t, `echo "Main.java:1: error: class expected"; exit 1`),
		JavaBin:  fakeTool(t, "echo should-not-run"),
	}
	out, err := e.Run(context.Background(), "java", "not java")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "Main.java:1: error: class expected" {
		t.Fatalf("output = %q", out)
	}
}

func TestRunJavaMissingToolchain(t *testing.T) {
	e := &Exec{WorkDir: t.TempDir(), JavacBin: "definitely-not-a-real-binary"}
	out, err := e.Run(context.Background(), "java", "public class Main {}")
	if err != nil {
		t.Fatalf("expected toolchain failure in output channel, got error: %v", err)
	}
	if out == "" {
		t.Fatal("expected failure text in output")
	}
}

func TestReadOnlyStatementAllowlist(t *testing.T) {
	allowed := []string{
		"SELECT 1",
		"select name from Customers",
		"  WITH t AS (SELECT 1) SELECT * FROM t",
		"PRAGMA table_info(Customers)",
		"explain select 1",
	}
	for _, stmt := range allowed {
		if !readOnlyStatement.MatchString(strings.TrimSpace(stmt)) {
			t.Errorf("statement rejected: %q", stmt)
		}
	}

	rejected := []string{
		"INSERT INTO Customers VALUES (1)",
		"DELETE FROM Customers",
		"UPDATE Customers SET name = 'x'",
		"DROP TABLE Customers",
		"selectivity",
	}
	for _, stmt := range rejected {
		if readOnlyStatement.MatchString(strings.TrimSpace(stmt)) {
			t.Errorf("statement allowed: %q", stmt)
		}
	}
}

func TestRenderTable(t *testing.T) {
	got := renderTable([]string{"id", "name"}, [][]string{
		{"1", "Ada"},
		{"2", "Grace"},
	})
	want := "id | name \n" +
		"---+------\n" +
		"1  | Ada  \n" +
		"2  | Grace"
	if got != want {
		t.Fatalf("table mismatch:\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderTableEmpty(t *testing.T) {
	if got := renderTable([]string{"id"}, nil); got != "(no rows)" {
		t.Fatalf("empty table = %q", got)
	}
}

func TestClampCell(t *testing.T) {
	long := strings.Repeat("z", maxColumnWidth+5)
	got := clampCell(long)
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("clamped cell missing ellipsis: %q", got)
	}
	if !strings.HasPrefix(got, strings.Repeat("z", maxColumnWidth-1)) {
		t.Fatalf("clamped cell = %q", got)
	}
	if clampCell("short") != "short" {
		t.Fatal("short cell altered")
	}
}
