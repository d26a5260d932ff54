// Package runner executes candidate submissions through isolated external
// collaborators (per-language interpreters, a sandboxed SQLite database) and
// reports only a text result and a success/failure signal.
package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/devready/devready/internal/platform/timeouts"
)

// Runner executes a submission and returns its text output. Expected
// failures (compile errors, timeouts, rejected statements) come back as the
// output text with a nil error; a non-nil error means the runner itself
// could not operate.
type Runner interface {
	Run(ctx context.Context, language, code string) (string, error)
}

// noOutput is reported when a successful run produced nothing.
const noOutput = "(no output)"

// Exec runs submissions as external processes in a scratch directory, with
// SQL routed to the read-only sandbox database.
type Exec struct {
	// WorkDir holds the per-run scratch files.
	WorkDir string
	// SandboxDBPath locates the read-only SQLite database for SQL runs.
	SandboxDBPath string
	// PythonBin, NodeBin, DotnetBin, JavacBin, and JavaBin override toolchain
	// paths, mainly for tests.
	PythonBin string
	NodeBin   string
	DotnetBin string
	JavacBin  string
	JavaBin   string
}

// Run dispatches by normalized language name.
func (e *Exec) Run(ctx context.Context, language, code string) (string, error) {
	switch language {
	case "python":
		bin := e.PythonBin
		if bin == "" {
			bin = "python3"
		}
		return e.runScript(ctx, bin, "script.py", code)
	case "javascript":
		bin := e.NodeBin
		if bin == "" {
			bin = "node"
		}
		return e.runScript(ctx, bin, "script.js", code)
	case "sql":
		return e.runQuery(ctx, code)
	case "csharp":
		return e.runCSharp(ctx, code)
	case "java":
		return e.runJava(ctx, code)
	default:
		return "Unsupported language: " + language, nil
	}
}

// ensureWorkDir resolves the scratch directory, optionally nested for
// languages that need a stable per-toolchain layout.
func (e *Exec) ensureWorkDir(sub string) (string, error) {
	dir := e.WorkDir
	if dir == "" {
		dir = os.TempDir()
	}
	if sub != "" {
		dir = filepath.Join(dir, sub)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create work directory: %w", err)
	}
	return dir, nil
}

// runCommand executes one external command and maps every failure mode to
// output text. ok reports whether the command succeeded.
func runCommand(ctx context.Context, timeout time.Duration, name string, args ...string) (text string, ok bool) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(runCtx, name, args...).CombinedOutput()
	text = strings.TrimRight(string(out), "\n")
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return "Execution timed out.", false
		}
		if text == "" {
			text = err.Error()
		}
		return text, false
	}
	return text, true
}

func (e *Exec) runScript(ctx context.Context, bin, filename, code string) (string, error) {
	dir, err := e.ensureWorkDir("")
	if err != nil {
		return "", err
	}
	scriptPath := filepath.Join(dir, filename)
	if err := os.WriteFile(scriptPath, []byte(code), 0o644); err != nil {
		return "", fmt.Errorf("write script: %w", err)
	}

	text, ok := runCommand(ctx, timeouts.RunScript, bin, scriptPath)
	if ok && text == "" {
		return noOutput, nil
	}
	return text, nil
}

// csprojTemplate scaffolds the reusable dotnet project each C# submission is
// compiled into as Program.cs.
const csprojTemplate = `<Project Sdk="Microsoft.NET.Sdk">
  <PropertyGroup>
    <OutputType>Exe</OutputType>
    <TargetFramework>net7.0</TargetFramework>
    <ImplicitUsings>enable</ImplicitUsings>
    <Nullable>enable</Nullable>
  </PropertyGroup>
</Project>
`

func (e *Exec) runCSharp(ctx context.Context, code string) (string, error) {
	dir, err := e.ensureWorkDir("csharp_runner")
	if err != nil {
		return "", err
	}
	csproj := filepath.Join(dir, "DevReadyRunner.csproj")
	if _, statErr := os.Stat(csproj); statErr != nil {
		if err := os.WriteFile(csproj, []byte(csprojTemplate), 0o644); err != nil {
			return "", fmt.Errorf("write project file: %w", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "Program.cs"), []byte(code), 0o644); err != nil {
		return "", fmt.Errorf("write program: %w", err)
	}

	bin := e.DotnetBin
	if bin == "" {
		bin = "dotnet"
	}
	if text, ok := runCommand(ctx, timeouts.RunBuild, bin, "restore", csproj); !ok {
		return text, nil
	}
	text, ok := runCommand(ctx, timeouts.RunCompiled, bin, "run", "--project", csproj)
	if ok && text == "" {
		return noOutput, nil
	}
	return text, nil
}

func (e *Exec) runJava(ctx context.Context, code string) (string, error) {
	dir, err := e.ensureWorkDir("java_runner")
	if err != nil {
		return "", err
	}
	mainPath := filepath.Join(dir, "Main.java")
	if err := os.WriteFile(mainPath, []byte(code), 0o644); err != nil {
		return "", fmt.Errorf("write source: %w", err)
	}

	javac := e.JavacBin
	if javac == "" {
		javac = "javac"
	}
	if text, ok := runCommand(ctx, timeouts.RunBuild, javac, mainPath); !ok {
		return text, nil
	}

	java := e.JavaBin
	if java == "" {
		java = "java"
	}
	text, ok := runCommand(ctx, timeouts.RunCompiled, java, "-cp", dir, "Main")
	if ok && text == "" {
		return noOutput, nil
	}
	return text, nil
}
