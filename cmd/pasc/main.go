package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/repr"
	"github.com/kartiknair/pasc/pkg/compiler"
	"github.com/kartiknair/pasc/pkg/diag"
	"github.com/kartiknair/pasc/pkg/gen"
	"github.com/urfave/cli/v2"
)

var verbose bool

func readSource(filename string) (string, error) {
	code, err := ioutil.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("failed while attempting to read source file: %w", err)
	}
	return string(code), nil
}

// sourceArg returns the single source file a command was given.
func sourceArg(c *cli.Context) (string, error) {
	if c.Args().Len() > 1 {
		return "", fmt.Errorf(`

Too many arguments provided.

If you've provided flags make sure they go before the arguments.
    Wrong: $ pasc %s file.pas -o foo
    Right: $ pasc %s -o foo file.pas
`, c.Command.Name, c.Command.Name)
	}

	filename := c.Args().First()
	if filename == "" {
		return "", errors.New("Source file not provided.")
	}
	return filename, nil
}

// report prints the diagnostics behind err and turns it into an exit code.
func report(source string, err error) error {
	var failure *compiler.Failure
	if errors.As(err, &failure) {
		fmt.Fprintln(os.Stderr, failure.Format(source))
		return cli.Exit(fmt.Sprintf("compilation failed with %d error(s)", len(failure.Diagnostics)), 1)
	}

	var d diag.Diagnostic
	if errors.As(err, &d) {
		fmt.Fprintln(os.Stderr, diag.Format(source, d))
		return cli.Exit("compilation failed", 1)
	}

	return cli.Exit(err.Error(), 1)
}

func compileFile(filename string, opts compiler.Options) (*compiler.Result, error) {
	source, err := readSource(filename)
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}

	result, err := compiler.Compile(source, opts)
	if err != nil {
		return nil, report(source, err)
	}

	if verbose {
		printTimings(os.Stdout, result.Timings)
	}
	return result, nil
}

func printTimings(w io.Writer, timings []compiler.Timing) {
	for _, timing := range timings {
		fmt.Fprintf(w, "time: %dus for %s\n", timing.Duration.Microseconds(), timing.Phase)
	}
}

// compileIRToExecutable returns the path of the built executable inside a
// fresh temp directory. The caller removes that directory; on error it is
// already gone.
func compileIRToExecutable(ctx context.Context, ir string, cc string) (string, error) {
	tmpDir, err := ioutil.TempDir("", "pasc-tmp--*")
	if err != nil {
		return "", fmt.Errorf("failed while creating temp directory: %w", err)
	}

	exePath := filepath.Join(tmpDir, "pasc-exe.out")

	compileCommand := exec.CommandContext(ctx, cc, "-x", "ir", "-o", exePath, "-")
	if verbose {
		fmt.Println(compileCommand)
		compileCommand.Stdout = os.Stdout
	}
	compileCommand.Stderr = os.Stderr
	compileCommand.Stdin = strings.NewReader(ir)

	start := time.Now()
	if err := compileCommand.Run(); err != nil {
		os.RemoveAll(tmpDir)
		return "", fmt.Errorf("failed while compiling LLVM IR to an executable: %w", err)
	}

	if verbose {
		fmt.Printf("time: %dms for %s to compile and link.\n", time.Since(start).Milliseconds(), cc)
	}
	return exePath, nil
}

func buildCommand() *cli.Command {
	var (
		output       string
		target       string
		debug        bool
		filterQuoted bool
	)

	return &cli.Command{
		Name:      "build",
		Usage:     "Compiles the provided source file to EWVM assembly or LLVM IR.",
		ArgsUsage: "file.pas",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "Output file, defaults to the source path with the target's extension.",
				Destination: &output,
			},
			&cli.StringFlag{
				Name:        "target",
				Aliases:     []string{"t"},
				Value:       string(gen.TargetEWVM),
				Usage:       "Code generation target, 'ewvm' or 'llvm'.",
				EnvVars:     []string{"PASC_TARGET"},
				Destination: &target,
			},
			&cli.BoolFlag{
				Name:        "debug",
				Usage:       "Dump the syntax tree before generating code.",
				Destination: &debug,
			},
			&cli.BoolFlag{
				Name:        "filter-quoted",
				Usage:       "Drop undeclared-name errors for names that are quoted text.",
				Destination: &filterQuoted,
			},
		},
		Action: func(c *cli.Context) error {
			filename, err := sourceArg(c)
			if err != nil {
				return err
			}
			t, err := gen.ParseTarget(target)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			result, err := compileFile(filename, compiler.Options{Target: t, FilterQuotedUndeclared: filterQuoted})
			if err != nil {
				return err
			}
			if debug {
				repr.Println(result.Program)
			}

			if output == "" {
				output = compiler.OutputPath(filename, t)
			}
			if err := ioutil.WriteFile(output, []byte(result.Text()), 0644); err != nil {
				return cli.Exit(fmt.Sprintf("Failed to write %s.\n%s", output, err), 1)
			}
			if verbose {
				fmt.Printf("wrote %s\n", output)
			}
			return nil
		},
	}
}

func checkCommand() *cli.Command {
	var filterQuoted bool

	return &cli.Command{
		Name:      "check",
		Usage:     "Lexes, parses and analyzes the provided source file without generating code.",
		ArgsUsage: "file.pas",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "filter-quoted",
				Usage:       "Drop undeclared-name errors for names that are quoted text.",
				Destination: &filterQuoted,
			},
		},
		Action: func(c *cli.Context) error {
			filename, err := sourceArg(c)
			if err != nil {
				return err
			}
			source, err := readSource(filename)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			if _, _, err := compiler.Check(source, compiler.Options{FilterQuotedUndeclared: filterQuoted}); err != nil {
				return report(source, err)
			}
			fmt.Printf("%s: ok\n", filename)
			return nil
		},
	}
}

func tokensCommand() *cli.Command {
	return &cli.Command{
		Name:      "tokens",
		Usage:     "Prints the token stream of the provided source file.",
		ArgsUsage: "file.pas",
		Action: func(c *cli.Context) error {
			filename, err := sourceArg(c)
			if err != nil {
				return err
			}
			source, err := readSource(filename)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			tokens, lexErrors := compiler.Tokenize(source)
			for _, tok := range tokens {
				fmt.Printf("Line %d: %s\n", tok.Pos.Line, tok)
			}
			for _, lexErr := range lexErrors {
				fmt.Fprintln(os.Stderr, diag.Format(source, lexErr))
			}
			if len(lexErrors) > 0 {
				return cli.Exit(fmt.Sprintf("%d lexical error(s)", len(lexErrors)), 1)
			}
			return nil
		},
	}
}

func astCommand() *cli.Command {
	return &cli.Command{
		Name:      "ast",
		Usage:     "Prints the syntax tree of the provided source file.",
		ArgsUsage: "file.pas",
		Action: func(c *cli.Context) error {
			filename, err := sourceArg(c)
			if err != nil {
				return err
			}
			source, err := readSource(filename)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			tokens, _ := compiler.Tokenize(source)
			program, parseErrors := compiler.Parse(tokens)
			if program != nil {
				repr.Println(program)
			}
			for _, parseErr := range parseErrors {
				fmt.Fprintln(os.Stderr, diag.Format(source, parseErr))
			}
			if len(parseErrors) > 0 {
				return cli.Exit(fmt.Sprintf("%d syntax error(s)", len(parseErrors)), 1)
			}
			return nil
		},
	}
}

func runCommand() *cli.Command {
	var cc string

	return &cli.Command{
		Name:      "run",
		Usage:     "Compiles the provided source file through LLVM and runs it.",
		ArgsUsage: "file.pas [program arguments]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "cc",
				Value:       "clang",
				Usage:       "Compiler used to turn LLVM IR into an executable.",
				EnvVars:     []string{"PASC_CC"},
				Destination: &cc,
			},
		},
		Action: func(c *cli.Context) error {
			filename := c.Args().First()
			if filename == "" {
				return errors.New("Source file not provided.")
			}

			result, err := compileFile(filename, compiler.Options{Target: gen.TargetLLVM})
			if err != nil {
				return err
			}

			exePath, err := compileIRToExecutable(c.Context, result.IR, cc)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer os.RemoveAll(filepath.Dir(exePath))

			runCmd := exec.CommandContext(c.Context, exePath, c.Args().Tail()...)
			runCmd.Stdin = os.Stdin
			runCmd.Stdout = os.Stdout
			runCmd.Stderr = os.Stderr

			if err := runCmd.Run(); err != nil {
				var exitErr *exec.ExitError
				if errors.As(err, &exitErr) {
					return cli.Exit("", exitErr.ExitCode())
				}
				return cli.Exit(fmt.Sprintf("Failed to run compiled binary.\n%s", err), 1)
			}
			return nil
		},
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "pasc",
		Usage: "A compiler for a small subset of Pascal.",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "verbose",
				Usage:       "Print the time spent in each step.",
				Destination: &verbose,
			},
		},
		Commands: []*cli.Command{
			buildCommand(),
			checkCommand(),
			tokensCommand(),
			astCommand(),
			runCommand(),
		},
	}
}

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
