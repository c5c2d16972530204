// Command nova is Nova's CLI front end. The teacher's cmd/smog/main.go
// dispatches subcommands with a bare os.Args switch (no flag-parsing
// library); Nova generalizes that into a proper spf13/cobra command
// tree, the subcommand-dispatch library the rest of the retrieval pack
// reaches for, while keeping the same subcommand set smog's main()
// offers minus the bytecode-file pair (compile/disassemble) that has no
// analogue in a tree-walking evaluator with no separate bytecode-file
// format to distribute.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kristofer/nova/internal/interpreter"
)

const version = "0.1.0"

func main() {
	var policyName string

	root := &cobra.Command{
		Use:     "nova [file]",
		Short:   "nova - a Kotlin-flavored dynamic scripting language",
		Version: version,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runREPL(policyName)
			}
			return runFile(args[0], policyName)
		},
	}
	root.SetVersionTemplate("nova version {{.Version}}\n")
	root.PersistentFlags().StringVar(&policyName, "policy", "STANDARD",
		"security policy to run under: UNRESTRICTED, STANDARD, or STRICT")

	root.AddCommand(&cobra.Command{
		Use:   "repl",
		Short: "Start interactive REPL",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL(policyName)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "run [file]",
		Short: "Run a .nova source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(args[0], policyName)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newInterpreter builds an Interpreter under the named security policy
// (spec.md §4.7's UNRESTRICTED/STANDARD/STRICT), the CLI's entry point
// onto the embedding API's programmatic policy selection.
func newInterpreter(policyName string) (*interpreter.Interpreter, error) {
	switch strings.ToUpper(policyName) {
	case "UNRESTRICTED":
		return interpreter.NewUnrestricted(), nil
	case "STANDARD":
		return interpreter.New(), nil
	case "STRICT":
		return interpreter.NewStrict(), nil
	default:
		return nil, fmt.Errorf("unknown policy %q (want UNRESTRICTED, STANDARD, or STRICT)", policyName)
	}
}

// runFile reads and evaluates a single .nova source file as one
// compilation unit (spec.md §6's eval(source, filename)).
func runFile(filename string, policyName string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	it, err := newInterpreter(policyName)
	if err != nil {
		return err
	}
	if _, err := it.Eval(string(data), filepath.Base(filename)); err != nil {
		return err
	}
	return nil
}

// runREPL starts an interactive session backed by one persistent
// Interpreter, so val/var/fun/class declarations from earlier turns
// remain visible to later ones — the same "keep the VM alive across
// turns" shape the teacher's runREPL gets from closing over a single
// vm.VM + compiler.Compiler pair, here wrapped in interpreter.Interpreter
// instead of recreated ad hoc in main().
//
// Smog decides a turn is complete by a trailing '.'; Nova has no such
// terminator, so instead a turn is considered complete once its
// accumulated brace/paren/bracket nesting returns to zero — a blank
// line forces evaluation of whatever has been typed regardless, as an
// escape hatch.
func runREPL(policyName string) error {
	it, err := newInterpreter(policyName)
	if err != nil {
		return err
	}

	fmt.Printf("nova REPL v%s\n", version)
	fmt.Println("Type ':help' for help, ':quit' or ':exit' to exit")
	fmt.Println()

	it.SetREPLMode(true)
	scanner := bufio.NewScanner(os.Stdin)

	var inputBuffer strings.Builder
	depth := 0

	for {
		if inputBuffer.Len() == 0 {
			fmt.Print("nova> ")
		} else {
			fmt.Print("....> ")
		}

		if !scanner.Scan() {
			break
		}
		line := scanner.Text()

		if inputBuffer.Len() == 0 {
			switch strings.TrimSpace(line) {
			case ":quit", ":exit":
				fmt.Println("Goodbye!")
				return nil
			case ":help":
				printREPLHelp()
				continue
			case "":
				continue
			}
		}

		inputBuffer.WriteString(line)
		inputBuffer.WriteString("\n")
		depth += bracketDelta(line)

		trimmed := strings.TrimSpace(inputBuffer.String())
		if depth > 0 && line != "" {
			continue
		}

		if trimmed != "" {
			evalREPL(it, trimmed)
		}
		inputBuffer.Reset()
		depth = 0
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
	}
	return nil
}

func bracketDelta(line string) int {
	delta := 0
	for _, r := range line {
		switch r {
		case '{', '(', '[':
			delta++
		case '}', ')', ']':
			delta--
		}
	}
	return delta
}

// evalREPL evaluates one REPL turn against the persistent Interpreter.
// Errors are printed but never stop the session.
func evalREPL(it *interpreter.Interpreter, input string) {
	v, err := it.EvalREPL(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	if v != nil {
		fmt.Printf("=> %s\n", v.AsString())
	}
}

func printREPLHelp() {
	fmt.Println("nova REPL Help")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  :help     Show this help message")
	fmt.Println("  :quit     Exit the REPL")
	fmt.Println("  :exit     Exit the REPL")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  - Enter Nova statements and press Enter")
	fmt.Println("  - val/var/fun/class declarations persist across turns")
	fmt.Println("  - Multi-line input (class bodies, lambdas) is read until")
	fmt.Println("    braces/parens/brackets balance")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  nova> val x = 42")
	fmt.Println("  nova> x + 8")
	fmt.Println("  => 50")
	fmt.Println()
}
