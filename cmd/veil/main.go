// cmd/veil/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/veilproject/veil/internal/audit"
	"github.com/veilproject/veil/internal/config"
	"github.com/veilproject/veil/internal/mask"
	"github.com/veilproject/veil/internal/redact"
	"github.com/veilproject/veil/internal/secure"
)

// command is a single CLI command: its name, a one-line summary for the
// usage listing, and its handler. Handlers own their flag parsing.
type command struct {
	name    string
	summary string
	run     func(args []string) error
}

// registry maps command names to handlers. Built once in main and
// passed explicitly; there is no ambient dispatch table.
type registry struct {
	order    []string
	commands map[string]*command
}

func newRegistry() *registry {
	r := &registry{commands: make(map[string]*command)}
	r.add(&command{"mask", "Mask a single string", cmdMask})
	r.add(&command{"redact", "Redact a file using a YAML rule set", cmdRedact})
	r.add(&command{"validate", "Check every pattern in a rule set compiles", cmdValidate})
	r.add(&command{"digest", "Hash a string (sha256/sha512, optional salt)", cmdDigest})
	r.add(&command{"compare", "Constant-time comparison of two strings", cmdCompare})
	r.add(&command{"random", "Generate a random string", cmdRandom})
	r.add(&command{"salt", "Generate a random hex salt", cmdSalt})
	r.add(&command{"history", "Show the redaction audit trail", cmdHistory})
	return r
}

func (r *registry) add(c *command) {
	r.order = append(r.order, c.name)
	r.commands[c.name] = c
}

func (r *registry) lookup(name string) (*command, bool) {
	c, ok := r.commands[name]
	return c, ok
}

func main() {
	reg := newRegistry()

	if len(os.Args) < 2 {
		printUsage(reg)
		os.Exit(1)
	}

	name := os.Args[1]
	args := os.Args[2:]

	if name == "help" || name == "-h" || name == "--help" {
		printUsage(reg)
		return
	}

	cmd, ok := reg.lookup(name)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", name)
		printUsage(reg)
		os.Exit(1)
	}

	if err := cmd.run(args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage(reg *registry) {
	fmt.Println(`veil - mask and redact sensitive data in text and files

Usage: veil <command> [options]

Commands:`)
	for _, name := range reg.order {
		fmt.Printf("  %-10s %s\n", name, reg.commands[name].summary)
	}
	fmt.Println("  help       Show this help")
}

func cmdMask(args []string) error {
	fs := flag.NewFlagSet("mask", flag.ExitOnError)
	visibleStart := fs.Int("visible-start", mask.DefaultVisible, "characters kept verbatim at the start")
	visibleEnd := fs.Int("visible-end", mask.DefaultVisible, "characters kept verbatim at the end")
	sensitivity := fs.String("sensitivity", string(mask.SensitivityMedium), "low, medium, or high")
	maskChar := fs.String("mask-char", mask.DefaultMaskChar, "literal repeated over the hidden span")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: veil mask [options] <string>")
	}

	cfg := mask.Config{
		VisibleStart: *visibleStart,
		VisibleEnd:   *visibleEnd,
		MaskChar:     *maskChar,
		Sensitivity:  mask.Sensitivity(*sensitivity),
	}

	fmt.Println(mask.Mask(fs.Arg(0), cfg))
	return nil
}

func cmdRedact(args []string) error {
	fs := flag.NewFlagSet("redact", flag.ExitOnError)
	rulesPath := fs.String("rules", "", "path to the YAML rules file (required)")
	output := fs.String("output", "", "destination path (default: overwrite the source)")
	fs.Parse(args)

	if *rulesPath == "" {
		return fmt.Errorf("-rules is required")
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: veil redact -rules <rules.yaml> [-output <path>] <file>")
	}

	rules, err := config.LoadRules(*rulesPath)
	if err != nil {
		return err
	}

	report, err := redact.RedactFile(fs.Arg(0), *output, rules)
	if err != nil {
		return err
	}

	for _, ruleErr := range report.RuleErrors {
		fmt.Fprintf(os.Stderr, "warning: %v\n", ruleErr)
	}

	fmt.Printf("Redacted %s -> %s (%d matches)\n", report.Source, report.Dest, report.Matches)
	return nil
}

func cmdValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: veil validate <rules.yaml>")
	}

	rules, err := config.LoadRules(fs.Arg(0))
	if err != nil {
		return err
	}

	errs := redact.Validate(rules)
	for _, ruleErr := range errs {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", ruleErr)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d rules invalid", len(errs), len(rules))
	}

	fmt.Printf("%d rules OK\n", len(rules))
	return nil
}

func cmdDigest(args []string) error {
	fs := flag.NewFlagSet("digest", flag.ExitOnError)
	algorithm := fs.String("algorithm", secure.AlgorithmSHA256, "sha256 or sha512")
	salt := fs.String("salt", "", "optional salt mixed in ahead of the input")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: veil digest [options] <string>")
	}

	digest, err := secure.Digest(fs.Arg(0), *algorithm, []byte(*salt))
	if err != nil {
		return err
	}

	fmt.Println(digest)
	return nil
}

func cmdCompare(args []string) error {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() != 2 {
		return fmt.Errorf("usage: veil compare <a> <b>")
	}

	if !secure.ConstantTimeEqual(fs.Arg(0), fs.Arg(1)) {
		return fmt.Errorf("values do not match")
	}

	fmt.Println("match")
	return nil
}

func cmdRandom(args []string) error {
	fs := flag.NewFlagSet("random", flag.ExitOnError)
	length := fs.Int("length", 32, "number of characters to generate")
	charset := fs.String("charset", secure.CharsetAlphanumeric, "alphanumeric, numeric, or hex")
	fs.Parse(args)

	value, err := secure.RandomString(*length, *charset)
	if err != nil {
		return err
	}

	fmt.Println(value)
	return nil
}

func cmdSalt(args []string) error {
	fs := flag.NewFlagSet("salt", flag.ExitOnError)
	length := fs.Int("length", secure.DefaultSaltLength, "salt length in bytes")
	fs.Parse(args)

	salt, err := secure.RandomSalt(*length)
	if err != nil {
		return err
	}

	fmt.Println(salt)
	return nil
}

func cmdHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	dbPath := fs.String("db", "", "audit database path (default ~/.veil/audit.db)")
	jobName := fs.String("job", "", "filter by job name")
	state := fs.String("state", "", "filter by state (success, failure, skipped)")
	limit := fs.Int("limit", 20, "maximum records to show")
	fs.Parse(args)

	path := *dbPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("finding home directory: %w", err)
		}
		path = filepath.Join(home, ".veil", "audit.db")
	}

	db, err := audit.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := db.History(*jobName, *state, *limit)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("no records")
		return nil
	}

	for _, r := range records {
		fmt.Printf("%s  %-8s  %-20s  %s -> %s  (%d matches, %dms)\n",
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.State, r.JobName, r.SourcePath, r.OutputPath, r.Matches, r.DurationMs)
		if r.Error != "" {
			fmt.Printf("    error: %s\n", r.Error)
		}
	}
	return nil
}
