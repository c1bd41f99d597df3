package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Fraser999/safe-core/attach"
	"github.com/Fraser999/safe-core/bridge"
	"github.com/Fraser999/safe-core/config"
)

const demoScript = `# account
create-account alice correct-horse
account-info

# immutable and structured data
store hello-world
put notes first
post notes 1 second
get notes
stream notes 4

# appendable data
put log:journal day-one
append log:journal +day-two
get log:journal

# directories
mkdir home
ls home

delete notes 2
get notes
stats
`

func main() {
	var (
		configFile  = pflag.StringP("config", "c", "", "Path to YAML config file")
		policy      = pflag.String("policy", "", "Thread attach policy (ephemeral, persistent)")
		workers     = pflag.Int("workers", 0, "Native worker threads")
		vault       = pflag.String("vault", "", "Vault: memory or a sqlite database path")
		compression = pflag.String("compression", "", "Chunk compression (none, lz4, zstd)")
		level       = pflag.String("log-level", "", "Log level")
		dev         = pflag.Bool("dev", false, "Development logging")
		script      = pflag.StringP("script", "s", "", "Run commands from a file (- for stdin)")
		interactive = pflag.BoolP("interactive", "i", false, "Interactive mode with TUI")
		list        = pflag.Bool("list", false, "List commands and exit")
	)
	pflag.Parse()

	if *list {
		printCommands(os.Stdout)
		return
	}
	if pflag.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: safecore [-c config.yaml] [--script file | -i]")
		fmt.Fprintln(os.Stderr, "       safecore --list")
		os.Exit(1)
	}

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if err := applyFlags(cfg, *policy, *workers, *vault, *compression, *level, *dev); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log, err := cfg.Logger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	bridge.SetLogger(log)

	if err := run(cfg, log, *script, *interactive); err != nil {
		log.Error("safecore failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// applyFlags overrides config values with flags set on the command line.
func applyFlags(cfg *config.Config, policy string, workers int, vault, compression, level string, dev bool) error {
	if pflag.CommandLine.Changed("policy") {
		p, err := attach.ParsePolicy(policy)
		if err != nil {
			return err
		}
		cfg.Attach.Policy = p
	}
	if pflag.CommandLine.Changed("workers") {
		cfg.Native.Workers = workers
	}
	if pflag.CommandLine.Changed("vault") {
		cfg.Native.Vault = vault
	}
	if pflag.CommandLine.Changed("compression") {
		cfg.Native.Compression = compression
	}
	if pflag.CommandLine.Changed("log-level") {
		cfg.Log.Level = level
	}
	if pflag.CommandLine.Changed("dev") {
		cfg.Log.Development = dev
	}
	return cfg.Validate()
}

func run(cfg *config.Config, log *zap.Logger, script string, interactive bool) error {
	if interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) || !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("interactive mode needs a terminal")
		}
		return runInteractive(cfg, log)
	}

	var in io.Reader = strings.NewReader(demoScript)
	switch script {
	case "":
	case "-":
		in = os.Stdin
	default:
		f, err := os.Open(script)
		if err != nil {
			return fmt.Errorf("open script: %w", err)
		}
		defer f.Close()
		in = f
	}

	s, err := openSession(cfg, log)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	failed, err := runScript(s, in, os.Stdout)
	if cerr := s.close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d commands could not run", failed)
	}
	return nil
}

// runScript executes one command per line, echoing each with its result.
// Blank lines and lines starting with # are skipped. It returns the number
// of commands that could not be run at all; native and bridge errors are
// results, not failures.
func runScript(s *session, r io.Reader, w io.Writer) (int, error) {
	failed := 0
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fmt.Fprintf(w, "> %s\n", line)
		_, out, err := execute(s, line)
		if err != nil {
			failed++
			fmt.Fprintf(w, "  %v\n", err)
			continue
		}
		fmt.Fprintf(w, "  %s\n", format(out))
	}
	if err := sc.Err(); err != nil {
		return failed, fmt.Errorf("read script: %w", err)
	}
	return failed, nil
}

func printCommands(w io.Writer) {
	for _, c := range commands {
		var params []string
		for _, p := range c.params {
			params = append(params, "<"+p.name+">")
		}
		fmt.Fprintf(w, "  %-15s %-28s %s\n", c.name, strings.Join(params, " "), c.help)
	}
}
