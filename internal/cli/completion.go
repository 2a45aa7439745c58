package cli

import (
	"fmt"
	"io"
	"strings"
)

// FlagCompletion describes a flag for shell completion. Every generator reads
// flagRegistry, so a new flag only needs a new entry there.
type FlagCompletion struct {
	Long      string   // long name without "--"
	Short     string   // short name without "-"
	Help      string   // description
	Values    []string // suggested values, nil for booleans or free text
	ValueName string   // value label, empty for booleans
	IsFile    bool     // value is a path
	IsDir     bool     // value is a directory
}

// takesValue reports whether the flag expects an argument.
func (f FlagCompletion) takesValue() bool {
	return f.ValueName != ""
}

var flagRegistry = []FlagCompletion{
	{Long: "help", Short: "h", Help: "Show help message"},
	{Long: "version", Short: "V", Help: "Show version information"},
	{Long: "begin", Help: "First day to process", ValueName: "date"},
	{Long: "end", Help: "Last day to process", ValueName: "date"},
	{Long: "skip-leap-day", Help: "Do not process February 29"},
	{Long: "data-dir", Help: "Directory of daily input files", ValueName: "dir", IsDir: true},
	{Long: "bin-dir", Help: "Directory of stage executables", ValueName: "dir", IsDir: true},
	{Long: "workdir", Help: "Working directory reset after each day", ValueName: "dir", IsDir: true},
	{Long: "ctxt", Help: "Ciphertext result accumulator", ValueName: "file", IsFile: true},
	{Long: "ptxt", Help: "Plaintext result accumulator", ValueName: "file", IsFile: true},
	{Long: "pipeline", Help: "Built-in pipeline or YAML file", Values: []string{"daily", "hourly"}, ValueName: "pipeline", IsFile: true},
	{Long: "build-cmd", Help: "Build command run before setup", ValueName: "command"},
	{Long: "skip-build", Help: "Do not run the build command"},
	{Long: "on-failure", Help: "Failure policy", Values: []string{"abort", "continue"}, ValueName: "policy"},
	{Long: "max-days", Help: "Process at most this many days", ValueName: "number"},
	{Long: "stop-after", Help: "Stop after this stage of the first day", ValueName: "stage"},
	{Long: "stage-timeout", Help: "Maximum duration of a stage", Values: []string{"1m", "10m", "1h"}, ValueName: "duration"},
	{Long: "timeout", Help: "Maximum duration of the run", Values: []string{"1h", "24h", "72h"}, ValueName: "duration"},
	{Long: "dry-run", Help: "Print commands without running them"},
	{Long: "no-preflight", Help: "Skip the executable check"},
	{Long: "metrics-file", Help: "Prometheus textfile output", ValueName: "file", IsFile: true},
	{Long: "output", Short: "o", Help: "Run report file", ValueName: "file", IsFile: true},
	{Long: "log-level", Help: "Log level", Values: []string{"debug", "info", "warn", "error", "disabled"}, ValueName: "level"},
	{Long: "log-format", Help: "Log format", Values: []string{"console", "json"}, ValueName: "format"},
	{Long: "quiet", Short: "q", Help: "Only print the summary line"},
	{Long: "verbose", Short: "v", Help: "Print output of succeeded stages"},
	{Long: "no-color", Help: "Disable colors"},
	{Long: "tui", Help: "Interactive dashboard"},
	{Long: "completion", Help: "Generate completion script", Values: []string{"bash", "zsh", "fish"}, ValueName: "shell"},
}

// GenerateCompletion writes a completion script for shell to out.
func GenerateCompletion(out io.Writer, shell, programName string) error {
	switch shell {
	case "bash":
		return generateBashCompletion(out, programName)
	case "zsh":
		return generateZshCompletion(out, programName)
	case "fish":
		return generateFishCompletion(out, programName)
	default:
		return fmt.Errorf("unsupported shell: %s (accepted values: bash, zsh, fish)", shell)
	}
}

func generateBashCompletion(out io.Writer, prog string) error {
	var opts []string
	var cases strings.Builder
	for _, f := range flagRegistry {
		opts = append(opts, "--"+f.Long)
		if f.Short != "" {
			opts = append(opts, "-"+f.Short)
		}
		if !f.takesValue() {
			continue
		}
		patterns := "--" + f.Long
		if f.Short != "" {
			patterns += "|-" + f.Short
		}
		var body string
		switch {
		case len(f.Values) > 0 && f.IsFile:
			body = fmt.Sprintf(`COMPREPLY=( $(compgen -W "%s" -f -- "${cur}") )`, strings.Join(f.Values, " "))
		case len(f.Values) > 0:
			body = fmt.Sprintf(`COMPREPLY=( $(compgen -W "%s" -- "${cur}") )`, strings.Join(f.Values, " "))
		case f.IsDir:
			body = `COMPREPLY=( $(compgen -d -- "${cur}") )`
		case f.IsFile:
			body = `COMPREPLY=( $(compgen -f -- "${cur}") )`
		default:
			body = `COMPREPLY=()`
		}
		fmt.Fprintf(&cases, "        %s)\n            %s\n            return 0\n            ;;\n", patterns, body)
	}

	fn := "_" + strings.ReplaceAll(prog, "-", "_")
	_, err := fmt.Fprintf(out, `# bash completion for %[1]s
# Add this to ~/.bashrc: eval "$(%[1]s --completion bash)"

%[2]s() {
    local cur prev
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    case "${prev}" in
%[3]s    esac

    COMPREPLY=( $(compgen -W "%[4]s" -- "${cur}") )
    return 0
}

complete -F %[2]s %[1]s
`, prog, fn, cases.String(), strings.Join(opts, " "))
	if err != nil {
		return fmt.Errorf("completion bash generation failed: %w", err)
	}
	return nil
}

func generateZshCompletion(out io.Writer, prog string) error {
	var args []string
	for _, f := range flagRegistry {
		args = append(args, "    "+zshArgEntry(f))
	}
	_, err := fmt.Fprintf(out, "#compdef %[1]s\n# Add this to a file named _%[1]s in your $fpath\n\n_%[1]s() {\n  _arguments \\\n%[2]s\n}\n\n_%[1]s \"$@\"\n",
		prog, strings.Join(args, " \\\n"))
	if err != nil {
		return fmt.Errorf("completion zsh generation failed: %w", err)
	}
	return nil
}

func zshArgEntry(f FlagCompletion) string {
	action := ""
	if f.takesValue() {
		switch {
		case len(f.Values) > 0:
			action = fmt.Sprintf(":%s:(%s)", f.ValueName, strings.Join(f.Values, " "))
		case f.IsDir:
			action = fmt.Sprintf(":%s:_directories", f.ValueName)
		case f.IsFile:
			action = fmt.Sprintf(":%s:_files", f.ValueName)
		default:
			action = fmt.Sprintf(":%s:", f.ValueName)
		}
	}
	if f.Short == "" {
		return fmt.Sprintf("'--%s[%s]%s'", f.Long, f.Help, action)
	}
	return fmt.Sprintf("'(-%[1]s --%[2]s)'{-%[1]s,--%[2]s}'[%[3]s]%[4]s'", f.Short, f.Long, f.Help, action)
}

func generateFishCompletion(out io.Writer, prog string) error {
	lines := []string{
		fmt.Sprintf("# Add this to ~/.config/fish/completions/%s.fish", prog),
		fmt.Sprintf("complete -c %s -f", prog),
	}
	for _, f := range flagRegistry {
		parts := []string{"complete -c " + prog, "-l " + f.Long}
		if f.Short != "" {
			parts = append(parts, "-s "+f.Short)
		}
		if f.takesValue() {
			parts = append(parts, "-r")
		}
		switch {
		case len(f.Values) > 0:
			parts = append(parts, fmt.Sprintf("-a '%s'", strings.Join(f.Values, " ")))
		case f.IsDir:
			parts = append(parts, "-a '(__fish_complete_directories)'")
		case f.IsFile:
			parts = append(parts, "-F")
		}
		parts = append(parts, fmt.Sprintf("-d '%s'", f.Help))
		lines = append(lines, strings.Join(parts, " "))
	}
	if _, err := fmt.Fprintln(out, strings.Join(lines, "\n")); err != nil {
		return fmt.Errorf("completion fish generation failed: %w", err)
	}
	return nil
}
