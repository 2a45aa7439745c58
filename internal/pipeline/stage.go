package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/agbru/dayrun/internal/errors"
)

// Argument placeholders recognized in stage templates.
const (
	PlaceholderInput   = "{input}"
	PlaceholderDate    = "{date}"
	PlaceholderWorkDir = "{workdir}"
	PlaceholderPtxt    = "{ptxt}"
	PlaceholderCtxt    = "{ctxt}"
	PlaceholderIndex   = "{index}"
	PlaceholderHour    = "{hour}"
)

var (
	knownPlaceholders = map[string]bool{
		PlaceholderInput:   true,
		PlaceholderDate:    true,
		PlaceholderWorkDir: true,
		PlaceholderPtxt:    true,
		PlaceholderCtxt:    true,
		PlaceholderIndex:   true,
		PlaceholderHour:    true,
	}
	placeholderPattern = regexp.MustCompile(`\{[a-z_]+\}`)
)

// DefaultHours is the number of hourly sub-iterations used when a pipeline
// has per-hour stages but does not set Hours.
const DefaultHours = 24

// Stage is one external executable invoked with positional arguments.
type Stage struct {
	// Name identifies the stage in logs, metrics and --stop-after.
	Name string `yaml:"name"`
	// Command is the executable. Bare names are looked up in the bin
	// directory first, then on PATH.
	Command string `yaml:"command"`
	// Args are argument templates expanded per invocation.
	Args []string `yaml:"args"`
	// PerHour repeats the stage once per hour of the day.
	PerHour bool `yaml:"per_hour"`
}

// Vars are the values substituted into argument templates.
type Vars struct {
	Input   string
	Date    string
	WorkDir string
	Ptxt    string
	Ctxt    string
	Index   int
	Hour    int
}

// Expand substitutes placeholders in the stage arguments.
func (s Stage) Expand(v Vars) []string {
	r := strings.NewReplacer(
		PlaceholderInput, v.Input,
		PlaceholderDate, v.Date,
		PlaceholderWorkDir, v.WorkDir,
		PlaceholderPtxt, v.Ptxt,
		PlaceholderCtxt, v.Ctxt,
		PlaceholderIndex, strconv.Itoa(v.Index),
		PlaceholderHour, strconv.Itoa(v.Hour),
	)
	out := make([]string, len(s.Args))
	for i, a := range s.Args {
		out[i] = r.Replace(a)
	}
	return out
}

// Validate checks the stage has a name, a command and only known placeholders.
func (s Stage) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return apperrors.NewConfigError("stage with command %q has no name", s.Command)
	}
	if strings.TrimSpace(s.Command) == "" {
		return apperrors.NewConfigError("stage %q has no command", s.Name)
	}
	for _, a := range s.Args {
		for _, ph := range placeholderPattern.FindAllString(a, -1) {
			if !knownPlaceholders[ph] {
				return apperrors.NewConfigError("stage %q: unknown placeholder %s in argument %q", s.Name, ph, a)
			}
		}
	}
	return nil
}

// Pipeline is the full set of stages of a run.
type Pipeline struct {
	// Name is informational ("daily", "hourly" or the file it came from).
	Name string `yaml:"name"`
	// Setup stages run once before the first day.
	Setup []Stage `yaml:"setup"`
	// Stages run in order for every day.
	Stages []Stage `yaml:"stages"`
	// Hours is the number of sub-iterations for per-hour stages.
	Hours int `yaml:"hours"`
}

// Validate checks every stage and that stage names are unique.
func (p Pipeline) Validate() error {
	if len(p.Stages) == 0 {
		return apperrors.NewConfigError("pipeline %q has no stages", p.Name)
	}
	if p.Hours < 0 {
		return apperrors.ValidationError{Field: "hours", Message: "must be non-negative"}
	}
	seen := make(map[string]bool)
	for _, s := range append(append([]Stage{}, p.Setup...), p.Stages...) {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.Name] {
			return apperrors.NewConfigError("pipeline %q: duplicate stage name %q", p.Name, s.Name)
		}
		seen[s.Name] = true
		if !s.PerHour && strings.Contains(strings.Join(s.Args, " "), PlaceholderHour) {
			return apperrors.NewConfigError("stage %q uses %s but is not per_hour", s.Name, PlaceholderHour)
		}
	}
	return nil
}

// Has reports whether a setup or day stage with the given name exists.
func (p Pipeline) Has(name string) bool {
	for _, s := range p.Setup {
		if s.Name == name {
			return true
		}
	}
	for _, s := range p.Stages {
		if s.Name == name {
			return true
		}
	}
	return false
}

// Step is one scheduled stage execution within a day.
type Step struct {
	Stage Stage
	// Hour is the hour number for per-hour stages, -1 otherwise.
	Hour int
}

// Label names the step for display, e.g. "Step2_TA1" or "Step2_TA1[h=3]".
func (s Step) Label() string {
	if s.Hour < 0 {
		return s.Stage.Name
	}
	return fmt.Sprintf("%s[h=%d]", s.Stage.Name, s.Hour)
}

// DaySteps flattens the day stages into execution order. Consecutive
// per-hour stages form a block that is repeated for each hour before the
// next plain stage runs.
func (p Pipeline) DaySteps() []Step {
	hours := p.Hours
	if hours == 0 {
		hours = DefaultHours
	}
	var steps []Step
	for i := 0; i < len(p.Stages); {
		if !p.Stages[i].PerHour {
			steps = append(steps, Step{Stage: p.Stages[i], Hour: -1})
			i++
			continue
		}
		j := i
		for j < len(p.Stages) && p.Stages[j].PerHour {
			j++
		}
		for h := 0; h < hours; h++ {
			for _, s := range p.Stages[i:j] {
				steps = append(steps, Step{Stage: s, Hour: h})
			}
		}
		i = j
	}
	return steps
}

// Daily is the 24-hour pipeline: one data file per day through seven
// stages and a result check.
func Daily() Pipeline {
	return Pipeline{
		Name: "daily",
		Setup: []Stage{
			{Name: "MakeEncTab_1", Command: "MakeEncTab_1"},
		},
		Stages: []Stage{
			{Name: "Step1_CS1", Command: "Step1_CS1", Args: []string{PlaceholderInput, PlaceholderPtxt, PlaceholderWorkDir}},
			{Name: "Step2_TA1", Command: "Step2_TA1", Args: []string{PlaceholderWorkDir}},
			{Name: "Step3_CS2", Command: "Step3_CS2", Args: []string{PlaceholderDate, PlaceholderWorkDir}},
			{Name: "Step4_TA2", Command: "Step4_TA2", Args: []string{PlaceholderDate, PlaceholderWorkDir}},
			{Name: "Step5_CS3", Command: "Step5_CS3", Args: []string{PlaceholderDate, PlaceholderWorkDir}},
			{Name: "Step6_TA3", Command: "Step6_TA3", Args: []string{PlaceholderDate, PlaceholderWorkDir}},
			{Name: "Step7_CS4", Command: "Step7_CS4", Args: []string{PlaceholderDate, PlaceholderWorkDir}},
			{Name: "CheckRes", Command: "CheckRes", Args: []string{PlaceholderDate, PlaceholderWorkDir, PlaceholderCtxt}},
		},
	}
}

// Hourly is the 1-hour variant: key generation up front, the first stages
// repeated per hour, and the CS2/CS3 stages split in two.
func Hourly() Pipeline {
	return Pipeline{
		Name: "hourly",
		Setup: []Stage{
			{Name: "KeyGen", Command: "KeyGen"},
		},
		Stages: []Stage{
			{Name: "Step1_CS1", Command: "Step1_CS1", Args: []string{PlaceholderInput, PlaceholderPtxt, PlaceholderWorkDir, PlaceholderHour}, PerHour: true},
			{Name: "Step2_TA1", Command: "Step2_TA1", Args: []string{PlaceholderWorkDir, PlaceholderHour}, PerHour: true},
			{Name: "Step3_CS2_1", Command: "Step3_CS2_1", Args: []string{PlaceholderDate, PlaceholderWorkDir, PlaceholderHour}, PerHour: true},
			{Name: "Step3_CS2_2", Command: "Step3_CS2_2", Args: []string{PlaceholderDate, PlaceholderWorkDir, PlaceholderHour}, PerHour: true},
			{Name: "Step4_TA2", Command: "Step4_TA2", Args: []string{PlaceholderDate, PlaceholderWorkDir}},
			{Name: "Step5_CS3_1", Command: "Step5_CS3_1", Args: []string{PlaceholderDate, PlaceholderWorkDir}},
			{Name: "Step5_CS3_2", Command: "Step5_CS3_2", Args: []string{PlaceholderDate, PlaceholderWorkDir}},
			{Name: "Step6_TA3", Command: "Step6_TA3", Args: []string{PlaceholderDate, PlaceholderWorkDir}},
			{Name: "Step7_CS4", Command: "Step7_CS4", Args: []string{PlaceholderDate, PlaceholderWorkDir}},
			{Name: "CheckRes", Command: "CheckRes", Args: []string{PlaceholderDate, PlaceholderWorkDir, PlaceholderCtxt}},
		},
		Hours: DefaultHours,
	}
}

// Builtin returns a predefined pipeline by name.
func Builtin(name string) (Pipeline, bool) {
	switch name {
	case "", "daily":
		return Daily(), true
	case "hourly":
		return Hourly(), true
	}
	return Pipeline{}, false
}
