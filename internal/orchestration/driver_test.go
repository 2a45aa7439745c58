package orchestration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/golang/mock/gomock"

	"github.com/agbru/dayrun/internal/daterange"
	apperrors "github.com/agbru/dayrun/internal/errors"
	"github.com/agbru/dayrun/internal/logging"
	"github.com/agbru/dayrun/internal/pipeline"
	"github.com/agbru/dayrun/internal/pipeline/mocks"
	"github.com/agbru/dayrun/internal/sysmon"
)

// fakeRunner records invocations, drops an artifact in the working directory
// and fails the stages listed in fail ("Step3_CS2@2014-01-02").
type fakeRunner struct {
	mu      sync.Mutex
	workDir string
	fail    map[string]bool
	calls   []pipeline.Invocation
}

func (f *fakeRunner) Run(_ context.Context, inv pipeline.Invocation) (pipeline.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.mu.Unlock()

	_ = os.WriteFile(filepath.Join(f.workDir, inv.Step.Label()+".out"), []byte("x"), 0o644)

	res := pipeline.Result{Invocation: inv, Status: pipeline.Succeeded}
	if f.fail[inv.Step.Stage.Name+"@"+inv.Date] {
		res.Status = pipeline.Failed
		res.ExitCode = 1
		res.Output = "boom"
	}
	return res, pipeline.StageErrorFor(res)
}

func (f *fakeRunner) names() []string {
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Step.Label()
	}
	return out
}

type env struct {
	dir  string
	opts Options
}

func newEnv(t *testing.T, begin, end string) env {
	t.Helper()
	dir := t.TempDir()
	r, err := daterange.New(begin, end, true)
	if err != nil {
		t.Fatal(err)
	}
	return env{dir: dir, opts: Options{
		Range:    r,
		Pipeline: pipeline.Daily(),
		BinDir:   filepath.Join(dir, "bin"),
		DataDir:  filepath.Join(dir, "data"),
		WorkDir:  filepath.Join(dir, "Result"),
		CtxtFile: filepath.Join(dir, "ctxt_res", "test2014.txt"),
		PtxtFile: filepath.Join(dir, "ptxt_res", "test2014.txt"),
	}}
}

func noSample() sysmon.Stats { return sysmon.Stats{} }

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", path, err)
	}
	return string(data)
}

func entries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir(%s): %v", dir, err)
	}
	return ents
}

func tokens(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "%d,", i)
	}
	return sb.String()
}

func TestDriver_DefaultRange(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "2014-01-01", "2014-12-30")
	runner := &fakeRunner{workDir: e.opts.WorkDir}

	summary, err := NewDriver(e.opts, runner, nil, nil, WithSampler(noSample)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(summary.Days) != 364 || summary.TotalDays != 364 {
		t.Fatalf("days = %d (planned %d), want 364", len(summary.Days), summary.TotalDays)
	}
	if got := summary.Count(DayCompleted); got != 364 {
		t.Errorf("completed days = %d, want 364", got)
	}
	if last := summary.Days[363]; last.Index != 363 || last.Date != "2014-12-30" {
		t.Errorf("last day = %d %s", last.Index, last.Date)
	}
	if summary.RunID == "" {
		t.Error("RunID is empty")
	}

	want := tokens(364)
	if got := readFile(t, e.opts.CtxtFile); got != want {
		t.Errorf("ctxt accumulator has %d bytes, want %d", len(got), len(want))
	}
	if got := readFile(t, e.opts.PtxtFile); got != want {
		t.Errorf("ptxt accumulator has %d bytes, want %d", len(got), len(want))
	}
	if ents := entries(t, e.opts.WorkDir); len(ents) != 0 {
		t.Errorf("working directory not empty: %d entries", len(ents))
	}
	if got, want := len(runner.calls), 1+364*8; got != want {
		t.Errorf("invocations = %d, want %d", got, want)
	}
}

func TestDriver_StageArguments(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "2014-01-01", "2014-01-01")
	runner := &fakeRunner{workDir: e.opts.WorkDir}

	if _, err := NewDriver(e.opts, runner, nil, nil, WithSampler(noSample)).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantNames := []string{"MakeEncTab_1", "Step1_CS1", "Step2_TA1", "Step3_CS2", "Step4_TA2", "Step5_CS3", "Step6_TA3", "Step7_CS4", "CheckRes"}
	if got := runner.names(); strings.Join(got, " ") != strings.Join(wantNames, " ") {
		t.Fatalf("order = %v, want %v", got, wantNames)
	}

	step1 := runner.calls[1]
	wantArgs := []string{filepath.Join(e.opts.DataDir, "2014-01-01.txt"), e.opts.PtxtFile, e.opts.WorkDir}
	if strings.Join(step1.Args, "|") != strings.Join(wantArgs, "|") {
		t.Errorf("Step1_CS1 args = %v, want %v", step1.Args, wantArgs)
	}
	if step1.Date != "2014-01-01" {
		t.Errorf("Step1_CS1 date = %q", step1.Date)
	}
	check := runner.calls[8]
	if strings.Join(check.Args, "|") != strings.Join([]string{"2014-01-01", e.opts.WorkDir, e.opts.CtxtFile}, "|") {
		t.Errorf("CheckRes args = %v", check.Args)
	}
	if setup := runner.calls[0]; setup.Date != "" || len(setup.Args) != 0 {
		t.Errorf("setup invocation = %+v", setup)
	}
}

func TestDriver_StopAfterFirstStage(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "2014-01-01", "2014-12-30")
	e.opts.StopAfter = "Step1_CS1"
	runner := &fakeRunner{workDir: e.opts.WorkDir}

	summary, err := NewDriver(e.opts, runner, nil, nil, WithSampler(noSample)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := readFile(t, e.opts.CtxtFile); got != "0," {
		t.Errorf("ctxt = %q, want %q", got, "0,")
	}
	if got := readFile(t, e.opts.PtxtFile); got != "0," {
		t.Errorf("ptxt = %q, want %q", got, "0,")
	}
	if len(summary.Days) != 1 || summary.Days[0].Status != DayStopped {
		t.Fatalf("days = %+v, want one stopped day", summary.Days)
	}
	if _, err := os.Stat(filepath.Join(e.opts.WorkDir, "Step1_CS1.out")); err != nil {
		t.Errorf("working directory was reset: %v", err)
	}
	if got := runner.names(); len(got) != 2 {
		t.Errorf("invocations = %v, want setup and Step1_CS1", got)
	}
}

func TestDriver_StopAfterSetupStage(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "2014-01-01", "2014-01-05")
	e.opts.StopAfter = "MakeEncTab_1"
	runner := &fakeRunner{workDir: e.opts.WorkDir}

	summary, err := NewDriver(e.opts, runner, nil, nil, WithSampler(noSample)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Days) != 0 || len(summary.Setup) != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if _, err := os.Stat(e.opts.CtxtFile); !os.IsNotExist(err) {
		t.Errorf("accumulator should not exist, stat err = %v", err)
	}
}

func TestDriver_AbortOnFailure(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "2014-01-01", "2014-01-05")
	runner := &fakeRunner{workDir: e.opts.WorkDir, fail: map[string]bool{"Step3_CS2@2014-01-02": true}}

	summary, err := NewDriver(e.opts, runner, nil, nil, WithSampler(noSample)).Run(context.Background())

	var stageErr apperrors.StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("err = %v, want StageError", err)
	}
	if stageErr.Stage != "Step3_CS2" || stageErr.Date != "2014-01-02" || stageErr.Output != "boom" {
		t.Errorf("StageError = %+v", stageErr)
	}
	if code := apperrors.ExitCodeFor(err); code != apperrors.ExitErrorStage {
		t.Errorf("exit code = %d, want %d", code, apperrors.ExitErrorStage)
	}
	if len(summary.Days) != 2 || summary.Days[1].Status != DayFailed {
		t.Fatalf("days = %+v", summary.Days)
	}
	if failed, ok := summary.Days[1].Failure(); !ok || failed.Name() != "Step3_CS2" {
		t.Errorf("Failure() = %v, %v", failed.Name(), ok)
	}
	if got := readFile(t, e.opts.CtxtFile); got != "0,1," {
		t.Errorf("ctxt = %q", got)
	}
	if ents := entries(t, e.opts.WorkDir); len(ents) == 0 {
		t.Error("working directory should be left for inspection")
	}
}

func TestDriver_ContinueOnFailure(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "2014-01-01", "2014-01-03")
	e.opts.ContinueOnFailure = true
	runner := &fakeRunner{workDir: e.opts.WorkDir, fail: map[string]bool{"Step3_CS2@2014-01-02": true}}

	summary, err := NewDriver(e.opts, runner, nil, nil, WithSampler(noSample)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(summary.Days) != 3 {
		t.Fatalf("days = %d, want 3", len(summary.Days))
	}
	failed := summary.Days[1]
	if failed.Status != DayFailed || len(failed.Stages) != 3 {
		t.Errorf("failed day = status %v with %d stages, want failed with 3", failed.Status, len(failed.Stages))
	}
	if summary.Days[2].Status != DayCompleted {
		t.Errorf("day after failure = %v", summary.Days[2].Status)
	}
	if got := readFile(t, e.opts.PtxtFile); got != "0,1,2," {
		t.Errorf("ptxt = %q", got)
	}
	if ents := entries(t, e.opts.WorkDir); len(ents) != 0 {
		t.Errorf("working directory not empty after skipped day")
	}
}

func TestDriver_SetupFailureAlwaysAborts(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "2014-01-01", "2014-01-03")
	e.opts.ContinueOnFailure = true
	runner := &fakeRunner{workDir: e.opts.WorkDir, fail: map[string]bool{"MakeEncTab_1@": true}}

	summary, err := NewDriver(e.opts, runner, nil, nil, WithSampler(noSample)).Run(context.Background())

	var stageErr apperrors.StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != "MakeEncTab_1" {
		t.Fatalf("err = %v, want setup StageError", err)
	}
	if len(summary.Days) != 0 {
		t.Errorf("days ran after setup failure: %d", len(summary.Days))
	}
	if _, err := os.Stat(e.opts.CtxtFile); !os.IsNotExist(err) {
		t.Errorf("accumulator should not exist, stat err = %v", err)
	}
}

func TestDriver_MaxDays(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "2014-01-01", "2014-12-30")
	e.opts.MaxDays = 2
	runner := &fakeRunner{workDir: e.opts.WorkDir}

	summary, err := NewDriver(e.opts, runner, nil, nil, WithSampler(noSample)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Days) != 2 || summary.TotalDays != 2 {
		t.Errorf("days = %d planned %d, want 2", len(summary.Days), summary.TotalDays)
	}
	if got := readFile(t, e.opts.CtxtFile); got != "0,1," {
		t.Errorf("ctxt = %q", got)
	}
}

// cancelAfterFirstDay cancels the run once the first day is done.
type cancelAfterFirstDay struct {
	NullObserver
	cancel context.CancelFunc
}

func (c cancelAfterFirstDay) DayFinished(DayResult) { c.cancel() }

func TestDriver_CanceledBetweenDays(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "2014-01-01", "2014-01-10")
	runner := &fakeRunner{workDir: e.opts.WorkDir}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	summary, err := NewDriver(e.opts, runner, cancelAfterFirstDay{cancel: cancel}, nil, WithSampler(noSample)).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if code := apperrors.ExitCodeFor(err); code != apperrors.ExitErrorCanceled {
		t.Errorf("exit code = %d, want %d", code, apperrors.ExitErrorCanceled)
	}
	if len(summary.Days) != 1 {
		t.Errorf("days = %d, want 1", len(summary.Days))
	}
}

func TestDriver_CanceledDuringStage(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "2014-01-01", "2014-01-10")
	e.opts.Pipeline.Setup = nil
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := pipeline.RunnerFunc(func(ctx context.Context, inv pipeline.Invocation) (pipeline.Result, error) {
		if inv.Step.Stage.Name == "Step2_TA1" {
			cancel()
			res := pipeline.Result{Invocation: inv, Status: pipeline.Canceled, ExitCode: -1, Err: ctx.Err()}
			return res, pipeline.StageErrorFor(res)
		}
		return pipeline.Result{Invocation: inv, Status: pipeline.Succeeded}, nil
	})

	summary, err := NewDriver(e.opts, runner, nil, nil, WithSampler(noSample)).Run(ctx)
	if code := apperrors.ExitCodeFor(err); code != apperrors.ExitErrorCanceled {
		t.Fatalf("exit code = %d (err %v), want %d", code, err, apperrors.ExitErrorCanceled)
	}
	if len(summary.Days) != 1 || summary.Days[0].Status != DayCanceled {
		t.Errorf("days = %+v", summary.Days)
	}
}

// recorder keeps a flat log of observer events.
type recorder struct {
	events []string
}

func (r *recorder) SetupStarted(stages []pipeline.Stage) {
	r.events = append(r.events, fmt.Sprintf("setup:%d", len(stages)))
}
func (r *recorder) DayStarted(day daterange.Day, total int) {
	r.events = append(r.events, fmt.Sprintf("day:%d/%d", day.Index, total))
}
func (r *recorder) StageStarted(inv pipeline.Invocation) {
	r.events = append(r.events, "start:"+inv.Step.Label())
}
func (r *recorder) StageFinished(res pipeline.Result) {
	r.events = append(r.events, "done:"+res.Name()+":"+res.Status.String())
}
func (r *recorder) DayFinished(day DayResult) {
	r.events = append(r.events, "dayend:"+day.Status.String())
}
func (r *recorder) RunFinished(summary RunSummary, err error) {
	r.events = append(r.events, fmt.Sprintf("run:%d:%v", len(summary.Days), err))
}

func TestDriver_ObserverEvents(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "2014-01-01", "2014-01-01")
	e.opts.Pipeline = pipeline.Pipeline{
		Name:   "two",
		Setup:  []pipeline.Stage{{Name: "KeyGen", Command: "KeyGen"}},
		Stages: []pipeline.Stage{{Name: "A", Command: "a"}, {Name: "B", Command: "b"}},
	}
	rec := &recorder{}
	other := &recorder{}

	_, err := NewDriver(e.opts, &fakeRunner{workDir: e.opts.WorkDir}, Observers{rec, other}, nil, WithSampler(noSample)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		"setup:1", "start:KeyGen", "done:KeyGen:succeeded",
		"day:0/1", "start:A", "done:A:succeeded", "start:B", "done:B:succeeded",
		"dayend:completed", "run:1:<nil>",
	}
	if strings.Join(rec.events, " ") != strings.Join(want, " ") {
		t.Errorf("events =\n%v\nwant\n%v", rec.events, want)
	}
	if len(other.events) != len(rec.events) {
		t.Errorf("second observer saw %d events, want %d", len(other.events), len(rec.events))
	}
}

func TestDriver_HourlyPipeline(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "2014-01-01", "2014-01-01")
	p := pipeline.Hourly()
	p.Hours = 2
	e.opts.Pipeline = p
	runner := &fakeRunner{workDir: e.opts.WorkDir}

	if _, err := NewDriver(e.opts, runner, nil, nil, WithSampler(noSample)).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// KeyGen, 4 per-hour stages twice, 6 plain stages.
	if got := len(runner.calls); got != 1+4*2+6 {
		t.Fatalf("invocations = %d: %v", got, runner.names())
	}
	first := runner.calls[1]
	if first.Step.Hour != 0 || first.Args[len(first.Args)-1] != "0" {
		t.Errorf("first hourly call = %+v", first)
	}
	if second := runner.calls[5]; second.Step.Label() != "Step1_CS1[h=1]" {
		t.Errorf("call 5 = %s, want Step1_CS1[h=1]", second.Step.Label())
	}
}

func TestDriver_WithMockRunner(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	e := newEnv(t, "2014-02-27", "2014-02-28")
	e.opts.Pipeline = pipeline.Pipeline{
		Name:   "single",
		Stages: []pipeline.Stage{{Name: "CheckRes", Command: "CheckRes", Args: []string{"{date}", "{index}"}}},
	}

	runner := mocks.NewMockRunner(ctrl)
	gomock.InOrder(
		runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, inv pipeline.Invocation) (pipeline.Result, error) {
				if got := strings.Join(inv.Args, " "); got != "2014-02-27 0" {
					t.Errorf("day 0 args = %q", got)
				}
				if inv.Path != filepath.Join(e.opts.BinDir, "CheckRes") {
					t.Errorf("path = %q", inv.Path)
				}
				return pipeline.Result{Status: pipeline.Succeeded}, nil
			}),
		runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, inv pipeline.Invocation) (pipeline.Result, error) {
				if got := strings.Join(inv.Args, " "); got != "2014-02-28 1" {
					t.Errorf("day 1 args = %q", got)
				}
				return pipeline.Result{Status: pipeline.Succeeded}, nil
			}),
	)

	summary, err := NewDriver(e.opts, runner, nil, nil, WithSampler(noSample)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Days[1].Stages[0].Invocation.Date != "2014-02-28" {
		t.Errorf("result invocation not recorded: %+v", summary.Days[1].Stages[0])
	}
}

func TestOptions_PlannedDays(t *testing.T) {
	t.Parallel()
	r, _ := daterange.New("2014-01-01", "2014-12-30", true)
	tests := []struct {
		maxDays int
		want    int
	}{
		{0, 364},
		{1, 1},
		{400, 364},
	}
	for _, tt := range tests {
		if got := (Options{Range: r, MaxDays: tt.maxDays}).PlannedDays(); got != tt.want {
			t.Errorf("PlannedDays(max=%d) = %d, want %d", tt.maxDays, got, tt.want)
		}
	}
}

func TestDriver_LogsAreScopedToRunAndDay(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "2014-01-01", "2014-01-02")
	runner := &fakeRunner{workDir: e.opts.WorkDir}
	var buf bytes.Buffer
	logger := logging.New(&buf, "dayrun", logging.Options{Format: "json", Level: "debug"})

	summary, err := NewDriver(e.opts, runner, nil, logger, WithSampler(noSample)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var dayEntries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		if entry["run_id"] != summary.RunID {
			t.Errorf("entry %q has run_id %v, want %s", entry["message"], entry["run_id"], summary.RunID)
		}
		if entry["message"] == "day finished" {
			dayEntries = append(dayEntries, entry)
		}
	}
	if len(dayEntries) != 2 {
		t.Fatalf("day finished entries = %d, want 2", len(dayEntries))
	}
	for i, date := range []string{"2014-01-01", "2014-01-02"} {
		if dayEntries[i]["date"] != date || dayEntries[i]["index"] != float64(i) {
			t.Errorf("day entry %d = %v, want date %s index %d", i, dayEntries[i], date, i)
		}
	}
}
