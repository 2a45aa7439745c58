// Package pipeline describes the external stages a run invokes and how they
// are executed. A Stage is a named command with argument templates; a Runner
// executes one expanded Invocation and classifies its outcome. The
// orchestration layer only depends on the Runner interface, so tests can
// substitute a fake without spawning processes.
package pipeline
