// Package orchestration drives the day loop: it runs the setup stages once,
// then for every day of the range appends the iteration markers, runs the
// day's stages through a pipeline.Runner and resets the working directory.
// Presentation is decoupled through the Observer interface.
package orchestration
