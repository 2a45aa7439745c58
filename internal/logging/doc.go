// Package logging provides the structured logging interface of the day
// runner. Packages take a Logger; the application builds one with New on top
// of zerolog, and tests pass Nop.
package logging
