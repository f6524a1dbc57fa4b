// Package cli is responsible for the command-line surface: flag parsing,
// user input validation, and process-level concerns like exit codes. It
// translates CLI flags into the application's internal configuration.
package cli
