// Package cli holds helpers shared by the conductor subcommands: typed
// errors with exit codes, output formatting and signal handling.
package cli
