// Package logging provides file-based logging with rotation for corpusindex.
// Every CLI command sets it up with DefaultConfig: JSON logs are written to
// ~/.corpusindex/logs/server.log and also to stderr, at the configured log
// level (which the --log-level flag overrides).
package logging
