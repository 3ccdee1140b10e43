// Package logging sets up structured slog logging for amanuensis.
//
// Without --debug the CLI logs warnings to stderr only. With --debug, and
// always for the daemon, JSON logs are written to a size-rotated file under
// ~/.amanuensis/logs/.
package logging
