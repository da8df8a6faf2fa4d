// Package watch turns fsnotify events under a root directory into
// add/change/unlink events for paths matching a set of glob patterns.
//
// Patterns use gobwas/glob syntax with '/' as separator, so `**` crosses
// directories, `*` does not, and `{a,b}` alternates. A leading `!` turns a
// pattern into an exclusion.
package watch
