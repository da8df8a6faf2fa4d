// Package livereload serves the site root over HTTP and pushes reload
// notifications to connected browsers over server-sent events.
package livereload
