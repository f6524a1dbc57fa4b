// Package app ties a loaded notebook to a kernel and drives one run of it:
// configuration, logging, the status stream drain, the run summary and the
// optional healthcheck endpoint. It has no entrypoint of its own; the CLI
// and the test harness both embed it.
package app
