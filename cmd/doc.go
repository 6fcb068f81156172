// Package cmd implements the command-line interface for calmerge.
//
// This package provides the following commands:
//   - agenda: Print the merged agenda of a user
//   - slots: Print the free booking slots two users share on a day
//   - serve: Refresh agendas on a schedule and serve metrics, health and agendas over HTTP
//   - auth: Authorize a Google account for the Google Calendar source
//   - version: Display version information
//
// Every command reads the YAML config file given by --config.
package cmd
