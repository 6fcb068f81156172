// Package planner combines an event source with the calendar engine.
//
// Service answers the two queries calmerge exists for: the merged agenda of
// one viewer over a window, and the free slot grid of a day for a meeting
// between two users. Refresher keeps the agendas of the configured users
// warm on a cron schedule for the serve command.
package planner
