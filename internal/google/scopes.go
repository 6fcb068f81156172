package google

import calendar "google.golang.org/api/calendar/v3"

// CalendarScopes are the OAuth scopes calmerge requests. Reading events
// and free/busy information needs nothing beyond read-only access.
var CalendarScopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	calendar.CalendarReadonlyScope,
}
