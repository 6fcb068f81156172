package source

import (
	"fmt"
	"strings"

	"github.com/teemow/calmerge/internal/calendar"
)

// Directory resolves user IDs and e-mail addresses to known users.
// It is not safe for concurrent mutation; build it once, then share it.
type Directory struct {
	users   []calendar.User
	byID    map[string]int
	byEmail map[string]int
}

// NewDirectory returns a directory holding the given users. Later entries
// with an already-known ID are ignored.
func NewDirectory(users ...calendar.User) *Directory {
	d := &Directory{
		byID:    make(map[string]int),
		byEmail: make(map[string]int),
	}
	for _, u := range users {
		d.Add(u)
	}
	return d
}

// Add registers a user. It reports false when the ID is empty or taken.
func (d *Directory) Add(u calendar.User) bool {
	if u.ID == "" {
		return false
	}
	if _, ok := d.byID[u.ID]; ok {
		return false
	}
	d.users = append(d.users, u)
	idx := len(d.users) - 1
	d.byID[u.ID] = idx
	if u.Email != "" {
		key := strings.ToLower(u.Email)
		if _, ok := d.byEmail[key]; !ok {
			d.byEmail[key] = idx
		}
	}
	return true
}

// Lookup returns the user with the given ID.
func (d *Directory) Lookup(id string) (calendar.User, error) {
	if idx, ok := d.byID[id]; ok {
		return d.users[idx], nil
	}
	return calendar.User{}, fmt.Errorf("%w: %q", ErrUnknownUser, id)
}

// Resolve maps an e-mail address, as found in feed attendee lists, to a
// known user. Unknown addresses become a user whose ID is the address.
func (d *Directory) Resolve(email, name string) calendar.User {
	email = strings.TrimSpace(email)
	if len(email) > 7 && strings.EqualFold(email[:7], "mailto:") {
		email = email[7:]
	}
	if idx, ok := d.byEmail[strings.ToLower(email)]; ok && email != "" {
		return d.users[idx]
	}
	if email == "" {
		return calendar.User{ID: name, Name: name}
	}
	return calendar.User{ID: strings.ToLower(email), Email: email, Name: name}
}

// Users returns the registered users in insertion order.
func (d *Directory) Users() []calendar.User {
	out := make([]calendar.User, len(d.users))
	copy(out, d.users)
	return out
}
