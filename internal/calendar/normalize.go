package calendar

// NormalizeUserEvents converts user events into agenda items as seen by
// viewer. Output order matches input order.
func NormalizeUserEvents(events []UserEvent, viewer User) []Item {
	items := make([]Item, 0, len(events))
	for _, ev := range events {
		items = append(items, Item{
			ID:            ev.ID,
			Title:         ev.Title,
			IsOwner:       IsOwner(ev, viewer),
			Type:          EventTypeUserEvent,
			UserEventType: userEventType(ev.Type),
			Status:        AcceptedStatus(ev),
			Description:   ev.Description,
			StartAt:       ev.StartAt,
			EndAt:         ev.EndAt,
		})
	}
	return items
}

// NormalizeWebinars converts webinar registrations into agenda items.
// Webinars are never owned by the viewer and always count as accepted.
func NormalizeWebinars(registrations []WebinarRegistration) []Item {
	items := make([]Item, 0, len(registrations))
	for _, reg := range registrations {
		w := reg.Webinar
		items = append(items, Item{
			ID:          w.ID,
			Title:       w.Title,
			IsOwner:     false,
			Type:        EventTypeWebinar,
			Status:      boolPtr(true),
			Description: w.Description,
			StartAt:     w.Date,
			EndAt:       w.DateClose,
		})
	}
	return items
}

// NormalizeBroadcasts converts broadcast subscriptions into agenda items.
func NormalizeBroadcasts(subscriptions []BroadcastSubscription) []Item {
	items := make([]Item, 0, len(subscriptions))
	for _, sub := range subscriptions {
		b := sub.Broadcast
		items = append(items, Item{
			ID:          b.ID,
			Title:       b.Title,
			IsOwner:     false,
			Type:        EventTypeBroadcast,
			Status:      boolPtr(true),
			Description: b.ShortDescription,
			StartAt:     b.Date,
			EndAt:       b.DateClose,
		})
	}
	return items
}

// IsOwner reports whether user owns the event. Only Ownable variants can
// be owned; webinars and broadcasts always report false.
func IsOwner(e Event, user User) bool {
	o, ok := e.(Ownable)
	if !ok {
		return false
	}
	owner := o.OwnerRef()
	return owner != nil && owner.ID == user.ID
}

// AcceptedStatus resolves whether the invitees of ev attend.
//
// It returns nil when there are no participants. Participants that are the
// owner are skipped. The first approved invitee makes the result true;
// otherwise any denial makes it false; otherwise it stays nil (pending).
// Participants are visited in order.
func AcceptedStatus(ev UserEvent) *bool {
	if len(ev.Participants) == 0 {
		return nil
	}

	var status *bool
	for _, p := range ev.Participants {
		if IsOwner(ev, p.User) {
			continue
		}
		switch p.Status {
		case ParticipantApproved:
			return boolPtr(true)
		case ParticipantDenied:
			status = boolPtr(false)
		}
	}
	return status
}

func userEventType(t UserEventType) *UserEventType {
	if t == "" {
		return nil
	}
	return &t
}

func boolPtr(b bool) *bool {
	return &b
}
