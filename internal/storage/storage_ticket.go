package storage

import (
	"errors"
	"fmt"

	st "steward/internal/storagetypes"
)

var (
	// ErrTicketExists is returned when the opener already has a
	// non-closed ticket in the guild.
	ErrTicketExists = errors.New("storage: open ticket already exists")

	// ErrTicketClosed is returned when mutating a terminal ticket.
	ErrTicketClosed = errors.New("storage: ticket is closed")
)

// TicketSetup returns the guild's ticket configuration.
func (s *Storage) TicketSetup(guildID string) (*st.TicketSetup, error) {
	rec, err := s.guildRecord(guildID)
	if err != nil {
		return nil, err
	}
	if rec.TicketSetup == nil {
		return nil, fmt.Errorf("ticket setup: %w", ErrNotFound)
	}
	return rec.TicketSetup, nil
}

// SetTicketSetup stores the guild's ticket configuration.
func (s *Storage) SetTicketSetup(guildID string, setup st.TicketSetup) error {
	return s.updateGuild(guildID, func(rec *Record) error {
		rec.TicketSetup = &setup
		return nil
	})
}

// CreateTicket inserts a new ticket, enforcing the one-open-ticket
// invariant per (guild, opener) atomically.
func (s *Storage) CreateTicket(guildID string, t *st.Ticket) error {
	return s.updateGuild(guildID, func(rec *Record) error {
		for _, existing := range rec.Tickets {
			if existing.OpenerID == t.OpenerID && existing.Status != st.TicketClosed {
				return fmt.Errorf("opener %s has ticket %s: %w", t.OpenerID, existing.ChannelID, ErrTicketExists)
			}
		}
		if rec.Tickets == nil {
			rec.Tickets = make(map[string]*st.Ticket)
		}
		rec.Tickets[t.ChannelID] = t
		return nil
	})
}

// Ticket returns the ticket bound to channelID.
func (s *Storage) Ticket(guildID, channelID string) (*st.Ticket, error) {
	rec, err := s.guildRecord(guildID)
	if err != nil {
		return nil, err
	}
	t, ok := rec.Tickets[channelID]
	if !ok {
		return nil, fmt.Errorf("ticket %s: %w", channelID, ErrNotFound)
	}
	return t, nil
}

// OpenTicketByOpener returns the opener's current non-closed ticket,
// if any.
func (s *Storage) OpenTicketByOpener(guildID, openerID string) (*st.Ticket, error) {
	rec, err := s.guildRecord(guildID)
	if err != nil {
		return nil, err
	}
	for _, t := range rec.Tickets {
		if t.OpenerID == openerID && t.Status != st.TicketClosed {
			return t, nil
		}
	}
	return nil, fmt.Errorf("opener %s: %w", openerID, ErrNotFound)
}

// OpenTickets returns every non-closed ticket in the guild.
func (s *Storage) OpenTickets(guildID string) ([]*st.Ticket, error) {
	rec, err := s.guildRecord(guildID)
	if err != nil {
		return nil, err
	}
	var out []*st.Ticket
	for _, t := range rec.Tickets {
		if t.Status != st.TicketClosed {
			out = append(out, t)
		}
	}
	return out, nil
}

// UpdateTicket mutates a ticket atomically. Closed tickets are
// terminal: fn never runs against them.
func (s *Storage) UpdateTicket(guildID, channelID string, fn func(t *st.Ticket) error) error {
	return s.updateGuild(guildID, func(rec *Record) error {
		t, ok := rec.Tickets[channelID]
		if !ok {
			return fmt.Errorf("ticket %s: %w", channelID, ErrNotFound)
		}
		if t.Status == st.TicketClosed {
			return fmt.Errorf("ticket %s: %w", channelID, ErrTicketClosed)
		}
		return fn(t)
	})
}
