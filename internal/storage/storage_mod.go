package storage

import (
	st "steward/internal/storagetypes"
)

// AddInfraction records a moderation infraction against a user.
func (s *Storage) AddInfraction(guildID string, inf st.Infraction) error {
	return s.updateGuild(guildID, func(rec *Record) error {
		if rec.Infractions == nil {
			rec.Infractions = make(map[string][]st.Infraction)
		}
		rec.Infractions[inf.UserID] = append(rec.Infractions[inf.UserID], inf)
		return nil
	})
}

// Infractions returns all infractions recorded against a user.
func (s *Storage) Infractions(guildID, userID string) ([]st.Infraction, error) {
	rec, err := s.guildRecord(guildID)
	if err != nil {
		return nil, err
	}
	return rec.Infractions[userID], nil
}
