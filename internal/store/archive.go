package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"cultura-chupistica/internal/game"
)

const archiveTimeout = 5 * time.Second

// ArchiveEnded inserts one finished game. Called fire-and-forget from the
// session actor; a failed insert costs a log line, never a session.
func (s *Store) ArchiveEnded(snap game.Snapshot, summary game.Summary) {
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		log.Warn().Err(err).Str("code", snap.Code).Msg("archive: marshal snapshot")
		return
	}
	sumJSON, err := json.Marshal(summary)
	if err != nil {
		log.Warn().Err(err).Str("code", snap.Code).Msg("archive: marshal summary")
		return
	}
	endedAt := time.Now()
	if snap.EndedAt != nil {
		endedAt = *snap.EndedAt
	}

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	_, err = s.Pool.Exec(ctx,
		`INSERT INTO ended_games (id, code, snapshot, summary, ended_at) VALUES ($1, $2, $3, $4, $5)`,
		NewID(), snap.Code, snapJSON, sumJSON, endedAt)
	if err != nil {
		log.Warn().Err(err).Str("code", snap.Code).Msg("archive: insert failed")
		return
	}
	log.Info().Str("code", snap.Code).Msg("archived ended game")
}
