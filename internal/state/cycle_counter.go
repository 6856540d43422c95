/*

Persistent cycle counter. Cycle numbers must survive process restarts so
that reports remain globally ordered, hence a single-row table rather than
an in-memory counter.

*/

package state

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// GetCurrentCycleNumber reads the counter without advancing it.
func GetCurrentCycleNumber() (int, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	var current int
	err := DB.QueryRow(`SELECT current_cycle FROM cycle_counter WHERE id = 1;`).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		log.Warn().Msg("Cycle counter row missing, treating as 0")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cycle counter: %w", err)
	}
	return current, nil
}

// IncrementCycleNumber advances the counter atomically and returns the new
// cycle number.
func IncrementCycleNumber() (int, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	const q = `
		UPDATE cycle_counter
		SET current_cycle = current_cycle + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
		RETURNING current_cycle;`

	var next int
	if err := DB.QueryRow(q).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to increment cycle counter: %w", err)
	}

	log.Debug().Int("cycle", next).Msg("Incremented cycle counter")
	return next, nil
}
