// ./internal/state/report_store.go
package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/neurallock/nla/internal/types"
)

// SaveCycleReport persists one completed cycle for the status API and audits.
func SaveCycleReport(report types.CycleReport) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO cycle_reports (
			cycle_number, report_timestamp, state_hash, health_status,
			action, confidence, reasoning,
			executed, tx_hash, block_number, gas_used, error_message,
			cycle_duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING report_id;
	`

	var reportID int64
	err := DB.QueryRow(
		query,
		report.CycleNumber, report.Timestamp, report.StateHash, report.HealthStatus.String(),
		report.Action.String(), report.Confidence, report.Reasoning,
		report.Executed, nullableString(report.Result.TxHash),
		report.Result.BlockNumber, report.Result.GasUsed, nullableString(report.Result.Error),
		report.Duration.Milliseconds(),
	).Scan(&reportID)

	if err != nil {
		return 0, fmt.Errorf("failed to save cycle report: %w", err)
	}

	log.Info().
		Int64("report_id", reportID).
		Int("cycle_number", report.CycleNumber).
		Str("action", report.Action.String()).
		Msg("Cycle report saved to database")

	return reportID, nil
}

// GetRecentReports returns the newest reports first, up to limit.
func GetRecentReports(limit int) ([]types.CycleReport, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT cycle_number, report_timestamp, state_hash, health_status,
		       action, confidence, reasoning,
		       executed, tx_hash, block_number, gas_used, error_message,
		       cycle_duration_ms
		FROM cycle_reports
		ORDER BY report_timestamp DESC
		LIMIT $1;
	`

	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle reports: %w", err)
	}
	defer rows.Close()

	var reports []types.CycleReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cycle reports: %w", err)
	}

	return reports, nil
}

// GetLatestReport returns the most recent cycle report, if any.
func GetLatestReport() (types.CycleReport, error) {
	reports, err := GetRecentReports(1)
	if err != nil {
		return types.CycleReport{}, err
	}
	if len(reports) == 0 {
		return types.CycleReport{}, sql.ErrNoRows
	}
	return reports[0], nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (types.CycleReport, error) {
	var (
		report       types.CycleReport
		healthName   string
		actionName   string
		txHash       sql.NullString
		errorMessage sql.NullString
		durationMS   int64
	)

	err := row.Scan(
		&report.CycleNumber, &report.Timestamp, &report.StateHash, &healthName,
		&actionName, &report.Confidence, &report.Reasoning,
		&report.Executed, &txHash, &report.Result.BlockNumber, &report.Result.GasUsed, &errorMessage,
		&durationMS,
	)
	if err != nil {
		return types.CycleReport{}, fmt.Errorf("failed to scan cycle report: %w", err)
	}

	report.HealthStatus, _ = types.ParseHealthStatus(healthName)
	report.Action = parseActionName(actionName)
	report.Result.TxHash = txHash.String
	report.Result.Error = errorMessage.String
	report.Result.Success = report.Executed && errorMessage.String == ""
	report.Duration = time.Duration(durationMS) * time.Millisecond

	return report, nil
}

func parseActionName(name string) types.ActionType {
	for _, action := range []types.ActionType{
		types.ActionLock, types.ActionUnlock, types.ActionExtendLock,
		types.ActionModifyAmount, types.ActionEmergencyUnlock, types.ActionHold,
	} {
		if action.String() == name {
			return action
		}
	}
	return types.ActionHold
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
