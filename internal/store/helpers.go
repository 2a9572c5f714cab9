package store

import (
	"database/sql"
	"fmt"

	"github.com/afyalink/afyalink/internal/models"
)

// scanReceipts reads every row of a receipts query ordered as the caller chose.
func scanReceipts(rows *sql.Rows) ([]models.Receipt, error) {
	defer rows.Close()

	var receipts []models.Receipt
	for rows.Next() {
		var r models.Receipt
		if err := rows.Scan(&r.ID, &r.To, &r.Channel, &r.Kind, &r.Status, &r.Error, &r.Time); err != nil {
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipt rows: %w", err)
	}
	return receipts, nil
}
