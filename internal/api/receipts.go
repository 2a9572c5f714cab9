package api

import (
	"context"
	"log/slog"

	"github.com/afyalink/afyalink/internal/models"
	"github.com/afyalink/afyalink/internal/store"
)

// drainReceipts records every receipt from ch in ledger until ch closes or ctx ends.
func drainReceipts(ctx context.Context, source string, ch <-chan models.Receipt, ledger store.Store) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-ch:
			if !ok {
				return
			}
			if err := ledger.AddReceipt(r); err != nil {
				slog.Error("drainReceipts: failed to record receipt", "source", source, "id", r.ID, "error", err)
			}
		}
	}
}
