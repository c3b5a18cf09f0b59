package ledger

import (
	"fmt"

	"github.com/rongwang/envelope-wallet/internal/envelope"
	"github.com/rongwang/envelope-wallet/internal/models"
)

// RecordTransfer appends the audit entry for an envelope transfer. It has the
// envelope.Recorder signature so a store can write its history here inside
// its own critical section.
func (l *Ledger) RecordTransfer(t envelope.Transfer) (string, error) {
	rec := models.TransactionRecord{
		Status:     models.StatusCompleted,
		Contact:    t.Envelope.Name,
		EnvelopeID: t.Envelope.ID,
		Method:     models.MethodWallet,
	}

	switch t.Direction {
	case envelope.DirectionFund:
		out, err := t.Amount.Negate()
		if err != nil {
			return "", err
		}
		rec.Type = models.TransactionPayment
		rec.Amount = out
		rec.Description = fmt.Sprintf("Moved to envelope %s", t.Envelope.Name)
	case envelope.DirectionWithdraw:
		rec.Type = models.TransactionReceive
		rec.Amount = t.Amount
		rec.Description = fmt.Sprintf("Withdrawn from envelope %s", t.Envelope.Name)
	default:
		return "", fmt.Errorf("unknown transfer direction %q", t.Direction)
	}

	stored, err := l.Append(rec)
	if err != nil {
		return "", err
	}
	return stored.ID, nil
}
