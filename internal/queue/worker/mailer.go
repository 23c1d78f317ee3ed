package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/campuskiosk/kioskhub/internal/domain/delivery"
	"github.com/campuskiosk/kioskhub/internal/domain/job"
	"github.com/campuskiosk/kioskhub/internal/jobs"
	"github.com/campuskiosk/kioskhub/internal/notifications"
)

// DeliveryLedger is the exactly-once guard around each send.
type DeliveryLedger interface {
	TryStart(ctx context.Context, kind, subjectID, jobID, recipient string) error
	MarkSent(ctx context.Context, kind, subjectID string) error
	MarkFailed(ctx context.Context, kind, subjectID, errMsg string) error
}

// Mailer is the Handler for the email job types: it decodes the payload,
// claims the delivery row, renders the message and hands it to the notifier.
type Mailer struct {
	notifier   notifications.Notifier
	deliveries DeliveryLedger
	logger     *slog.Logger
	baseURL    string

	// facilities mailbox copied on supply requests; empty disables the copy
	supplyInbox string
}

func NewMailer(notifier notifications.Notifier, deliveries DeliveryLedger, logger *slog.Logger, baseURL, supplyInbox string) *Mailer {
	return &Mailer{
		notifier:    notifier,
		deliveries:  deliveries,
		logger:      logger,
		baseURL:     baseURL,
		supplyInbox: supplyInbox,
	}
}

func (m *Mailer) Handle(ctx context.Context, j job.Job) error {
	decoded, err := jobs.DecodePayload(j)
	if err != nil {
		return err
	}
	if err := jobs.ValidatePayload(jobs.JobType(j.Type), decoded); err != nil {
		return err
	}

	var msg notifications.Message
	var subjectID string

	switch p := decoded.(type) {
	case jobs.ReservationConfirmationPayload:
		subjectID = p.ReservationID
		msg, err = notifications.RenderReservationConfirmation(p, m.baseURL)
		if err != nil {
			return fmt.Errorf("%w: %v", jobs.ErrInvalidJobPayload, err)
		}
	case jobs.ReservationCancellationPayload:
		subjectID = p.ReservationID
		msg = notifications.RenderReservationCancellation(p)
	case jobs.ResetCodeEmailPayload:
		subjectID = p.CodeID
		msg = notifications.RenderResetCode(p)
	case jobs.SupplyReceiptPayload:
		subjectID = p.RequestID
		msg = notifications.RenderSupplyReceipt(p)
	default:
		return jobs.ErrInvalidJobType
	}

	if err := m.deliveries.TryStart(ctx, j.Type, subjectID, j.ID, msg.To); err != nil {
		if errors.Is(err, delivery.ErrAlreadySent) {
			m.logger.Info("delivery already sent, skipping",
				"job_id", j.ID, "kind", j.Type, "subject_id", subjectID)
			return nil
		}
		// in-progress rows belong to another worker; retry later
		return err
	}

	if err := m.notifier.Send(ctx, msg); err != nil {
		_ = m.deliveries.MarkFailed(ctx, j.Type, subjectID, err.Error())
		return err
	}

	if p, ok := decoded.(jobs.SupplyReceiptPayload); ok && m.supplyInbox != "" {
		m.notifyFacilities(ctx, j, p)
	}

	return m.deliveries.MarkSent(ctx, j.Type, subjectID)
}

// notifyFacilities copies the supply request to the facilities mailbox under
// its own ledger kind. Best effort: the requester already has their receipt,
// so a failure here only logs.
func (m *Mailer) notifyFacilities(ctx context.Context, j job.Job, p jobs.SupplyReceiptPayload) {
	const kind = "supply.facilities_copy"

	if err := m.deliveries.TryStart(ctx, kind, p.RequestID, j.ID, m.supplyInbox); err != nil {
		return
	}

	msg := notifications.RenderSupplyFacilitiesCopy(p, m.supplyInbox)
	if err := m.notifier.Send(ctx, msg); err != nil {
		_ = m.deliveries.MarkFailed(ctx, kind, p.RequestID, err.Error())
		m.logger.Warn("facilities copy failed", "request_id", p.RequestID, "err", err)
		return
	}
	_ = m.deliveries.MarkSent(ctx, kind, p.RequestID)
}
