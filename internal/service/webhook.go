package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"

	"github.com/Eliezer-Jr/event-blossom/internal/dto"
	"github.com/Eliezer-Jr/event-blossom/internal/model"
	"github.com/Eliezer-Jr/event-blossom/internal/payments"
	"github.com/Eliezer-Jr/event-blossom/internal/repo"
	"github.com/Eliezer-Jr/event-blossom/internal/sms"
)

// Webhook receives the processor's asynchronous payment result. The handler
// is synchronous end to end: verify, look up, transition, acknowledge.
// Indeterminate and duplicate callbacks are acknowledged with 200 so the
// processor stops retrying, but no business state moves.
func (s *service) Webhook(ctx *ginext.Context) {
	body, err := ctx.GetRawData()
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldBadFormat, "Unreadable request body")
		return
	}

	if err := payments.VerifySignature(body, ctx.GetHeader("X-Moolre-Signature"), s.webhookSecret); err != nil {
		s.log.Warn().Msg("webhook rejected: bad or missing signature")
		dto.UnauthorizedError(ctx, dto.BadSignature, "Invalid webhook signature")
		return
	}

	payload, err := payments.ParseWebhook(body)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrMissingIdentifier):
			dto.BadResponseError(ctx, dto.FieldIncorrect, "Missing reference or transaction_id")
		default:
			dto.BadResponseError(ctx, dto.FieldBadFormat, "Malformed webhook payload")
		}
		return
	}

	reg, err := s.resolveRegistration(ctx.Request.Context(), payload)
	if err != nil {
		// fail closed: no guessing which registration was meant
		s.log.Warn().
			Str("externalref", payload.ExternalRef()).
			Str("transaction_id", payload.TxID()).
			Msg("webhook could not be matched to a registration")
		dto.NotFoundError(ctx, dto.RegistrationNotFound, "Registration not found")
		return
	}

	applied, outcome := s.reconcile(ctx.Request.Context(), reg, payload)

	log := s.log.Info()
	if !applied && outcome != payments.OutcomeIndeterminate {
		log = s.log.Debug()
	}
	log.
		Str("registration_id", reg.ID.String()).
		Str("outcome", outcome.String()).
		Bool("applied", applied).
		Msg("webhook reconciled")

	dto.SuccessResponse(ctx, dto.WebhookAck{
		Success:       true,
		Status:        string(reg.Status),
		PaymentStatus: string(reg.PaymentStatus),
	})
}

// resolveRegistration looks up by the echoed reference (our registration id)
// when the callback carries one; only a callback without it falls back to the
// stored processor-side correlation value. A present-but-unresolvable
// reference is an error, never a reason to guess by another key.
func (s *service) resolveRegistration(ctx context.Context, p *payments.WebhookPayload) (*model.Registration, error) {
	if ref := p.ExternalRef(); ref != "" {
		id, err := uuid.Parse(ref)
		if err != nil {
			return nil, repo.ErrRegistrationNotFound
		}
		return s.repo.GetRegistrationByID(ctx, id)
	}
	if txID := p.TxID(); txID != "" {
		return s.repo.GetRegistrationByPaymentRef(ctx, txID)
	}
	return nil, repo.ErrRegistrationNotFound
}

// reconcile applies the normalized outcome to the registration. Idempotency
// is carried by the state-machine guard in the conditional updates: a
// duplicate delivery finds the registration already out of pending and
// affects nothing. reg is mutated to its post-reconciliation state.
func (s *service) reconcile(ctx context.Context, reg *model.Registration, p *payments.WebhookPayload) (bool, payments.Outcome) {
	outcome := p.Outcome()

	switch outcome {
	case payments.OutcomeSuccess:
		if amt := p.Data.Amount; amt != 0 && amt != float64(reg.Amount) {
			// confirmed amount disagrees with what was charged at
			// registration time; do not confirm on the processor's word alone
			s.log.Error().
				Str("registration_id", reg.ID.String()).
				Int("expected_amount", reg.Amount).
				Float64("webhook_amount", amt).
				Msg("webhook amount mismatch, success not applied")
			return false, payments.OutcomeIndeterminate
		}

		applied, err := s.repo.ConfirmPaymentTx(ctx, reg.ID)
		if err != nil {
			s.log.Error().Err(err).Str("registration_id", reg.ID.String()).
				Msg("failed to apply payment success")
			return false, outcome
		}
		if applied {
			reg.Status = model.StatusConfirmed
			reg.PaymentStatus = model.PaymentPaid
			s.notifyPaymentConfirmed(ctx, reg)
		}
		return applied, outcome

	case payments.OutcomeFailure:
		applied, err := s.repo.FailPaymentTx(ctx, reg.ID)
		if err != nil {
			s.log.Error().Err(err).Str("registration_id", reg.ID.String()).
				Msg("failed to apply payment failure")
			return false, outcome
		}
		if applied {
			reg.Status = model.StatusCancelled
			reg.PaymentStatus = model.PaymentFailed
			s.invalidateAvailability(reg.EventID)
		}
		return applied, outcome

	default:
		// unrecognized status: never guess, leave the registration pending
		return false, payments.OutcomeIndeterminate
	}
}

func (s *service) notifyPaymentConfirmed(ctx context.Context, reg *model.Registration) {
	eventTitle := "your event"
	tierName := "Standard"
	if event, err := s.repo.GetEventByID(ctx, reg.EventID); err == nil {
		eventTitle = event.Title
	}
	if tier, err := s.ticketType(ctx, reg.EventID, reg.TicketTypeID); err == nil {
		tierName = tier.Name
	}
	s.dispatchSMS(reg.Phone, sms.PaymentConfirmedMessage(reg.Name, eventTitle, reg.TicketCode, tierName, reg.Amount))
}

func smsPending(reg *model.Registration, eventTitle string) string {
	return sms.RegistrationPendingMessage(reg.Name, eventTitle, reg.TicketCode)
}

func smsConfirmed(reg *model.Registration, eventTitle string) string {
	return sms.RegistrationConfirmedMessage(reg.Name, eventTitle, reg.TicketCode)
}

func smsReminder(reg *model.Registration, eventTitle string) string {
	return sms.PaymentReminderMessage(reg.Name, eventTitle, reg.TicketCode, reg.Amount)
}
