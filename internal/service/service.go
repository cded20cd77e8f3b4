package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"github.com/Eliezer-Jr/event-blossom/internal/cache"
	"github.com/Eliezer-Jr/event-blossom/internal/dto"
	"github.com/Eliezer-Jr/event-blossom/internal/model"
	"github.com/Eliezer-Jr/event-blossom/internal/payments"
	"github.com/Eliezer-Jr/event-blossom/internal/repo"
	"github.com/Eliezer-Jr/event-blossom/pkg/validator"
)

type Service interface {
	CreateEvent(ctx *ginext.Context)
	GetEvent(ctx *ginext.Context)
	GetAllEvents(ctx *ginext.Context)
	Register(ctx *ginext.Context)
	RetryPayment(ctx *ginext.Context)
	Webhook(ctx *ginext.Context)
	CheckIn(ctx *ginext.Context)
	LookupTicket(ctx *ginext.Context)
	SendReminders(ctx *ginext.Context)
}

// Gateway is the slice of the payment client the service needs.
type Gateway interface {
	InitiateCharge(ctx context.Context, req payments.ChargeRequest) (*payments.ChargeAccepted, error)
}

// Notifier sends best-effort SMS; errors are logged, never propagated.
type Notifier interface {
	Send(ctx context.Context, recipients []string, message string) error
}

// Publisher feeds the delayed expiry queue.
type Publisher interface {
	Publish(message []byte, delaySeconds int) error
}

type service struct {
	repo          repo.Repository
	log           *zerolog.Logger
	gateway       Gateway
	notifier      Notifier
	publisher     Publisher
	avail         *cache.AvailabilityCache
	webhookSecret string
}

func NewService(r repo.Repository, log *zerolog.Logger, gw Gateway, n Notifier, pub Publisher, avail *cache.AvailabilityCache, webhookSecret string) Service {
	return &service{
		repo:          r,
		log:           log,
		gateway:       gw,
		notifier:      n,
		publisher:     pub,
		avail:         avail,
		webhookSecret: webhookSecret,
	}
}

func (s *service) CreateEvent(ctx *ginext.Context) {
	var req dto.CreateEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		s.log.Error().Err(err).Msg("failed to parse create event request")
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	event := &model.Event{
		ID:                    uuid.New(),
		Title:                 req.Title,
		Description:           req.Description,
		Venue:                 req.Venue,
		StartTime:             req.StartTime,
		EndTime:               req.EndTime,
		Capacity:              req.Capacity,
		PaymentTimeoutMinutes: req.PaymentTimeoutMinutes,
	}
	tiers := make([]model.TicketType, 0, len(req.TicketTypes))
	for _, t := range req.TicketTypes {
		tiers = append(tiers, model.TicketType{
			ID:           uuid.New(),
			Name:         t.Name,
			Description:  t.Description,
			Price:        t.Price,
			Quantity:     t.Quantity,
			SalesOpenAt:  t.SalesOpenAt,
			SalesCloseAt: t.SalesCloseAt,
		})
	}

	if err := s.repo.CreateEventTx(ctx.Request.Context(), event, tiers); err != nil {
		s.log.Error().Err(err).Msg("failed to create event in DB")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Str("event_id", event.ID.String()).Msg("event created successfully")
	dto.SuccessCreatedResponse(ctx, s.eventResponse(ctx.Request.Context(), event, tiers))
}

func (s *service) GetEvent(ctx *ginext.Context) {
	eventID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid event ID")
		return
	}

	event, err := s.repo.GetEventByID(ctx.Request.Context(), eventID)
	if err != nil {
		dto.NotFoundError(ctx, dto.EventNotFound, "Event not found")
		return
	}
	tiers, err := s.repo.GetTicketTypes(ctx.Request.Context(), eventID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to get ticket types")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessResponse(ctx, s.eventResponse(ctx.Request.Context(), event, tiers))
}

func (s *service) GetAllEvents(ctx *ginext.Context) {
	events, err := s.repo.GetAllEvents(ctx.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to get events")
		dto.InternalServerError(ctx)
		return
	}

	resp := make([]dto.EventResponse, 0, len(events))
	for i := range events {
		resp = append(resp, s.eventResponse(ctx.Request.Context(), &events[i], nil))
	}
	dto.SuccessResponse(ctx, resp)
}

// availability serves the per-event summary from the cache when a fresh entry
// exists; on a miss it is recomputed from the event row and stored. Writes
// that touch the counters invalidate the key, so a hit is never staler than
// the TTL allows.
func (s *service) availability(ctx context.Context, e *model.Event) cache.Availability {
	if s.avail != nil {
		if cached, ok := s.avail.Get(ctx, e.ID); ok {
			return *cached
		}
	}

	availability := cache.Availability{
		EventID:    e.ID,
		Capacity:   e.Capacity,
		Registered: e.RegisteredCount,
		Status:     string(e.DerivedStatus(time.Now())),
	}
	if e.Capacity == model.Unlimited {
		availability.AvailableSeats = model.Unlimited
	} else if left := e.Capacity - e.RegisteredCount; left > 0 {
		availability.AvailableSeats = left
	}
	if s.avail != nil {
		s.avail.Set(ctx, availability)
	}
	return availability
}

func (s *service) eventResponse(ctx context.Context, e *model.Event, tiers []model.TicketType) dto.EventResponse {
	now := time.Now()
	availability := s.availability(ctx, e)

	resp := dto.EventResponse{
		ID:                    e.ID,
		Title:                 e.Title,
		Description:           e.Description,
		Venue:                 e.Venue,
		StartTime:             e.StartTime,
		EndTime:               e.EndTime,
		Capacity:              e.Capacity,
		RegisteredCount:       availability.Registered,
		AvailableSeats:        availability.AvailableSeats,
		Status:                availability.Status,
		PaymentTimeoutMinutes: e.PaymentTimeoutMinutes,
		CreatedAt:             e.CreatedAt,
		UpdatedAt:             e.UpdatedAt,
	}
	for i := range tiers {
		t := &tiers[i]
		resp.TicketTypes = append(resp.TicketTypes, dto.TicketTypeResponse{
			ID:          t.ID,
			Name:        t.Name,
			Description: t.Description,
			Price:       t.Price,
			Quantity:    t.Quantity,
			Sold:        t.Sold,
			Available:   t.Available(),
			OnSale:      t.OnSale(now),
		})
	}
	return resp
}

func (s *service) Register(ctx *ginext.Context) {
	eventID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid event ID")
		return
	}

	var req dto.CreateRegistrationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	reg, paymentMsg, err := s.registerAttendee(ctx.Request.Context(), eventID, req)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrEventNotFound):
			dto.NotFoundError(ctx, dto.EventNotFound, "Event not found")
		case errors.Is(err, repo.ErrTicketTypeNotFound):
			dto.NotFoundError(ctx, dto.TicketTypeNotFound, "Ticket type not found")
		case errors.Is(err, repo.ErrSoldOut):
			dto.ConflictError(ctx, dto.SoldOut, "This ticket type is sold out")
		case errors.Is(err, repo.ErrEventFull):
			dto.ConflictError(ctx, dto.EventFull, "Event is at capacity")
		case errors.Is(err, repo.ErrSalesClosed):
			dto.ConflictError(ctx, dto.SalesClosed, "Ticket sales are closed for this type")
		case errors.Is(err, model.ErrInvalidPhone):
			dto.BadResponseError(ctx, dto.FieldBadFormat, model.ErrInvalidPhone.Error())
		case errors.Is(err, payments.ErrGatewayRejected):
			dto.BadResponseError(ctx, dto.GatewayRejected, err.Error())
		case errors.Is(err, payments.ErrUpstreamContract):
			dto.UpstreamError(ctx, "Payment gateway returned an invalid response")
		default:
			s.log.Error().Err(err).Msg("failed to register attendee")
			dto.InternalServerError(ctx)
		}
		return
	}

	resp := registrationResponse(reg)
	resp.PaymentMessage = paymentMsg
	dto.SuccessCreatedResponse(ctx, resp)
}

// registerAttendee runs the reserve-then-create flow and, for priced tiers,
// the synchronous charge initiation. Inventory and registration are committed
// in one transaction; a gateway rejection after commit is compensated by
// cancelling the registration and releasing the unit.
func (s *service) registerAttendee(ctx context.Context, eventID uuid.UUID, req dto.CreateRegistrationRequest) (*model.Registration, string, error) {
	phone, err := model.NormalizePhone(req.Phone)
	if err != nil {
		return nil, "", err
	}

	reg := &model.Registration{
		ID:                uuid.New(),
		EventID:           eventID,
		TicketTypeID:      req.TicketTypeID,
		Name:              req.Name,
		Email:             req.Email,
		Phone:             phone,
		CustomFieldValues: req.CustomFieldValues,
	}

	event, tier, err := s.repo.CreateRegistrationTx(ctx, reg)
	if err != nil {
		return nil, "", err
	}
	s.invalidateAvailability(eventID)

	s.log.Info().
		Str("registration_id", reg.ID.String()).
		Str("event_id", eventID.String()).
		Str("ticket_code", reg.TicketCode).
		Int("amount", reg.Amount).
		Msg("registration created")

	if reg.PaymentStatus != model.PaymentPending {
		s.dispatchSMS(reg.Phone, smsConfirmed(reg, event.Title))
		return reg, "", nil
	}

	// schedule the expiry before talking to the gateway: if initiation fails
	// in any way the delayed message still lands and releases the unit, and
	// the state guard in FailPaymentTx makes it a no-op for anything that
	// already left pending
	s.scheduleExpiry(reg, event.PaymentTimeoutMinutes)

	msg, err := s.startPayment(ctx, reg, event, tier)
	if err != nil {
		return nil, "", err
	}
	s.dispatchSMS(reg.Phone, smsPending(reg, event.Title))
	return reg, msg, nil
}

// startPayment initiates the charge and stores the correlation reference.
// A synchronous rejection cancels the registration and releases its unit
// before returning. The expiry message guarding against an abandoned payment
// is already scheduled by the caller.
func (s *service) startPayment(ctx context.Context, reg *model.Registration, event *model.Event, tier *model.TicketType) (string, error) {
	accepted, err := s.gateway.InitiateCharge(ctx, payments.ChargeRequest{
		Payer:       reg.Phone,
		Amount:      reg.Amount,
		Currency:    "GHS",
		ExternalRef: reg.ID.String(),
		Description: fmt.Sprintf("%s - %s ticket", event.Title, tier.Name),
	})
	if err != nil {
		if errors.Is(err, payments.ErrGatewayRejected) {
			if _, ferr := s.repo.FailPaymentTx(ctx, reg.ID); ferr != nil {
				s.log.Error().Err(ferr).Str("registration_id", reg.ID.String()).
					Msg("failed to cancel registration after gateway rejection")
			} else {
				reg.Status = model.StatusCancelled
				reg.PaymentStatus = model.PaymentFailed
				s.invalidateAvailability(reg.EventID)
			}
		}
		return "", err
	}

	if accepted.TrackingRef != "" {
		if err := s.repo.SetPaymentRef(ctx, reg.ID, accepted.TrackingRef); err != nil {
			s.log.Error().Err(err).Str("registration_id", reg.ID.String()).
				Msg("failed to store payment correlation reference")
		} else {
			reg.PaymentRef = accepted.TrackingRef
		}
	}

	return accepted.Message, nil
}

func (s *service) scheduleExpiry(reg *model.Registration, timeoutMinutes int) {
	if s.publisher == nil || timeoutMinutes <= 0 {
		return
	}
	msg := dto.ExpiryMessage{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		ExpireAt:       time.Now().Add(time.Duration(timeoutMinutes) * time.Minute),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal expiry message")
		return
	}
	if err := s.publisher.Publish(payload, timeoutMinutes*60); err != nil {
		s.log.Error().Err(err).Str("registration_id", reg.ID.String()).
			Msg("failed to publish expiry message")
	}
}

func (s *service) RetryPayment(ctx *ginext.Context) {
	regID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid registration ID")
		return
	}

	reg, err := s.repo.GetRegistrationByID(ctx.Request.Context(), regID)
	if err != nil {
		dto.NotFoundError(ctx, dto.RegistrationNotFound, "Registration not found")
		return
	}
	state := model.State{Status: reg.Status, PaymentStatus: reg.PaymentStatus}
	if !state.AwaitingPayment() {
		dto.ConflictError(ctx, dto.RegistrationClosed, "Registration is not awaiting payment")
		return
	}

	event, err := s.repo.GetEventByID(ctx.Request.Context(), reg.EventID)
	if err != nil {
		dto.NotFoundError(ctx, dto.EventNotFound, "Event not found")
		return
	}
	tier, err := s.ticketType(ctx.Request.Context(), reg.EventID, reg.TicketTypeID)
	if err != nil {
		dto.NotFoundError(ctx, dto.TicketTypeNotFound, "Ticket type not found")
		return
	}

	s.scheduleExpiry(reg, event.PaymentTimeoutMinutes)

	msg, err := s.startPayment(ctx.Request.Context(), reg, event, tier)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrGatewayRejected):
			dto.BadResponseError(ctx, dto.GatewayRejected, err.Error())
		case errors.Is(err, payments.ErrUpstreamContract):
			dto.UpstreamError(ctx, "Payment gateway returned an invalid response")
		default:
			s.log.Error().Err(err).Msg("failed to retry payment")
			dto.InternalServerError(ctx)
		}
		return
	}

	dto.SuccessResponse(ctx, dto.InitiatePaymentResponse{RegistrationID: reg.ID, Message: msg})
}

func (s *service) ticketType(ctx context.Context, eventID, tierID uuid.UUID) (*model.TicketType, error) {
	tiers, err := s.repo.GetTicketTypes(ctx, eventID)
	if err != nil {
		return nil, err
	}
	for i := range tiers {
		if tiers[i].ID == tierID {
			return &tiers[i], nil
		}
	}
	return nil, repo.ErrTicketTypeNotFound
}

func (s *service) CheckIn(ctx *ginext.Context) {
	var req dto.CheckInRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	reg, err := s.checkInByCode(ctx.Request.Context(), req.TicketCode)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrRegistrationNotFound):
			dto.NotFoundError(ctx, dto.TicketNotFound, "No registration found with this ticket ID")
		case errors.Is(err, model.ErrAlreadyCheckedIn):
			dto.ConflictError(ctx, dto.AlreadyCheckedIn, "Attendee is already checked in")
		case errors.Is(err, model.ErrPaymentIncomplete):
			dto.ConflictError(ctx, dto.PaymentPending, "Payment is still pending for this registration")
		case errors.Is(err, model.ErrRegistrationClosed):
			dto.ConflictError(ctx, dto.RegistrationClosed, "Registration was cancelled")
		default:
			s.log.Error().Err(err).Msg("check-in failed")
			dto.InternalServerError(ctx)
		}
		return
	}

	s.log.Info().
		Str("registration_id", reg.ID.String()).
		Str("ticket_code", reg.TicketCode).
		Msg("attendee checked in")
	dto.SuccessResponse(ctx, registrationResponse(reg))
}

// checkInByCode guards the transition through the state machine first, then
// applies it with an update keyed on the observed status so a concurrent
// check-in of the same ticket loses cleanly.
func (s *service) checkInByCode(ctx context.Context, code string) (*model.Registration, error) {
	reg, err := s.repo.GetRegistrationByTicketCode(ctx, code)
	if err != nil {
		return nil, err
	}

	state := model.State{Status: reg.Status, PaymentStatus: reg.PaymentStatus}
	next, err := state.CheckIn()
	if err != nil {
		return nil, err
	}

	applied, err := s.repo.CheckInTx(ctx, reg.ID, reg.Status)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, model.ErrAlreadyCheckedIn
	}

	now := time.Now()
	reg.Status = next.Status
	reg.PaymentStatus = next.PaymentStatus
	reg.CheckedInAt = &now
	return reg, nil
}

func (s *service) LookupTicket(ctx *ginext.Context) {
	code := ctx.Param("code")
	reg, err := s.repo.GetRegistrationByTicketCode(ctx.Request.Context(), code)
	if err != nil {
		dto.NotFoundError(ctx, dto.TicketNotFound, "No registration found with this ticket ID")
		return
	}
	dto.SuccessResponse(ctx, registrationResponse(reg))
}

func (s *service) SendReminders(ctx *ginext.Context) {
	eventID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid event ID")
		return
	}

	event, err := s.repo.GetEventByID(ctx.Request.Context(), eventID)
	if err != nil {
		dto.NotFoundError(ctx, dto.EventNotFound, "Event not found")
		return
	}
	regs, err := s.repo.PendingRegistrations(ctx.Request.Context(), eventID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to get pending registrations")
		dto.InternalServerError(ctx)
		return
	}

	sent := 0
	for i := range regs {
		reg := &regs[i]
		if err := s.notifier.Send(ctx.Request.Context(), []string{reg.Phone}, smsReminder(reg, event.Title)); err != nil {
			s.log.Warn().Err(err).Str("registration_id", reg.ID.String()).Msg("payment reminder failed")
			continue
		}
		sent++
	}
	dto.SuccessResponse(ctx, dto.SendRemindersResponse{Sent: sent})
}

// dispatchSMS fires the notification without awaiting delivery; the business
// transition that triggered it is already committed.
func (s *service) dispatchSMS(phone string, message string) {
	if s.notifier == nil || phone == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.notifier.Send(ctx, []string{phone}, message); err != nil {
			s.log.Warn().Err(err).Msg("failed to send SMS notification")
		}
	}()
}

func (s *service) invalidateAvailability(eventID uuid.UUID) {
	if s.avail != nil {
		s.avail.Invalidate(context.Background(), eventID)
	}
}

func registrationResponse(reg *model.Registration) dto.RegistrationResponse {
	return dto.RegistrationResponse{
		ID:            reg.ID,
		EventID:       reg.EventID,
		TicketTypeID:  reg.TicketTypeID,
		Name:          reg.Name,
		Email:         reg.Email,
		Phone:         reg.Phone,
		TicketCode:    reg.TicketCode,
		Amount:        reg.Amount,
		Status:        string(reg.Status),
		PaymentStatus: string(reg.PaymentStatus),
		CheckedInAt:   reg.CheckedInAt,
		CustomFields:  reg.CustomFieldValues,
		CreatedAt:     reg.CreatedAt,
	}
}
