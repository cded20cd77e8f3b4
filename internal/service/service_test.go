package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Eliezer-Jr/event-blossom/internal/cache"
	"github.com/Eliezer-Jr/event-blossom/internal/dto"
	"github.com/Eliezer-Jr/event-blossom/internal/model"
	"github.com/Eliezer-Jr/event-blossom/internal/payments"
	"github.com/Eliezer-Jr/event-blossom/internal/repo"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) CreateEventTx(ctx context.Context, e *model.Event, tiers []model.TicketType) error {
	return m.Called(ctx, e, tiers).Error(0)
}

func (m *mockRepository) GetEventByID(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Event), args.Error(1)
}

func (m *mockRepository) GetAllEvents(ctx context.Context) ([]model.Event, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Event), args.Error(1)
}

func (m *mockRepository) GetTicketTypes(ctx context.Context, eventID uuid.UUID) ([]model.TicketType, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.TicketType), args.Error(1)
}

func (m *mockRepository) CreateRegistrationTx(ctx context.Context, reg *model.Registration) (*model.Event, *model.TicketType, error) {
	args := m.Called(ctx, reg)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*model.Event), args.Get(1).(*model.TicketType), args.Error(2)
}

func (m *mockRepository) SetPaymentRef(ctx context.Context, id uuid.UUID, ref string) error {
	return m.Called(ctx, id, ref).Error(0)
}

func (m *mockRepository) GetRegistrationByID(ctx context.Context, id uuid.UUID) (*model.Registration, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Registration), args.Error(1)
}

func (m *mockRepository) GetRegistrationByPaymentRef(ctx context.Context, ref string) (*model.Registration, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Registration), args.Error(1)
}

func (m *mockRepository) GetRegistrationByTicketCode(ctx context.Context, code string) (*model.Registration, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Registration), args.Error(1)
}

func (m *mockRepository) PendingRegistrations(ctx context.Context, eventID uuid.UUID) ([]model.Registration, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Registration), args.Error(1)
}

func (m *mockRepository) ConfirmPaymentTx(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepository) FailPaymentTx(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepository) CheckInTx(ctx context.Context, id uuid.UUID, prior model.Status) (bool, error) {
	args := m.Called(ctx, id, prior)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepository) MigrateUp(dir string) error   { return m.Called(dir).Error(0) }
func (m *mockRepository) MigrateDown(dir string) error { return m.Called(dir).Error(0) }

type fakeGateway struct {
	accepted *payments.ChargeAccepted
	err      error
	calls    int
	lastReq  payments.ChargeRequest
}

func (g *fakeGateway) InitiateCharge(_ context.Context, req payments.ChargeRequest) (*payments.ChargeAccepted, error) {
	g.calls++
	g.lastReq = req
	if g.err != nil {
		return nil, g.err
	}
	return g.accepted, nil
}

type chanNotifier struct {
	sent chan string
}

func newChanNotifier() *chanNotifier {
	return &chanNotifier{sent: make(chan string, 10)}
}

func (n *chanNotifier) Send(_ context.Context, _ []string, message string) error {
	n.sent <- message
	return nil
}

func (n *chanNotifier) waitOne(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-n.sent:
		return msg
	case <-time.After(time.Second):
		t.Fatal("expected an SMS to be dispatched")
		return ""
	}
}

func (n *chanNotifier) expectNone(t *testing.T) {
	t.Helper()
	select {
	case msg := <-n.sent:
		t.Fatalf("unexpected SMS dispatched: %s", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

type fakePublisher struct {
	payloads [][]byte
	delays   []int
}

func (p *fakePublisher) Publish(message []byte, delaySeconds int) error {
	p.payloads = append(p.payloads, message)
	p.delays = append(p.delays, delaySeconds)
	return nil
}

func newTestService(r repo.Repository, gw Gateway, n Notifier, pub Publisher) *service {
	log := zerolog.Nop()
	return &service{
		repo:      r,
		log:       &log,
		gateway:   gw,
		notifier:  n,
		publisher: pub,
	}
}

func pendingRegistration(amount int) *model.Registration {
	return &model.Registration{
		ID:            uuid.New(),
		EventID:       uuid.New(),
		TicketTypeID:  uuid.New(),
		Name:          "Ama Mensah",
		Phone:         "233241234567",
		TicketCode:    "TS-REG-ABC123",
		Amount:        amount,
		Status:        model.StatusPending,
		PaymentStatus: model.PaymentPending,
	}
}

func registrationRequest() dto.CreateRegistrationRequest {
	return dto.CreateRegistrationRequest{
		TicketTypeID: uuid.New(),
		Name:         "Ama Mensah",
		Email:        "ama@example.com",
		Phone:        "0241234567",
	}
}

func TestRegisterAttendee_FreeTicket(t *testing.T) {
	repoMock := &mockRepository{}
	gw := &fakeGateway{}
	notifier := newChanNotifier()
	svc := newTestService(repoMock, gw, notifier, &fakePublisher{})

	eventID := uuid.New()
	event := &model.Event{ID: eventID, Title: "Community Meetup", PaymentTimeoutMinutes: 15}
	tier := &model.TicketType{Name: "General", Price: 0}

	repoMock.On("CreateRegistrationTx", mock.Anything, mock.AnythingOfType("*model.Registration")).
		Run(func(args mock.Arguments) {
			reg := args.Get(1).(*model.Registration)
			state := model.NewRegistrationState(tier.Price)
			reg.Amount = tier.Price
			reg.Status = state.Status
			reg.PaymentStatus = state.PaymentStatus
			reg.TicketCode = "CM-GEN-XYZ789"
		}).
		Return(event, tier, nil)

	reg, paymentMsg, err := svc.registerAttendee(context.Background(), eventID, registrationRequest())
	require.NoError(t, err)

	assert.Equal(t, model.StatusConfirmed, reg.Status)
	assert.Equal(t, model.PaymentFree, reg.PaymentStatus)
	assert.Equal(t, "233241234567", reg.Phone, "phone normalized before storage")
	assert.Empty(t, paymentMsg)
	assert.Zero(t, gw.calls, "free ticket must not enter the payment flow")
	assert.Contains(t, notifier.waitOne(t), "confirmed")
}

func TestRegisterAttendee_PricedTicket(t *testing.T) {
	repoMock := &mockRepository{}
	gw := &fakeGateway{accepted: &payments.ChargeAccepted{TrackingRef: "MOO-42", Message: "Payment prompt sent to your phone"}}
	notifier := newChanNotifier()
	pub := &fakePublisher{}
	svc := newTestService(repoMock, gw, notifier, pub)

	eventID := uuid.New()
	event := &model.Event{ID: eventID, Title: "Tech Summit", PaymentTimeoutMinutes: 15}
	tier := &model.TicketType{Name: "VIP", Price: 500}

	repoMock.On("CreateRegistrationTx", mock.Anything, mock.AnythingOfType("*model.Registration")).
		Run(func(args mock.Arguments) {
			reg := args.Get(1).(*model.Registration)
			state := model.NewRegistrationState(tier.Price)
			reg.Amount = tier.Price
			reg.Status = state.Status
			reg.PaymentStatus = state.PaymentStatus
			reg.TicketCode = "TS-VIP-ABC123"
		}).
		Return(event, tier, nil)
	repoMock.On("SetPaymentRef", mock.Anything, mock.Anything, "MOO-42").Return(nil)

	reg, paymentMsg, err := svc.registerAttendee(context.Background(), eventID, registrationRequest())
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, reg.Status)
	assert.Equal(t, model.PaymentPending, reg.PaymentStatus)
	assert.Equal(t, 500, reg.Amount)
	assert.Equal(t, "Payment prompt sent to your phone", paymentMsg)
	assert.Equal(t, "MOO-42", reg.PaymentRef)
	assert.Equal(t, reg.ID.String(), gw.lastReq.ExternalRef, "registration id is the idempotency reference")
	assert.Equal(t, 500, gw.lastReq.Amount)

	require.Len(t, pub.delays, 1, "expiry message scheduled")
	assert.Equal(t, 15*60, pub.delays[0])

	repoMock.AssertExpectations(t)
}

func TestRegisterAttendee_SoldOut(t *testing.T) {
	repoMock := &mockRepository{}
	svc := newTestService(repoMock, &fakeGateway{}, newChanNotifier(), &fakePublisher{})

	repoMock.On("CreateRegistrationTx", mock.Anything, mock.Anything).Return(nil, nil, repo.ErrSoldOut)

	_, _, err := svc.registerAttendee(context.Background(), uuid.New(), registrationRequest())
	assert.ErrorIs(t, err, repo.ErrSoldOut)
}

func TestRegisterAttendee_GatewayRejectionCancelsAndReleases(t *testing.T) {
	repoMock := &mockRepository{}
	gw := &fakeGateway{err: payments.ErrGatewayRejected}
	svc := newTestService(repoMock, gw, newChanNotifier(), &fakePublisher{})

	eventID := uuid.New()
	event := &model.Event{ID: eventID, Title: "Tech Summit", PaymentTimeoutMinutes: 15}
	tier := &model.TicketType{Name: "VIP", Price: 500}

	repoMock.On("CreateRegistrationTx", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			reg := args.Get(1).(*model.Registration)
			reg.Amount = tier.Price
			reg.Status = model.StatusPending
			reg.PaymentStatus = model.PaymentPending
		}).
		Return(event, tier, nil)
	repoMock.On("FailPaymentTx", mock.Anything, mock.Anything).Return(true, nil)

	_, _, err := svc.registerAttendee(context.Background(), eventID, registrationRequest())
	assert.ErrorIs(t, err, payments.ErrGatewayRejected)

	repoMock.AssertCalled(t, "FailPaymentTx", mock.Anything, mock.Anything)
}

func TestRegisterAttendee_InvalidPhone(t *testing.T) {
	svc := newTestService(&mockRepository{}, &fakeGateway{}, newChanNotifier(), &fakePublisher{})

	req := registrationRequest()
	req.Phone = "12345"

	_, _, err := svc.registerAttendee(context.Background(), uuid.New(), req)
	assert.ErrorIs(t, err, model.ErrInvalidPhone)
}

func successPayload(externalRef string, amount float64) *payments.WebhookPayload {
	var p payments.WebhookPayload
	p.Status = "success"
	p.Data.ExternalRef = externalRef
	p.Data.Amount = amount
	return &p
}

func TestReconcile_SuccessConfirmsAndNotifiesOnce(t *testing.T) {
	repoMock := &mockRepository{}
	notifier := newChanNotifier()
	svc := newTestService(repoMock, &fakeGateway{}, notifier, &fakePublisher{})

	reg := pendingRegistration(500)
	event := &model.Event{ID: reg.EventID, Title: "Tech Summit"}
	tiers := []model.TicketType{{ID: reg.TicketTypeID, Name: "VIP", Price: 500}}

	repoMock.On("ConfirmPaymentTx", mock.Anything, reg.ID).Return(true, nil).Once()
	repoMock.On("GetEventByID", mock.Anything, reg.EventID).Return(event, nil)
	repoMock.On("GetTicketTypes", mock.Anything, reg.EventID).Return(tiers, nil)

	applied, outcome := svc.reconcile(context.Background(), reg, successPayload(reg.ID.String(), 500))

	assert.True(t, applied)
	assert.Equal(t, payments.OutcomeSuccess, outcome)
	assert.Equal(t, model.StatusConfirmed, reg.Status)
	assert.Equal(t, model.PaymentPaid, reg.PaymentStatus)
	assert.Contains(t, notifier.waitOne(t), "Payment confirmed")

	// duplicate delivery: the registration has left pending, the conditional
	// update affects nothing and no second notification fires
	repoMock.On("ConfirmPaymentTx", mock.Anything, reg.ID).Return(false, nil).Once()
	dup := pendingRegistration(500)
	dup.ID = reg.ID
	applied, outcome = svc.reconcile(context.Background(), dup, successPayload(reg.ID.String(), 500))

	assert.False(t, applied)
	assert.Equal(t, payments.OutcomeSuccess, outcome)
	notifier.expectNone(t)
}

func TestReconcile_FailureCancels(t *testing.T) {
	repoMock := &mockRepository{}
	notifier := newChanNotifier()
	svc := newTestService(repoMock, &fakeGateway{}, notifier, &fakePublisher{})

	reg := pendingRegistration(500)
	repoMock.On("FailPaymentTx", mock.Anything, reg.ID).Return(true, nil)

	var p payments.WebhookPayload
	p.Status = "declined"
	p.Data.ExternalRef = reg.ID.String()

	applied, outcome := svc.reconcile(context.Background(), reg, &p)

	assert.True(t, applied)
	assert.Equal(t, payments.OutcomeFailure, outcome)
	assert.Equal(t, model.StatusCancelled, reg.Status)
	assert.Equal(t, model.PaymentFailed, reg.PaymentStatus)
	notifier.expectNone(t)
}

func TestReconcile_UnrecognizedStatusLeavesPending(t *testing.T) {
	repoMock := &mockRepository{}
	svc := newTestService(repoMock, &fakeGateway{}, newChanNotifier(), &fakePublisher{})

	reg := pendingRegistration(500)

	var p payments.WebhookPayload
	p.Status = "processing"
	p.Data.ExternalRef = reg.ID.String()

	applied, outcome := svc.reconcile(context.Background(), reg, &p)

	assert.False(t, applied)
	assert.Equal(t, payments.OutcomeIndeterminate, outcome)
	assert.Equal(t, model.StatusPending, reg.Status)
	assert.Equal(t, model.PaymentPending, reg.PaymentStatus)
	repoMock.AssertNotCalled(t, "ConfirmPaymentTx", mock.Anything, mock.Anything)
	repoMock.AssertNotCalled(t, "FailPaymentTx", mock.Anything, mock.Anything)
}

func TestReconcile_AmountMismatchBlocksConfirmation(t *testing.T) {
	// 500.9 guards against a fractional amount slipping past the check
	for _, amount := range []float64{999, 500.9, 499.99} {
		repoMock := &mockRepository{}
		svc := newTestService(repoMock, &fakeGateway{}, newChanNotifier(), &fakePublisher{})

		reg := pendingRegistration(500)

		applied, outcome := svc.reconcile(context.Background(), reg, successPayload(reg.ID.String(), amount))

		assert.False(t, applied, "amount %v", amount)
		assert.Equal(t, payments.OutcomeIndeterminate, outcome)
		assert.Equal(t, model.StatusPending, reg.Status)
		repoMock.AssertNotCalled(t, "ConfirmPaymentTx", mock.Anything, mock.Anything)
	}
}

func TestResolveRegistration_ByExternalRef(t *testing.T) {
	repoMock := &mockRepository{}
	svc := newTestService(repoMock, &fakeGateway{}, newChanNotifier(), &fakePublisher{})

	reg := pendingRegistration(500)
	repoMock.On("GetRegistrationByID", mock.Anything, reg.ID).Return(reg, nil)

	got, err := svc.resolveRegistration(context.Background(), successPayload(reg.ID.String(), 0))
	require.NoError(t, err)
	assert.Equal(t, reg.ID, got.ID)
	repoMock.AssertNotCalled(t, "GetRegistrationByPaymentRef", mock.Anything, mock.Anything)
}

func TestResolveRegistration_FallsBackToTransactionID(t *testing.T) {
	repoMock := &mockRepository{}
	svc := newTestService(repoMock, &fakeGateway{}, newChanNotifier(), &fakePublisher{})

	reg := pendingRegistration(500)
	reg.PaymentRef = "TX-77"
	repoMock.On("GetRegistrationByPaymentRef", mock.Anything, "TX-77").Return(reg, nil)

	var p payments.WebhookPayload
	p.Data.TransactionID = "TX-77"

	got, err := svc.resolveRegistration(context.Background(), &p)
	require.NoError(t, err)
	assert.Equal(t, reg.ID, got.ID)
}

func TestResolveRegistration_FailsClosed(t *testing.T) {
	repoMock := &mockRepository{}
	svc := newTestService(repoMock, &fakeGateway{}, newChanNotifier(), &fakePublisher{})

	// a present but malformed reference decides the lookup on its own; the
	// transaction id is never consulted as a second guess
	var p payments.WebhookPayload
	p.Data.ExternalRef = "not-a-uuid"
	p.Data.TransactionID = "TX-unknown"

	_, err := svc.resolveRegistration(context.Background(), &p)
	assert.ErrorIs(t, err, repo.ErrRegistrationNotFound)
	repoMock.AssertNotCalled(t, "GetRegistrationByPaymentRef", mock.Anything, mock.Anything)
}

func TestResolveRegistration_UnknownReferenceDoesNotFallBack(t *testing.T) {
	repoMock := &mockRepository{}
	svc := newTestService(repoMock, &fakeGateway{}, newChanNotifier(), &fakePublisher{})

	unknownID := uuid.New()
	repoMock.On("GetRegistrationByID", mock.Anything, unknownID).
		Return(nil, repo.ErrRegistrationNotFound)

	var p payments.WebhookPayload
	p.Data.ExternalRef = unknownID.String()
	p.Data.TransactionID = "TX-77"

	_, err := svc.resolveRegistration(context.Background(), &p)
	assert.ErrorIs(t, err, repo.ErrRegistrationNotFound)
	repoMock.AssertNotCalled(t, "GetRegistrationByPaymentRef", mock.Anything, mock.Anything)
}

func TestCheckInByCode(t *testing.T) {
	repoMock := &mockRepository{}
	svc := newTestService(repoMock, &fakeGateway{}, newChanNotifier(), &fakePublisher{})

	reg := pendingRegistration(500)
	reg.Status = model.StatusConfirmed
	reg.PaymentStatus = model.PaymentPaid

	repoMock.On("GetRegistrationByTicketCode", mock.Anything, reg.TicketCode).Return(reg, nil)
	repoMock.On("CheckInTx", mock.Anything, reg.ID, model.StatusConfirmed).Return(true, nil)

	got, err := svc.checkInByCode(context.Background(), reg.TicketCode)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCheckedIn, got.Status)
	assert.NotNil(t, got.CheckedInAt)
}

func TestCheckInByCode_PaymentPendingBlocked(t *testing.T) {
	repoMock := &mockRepository{}
	svc := newTestService(repoMock, &fakeGateway{}, newChanNotifier(), &fakePublisher{})

	reg := pendingRegistration(500)
	repoMock.On("GetRegistrationByTicketCode", mock.Anything, reg.TicketCode).Return(reg, nil)

	_, err := svc.checkInByCode(context.Background(), reg.TicketCode)
	assert.ErrorIs(t, err, model.ErrPaymentIncomplete)
	repoMock.AssertNotCalled(t, "CheckInTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckInByCode_AlreadyCheckedIn(t *testing.T) {
	repoMock := &mockRepository{}
	svc := newTestService(repoMock, &fakeGateway{}, newChanNotifier(), &fakePublisher{})

	reg := pendingRegistration(500)
	reg.Status = model.StatusCheckedIn
	reg.PaymentStatus = model.PaymentPaid
	repoMock.On("GetRegistrationByTicketCode", mock.Anything, reg.TicketCode).Return(reg, nil)

	_, err := svc.checkInByCode(context.Background(), reg.TicketCode)
	assert.ErrorIs(t, err, model.ErrAlreadyCheckedIn)
}

func TestCheckInByCode_LostRace(t *testing.T) {
	repoMock := &mockRepository{}
	svc := newTestService(repoMock, &fakeGateway{}, newChanNotifier(), &fakePublisher{})

	reg := pendingRegistration(500)
	reg.Status = model.StatusConfirmed
	reg.PaymentStatus = model.PaymentPaid
	repoMock.On("GetRegistrationByTicketCode", mock.Anything, reg.TicketCode).Return(reg, nil)
	repoMock.On("CheckInTx", mock.Anything, reg.ID, model.StatusConfirmed).Return(false, nil)

	_, err := svc.checkInByCode(context.Background(), reg.TicketCode)
	assert.ErrorIs(t, err, model.ErrAlreadyCheckedIn)
}

func TestCheckInByCode_NotFound(t *testing.T) {
	repoMock := &mockRepository{}
	svc := newTestService(repoMock, &fakeGateway{}, newChanNotifier(), &fakePublisher{})

	repoMock.On("GetRegistrationByTicketCode", mock.Anything, "NOPE").
		Return(nil, repo.ErrRegistrationNotFound)

	_, err := svc.checkInByCode(context.Background(), "NOPE")
	assert.ErrorIs(t, err, repo.ErrRegistrationNotFound)
}

func TestEventResponse_ServesCachedAvailability(t *testing.T) {
	rdb, redisMock := redismock.NewClientMock()
	log := zerolog.Nop()
	svc := newTestService(&mockRepository{}, &fakeGateway{}, newChanNotifier(), &fakePublisher{})
	svc.avail = cache.NewAvailabilityCache(rdb, time.Minute, &log)

	event := &model.Event{
		ID:              uuid.New(),
		Title:           "Tech Summit",
		Capacity:        100,
		RegisteredCount: 10,
		StartTime:       time.Now().Add(time.Hour),
		EndTime:         time.Now().Add(2 * time.Hour),
	}
	cached := cache.Availability{
		EventID:        event.ID,
		Capacity:       100,
		Registered:     40,
		AvailableSeats: 60,
		Status:         "upcoming",
	}
	raw, err := json.Marshal(cached)
	require.NoError(t, err)
	redisMock.ExpectGet("event:avail:" + event.ID.String()).SetVal(string(raw))

	resp := svc.eventResponse(context.Background(), event, nil)

	assert.Equal(t, 40, resp.RegisteredCount, "cached summary wins over the row")
	assert.Equal(t, 60, resp.AvailableSeats)
	assert.Equal(t, "upcoming", resp.Status)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestEventResponse_CacheMissComputesAndStores(t *testing.T) {
	rdb, redisMock := redismock.NewClientMock()
	log := zerolog.Nop()
	svc := newTestService(&mockRepository{}, &fakeGateway{}, newChanNotifier(), &fakePublisher{})
	svc.avail = cache.NewAvailabilityCache(rdb, time.Minute, &log)

	event := &model.Event{
		ID:              uuid.New(),
		Title:           "Tech Summit",
		Capacity:        100,
		RegisteredCount: 10,
		StartTime:       time.Now().Add(time.Hour),
		EndTime:         time.Now().Add(2 * time.Hour),
	}
	computed := cache.Availability{
		EventID:        event.ID,
		Capacity:       100,
		Registered:     10,
		AvailableSeats: 90,
		Status:         "upcoming",
	}
	raw, err := json.Marshal(computed)
	require.NoError(t, err)
	redisMock.ExpectGet("event:avail:" + event.ID.String()).RedisNil()
	redisMock.ExpectSet("event:avail:"+event.ID.String(), raw, time.Minute).SetVal("OK")

	resp := svc.eventResponse(context.Background(), event, nil)

	assert.Equal(t, 10, resp.RegisteredCount)
	assert.Equal(t, 90, resp.AvailableSeats)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestRegisterAttendee_UpstreamViolationKeepsPending(t *testing.T) {
	repoMock := &mockRepository{}
	gw := &fakeGateway{err: payments.ErrUpstreamContract}
	pub := &fakePublisher{}
	svc := newTestService(repoMock, gw, newChanNotifier(), pub)

	eventID := uuid.New()
	event := &model.Event{ID: eventID, Title: "Tech Summit", PaymentTimeoutMinutes: 15}
	tier := &model.TicketType{Name: "VIP", Price: 500}

	repoMock.On("CreateRegistrationTx", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			reg := args.Get(1).(*model.Registration)
			reg.Amount = tier.Price
			reg.Status = model.StatusPending
			reg.PaymentStatus = model.PaymentPending
		}).
		Return(event, tier, nil)

	_, _, err := svc.registerAttendee(context.Background(), eventID, registrationRequest())
	assert.ErrorIs(t, err, payments.ErrUpstreamContract)

	// a broken integration is not a declined payment: the registration stays
	// pending for retry or expiry instead of being cancelled
	repoMock.AssertNotCalled(t, "FailPaymentTx", mock.Anything, mock.Anything)

	// the expiry is scheduled before the gateway is contacted, so the
	// reserved unit is released by the worker even when initiation blew up
	require.Len(t, pub.delays, 1)
	assert.Equal(t, 15*60, pub.delays[0])

	var msg dto.ExpiryMessage
	require.NoError(t, json.Unmarshal(pub.payloads[0], &msg))
	assert.Equal(t, eventID, msg.EventID)
}
