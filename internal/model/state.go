package model

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusPending   Status = "pending"
	StatusCancelled Status = "cancelled"
	StatusCheckedIn Status = "checked-in"
)

type PaymentStatus string

const (
	PaymentPaid     PaymentStatus = "paid"
	PaymentPending  PaymentStatus = "pending"
	PaymentFree     PaymentStatus = "free"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentFailed   PaymentStatus = "failed"
)

var (
	ErrNotAwaitingPayment = errors.New("registration is not awaiting payment")
	ErrAlreadyCheckedIn   = errors.New("registration already checked in")
	ErrPaymentIncomplete  = errors.New("registration has not completed payment")
	ErrRegistrationClosed = errors.New("registration is cancelled")
)

// State is the only valid pairing of the two status columns. The columns stay
// separate in storage, but every transition goes through this type so an
// impossible combination (e.g. checked-in + pending payment) cannot be written.
type State struct {
	Status        Status
	PaymentStatus PaymentStatus
}

// NewRegistrationState is the creation rule: free tiers confirm immediately,
// priced tiers wait for the payment flow.
func NewRegistrationState(price int) State {
	if price == 0 {
		return State{Status: StatusConfirmed, PaymentStatus: PaymentFree}
	}
	return State{Status: StatusPending, PaymentStatus: PaymentPending}
}

// AwaitingPayment reports whether a payment outcome may still be applied.
func (s State) AwaitingPayment() bool {
	return s.Status == StatusPending && s.PaymentStatus == PaymentPending
}

// MarkPaid applies a successful payment outcome. Only a registration still
// awaiting payment can move; anything else is a duplicate or stale callback.
func (s State) MarkPaid() (State, error) {
	if !s.AwaitingPayment() {
		return s, ErrNotAwaitingPayment
	}
	return State{Status: StatusConfirmed, PaymentStatus: PaymentPaid}, nil
}

// MarkFailed applies a terminal payment failure.
func (s State) MarkFailed() (State, error) {
	if !s.AwaitingPayment() {
		return s, ErrNotAwaitingPayment
	}
	return State{Status: StatusCancelled, PaymentStatus: PaymentFailed}, nil
}

// CheckIn guards the door action: no double check-in, no unpaid or cancelled
// tickets through the door.
func (s State) CheckIn() (State, error) {
	switch {
	case s.Status == StatusCheckedIn:
		return s, ErrAlreadyCheckedIn
	case s.Status == StatusCancelled:
		return s, ErrRegistrationClosed
	case s.PaymentStatus == PaymentPending:
		return s, ErrPaymentIncomplete
	}
	return State{Status: StatusCheckedIn, PaymentStatus: s.PaymentStatus}, nil
}

func (s State) String() string {
	return fmt.Sprintf("%s/%s", s.Status, s.PaymentStatus)
}
