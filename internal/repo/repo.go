package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"github.com/Eliezer-Jr/event-blossom/internal/model"
)

var (
	ErrEventNotFound        = errors.New("event not found")
	ErrTicketTypeNotFound   = errors.New("ticket type not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrSoldOut              = errors.New("ticket type is sold out")
	ErrEventFull            = errors.New("event is at capacity")
	ErrSalesClosed          = errors.New("ticket sales are closed for this type")
)

type Repository interface {
	CreateEventTx(ctx context.Context, e *model.Event, tiers []model.TicketType) error
	GetEventByID(ctx context.Context, id uuid.UUID) (*model.Event, error)
	GetAllEvents(ctx context.Context) ([]model.Event, error)
	GetTicketTypes(ctx context.Context, eventID uuid.UUID) ([]model.TicketType, error)

	CreateRegistrationTx(ctx context.Context, reg *model.Registration) (*model.Event, *model.TicketType, error)
	SetPaymentRef(ctx context.Context, id uuid.UUID, ref string) error
	GetRegistrationByID(ctx context.Context, id uuid.UUID) (*model.Registration, error)
	GetRegistrationByPaymentRef(ctx context.Context, ref string) (*model.Registration, error)
	GetRegistrationByTicketCode(ctx context.Context, code string) (*model.Registration, error)
	PendingRegistrations(ctx context.Context, eventID uuid.UUID) ([]model.Registration, error)

	ConfirmPaymentTx(ctx context.Context, id uuid.UUID) (bool, error)
	FailPaymentTx(ctx context.Context, id uuid.UUID) (bool, error)
	CheckInTx(ctx context.Context, id uuid.UUID, prior model.Status) (bool, error)

	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

func (r *repository) MigrateUp(migrationsDir string) error {
	return r.applyMigrations(migrationsDir, "*.up.sql")
}

func (r *repository) MigrateDown(migrationsDir string) error {
	return r.applyMigrations(migrationsDir, "*.down.sql")
}

func (r *repository) applyMigrations(migrationsDir, pattern string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, pattern))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}
		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations (%s) applied from %s", pattern, migrationsDir)
	return nil
}

func (r *repository) CreateEventTx(ctx context.Context, e *model.Event, tiers []model.TicketType) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer rollbackOnPanic(tx)

	err = tx.QueryRowContext(ctx, `
		INSERT INTO events (id, title, description, venue, start_time, end_time, capacity, payment_timeout_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, e.ID, e.Title, e.Description, e.Venue, e.StartTime, e.EndTime, e.Capacity, e.PaymentTimeoutMinutes,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to insert event: %w", err)
	}

	for i := range tiers {
		t := &tiers[i]
		t.EventID = e.ID
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ticket_types (id, event_id, name, description, price, quantity, sales_open_at, sales_close_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, t.ID, t.EventID, t.Name, t.Description, t.Price, t.Quantity, t.SalesOpenAt, t.SalesCloseAt)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert ticket type: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *repository) GetEventByID(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, title, description, venue, start_time, end_time, capacity,
		       registered_count, archived, payment_timeout_minutes, created_at, updated_at
		FROM events WHERE id = $1
	`, id)

	var e model.Event
	if err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.Venue, &e.StartTime, &e.EndTime, &e.Capacity,
		&e.RegisteredCount, &e.Archived, &e.PaymentTimeoutMinutes, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, ErrEventNotFound
	}
	return &e, nil
}

func (r *repository) GetAllEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, description, venue, start_time, end_time, capacity,
		       registered_count, archived, payment_timeout_minutes, created_at, updated_at
		FROM events
		WHERE archived = FALSE
		ORDER BY start_time ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(
			&e.ID, &e.Title, &e.Description, &e.Venue, &e.StartTime, &e.EndTime, &e.Capacity,
			&e.RegisteredCount, &e.Archived, &e.PaymentTimeoutMinutes, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *repository) GetTicketTypes(ctx context.Context, eventID uuid.UUID) ([]model.TicketType, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_id, name, description, price, quantity, sold, sales_open_at, sales_close_at
		FROM ticket_types
		WHERE event_id = $1
		ORDER BY price ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket types: %w", err)
	}
	defer rows.Close()

	var tiers []model.TicketType
	for rows.Next() {
		var t model.TicketType
		if err := rows.Scan(
			&t.ID, &t.EventID, &t.Name, &t.Description, &t.Price, &t.Quantity, &t.Sold,
			&t.SalesOpenAt, &t.SalesCloseAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ticket type: %w", err)
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

// CreateRegistrationTx reserves one inventory unit and inserts the
// registration in a single transaction. The increment is a conditional UPDATE
// evaluated by the database, so concurrent callers racing for the last unit
// cannot oversell: exactly one wins, the rest get ErrSoldOut/ErrEventFull.
// The registration's amount, state and ticket code are filled in here from the
// tier read inside the same transaction, so a concurrent price edit cannot
// split the snapshot.
func (r *repository) CreateRegistrationTx(ctx context.Context, reg *model.Registration) (*model.Event, *model.TicketType, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer rollbackOnPanic(tx)

	var e model.Event
	err = tx.QueryRowContext(ctx, `
		SELECT id, title, capacity, registered_count, archived, payment_timeout_minutes, start_time, end_time
		FROM events WHERE id = $1 AND archived = FALSE
	`, reg.EventID).Scan(&e.ID, &e.Title, &e.Capacity, &e.RegisteredCount, &e.Archived,
		&e.PaymentTimeoutMinutes, &e.StartTime, &e.EndTime)
	if err != nil {
		_ = tx.Rollback()
		return nil, nil, ErrEventNotFound
	}

	var t model.TicketType
	err = tx.QueryRowContext(ctx, `
		SELECT id, event_id, name, price, quantity, sold, sales_open_at, sales_close_at
		FROM ticket_types WHERE id = $1 AND event_id = $2
	`, reg.TicketTypeID, reg.EventID).Scan(&t.ID, &t.EventID, &t.Name, &t.Price, &t.Quantity, &t.Sold,
		&t.SalesOpenAt, &t.SalesCloseAt)
	if err != nil {
		_ = tx.Rollback()
		return nil, nil, ErrTicketTypeNotFound
	}

	if !t.OnSale(time.Now()) {
		_ = tx.Rollback()
		return nil, nil, ErrSalesClosed
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE ticket_types
		SET sold = sold + 1
		WHERE id = $1 AND (quantity = $2 OR sold < quantity)
	`, t.ID, model.Unlimited)
	if err != nil {
		_ = tx.Rollback()
		return nil, nil, fmt.Errorf("failed to reserve ticket: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return nil, nil, ErrSoldOut
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE events
		SET registered_count = registered_count + 1, updated_at = NOW()
		WHERE id = $1 AND (capacity = $2 OR registered_count < capacity)
	`, e.ID, model.Unlimited)
	if err != nil {
		_ = tx.Rollback()
		return nil, nil, fmt.Errorf("failed to reserve event capacity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return nil, nil, ErrEventFull
	}

	// Amount is a snapshot of the tier price at registration time; it never
	// changes afterwards, even if the tier is re-priced.
	state := model.NewRegistrationState(t.Price)
	reg.Amount = t.Price
	reg.Status = state.Status
	reg.PaymentStatus = state.PaymentStatus
	if reg.TicketCode == "" {
		reg.TicketCode = model.NewTicketCode(e.Title, t.Name)
	}

	customValues, err := json.Marshal(reg.CustomFieldValues)
	if err != nil {
		_ = tx.Rollback()
		return nil, nil, fmt.Errorf("failed to marshal custom field values: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO registrations
			(id, event_id, ticket_type_id, name, email, phone, ticket_code, amount,
			 status, payment_status, custom_field_values)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`, reg.ID, reg.EventID, reg.TicketTypeID, reg.Name, reg.Email, reg.Phone, reg.TicketCode,
		reg.Amount, reg.Status, reg.PaymentStatus, customValues,
	).Scan(&reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		_ = tx.Rollback()
		return nil, nil, fmt.Errorf("failed to create registration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &e, &t, nil
}

func (r *repository) SetPaymentRef(ctx context.Context, id uuid.UUID, ref string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE registrations SET payment_ref = $1, updated_at = NOW() WHERE id = $2
	`, ref, id)
	if err != nil {
		return fmt.Errorf("failed to store payment reference: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRegistrationNotFound
	}
	return nil
}

const registrationColumns = `
	id, event_id, ticket_type_id, name, email, phone, ticket_code, amount,
	status, payment_status, COALESCE(payment_ref, ''), custom_field_values,
	checked_in_at, created_at, updated_at
`

func (r *repository) GetRegistrationByID(ctx context.Context, id uuid.UUID) (*model.Registration, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id)
	return scanRegistration(row)
}

func (r *repository) GetRegistrationByPaymentRef(ctx context.Context, ref string) (*model.Registration, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE payment_ref = $1`, ref)
	return scanRegistration(row)
}

func (r *repository) GetRegistrationByTicketCode(ctx context.Context, code string) (*model.Registration, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE ticket_code = $1`, code)
	return scanRegistration(row)
}

func (r *repository) PendingRegistrations(ctx context.Context, eventID uuid.UUID) ([]model.Registration, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+registrationColumns+`
		FROM registrations
		WHERE event_id = $1 AND status = $2 AND payment_status = $3 AND phone <> ''
		ORDER BY created_at ASC
	`, eventID, model.StatusPending, model.PaymentPending)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (*model.Registration, error) {
	var reg model.Registration
	var customValues []byte
	var checkedInAt sql.NullTime
	if err := row.Scan(
		&reg.ID, &reg.EventID, &reg.TicketTypeID, &reg.Name, &reg.Email, &reg.Phone,
		&reg.TicketCode, &reg.Amount, &reg.Status, &reg.PaymentStatus, &reg.PaymentRef,
		&customValues, &checkedInAt, &reg.CreatedAt, &reg.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to scan registration: %w", err)
	}
	if len(customValues) > 0 {
		if err := json.Unmarshal(customValues, &reg.CustomFieldValues); err != nil {
			return nil, fmt.Errorf("failed to decode custom field values: %w", err)
		}
	}
	if checkedInAt.Valid {
		reg.CheckedInAt = &checkedInAt.Time
	}
	return &reg, nil
}

// ConfirmPaymentTx moves a registration awaiting payment to confirmed/paid.
// The update is keyed on the current pending state, so a duplicate or stale
// callback affects zero rows and the method reports false without error.
func (r *repository) ConfirmPaymentTx(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE registrations
		SET status = $1, payment_status = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4 AND payment_status = $5
	`, model.StatusConfirmed, model.PaymentPaid, id, model.StatusPending, model.PaymentPending)
	if err != nil {
		return false, fmt.Errorf("failed to confirm payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

// FailPaymentTx moves a registration awaiting payment to cancelled/failed and
// releases the reserved inventory unit in the same transaction. Used for
// webhook failures, synchronous gateway rejections and payment-timeout expiry.
func (r *repository) FailPaymentTx(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer rollbackOnPanic(tx)

	var eventID, ticketTypeID uuid.UUID
	err = tx.QueryRowContext(ctx, `
		UPDATE registrations
		SET status = $1, payment_status = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4 AND payment_status = $5
		RETURNING event_id, ticket_type_id
	`, model.StatusCancelled, model.PaymentFailed, id, model.StatusPending, model.PaymentPending,
	).Scan(&eventID, &ticketTypeID)
	if errors.Is(err, sql.ErrNoRows) {
		// already left the pending state: duplicate callback or prior expiry
		_ = tx.Rollback()
		return false, nil
	}
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("failed to fail payment: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE ticket_types SET sold = GREATEST(sold - 1, 0) WHERE id = $1
	`, ticketTypeID); err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("failed to release ticket: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE events SET registered_count = GREATEST(registered_count - 1, 0), updated_at = NOW() WHERE id = $1
	`, eventID); err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("failed to release event capacity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// CheckInTx marks a registration checked-in, keyed on the status the caller
// observed; a concurrent transition since that read affects zero rows.
func (r *repository) CheckInTx(ctx context.Context, id uuid.UUID, prior model.Status) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE registrations
		SET status = $1, checked_in_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND status = $3 AND payment_status <> $4
	`, model.StatusCheckedIn, id, prior, model.PaymentPending)
	if err != nil {
		return false, fmt.Errorf("failed to check in registration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

func rollbackOnPanic(tx *sql.Tx) {
	if p := recover(); p != nil {
		_ = tx.Rollback()
		panic(p)
	}
}
