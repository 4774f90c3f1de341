package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kinobot/internal/model"
)

// CreatePayment allocates an ID and inserts p.
func (s *SQLite) CreatePayment(ctx context.Context, p *model.Payment) error {
	id, err := s.NextID(ctx, model.CounterPayments)
	if err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.Status == "" {
		p.Status = model.PaymentPending
	}
	p.ID = id
	return s.writePayment(ctx, p, "INSERT")
}

// ImportPayment writes p with its original ID.
func (s *SQLite) ImportPayment(ctx context.Context, p *model.Payment) error {
	return s.writePayment(ctx, p, "INSERT OR REPLACE")
}

func (s *SQLite) writePayment(ctx context.Context, p *model.Payment, verb string) error {
	_, err := s.db.ExecContext(ctx,
		verb+` INTO payment_transactions (id, user_id, amount, payment_type, status, transaction_date)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Amount, p.Type, string(p.Status), formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("write payment: %w", err)
	}
	return nil
}

// GetPayment returns a payment by ID.
func (s *SQLite) GetPayment(ctx context.Context, id int64) (*model.Payment, error) {
	var p model.Payment
	var status, created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, amount, payment_type, status, transaction_date
		 FROM payment_transactions WHERE id = ?`, id,
	).Scan(&p.ID, &p.UserID, &p.Amount, &p.Type, &status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	p.Status = model.PaymentStatus(status)
	p.CreatedAt = parseTime(created)
	return &p, nil
}

// UpdatePaymentStatus sets the review state of a payment.
func (s *SQLite) UpdatePaymentStatus(ctx context.Context, id int64, status model.PaymentStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE payment_transactions SET status = ? WHERE id = ?`, string(status), id,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	return requireAffected(res)
}
