package domain

import (
	"fmt"
	"time"
)

// PaymentStatus represents the billing state of an invoice
type PaymentStatus string

const (
	PaymentStatusUnpaid      PaymentStatus = "unpaid"
	PaymentStatusDepositPaid PaymentStatus = "deposit_paid"
	PaymentStatusPaidInFull  PaymentStatus = "paid_in_full"
	PaymentStatusVoid        PaymentStatus = "void"
)

// Payment methods recorded in history
const (
	PaymentMethodSimulated = "simulated"
	PaymentMethodManual    = "manual"
)

// PaymentEntry is one applied payment, append-only
type PaymentEntry struct {
	ID        string    `json:"id"`
	Amount    float64   `json:"amount"`
	Method    string    `json:"method"`
	Note      string    `json:"note,omitempty"`
	AppliedAt time.Time `json:"appliedAt"`
	AppliedBy string    `json:"appliedBy"`
}

// Payment is the invoice ledger of an event. Only one payment per event is active.
type Payment struct {
	ID              string         `json:"id"`
	EventID         string         `json:"eventId"`
	InvoiceID       string         `json:"invoiceId"`
	Total           float64        `json:"total"`
	DepositRequired float64        `json:"depositRequired"`
	DepositPaid     float64        `json:"depositPaid"`
	Remaining       float64        `json:"remaining"`
	Status          PaymentStatus  `json:"status"`
	IsActive        bool           `json:"isActive"`
	History         []PaymentEntry `json:"history"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	Versioned
}

func (p *Payment) EntityID() string { return p.ID }

// NewPayment builds an unpaid invoice ledger
func NewPayment(id, eventID, invoiceID string, total, depositRequired float64, now time.Time) (*Payment, error) {
	verr := &ValidationError{}
	if total <= 0 {
		verr.Add("total", "must be greater than 0")
	}
	if depositRequired < 0 {
		verr.Add("depositRequired", "cannot be negative")
	} else if depositRequired > total {
		verr.Add("depositRequired", "cannot exceed total")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	p := &Payment{
		ID:              id,
		EventID:         eventID,
		InvoiceID:       invoiceID,
		Total:           total,
		DepositRequired: depositRequired,
		IsActive:        true,
		History:         []PaymentEntry{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	p.Recompute()
	return p, nil
}

// Recompute derives Remaining and Status from Total and DepositPaid
func (p *Payment) Recompute() {
	p.Remaining = p.Total - p.DepositPaid
	switch {
	case p.Remaining <= 0:
		p.Status = PaymentStatusPaidInFull
	case p.Status == PaymentStatusVoid:
	case p.DepositPaid > 0 && p.DepositPaid >= p.DepositRequired:
		p.Status = PaymentStatusDepositPaid
	default:
		p.Status = PaymentStatusUnpaid
	}
}

// Apply appends a payment to the history and recomputes the balance
func (p *Payment) Apply(entry PaymentEntry) error {
	if entry.Amount <= 0 {
		verr := &ValidationError{}
		verr.Add("amount", "must be greater than 0")
		return verr
	}
	if p.Status == PaymentStatusVoid || !p.IsActive {
		return fmt.Errorf("payment %s is void: %w", p.ID, ErrInvalidTransition)
	}
	if p.Status == PaymentStatusPaidInFull {
		return fmt.Errorf("payment %s is already paid in full: %w", p.ID, ErrInvalidTransition)
	}

	p.History = append(p.History, entry)
	p.DepositPaid += entry.Amount
	p.UpdatedAt = entry.AppliedAt
	p.Recompute()
	return nil
}

// DepositAmount is what a deposit payment settles: the required deposit, capped at the balance
func (p *Payment) DepositAmount() float64 {
	amount := p.DepositRequired
	if amount <= 0 || amount > p.Remaining {
		amount = p.Remaining
	}
	return amount
}

// Void deactivates an invoice that was replaced before being settled
func (p *Payment) Void(now time.Time) {
	p.IsActive = false
	if p.Remaining > 0 {
		p.Status = PaymentStatusVoid
	}
	p.UpdatedAt = now
}
