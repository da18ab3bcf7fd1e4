package game

import (
	"fmt"
	"time"
)

// Ledger services the guild's single debt.
type Ledger struct {
	debt Debt
	now  func() time.Time
}

func NewLedger(terms DebtTerms, now func() time.Time) *Ledger {
	d := Debt{
		Balance:          terms.Principal,
		QuarterlyPayment: terms.QuarterlyPayment,
		InterestRate:     terms.InterestRate,
		State:            DebtActive,
	}
	if d.Balance == 0 {
		d.State = DebtPaid
	}
	return &Ledger{debt: d, now: now}
}

func (l *Ledger) Debt() Debt {
	return l.debt.clone()
}

// ProcessQuarter accrues interest and collects the quarterly payment. If the
// guild cannot cover it, the debt goes overdue and nothing is deducted.
func (l *Ledger) ProcessQuarter(st *GameState) []Event {
	if l.debt.State != DebtActive {
		return nil
	}
	interest := QuarterlyInterest(l.debt.Balance, l.debt.InterestRate)
	l.debt.Balance += interest

	due := min(l.debt.QuarterlyPayment, l.debt.Balance)
	if st.Gold < due {
		l.debt.State = DebtOverdue
		st.GameOver = GameOverInsufficientFunds
		return []Event{GameOver{Reason: GameOverInsufficientFunds, Day: st.Day}}
	}

	events := []Event{spend(st, due)}
	events = append(events, l.record(st, due, interest, false)...)
	return events
}

// MakePayment pays down the debt out of cycle. The deduction is capped at the balance.
func (l *Ledger) MakePayment(st *GameState, amount int64) (Payment, []Event, error) {
	if amount <= 0 {
		return Payment{}, nil, ErrInvalidAmount
	}
	if l.debt.State != DebtActive {
		return Payment{}, nil, fmt.Errorf("%w: debt is %s", ErrDebtClosed, l.debt.State)
	}
	if st.Gold < amount {
		return Payment{}, nil, fmt.Errorf("%w: paying %d, have %d", ErrInsufficientFunds, amount, st.Gold)
	}
	pay := min(amount, l.debt.Balance)
	events := []Event{spend(st, pay)}
	events = append(events, l.record(st, pay, 0, true)...)
	return l.debt.History[len(l.debt.History)-1], events, nil
}

func (l *Ledger) record(st *GameState, amount, interest int64, manual bool) []Event {
	l.debt.Balance -= amount
	p := Payment{
		Day:          st.Day,
		Quarter:      st.Quarter,
		At:           l.now().UTC(),
		Amount:       amount,
		BalanceAfter: l.debt.Balance,
		Interest:     interest,
		Manual:       manual,
	}
	l.debt.History = append(l.debt.History, p)
	events := []Event{PaymentMade{Payment: p}}
	if l.debt.Balance == 0 {
		l.debt.State = DebtPaid
		events = append(events, DebtPaidOff{Day: st.Day})
	}
	return events
}

func (l *Ledger) load(d Debt) error {
	if d.Balance < 0 || d.QuarterlyPayment <= 0 || d.InterestRate < 0 {
		return fmt.Errorf("%w: debt terms out of range", ErrInvalidSnapshot)
	}
	switch d.State {
	case DebtActive, DebtOverdue:
	case DebtPaid:
		if d.Balance != 0 {
			return fmt.Errorf("%w: paid debt with balance %d", ErrInvalidSnapshot, d.Balance)
		}
	default:
		return fmt.Errorf("%w: unknown debt state %q", ErrInvalidSnapshot, d.State)
	}
	l.debt = d.clone()
	return nil
}
