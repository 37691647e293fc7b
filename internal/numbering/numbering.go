package numbering

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"persediaan/backend/internal/apperr"
)

// Kind is the document family; its value is the number prefix.
type Kind string

const (
	KindRequest           Kind = "SPB"
	KindDistributionOrder Kind = "SPPB"
	KindOutbound          Kind = "BAST-K"
	KindInbound           Kind = "BAST-M"
	KindOpname            Kind = "SO"
)

const DefaultMaxAttempts = 3

// ErrConflict is returned (wrapped) by stores when an insert collides with an
// already committed document number.
var ErrConflict = errors.New("document number already taken")

func PeriodPrefix(kind Kind, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("%s/%04d/%02d/", kind, at.Year(), int(at.Month()))
}

func Format(kind Kind, at time.Time, seq int) string {
	return fmt.Sprintf("%s%04d", PeriodPrefix(kind, at), seq)
}

// ParseSequence extracts NNNN from a number carrying prefix.
func ParseSequence(number string, prefix string) (int, bool) {
	if !strings.HasPrefix(number, prefix) {
		return 0, false
	}
	seq, err := strconv.Atoi(strings.TrimPrefix(number, prefix))
	if err != nil || seq < 1 {
		return 0, false
	}
	return seq, true
}

// Scanner reports the highest sequence already used under a period prefix,
// or 0 when the period is empty.
type Scanner interface {
	MaxSequence(ctx context.Context, kind Kind, prefix string) (int, error)
}

// Next computes the candidate number for the period of at.
func Next(ctx context.Context, scanner Scanner, kind Kind, at time.Time) (string, error) {
	prefix := PeriodPrefix(kind, at)
	highest, err := scanner.MaxSequence(ctx, kind, prefix)
	if err != nil {
		return "", fmt.Errorf("scan %s sequence: %w", kind, err)
	}
	return Format(kind, at, highest+1), nil
}

type Observer interface {
	Attempt(kind Kind)
	Conflict(kind Kind)
	Exhausted(kind Kind)
}

// Policy retries a whole transactional attempt when it loses a numbering
// race. Each attempt must open its own transaction so the candidate number is
// recomputed from committed rows.
type Policy struct {
	MaxAttempts int
	Observer    Observer
}

func (p Policy) Run(ctx context.Context, kind Kind, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = DefaultMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.Observer != nil {
			p.Observer.Attempt(kind)
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		if p.Observer != nil {
			p.Observer.Conflict(kind)
		}
		lastErr = err
	}

	if p.Observer != nil {
		p.Observer.Exhausted(kind)
	}
	return apperr.Wrap(apperr.CodeNumberExhausted, lastErr,
		fmt.Sprintf("could not allocate a %s number after %d attempts", kind, attempts))
}
