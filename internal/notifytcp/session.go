// Package notifytcp implements the TCP control server for the campus
// notification service: sign-on, sticky-notice clearing, notification
// posting, and administrative client listing.
package notifytcp

import (
	"context"

	"github.com/infodancer/campusmaild/internal/dnd"
)

// ValidatorFactory opens a fresh validation exchange with the name
// directory, mirroring how the original handler dialed a new directory
// connection for every USER command.
type ValidatorFactory func(ctx context.Context) (dnd.Validator, error)

// session holds the per-connection authentication state. A zero value is
// an unauthenticated, no-pending-validation session.
type session struct {
	authUID    int
	authed     bool
	validating bool
	validator  dnd.Validator
}

func (s *session) beginValidate(ctx context.Context, factory ValidatorFactory, name string) (string, error) {
	v, err := factory(ctx)
	if err != nil {
		return "", err
	}
	challenge, err := v.BeginValidate(ctx, name)
	if err != nil {
		closeValidator(v)
		return "", err
	}
	s.validator = v
	s.validating = true
	return challenge, nil
}

func (s *session) completeValidate(ctx context.Context, response string) (dnd.Record, error) {
	defer s.abortValidate()
	if s.validator == nil {
		return dnd.Record{}, errNoPendingValidation
	}
	return s.validator.CompleteValidate(ctx, response)
}

// abortValidate discards any in-progress validation exchange, closing the
// directory collaborator if it exposes a Close method.
func (s *session) abortValidate() {
	closeValidator(s.validator)
	s.validator = nil
	s.validating = false
}

func closeValidator(v dnd.Validator) {
	if closer, ok := v.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}
