package formnav

import (
	"errors"
	"fmt"

	fnerrors "github.com/randalmurphal/formnav/pkg/formnav/errors"
)

// ErrVetoed is matched (errors.Is) by every veto and by the error Transition
// returns when a listener blocked the changing event.
var ErrVetoed = errors.New("formnav: transition vetoed")

// Veto is returned by a changing-event listener to block the transition.
// Vetoes are never retried or dead-lettered.
func Veto(reason string) error {
	return fnerrors.Rejected(fmt.Errorf("%w: %s", ErrVetoed, reason), "listener veto")
}

// IsVeto reports whether err carries a listener veto.
func IsVeto(err error) bool {
	return errors.Is(err, ErrVetoed)
}
