package redemption

import (
	"errors"
	"fmt"

	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
)

// ErrInsufficientBalance matches every InsufficientBalanceError.
var ErrInsufficientBalance = errors.New("insufficient balance")

// InsufficientBalanceError reports a redemption the counter could not cover.
// Nothing was deducted.
type InsufficientBalanceError struct {
	Kind enums.CounterKind
	Have int64
	Need int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s: have %d, need %d", e.Kind, e.Have, e.Need)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

func insufficient(kind enums.CounterKind, have, need int64) error {
	return pkgerrors.Wrap(pkgerrors.CodeInsufficient, &InsufficientBalanceError{Kind: kind, Have: have, Need: need}, fmt.Sprintf("not enough %s", kind)).
		WithDetails(map[string]any{"kind": kind, "have": have, "need": need})
}
