package transport

import "errors"

// ErrInsufficientFunds is returned when the external account cannot cover a
// pull, or custody cannot cover a push.
var ErrInsufficientFunds = errors.New("insufficient funds")
