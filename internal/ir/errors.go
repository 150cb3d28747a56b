package ir

import "errors"

// ErrTokenConflict is returned by a counter store when a request token was
// already used for a transaction with different content.
var ErrTokenConflict = errors.New("request token reused with different transaction content")

// ErrInvalidTransaction is returned by a counter store for a transaction it
// can never accept, such as one exceeding the store's item limit. Retrying
// cannot help.
var ErrInvalidTransaction = errors.New("invalid transaction")
