package errs

import (
	"errors"
	"fmt"
)

// ErrCredentialMissing means no credential row is stored; sends must fail
// before any network call is made.
var ErrCredentialMissing = errors.New("no stored access token")

// ErrCredentialExpired means the stored credential is past its expiry and
// only external re-authorization can replace it.
var ErrCredentialExpired = errors.New("access token expired")

// StorageError wraps a read/write failure against the local store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

func NewStorage(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// SendError wraps a platform send API rejection or timeout.
type SendError struct {
	RecipientID string
	Err         error
}

func (e *SendError) Error() string { return fmt.Sprintf("send to %s: %v", e.RecipientID, e.Err) }
func (e *SendError) Unwrap() error { return e.Err }

func NewSend(recipientID string, err error) error {
	return &SendError{RecipientID: recipientID, Err: err}
}

// RefreshError wraps a token refresh endpoint failure. The stored credential
// is left untouched when this is returned.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string { return fmt.Sprintf("token refresh: %v", e.Err) }
func (e *RefreshError) Unwrap() error { return e.Err }

func NewRefresh(err error) error { return &RefreshError{Err: err} }
