package config

import (
	"errors"
	"fmt"
)

// CredentialError is a configuration error: a vendor credential is absent. It is
// never retried and is reported before any session state changes.
type CredentialError struct {
	Provider string
	Variable string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("%s is not set (required by %s)", e.Variable, e.Provider)
}

func IsCredentialError(err error) bool {
	var ce *CredentialError
	return errors.As(err, &ce)
}
