package auth

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/bcrypt"
)

// OperatorSubject is the sub claim of operator tokens
const OperatorSubject = "operator"

var ErrInvalidCredentials = errors.New("invalid credentials")

// Operator checks the single operator password against a bcrypt hash
type Operator struct{ hash []byte }

// NewOperator returns nil when no hash is configured, disabling operator login
func NewOperator(hash string) (*Operator, error) {
	if hash == "" {
		return nil, nil
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, errors.Wrap(err, "ADMIN_PASSWORD_HASH is not a bcrypt hash")
	}
	return &Operator{hash: []byte(hash)}, nil
}

// Verify compares password with the configured hash
func (o *Operator) Verify(password string) error {
	if password == "" || bcrypt.CompareHashAndPassword(o.hash, []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	return nil
}
