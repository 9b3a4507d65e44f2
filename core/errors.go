package core

import "errors"

// Kind classifies an error for the transport boundary.
type Kind int

const (
	KindUnexpected Kind = iota
	KindValidation
	KindNoChallenge
	KindSignatureInvalid
	KindTokenExpired
	KindTokenMalformed
	KindTokenSignatureInvalid
	KindMissingBearer
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindNoChallenge:
		return "no_challenge_issued"
	case KindSignatureInvalid:
		return "signature_invalid"
	case KindTokenExpired:
		return "token_expired"
	case KindTokenMalformed:
		return "token_malformed"
	case KindTokenSignatureInvalid:
		return "token_signature_invalid"
	case KindMissingBearer:
		return "invalid_auth_token"
	default:
		return "unexpected_error"
	}
}

// Error is a classified authentication error.
type Error struct {
	kind Kind
	msg  string
}

func newError(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind returns the error classification.
func (e *Error) Kind() Kind { return e.kind }

var (
	ErrInvalidAddress     = newError(KindValidation, "invalid account address")
	ErrMalformedSignature = newError(KindValidation, "malformed signature")

	ErrNoChallengeIssued = newError(KindNoChallenge, "no challenge issued for account")
	ErrNonceExpired      = newError(KindNoChallenge, "challenge has expired")

	ErrInvalidSignature = newError(KindSignatureInvalid, "signature verification failed")

	ErrTokenExpired          = newError(KindTokenExpired, "token has expired")
	ErrTokenMalformed        = newError(KindTokenMalformed, "token is malformed")
	ErrTokenSignatureInvalid = newError(KindTokenSignatureInvalid, "token signature is invalid")

	ErrMissingBearer = newError(KindMissingBearer, "header doesn't contain a bearer token")
)

// ErrNonceNotFound is returned by nonce stores when no nonce is held for an identity.
// The service translates it into ErrNoChallengeIssued.
var ErrNonceNotFound = errors.New("nonce not found")

// KindOf returns the kind of the first *Error in err's chain, or KindUnexpected.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnexpected
}
