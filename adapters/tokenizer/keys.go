package tokenizer

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/walletauth/core"
)

const (
	AlgorithmHS256 = "HS256"
	AlgorithmEdDSA = "EdDSA"
	AlgorithmES256 = "ES256"
)

// MinSecretLength is the shortest HS256 secret accepted.
const MinSecretLength = 32

// KeyMaterial holds both halves of the token signing key. It is immutable after construction.
type KeyMaterial struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	jwk       *core.JWK
}

// Algorithm returns the JWT "alg" value this key signs with.
func (k KeyMaterial) Algorithm() string {
	if k.method == nil {
		return ""
	}
	return k.method.Alg()
}

// JWK returns a copy of the public key, or nil for symmetric keys.
func (k KeyMaterial) JWK() *core.JWK {
	if k.jwk == nil {
		return nil
	}
	jwk := *k.jwk
	return &jwk
}

// NewHMACKey creates HS256 key material from a shared secret.
func NewHMACKey(secret []byte) (KeyMaterial, error) {
	if len(secret) < MinSecretLength {
		return KeyMaterial{}, fmt.Errorf("hmac secret must be at least %d bytes", MinSecretLength)
	}
	key := make([]byte, len(secret))
	copy(key, secret)

	return KeyMaterial{
		method:    jwt.SigningMethodHS256,
		signKey:   key,
		verifyKey: key,
	}, nil
}

// NewEd25519Key creates EdDSA key material.
func NewEd25519Key(priv ed25519.PrivateKey) (KeyMaterial, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return KeyMaterial{}, errors.New("invalid ed25519 private key size")
	}
	pub := priv.Public().(ed25519.PublicKey)

	jwk := &core.JWK{
		Kty: "OKP",
		Crv: "Ed25519",
		X:   base64.RawURLEncoding.EncodeToString(pub),
		Alg: AlgorithmEdDSA,
		Use: "sig",
	}
	jwk.Kid = thumbprint(fmt.Sprintf(`{"crv":%q,"kty":%q,"x":%q}`, jwk.Crv, jwk.Kty, jwk.X))

	return KeyMaterial{
		method:    jwt.SigningMethodEdDSA,
		signKey:   priv,
		verifyKey: pub,
		jwk:       jwk,
	}, nil
}

// NewECDSAKey creates ES256 key material from a P-256 private key.
func NewECDSAKey(priv *ecdsa.PrivateKey) (KeyMaterial, error) {
	if priv == nil || priv.Curve != elliptic.P256() {
		return KeyMaterial{}, errors.New("ES256 requires a P-256 private key")
	}
	ecdhKey, err := priv.PublicKey.ECDH()
	if err != nil {
		return KeyMaterial{}, fmt.Errorf("converting public key: %w", err)
	}
	// Uncompressed point: 0x04 || X || Y
	point := ecdhKey.Bytes()

	jwk := &core.JWK{
		Kty: "EC",
		Crv: "P-256",
		X:   base64.RawURLEncoding.EncodeToString(point[1:33]),
		Y:   base64.RawURLEncoding.EncodeToString(point[33:]),
		Alg: AlgorithmES256,
		Use: "sig",
	}
	jwk.Kid = thumbprint(fmt.Sprintf(`{"crv":%q,"kty":%q,"x":%q,"y":%q}`, jwk.Crv, jwk.Kty, jwk.X, jwk.Y))

	return KeyMaterial{
		method:    jwt.SigningMethodES256,
		signKey:   priv,
		verifyKey: &priv.PublicKey,
		jwk:       jwk,
	}, nil
}

// ParseKeyMaterial builds key material for algorithm. For HS256 secret is the shared secret
// itself; for EdDSA and ES256 it is a PKCS#8 private key, base64 encoded DER or PEM.
func ParseKeyMaterial(algorithm, secret string) (KeyMaterial, error) {
	switch algorithm {
	case AlgorithmHS256:
		return NewHMACKey([]byte(secret))

	case AlgorithmEdDSA:
		key, err := parsePKCS8(secret)
		if err != nil {
			return KeyMaterial{}, err
		}
		priv, ok := key.(ed25519.PrivateKey)
		if !ok {
			return KeyMaterial{}, fmt.Errorf("expected ed25519 key, got %T", key)
		}
		return NewEd25519Key(priv)

	case AlgorithmES256:
		key, err := parsePKCS8(secret)
		if err != nil {
			return KeyMaterial{}, err
		}
		priv, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return KeyMaterial{}, fmt.Errorf("expected ecdsa key, got %T", key)
		}
		return NewECDSAKey(priv)

	default:
		return KeyMaterial{}, fmt.Errorf("unsupported algorithm %q", algorithm)
	}
}

// GenerateKey returns a new base64 PKCS#8 private key for algorithm (EdDSA or ES256).
func GenerateKey(algorithm string) (string, error) {
	var key any
	var err error

	switch algorithm {
	case AlgorithmEdDSA:
		_, key, err = ed25519.GenerateKey(rand.Reader)
	case AlgorithmES256:
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	default:
		return "", fmt.Errorf("cannot generate key for algorithm %q", algorithm)
	}
	if err != nil {
		return "", fmt.Errorf("generating key: %w", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", fmt.Errorf("marshaling key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

func parsePKCS8(secret string) (any, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("empty key pair")
	}

	var der []byte
	if block, _ := pem.Decode([]byte(secret)); block != nil {
		der = block.Bytes
	} else {
		var err error
		der, err = base64.StdEncoding.DecodeString(secret)
		if err != nil {
			return nil, fmt.Errorf("decoding key pair: %w", err)
		}
	}

	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parsing PKCS#8 key pair: %w", err)
	}
	return key, nil
}

// thumbprint computes an RFC 7638 JWK thumbprint from the canonical member JSON.
func thumbprint(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
