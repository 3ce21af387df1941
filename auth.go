// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"
)

// ServerAuth defines the interface for server-side RFB authentication methods.
// Authenticate runs the security-type-specific handshake against an already
// version-negotiated connection and returns nil only if the client proved
// whatever the method requires.
type ServerAuth interface {
	SecurityType() uint8
	Authenticate(ctx context.Context, rw io.ReadWriter) error
	String() string
}

// NoneAuth implements the "None" security type (1): no further handshake
// bytes are exchanged before the SecurityResult.
type NoneAuth struct {
	logger Logger
}

// SecurityType returns the security type identifier for None authentication.
func (a *NoneAuth) SecurityType() uint8 {
	return SecTypeNone
}

// Authenticate performs the (empty) None authentication handshake.
func (a *NoneAuth) Authenticate(ctx context.Context, rw io.ReadWriter) error {
	select {
	case <-ctx.Done():
		return timeoutError("NoneAuth.Authenticate", "authentication cancelled", ctx.Err())
	default:
	}

	if a.logger != nil {
		a.logger.Debug("accepting client under None authentication")
	}

	return nil
}

// String returns a human-readable description of the authentication method.
func (a *NoneAuth) String() string {
	return "None"
}

// SetLogger sets the logger for the authentication method.
func (a *NoneAuth) SetLogger(logger Logger) {
	a.logger = logger
}

// VNCPasswordAuth implements VNC Authentication (security type 2): the server
// sends a random 16-byte challenge, the client returns it DES-encrypted under
// a key derived from the shared password, and the server accepts only if its
// own encryption of the same challenge matches the response byte-for-byte.
type VNCPasswordAuth struct {
	Password     string
	logger       Logger
	secureMemory *SecureMemory
	random       *SecureRandom
}

// NewVNCPasswordAuth creates a new VNCPasswordAuth instance for the given shared password.
func NewVNCPasswordAuth(password string) *VNCPasswordAuth {
	return &VNCPasswordAuth{
		Password:     password,
		secureMemory: &SecureMemory{},
		random:       newSecureRandom(),
	}
}

// SecurityType returns the security type identifier for VNC Password authentication.
func (p *VNCPasswordAuth) SecurityType() uint8 {
	return SecTypeVncAuth
}

// Authenticate performs the VNC Authentication handshake as the server side:
// issue the challenge, read back the client's encrypted response, and verify
// it in constant time against our own encryption of the same bytes.
func (p *VNCPasswordAuth) Authenticate(ctx context.Context, rw io.ReadWriter) error {
	select {
	case <-ctx.Done():
		if p.logger != nil {
			p.logger.Warn("VNC authentication cancelled by context")
		}
		return timeoutError("VNCPasswordAuth.Authenticate", "authentication cancelled", ctx.Err())
	default:
	}

	if p.secureMemory == nil {
		p.secureMemory = &SecureMemory{}
	}
	if p.random == nil {
		p.random = newSecureRandom()
	}

	memProtection := newMemoryProtection()
	challengeBuffer := memProtection.NewProtectedBytes(VNCChallengeSize)
	defer challengeBuffer.Clear()

	challenge, err := p.random.GenerateChallenge(VNCChallengeSize)
	if err != nil {
		return authenticationError("VNCPasswordAuth.Authenticate", "failed to generate challenge", err)
	}
	if err := challengeBuffer.Copy(challenge); err != nil {
		return authenticationError("VNCPasswordAuth.Authenticate", "failed to stage challenge", err)
	}
	p.secureMemory.ClearBytes(challenge)

	if err := binary.Write(rw, binary.BigEndian, challengeBuffer.Data()); err != nil {
		if p.logger != nil {
			p.logger.Error("failed to send authentication challenge", Field{Key: "error", Value: err})
		}
		return networkError("VNCPasswordAuth.Authenticate", "failed to send authentication challenge", err)
	}

	responseBuffer := memProtection.NewProtectedBytes(VNCChallengeSize)
	defer responseBuffer.Clear()

	if _, err := io.ReadFull(rw, responseBuffer.Data()); err != nil {
		if p.logger != nil {
			p.logger.Error("failed to read authentication response", Field{Key: "error", Value: err})
		}
		return networkError("VNCPasswordAuth.Authenticate", "failed to read authentication response", err)
	}

	select {
	case <-ctx.Done():
		return timeoutError("VNCPasswordAuth.Authenticate", "authentication cancelled during verification", ctx.Err())
	default:
	}

	var expected []byte
	var encryptErr error
	timingProtection := newTimingProtection()
	err = timingProtection.ConstantTimeAuthentication(func() error {
		cipher := newSecureDESCipher()
		expected, encryptErr = cipher.EncryptVNCChallenge(p.Password, challengeBuffer.Data())
		return encryptErr
	}, 50*time.Millisecond)

	if err != nil {
		return authenticationError("VNCPasswordAuth.Authenticate", "failed to compute expected response", err)
	}
	defer p.secureMemory.ClearBytes(expected)

	if !p.secureMemory.ConstantTimeCompare(expected, responseBuffer.Data()) {
		if p.logger != nil {
			p.logger.Warn("VNC authentication failed: response mismatch")
		}
		return authenticationError("VNCPasswordAuth.Authenticate", "password challenge response mismatch", nil)
	}

	if p.logger != nil {
		p.logger.Debug("VNC password authentication succeeded")
	}

	return nil
}

// String returns a human-readable description of the authentication method.
func (p *VNCPasswordAuth) String() string {
	return "VNC Password"
}

// SetLogger sets the logger for the authentication method.
func (p *VNCPasswordAuth) SetLogger(logger Logger) {
	p.logger = logger
}

// ClearPassword securely clears the password from memory.
func (p *VNCPasswordAuth) ClearPassword() {
	if p.secureMemory != nil && p.Password != "" {
		p.Password = p.secureMemory.ClearString(p.Password)
	}
}

// AuthFactory is a function type that creates new instances of a server authentication method.
type AuthFactory func() ServerAuth

// AuthRegistry manages the set of authentication methods a screen is willing to offer.
type AuthRegistry struct {
	factories map[uint8]AuthFactory
	mu        sync.RWMutex
	logger    Logger
}

// NewAuthRegistry creates an authentication registry pre-populated with None
// and VNC Password support; callers Unregister what they don't want to offer.
func NewAuthRegistry() *AuthRegistry {
	registry := &AuthRegistry{
		factories: make(map[uint8]AuthFactory),
		logger:    &NoOpLogger{},
	}

	registry.Register(SecTypeNone, func() ServerAuth {
		return &NoneAuth{}
	})

	registry.Register(SecTypeVncAuth, func() ServerAuth {
		return &VNCPasswordAuth{}
	})

	return registry
}

// Register adds an authentication method factory to the registry.
func (r *AuthRegistry) Register(securityType uint8, factory AuthFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.logger != nil {
		r.logger.Debug("registering authentication method", Field{Key: "security_type", Value: securityType})
	}

	r.factories[securityType] = factory
}

// Unregister removes an authentication method from the registry.
func (r *AuthRegistry) Unregister(securityType uint8) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[securityType]; exists {
		delete(r.factories, securityType)
		if r.logger != nil {
			r.logger.Debug("unregistered authentication method", Field{Key: "security_type", Value: securityType})
		}
		return true
	}

	return false
}

// CreateAuth creates a new instance of the authentication method for the given security type.
func (r *AuthRegistry) CreateAuth(securityType uint8) (ServerAuth, error) {
	r.mu.RLock()
	factory, exists := r.factories[securityType]
	r.mu.RUnlock()

	if !exists {
		if r.logger != nil {
			r.logger.Warn("unsupported authentication method requested", Field{Key: "security_type", Value: securityType})
		}
		return nil, unsupportedError("AuthRegistry.CreateAuth",
			fmt.Sprintf("unsupported security type: %d", securityType), nil)
	}

	auth := factory()

	if r.logger != nil {
		r.logger.Debug("created authentication method instance",
			Field{Key: "security_type", Value: securityType},
			Field{Key: "method", Value: auth.String()})
	}

	return auth, nil
}

// OfferedTypes returns the security types this registry can serve, in map
// iteration order; callers that care about preference order should sort.
func (r *AuthRegistry) OfferedTypes() []uint8 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]uint8, 0, len(r.factories))
	for securityType := range r.factories {
		types = append(types, securityType)
	}

	return types
}

// IsSupported checks if a security type is supported by the registry.
func (r *AuthRegistry) IsSupported(securityType uint8) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.factories[securityType]
	return exists
}

// SetLogger sets the logger for the authentication registry.
func (r *AuthRegistry) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger = logger
}

// SelectAuth picks the authentication method for a security type the client
// chose from the list the server offered; it fails if that type was never
// offered by this registry.
func (r *AuthRegistry) SelectAuth(ctx context.Context, chosen uint8) (ServerAuth, error) {
	select {
	case <-ctx.Done():
		return nil, timeoutError("AuthRegistry.SelectAuth", "selection cancelled", ctx.Err())
	default:
	}

	if !r.IsSupported(chosen) {
		return nil, unsupportedError("AuthRegistry.SelectAuth",
			fmt.Sprintf("client chose unsupported security type %d", chosen), nil)
	}

	return r.CreateAuth(chosen)
}

// pickLegacyType chooses the single security type an RFB 3.3 server offers,
// preferring VncAuth over None when both are registered since a 3.3 client
// gives the server no say once the type is sent.
func (r *AuthRegistry) pickLegacyType() uint8 {
	if r.IsSupported(SecTypeVncAuth) {
		return SecTypeVncAuth
	}
	if r.IsSupported(SecTypeNone) {
		return SecTypeNone
	}
	types := r.OfferedTypes()
	if len(types) > 0 {
		return types[0]
	}
	return SecTypeInvalid
}

// ValidateAuthMethod performs validation on an authentication method instance
// before it is registered or used, catching misconfiguration early.
func (r *AuthRegistry) ValidateAuthMethod(auth ServerAuth) error {
	if auth == nil {
		return validationError("AuthRegistry.ValidateAuthMethod", "authentication method is nil", nil)
	}

	securityType := auth.SecurityType()
	if securityType == SecTypeInvalid {
		return validationError("AuthRegistry.ValidateAuthMethod", "invalid security type 0", nil)
	}

	switch a := auth.(type) {
	case *VNCPasswordAuth:
		if a.Password == "" {
			if r.logger != nil {
				r.logger.Warn("password authentication method has empty password")
			}
			return validationError("AuthRegistry.ValidateAuthMethod", "password authentication requires non-empty password", nil)
		}
		if len(a.Password) > VNCMaxPasswordLength {
			if r.logger != nil {
				r.logger.Warn("password exceeds VNC maximum length", Field{Key: "length", Value: len(a.Password)})
			}
		}
	case *NoneAuth:
		// No validation required.
	default:
		if r.logger != nil {
			r.logger.Debug("validating custom authentication method",
				Field{Key: "method", Value: auth.String()},
				Field{Key: "security_type", Value: securityType})
		}
	}

	return nil
}
