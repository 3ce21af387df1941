// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import "sync"

// Extension lets a third party claim one or more pseudo-encoding numbers and
// hook into a client's lifecycle and message loop without the core knowing
// anything about what the extension does.
type Extension struct {
	// Name identifies the extension for logging and for per-client payload
	// lookup.
	Name string

	// PseudoEncodings lists the encoding numbers this extension claims.
	// SetEncodings offers an unrecognized number to every extension that
	// claims it.
	PseudoEncodings []int32

	// NewClient runs once, right after a Client is linked into its screen.
	NewClient func(c *Client)

	// Init runs once a client's enabled pseudo-encoding set includes one of
	// this extension's numbers for the first time.
	Init func(c *Client) error

	// EnablePseudoEncoding runs every time SetEncodings lists one of this
	// extension's numbers, including repeats.
	EnablePseudoEncoding func(c *Client, encoding int32) error

	// HandleMessage is offered a Normal-state message type byte this
	// extension did not itself claim as a pseudo-encoding; it returns
	// handled=true if it consumed the message (and thus the remaining
	// bytes of the message from the stream).
	HandleMessage func(c *Client, messageType uint8, s *byteStream) (handled bool, err error)

	// Close runs once, when the client is closed.
	Close func(c *Client)
}

// ExtensionRegistry holds the extensions a Screen makes available to its
// clients, keyed by the pseudo-encoding numbers they claim. Structurally the
// same factory-map-with-mutex shape as AuthRegistry, since both solve the
// same problem: dispatch on a small integer a client sent over the wire.
type ExtensionRegistry struct {
	mu         sync.RWMutex
	byName     map[string]*Extension
	byEncoding map[int32][]*Extension
	logger     Logger
}

// NewExtensionRegistry creates an empty extension registry.
func NewExtensionRegistry() *ExtensionRegistry {
	return &ExtensionRegistry{
		byName:     make(map[string]*Extension),
		byEncoding: make(map[int32][]*Extension),
		logger:     &NoOpLogger{},
	}
}

// SetLogger sets the logger for the extension registry.
func (r *ExtensionRegistry) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register adds an extension to the registry.
func (r *ExtensionRegistry) Register(ext *Extension) error {
	if ext == nil || ext.Name == "" {
		return validationError("ExtensionRegistry.Register", "extension must have a name", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[ext.Name]; exists {
		return validationError("ExtensionRegistry.Register",
			"extension already registered: "+ext.Name, nil)
	}

	r.byName[ext.Name] = ext
	for _, enc := range ext.PseudoEncodings {
		r.byEncoding[enc] = append(r.byEncoding[enc], ext)
	}

	if r.logger != nil {
		r.logger.Debug("registered extension", Field{Key: "name", Value: ext.Name})
	}

	return nil
}

// Unregister removes an extension by name.
func (r *ExtensionRegistry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ext, exists := r.byName[name]
	if !exists {
		return false
	}
	delete(r.byName, name)

	for _, enc := range ext.PseudoEncodings {
		list := r.byEncoding[enc]
		for i, candidate := range list {
			if candidate == ext {
				r.byEncoding[enc] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}

	return true
}

// ClaimantsFor returns every extension that claims the given pseudo-encoding
// number.
func (r *ExtensionRegistry) ClaimantsFor(encoding int32) []*Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Extension(nil), r.byEncoding[encoding]...)
}

// all returns every registered extension, for the NewClient fan-out.
func (r *ExtensionRegistry) all() []*Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Extension, 0, len(r.byName))
	for _, ext := range r.byName {
		out = append(out, ext)
	}
	return out
}

// Get returns a registered extension by name.
func (r *ExtensionRegistry) Get(name string) (*Extension, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext, ok := r.byName[name]
	return ext, ok
}
