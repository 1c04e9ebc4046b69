package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrUnsupportedScheme is returned when no provider is registered for a
// location's scheme.
var ErrUnsupportedScheme = errors.New("unsupported storage scheme")

// Opener dispatches locations to the provider for their scheme. Local paths
// are always served by the local provider.
type Opener struct {
	local     Provider
	providers map[string]Provider
}

// OpenerOption configures an Opener.
type OpenerOption func(*Opener)

// WithProvider registers a provider for a scheme.
func WithProvider(scheme string, p Provider) OpenerOption {
	return func(o *Opener) {
		o.providers[scheme] = p
	}
}

// NewOpener creates an Opener backed by the local filesystem plus any
// registered providers.
func NewOpener(opts ...OpenerOption) *Opener {
	o := &Opener{
		local:     NewLocalProvider(),
		providers: make(map[string]Provider),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open parses raw and opens it for reading.
func (o *Opener) Open(ctx context.Context, raw string) (io.ReadCloser, error) {
	loc, p, err := o.resolve(raw)
	if err != nil {
		return nil, err
	}
	return p.Open(ctx, loc)
}

// Create parses raw and opens it for writing.
func (o *Opener) Create(ctx context.Context, raw string) (io.WriteCloser, error) {
	loc, p, err := o.resolve(raw)
	if err != nil {
		return nil, err
	}
	return p.Create(ctx, loc)
}

// Close closes every registered provider.
func (o *Opener) Close() error {
	errs := []error{o.local.Close()}
	for _, p := range o.providers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

func (o *Opener) resolve(raw string) (Location, Provider, error) {
	loc, err := ParseLocation(raw)
	if err != nil {
		return Location{}, nil, err
	}
	if loc.IsLocal() {
		return loc, o.local, nil
	}

	p, ok := o.providers[loc.Scheme]
	if !ok {
		return Location{}, nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, loc.Scheme)
	}
	return loc, p, nil
}
