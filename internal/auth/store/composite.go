package store

import (
	"context"
	"errors"
)

type composite struct {
	Store
	creds CredentialBackend
}

// WithCredentials returns a Store that keeps users in base but routes every
// credential operation to creds. Ping and Close cover both.
func WithCredentials(base Store, creds CredentialBackend) Store {
	return &composite{Store: base, creds: creds}
}

func (c *composite) Credentials() Credentials { return c.creds }

func (c *composite) Ping(ctx context.Context) error {
	if err := c.Store.Ping(ctx); err != nil {
		return err
	}
	return c.creds.Ping(ctx)
}

func (c *composite) Close() error {
	return errors.Join(c.creds.Close(), c.Store.Close())
}
