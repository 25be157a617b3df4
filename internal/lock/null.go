package lock

import (
	"context"
	"os"
	"time"
)

// NullProvider always grants the lease; used in tests and when no
// singleton guarantee is needed (e.g. a one-off foreground run).
type NullProvider struct {
	acquired bool
	at       time.Time
}

// NewNullProvider builds a no-op lock provider.
func NewNullProvider() *NullProvider { return &NullProvider{} }

func (p *NullProvider) Setup(ctx context.Context) error    { return nil }
func (p *NullProvider) Teardown(ctx context.Context) error { p.acquired = false; return nil }

func (p *NullProvider) Check(ctx context.Context) (Lease, bool, error) {
	if !p.acquired {
		return Lease{}, false, nil
	}
	return Lease{OwnerPID: os.Getpid(), AcquiredAt: p.at}, true, nil
}

func (p *NullProvider) Set(ctx context.Context) error {
	p.acquired = true
	p.at = time.Now()
	return nil
}

func (p *NullProvider) CheckEnvironment(ctx context.Context) error { return nil }
