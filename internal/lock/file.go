package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
)

// leasePayload is the JSON body written inside the advisory-locked region
// so Check can be answered by any process, not just the holder.
type leasePayload struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"time"`
}

// FileProvider stores the lease in a file protected by an OS advisory
// lock (github.com/gofrs/flock), giving cross-platform single-instance
// enforcement without a network dependency.
type FileProvider struct {
	Path    string
	TTL     time.Duration
	Padding time.Duration

	fl *flock.Flock
}

// NewFileProvider builds a file-backed lock provider at path with the
// given lease TTL.
func NewFileProvider(path string, ttl time.Duration) *FileProvider {
	return &FileProvider{Path: path, TTL: ttl, Padding: DefaultPadding}
}

func (p *FileProvider) Setup(ctx context.Context) error {
	p.fl = flock.New(p.Path)
	return nil
}

func (p *FileProvider) Teardown(ctx context.Context) error {
	if p.fl == nil {
		return nil
	}
	locked, err := p.withLock(ctx, func() error {
		payload, err := p.read()
		if err != nil {
			return nil // nothing to release
		}
		if payload.PID == os.Getpid() {
			return os.Remove(p.Path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !locked {
		return fmt.Errorf("lock: teardown: could not acquire advisory lock on %s", p.Path)
	}
	return nil
}

func (p *FileProvider) Check(ctx context.Context) (Lease, bool, error) {
	payload, err := p.read()
	if err != nil {
		return Lease{}, false, nil
	}
	if expired(Lease{OwnerPID: payload.PID, AcquiredAt: payload.AcquiredAt}, p.TTL, p.Padding, time.Now()) {
		return Lease{}, false, nil
	}
	return Lease{OwnerPID: payload.PID, AcquiredAt: payload.AcquiredAt}, true, nil
}

func (p *FileProvider) Set(ctx context.Context) error {
	var setErr error
	locked, err := p.withLock(ctx, func() error {
		existing, err := p.read()
		if err == nil && existing.PID != os.Getpid() &&
			!expired(Lease{OwnerPID: existing.PID, AcquiredAt: existing.AcquiredAt}, p.TTL, p.Padding, time.Now()) {
			setErr = ErrHeldByOther
			return nil
		}
		payload := leasePayload{PID: os.Getpid(), AcquiredAt: time.Now()}
		return p.write(payload)
	})
	if err != nil {
		return err
	}
	if !locked {
		return fmt.Errorf("lock: set: could not acquire advisory lock on %s", p.Path)
	}
	return setErr
}

func (p *FileProvider) CheckEnvironment(ctx context.Context) error {
	f, err := os.OpenFile(p.Path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("lock: file backend cannot create/open %s: %w", p.Path, err)
	}
	return f.Close()
}

func (p *FileProvider) withLock(ctx context.Context, fn func() error) (bool, error) {
	locked, err := p.fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil || !locked {
		return false, err
	}
	defer p.fl.Unlock()
	return true, fn()
}

func (p *FileProvider) read() (leasePayload, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return leasePayload{}, err
	}
	var payload leasePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return leasePayload{}, err
	}
	return payload, nil
}

func (p *FileProvider) write(payload leasePayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return os.WriteFile(p.Path, data, 0o644)
}
