package keyrotation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skycoin/skywire-utilities/pkg/cipher"
	"github.com/skycoin/skywire-utilities/pkg/netutil"
)

// DefaultKeyValidity is how long freshly generated keys stay valid.
const DefaultKeyValidity = 30 * 24 * time.Hour

// KeyUploader registers a public key with the account backend.
type KeyUploader interface {
	UploadPublicKey(ctx context.Context, pk cipher.PubKey) error
}

// LocalRegenerator generates key pairs locally and uploads the public key.
type LocalRegenerator struct {
	Uploader KeyUploader
	Validity time.Duration
	Clock    func() time.Time
	// Retrier, when set, retries failed uploads.
	Retrier *netutil.Retrier
}

// RegenerateKeys implements Regenerator. The work runs on its own goroutine.
func (r *LocalRegenerator) RegenerateKeys(ctx context.Context, done func(KeyPair, error)) {
	go func() {
		kp, err := r.regenerate(ctx)
		done(kp, err)
	}()
}

func (r *LocalRegenerator) regenerate(ctx context.Context) (KeyPair, error) {
	now := time.Now
	if r.Clock != nil {
		now = r.Clock
	}
	validity := r.Validity
	if validity <= 0 {
		validity = DefaultKeyValidity
	}

	pk, sk := cipher.GenerateKeyPair()

	if r.Uploader != nil {
		if err := r.upload(ctx, pk); err != nil {
			return KeyPair{}, fmt.Errorf("failed to upload public key: %w", err)
		}
	}

	t := now()
	return KeyPair{
		Public:      pk,
		Secret:      sk,
		GeneratedAt: t,
		ExpiresAt:   t.Add(validity),
	}, nil
}

func (r *LocalRegenerator) upload(ctx context.Context, pk cipher.PubKey) error {
	if r.Retrier == nil {
		return r.Uploader.UploadPublicKey(ctx, pk)
	}

	var lastErr error
	err := r.Retrier.Do(ctx, func() error {
		lastErr = r.Uploader.UploadPublicKey(ctx, pk)
		return lastErr
	})
	if err != nil && lastErr != nil && !errors.Is(err, lastErr) {
		return fmt.Errorf("%w: %v", err, lastErr)
	}
	return err
}
