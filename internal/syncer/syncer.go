// Package syncer pulls the server's message list and caches every memo
// this device has not downloaded yet.
package syncer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/alecdray/talkie/internal/api"
	"github.com/alecdray/talkie/internal/msgstore"
	"github.com/alecdray/talkie/internal/securelog"
)

// TokenSource yields a usable bearer token, refreshing it when needed.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Outcome is the settlement of one message's prefetch pipeline.
type Outcome struct {
	MessageID  string
	Downloaded bool
	Err        error
}

type Syncer struct {
	api    *api.Client
	tokens TokenSource
	store  *msgstore.Store
}

func New(client *api.Client, tokens TokenSource, store *msgstore.Store) *Syncer {
	return &Syncer{api: client, tokens: tokens, store: store}
}

// Prefetch downloads every listed memo that is not cached yet. Each
// message runs its own pipeline concurrently; all of them settle before
// Prefetch returns, and one failing never aborts the others. Only the
// token and the list call can fail the whole operation. Callers should
// re-read the store afterwards rather than trust individual outcomes.
func (s *Syncer) Prefetch(ctx context.Context) ([]Outcome, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	msgs, err := s.api.ListMessages(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	if err := s.store.EnsureDirectory(); err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, len(msgs))
	var wg sync.WaitGroup
	for i, msg := range msgs {
		wg.Add(1)
		go func(i int, msg api.RemoteMessage) {
			defer wg.Done()
			outcomes[i] = s.prefetchOne(ctx, token, msg)
		}(i, msg)
	}
	wg.Wait()

	return outcomes, nil
}

// prefetchOne caches a single memo: download into place, record
// metadata, then acknowledge receipt. An already-cached memo skips all
// network work, so the acknowledgment fires at most once, on the first
// successful download. An ack failure is reported but never retried;
// the local cache is kept either way.
func (s *Syncer) prefetchOne(ctx context.Context, token string, msg api.RemoteMessage) Outcome {
	out := Outcome{MessageID: msg.ID}

	path := s.store.FileForID(msg.ID)
	if _, err := os.Stat(path); err == nil {
		return out
	}

	if err := s.download(ctx, token, msg.ID, path); err != nil {
		out.Err = fmt.Errorf("download %s: %w", msg.ID, err)
		securelog.Error("prefetch download", err)
		return out
	}

	meta := msgstore.Message{
		ID:           msg.ID,
		SenderUserID: msg.SenderUserID,
		Played:       msgstore.Unplayed,
		Duration:     msg.Duration,
		CreatedAt:    msg.CreatedAt,
		DeletedAt:    msg.DeletedAt,
	}
	if err := s.store.Upsert(path, meta); err != nil {
		_ = os.Remove(path)
		out.Err = fmt.Errorf("store %s: %w", msg.ID, err)
		securelog.Error("prefetch upsert", err)
		return out
	}
	out.Downloaded = true

	if err := s.api.MarkReceived(ctx, token, msg.ID); err != nil {
		out.Err = fmt.Errorf("mark received %s: %w", msg.ID, err)
		securelog.Error("mark received", err)
	}
	return out
}

// download writes to a temp file and renames into place, so a partial
// transfer never looks like a cached memo.
func (s *Syncer) download(ctx context.Context, token, id, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), id+".part-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if err := s.api.Download(ctx, token, id, tmp); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// Failed filters outcomes down to the ones that did not settle cleanly.
func Failed(outcomes []Outcome) []Outcome {
	var failed []Outcome
	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// IsAuthError reports whether a prefetch failure means the session is
// unusable rather than the network or a single message being flaky.
func IsAuthError(err error) bool {
	if apiErr, ok := api.AsError(err); ok {
		return apiErr.Unauthorized() || apiErr.Forbidden()
	}
	return false
}
