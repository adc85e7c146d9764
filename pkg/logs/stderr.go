package logs

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"conduit/pkg/msgstore"
)

// NormalizeStderr consumes the store's stderr line stream on a new
// goroutine and republishes each non-empty line as an error_output entry
// patch at the next index. It returns once the goroutine is started; the
// goroutine exits when the stderr stream terminates (Finished or store
// close) or ctx is done.
func NormalizeStderr(ctx context.Context, store *msgstore.Store, provider *msgstore.EntryIndexProvider, logger *zap.Logger) {
	go func() {
		for line := range store.StderrLines(ctx) {
			line = strings.TrimRight(line, "\r\n")
			if strings.TrimSpace(line) == "" {
				continue
			}

			entry := NormalizedEntry{
				EntryType: ErrorOutput(),
				Content:   line,
			}
			raw, err := AddEntry(provider.Next(), entry).Raw()
			if err != nil {
				logger.Error("drop stderr entry", zap.Error(err))
				continue
			}
			store.PushPatch(raw)
		}
	}()
}
