package translator

import (
	"context"
	"errors"
	"fmt"

	"github.com/chriscow/livetranslate-go/pkg/media"
	"github.com/chriscow/livetranslate-go/pkg/queue"
	"github.com/chriscow/livetranslate-go/pkg/session"
)

// send forwards captured chunks to the session in capture order. It is the
// only consumer of the outbound queue.
func (o *Orchestrator) send(ctx context.Context, sess session.Session, out *queue.Queue[media.Chunk]) error {
	for {
		chunk, err := out.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return nil
			}
			return fmt.Errorf("send dequeue: %w", err)
		}

		if err := sess.SendAudio(ctx, chunk); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("send audio: %w", err)
		}
		o.metrics.Sent(out.Len())
	}
}
