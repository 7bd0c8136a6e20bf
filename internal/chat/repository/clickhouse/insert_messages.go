package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
)

const insertMessagesQuery = `
INSERT INTO chat_messages (
	contract,
	message_id,
	sender,
	content,
	timestamp
) VALUES`

// InsertMessages stores confirmed messages of one contract. Rows are keyed by
// contract and id, so writing a message twice is harmless.
func (r *Repository) InsertMessages(ctx context.Context, contract string, msgs []model.Message) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("insert_messages", err, start)
	}()

	confirmed := make([]model.Message, 0, len(msgs))
	for _, msg := range msgs {
		if msg.State == model.StateConfirmed {
			confirmed = append(confirmed, msg)
		}
	}
	if len(confirmed) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx, insertMessagesQuery)
	if err != nil {
		return fmt.Errorf("prepare messages batch: %w", err)
	}

	for _, msg := range confirmed {
		if err = batch.Append(
			model.NormalizeAddress(contract),
			msg.ID,
			model.NormalizeAddress(msg.Sender),
			msg.Content,
			time.Unix(msg.Timestamp, 0).UTC(),
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append message %d: %w", msg.ID, err)
		}
	}

	if err = batch.Send(); err != nil {
		return fmt.Errorf("insert messages: %w", err)
	}
	return nil
}
