package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
)

const nextContiguousMessageIDQuery = `WITH data AS (
    SELECT
        message_id,
        row_number() OVER (ORDER BY message_id) - 1 AS rn
    FROM chat_messages
    WHERE contract = ?
    GROUP BY message_id
)
SELECT count() AS next_id
FROM data
WHERE rn = message_id`

// NextContiguousMessageID returns the length of the gap-free archived prefix
// of contract: every id below the result is archived. It is 0 when nothing is
// archived or id 0 is missing.
func (r *Repository) NextContiguousMessageID(ctx context.Context, contract string) (uint64, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("next_contiguous_message_id", err, start)
	}()

	row := r.conn.QueryRow(ctx, nextContiguousMessageIDQuery, model.NormalizeAddress(contract))
	if err = row.Err(); err != nil {
		return 0, fmt.Errorf("query next contiguous message id: %w", err)
	}

	var next uint64
	if err = row.Scan(&next); err != nil {
		return 0, fmt.Errorf("scan next contiguous message id: %w", err)
	}
	return next, nil
}
