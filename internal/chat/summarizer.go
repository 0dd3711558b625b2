package chat

import (
	"fmt"

	"github.com/voxrelay/voxrelay/internal/model"
)

// summaryWindow is how many trailing messages feed the rolling summary.
const summaryWindow = 20

// shouldSummarize reports whether a conversation whose message count just
// reached total is due for a summary. The trigger fires on exact multiples
// of the threshold only, so the 19th and 21st message never summarize.
func shouldSummarize(total, threshold int) bool {
	return threshold > 0 && total > 0 && total%threshold == 0
}

// describeMessages produces the rolling summary text: a descriptive digest
// of message count and time span. An LLM-generated summary could be
// substituted here without changing the trigger contract.
func describeMessages(msgs []*model.Message, total int) string {
	if len(msgs) == 0 {
		return fmt.Sprintf("%d messages exchanged", total)
	}
	first := msgs[0].CreationTime.UTC()
	last := msgs[len(msgs)-1].CreationTime.UTC()
	return fmt.Sprintf("%d messages exchanged; last %d between %s and %s",
		total, len(msgs),
		first.Format("2006-01-02T15:04:05Z"),
		last.Format("2006-01-02T15:04:05Z"))
}
