package ticket

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

const transcriptPage = 100

// BuildTranscript renders the channel history oldest-first as plain
// text, paging backwards through the message list.
func BuildTranscript(ops ChannelOps, channelID string) (string, error) {
	var pages [][]string
	beforeID := ""

	for {
		msgs, err := ops.Messages(channelID, transcriptPage, beforeID)
		if err != nil {
			return "", fmt.Errorf("fetch history: %w", err)
		}
		if len(msgs) == 0 {
			break
		}

		// The API returns newest-first; flip each page.
		lines := make([]string, 0, len(msgs))
		for i := len(msgs) - 1; i >= 0; i-- {
			lines = append(lines, formatMessage(msgs[i]))
		}
		pages = append(pages, lines)

		beforeID = msgs[len(msgs)-1].ID
		if len(msgs) < transcriptPage {
			break
		}
	}

	var b strings.Builder
	for i := len(pages) - 1; i >= 0; i-- {
		for _, line := range pages[i] {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

func formatMessage(m *discordgo.Message) string {
	author := "unknown"
	if m.Author != nil {
		author = m.Author.Username
	}
	ts := m.Timestamp.UTC().Format("2006-01-02 15:04:05")

	content := m.Content
	if content == "" && len(m.Attachments) > 0 {
		content = "[attachment]"
	}
	return fmt.Sprintf("[%s] %s: %s", ts, author, content)
}
