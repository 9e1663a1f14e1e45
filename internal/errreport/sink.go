package errreport

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

var severityColors = map[Severity]int{
	SeverityWarning:  0x95a5a6,
	SeverityMinor:    0xf1c40f,
	SeverityModerate: 0xe67e22,
	SeverityMajor:    0xe74c3c,
	SeverityCritical: 0x992d22,
}

// WebhookSink delivers reports as embeds through a Discord webhook.
type WebhookSink struct {
	session *discordgo.Session
	id      string
	token   string
}

// NewWebhookSink parses a webhook URL of the form
// .../api/webhooks/{id}/{token} and binds it to the session.
func NewWebhookSink(session *discordgo.Session, url string) (*WebhookSink, error) {
	id, token, err := parseWebhookURL(url)
	if err != nil {
		return nil, err
	}
	return &WebhookSink{session: session, id: id, token: token}, nil
}

// Deliver implements Sink.
func (w *WebhookSink) Deliver(r Report) error {
	embed := &discordgo.MessageEmbed{
		Title:       r.Title,
		Description: r.Body,
		Color:       severityColors[r.Severity],
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Category", Value: string(r.Category), Inline: true},
			{Name: "Severity", Value: r.Severity.String(), Inline: true},
			{Name: "Count", Value: fmt.Sprintf("%d", r.Count), Inline: true},
		},
	}

	_, err := w.session.WebhookExecute(w.id, w.token, false, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
	})
	if err != nil {
		return fmt.Errorf("webhook delivery: %w", err)
	}
	return nil
}

func parseWebhookURL(url string) (id, token string, err error) {
	const marker = "/webhooks/"
	idx := strings.Index(url, marker)
	if idx < 0 {
		return "", "", fmt.Errorf("not a webhook URL: %s", url)
	}

	parts := strings.Split(strings.Trim(url[idx+len(marker):], "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("not a webhook URL: %s", url)
	}
	return parts[0], parts[1], nil
}
