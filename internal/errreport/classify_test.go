package errreport

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

func restError(code int, status int) error {
	return &discordgo.RESTError{
		Message:  &discordgo.APIErrorMessage{Code: code, Message: "api error"},
		Response: &http.Response{StatusCode: status},
	}
}

func TestClassifyDiscordErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category Category
		severity Severity
	}{
		{"rate limit", &discordgo.RateLimitError{}, CategoryRateLimit, SeverityWarning},
		{"missing permissions", restError(discordgo.ErrCodeMissingPermissions, http.StatusForbidden), CategoryPermission, SeverityMinor},
		{"missing access", restError(discordgo.ErrCodeMissingAccess, http.StatusForbidden), CategoryPermission, SeverityMinor},
		{"unknown channel", restError(discordgo.ErrCodeUnknownChannel, http.StatusNotFound), CategoryNotFound, SeverityMinor},
		{"unknown interaction", restError(discordgo.ErrCodeUnknownInteraction, http.StatusNotFound), CategoryNotFound, SeverityMinor},
		{"server error", restError(0, http.StatusBadGateway), CategoryAPI, SeverityMajor},
		{"other api error", restError(0, http.StatusBadRequest), CategoryAPI, SeverityModerate},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			category, severity := Classify(tc.err)
			assert.Equal(t, tc.category, category)
			assert.Equal(t, tc.severity, severity)
		})
	}
}

func TestClassifyWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("handling command: %w", restError(discordgo.ErrCodeMissingPermissions, http.StatusForbidden))
	category, severity := Classify(wrapped)
	assert.Equal(t, CategoryPermission, category)
	assert.Equal(t, SeverityMinor, severity)
}

func TestClassifyHeuristics(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category Category
		severity Severity
	}{
		{"storage", errors.New("datastore: save failed"), CategoryStorage, SeverityCritical},
		{"network reset", errors.New("read: connection reset by peer"), CategoryNetwork, SeverityMajor},
		{"dns", errors.New("dial tcp: lookup discord.com: no such host"), CategoryNetwork, SeverityMajor},
		{"cancelled", errors.New("context canceled"), CategoryNetwork, SeverityModerate},
		{"permission text", errors.New("bot is missing permission to manage channels"), CategoryPermission, SeverityMinor},
		{"fallback", errors.New("something odd"), CategoryUnknown, SeverityModerate},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			category, severity := Classify(tc.err)
			assert.Equal(t, tc.category, category)
			assert.Equal(t, tc.severity, severity)
		})
	}
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "warning", SeverityWarning.String())
	assert.Equal(t, "critical", SeverityCritical.String())
	assert.Equal(t, "unknown", Severity(99).String())
}
