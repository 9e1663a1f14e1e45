package errreport

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Category buckets errors by origin for grouping and dedup keys.
type Category string

const (
	CategoryPermission Category = "permission"
	CategoryNotFound   Category = "not-found"
	CategoryRateLimit  Category = "rate-limit"
	CategoryNetwork    Category = "network"
	CategoryAPI        Category = "api"
	CategoryStorage    Category = "storage"
	CategoryUnknown    Category = "unknown"
)

// Severity is an ordered scale. Warning sits below the fatal bands and
// is reserved for non-fatal SDK noise.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityMinor
	SeverityModerate
	SeverityMajor
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityMinor:
		return "minor"
	case SeverityModerate:
		return "moderate"
	case SeverityMajor:
		return "major"
	case SeverityCritical:
		return "critical"
	}
	return "unknown"
}

// Classify maps an error to a category and severity using discordgo's
// REST error codes first and message-substring heuristics as the
// fallback.
func Classify(err error) (Category, Severity) {
	var rateErr *discordgo.RateLimitError
	if errors.As(err, &rateErr) {
		return CategoryRateLimit, SeverityWarning
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Message != nil {
			switch restErr.Message.Code {
			case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
				return CategoryPermission, SeverityMinor
			case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownMessage,
				discordgo.ErrCodeUnknownUser, discordgo.ErrCodeUnknownMember,
				discordgo.ErrCodeUnknownInteraction:
				return CategoryNotFound, SeverityMinor
			}
		}
		if restErr.Response != nil && restErr.Response.StatusCode >= http.StatusInternalServerError {
			return CategoryAPI, SeverityMajor
		}
		return CategoryAPI, SeverityModerate
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "datastore") || strings.Contains(msg, "storage"):
		return CategoryStorage, SeverityCritical
	case strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "dial tcp"),
		strings.Contains(msg, "no such host"):
		return CategoryNetwork, SeverityMajor
	case strings.Contains(msg, "context canceled"),
		strings.Contains(msg, "context deadline exceeded"):
		return CategoryNetwork, SeverityModerate
	case strings.Contains(msg, "missing permission"),
		strings.Contains(msg, "missing access"):
		return CategoryPermission, SeverityMinor
	}

	return CategoryUnknown, SeverityModerate
}
