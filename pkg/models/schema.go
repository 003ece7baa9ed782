package models

import (
	"regexp"
	"strings"
	"time"
)

var (
	msisdnPattern    = regexp.MustCompile(`^\+\d{1,15}$`)
	timestampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`)
)

const (
	ReasonMSISDNFormat      = "must be in E.164-like format, starting with '+' followed by 1 to 15 digits"
	ReasonTimestampFormat   = "must be a strict ISO-8601 UTC string with 'Z' suffix (YYYY-MM-DDTHH:MM:SSZ)"
	ReasonTimestampCalendar = "timestamp format is valid but date/time itself is invalid"
)

func ValidMSISDN(s string) bool {
	return msisdnPattern.MatchString(s)
}

// CheckTimestamp returns an empty reason when s is both well formed and a real
// calendar instant.
func CheckTimestamp(s string) string {
	if !timestampPattern.MatchString(s) {
		return ReasonTimestampFormat
	}
	if _, err := time.Parse(TimestampLayout, s); err != nil {
		return ReasonTimestampCalendar
	}
	return ""
}

func ValidTimestamp(s string) bool {
	return CheckTimestamp(s) == ""
}

// NormalizeMSISDN restores a '+' that query-string transport decoded into a space.
func NormalizeMSISDN(s string) string {
	return strings.ReplaceAll(s, " ", "+")
}
