package core

// error_messages.go maps technical errors to operator-facing messages with
// a stable code that can be quoted to support.
//
// Codes by group:
//
//	IMP001 import busy         ErrTooManyRuns
//	IMP002 run not found       ErrRunNotFound
//	IMP003 unknown behavior    ErrUnknownBehavior
//	IMP004 run cancelled       context.Canceled
//	IMP005 run timed out       context.DeadlineExceeded
//	SRC001 missing columns     "missing required column"
//	SRC002 unsupported format  "unsupported file format"
//	SRC003 unreadable file     "read rows", "parse error"
//	SRC004 file too large      "file too large"
//	SRC005 no file             "no file provided"
//	DB001  connection refused  "connection refused"
//	DB002  connection reset    "connection reset"
//	DB003  timeout             "timeout"
//	DB004  constraint          "violates"
//	RATE001 rate limited       "rate limit"
//	ERR000 anything else
//
// Sentinel errors are matched with errors.Is first. Text patterns are then
// matched case-insensitively in table order, so specific patterns come
// before general ones.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage is an operator-facing description of an error.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

var sentinelMessages = []struct {
	target error
	msg    UserMessage
}{
	{ErrTooManyRuns, UserMessage{"Too many imports are running", "Wait for a running import to finish and try again", "IMP001"}},
	{ErrRunNotFound, UserMessage{"Import run not found", "Check the run id or list recent imports", "IMP002"}},
	{ErrUnknownBehavior, UserMessage{"Unknown import behavior", "Use one of append, replace or delete", "IMP003"}},
	{context.Canceled, UserMessage{"Import was cancelled", "Start a new import when ready", "IMP004"}},
	{context.DeadlineExceeded, UserMessage{"Import timed out", "Split the file or try again later", "IMP005"}},
}

var errorPatterns = []struct {
	pattern string
	msg     UserMessage
}{
	{"missing required column", UserMessage{"The file is missing required columns", "Include sku, price, qty, value and category in the header row", "SRC001"}},
	{"unsupported file format", UserMessage{"The file format is not supported", "Upload a .csv or .xlsx file", "SRC002"}},
	{"parse error", UserMessage{"The file could not be parsed", "Check that the file is a valid CSV or spreadsheet", "SRC003"}},
	{"read rows", UserMessage{"The file could not be read", "Check that the file is a valid CSV or spreadsheet", "SRC003"}},
	{"file too large", UserMessage{"The file exceeds the maximum upload size", "Split the file into smaller files", "SRC004"}},
	{"no file provided", UserMessage{"No file was provided", "Attach the file in the \"file\" form field", "SRC005"}},
	{"connection refused", UserMessage{"Unable to connect to the catalog database", "Try again in a few moments", "DB001"}},
	{"connection reset", UserMessage{"The database connection was interrupted", "Try again", "DB002"}},
	{"timeout", UserMessage{"A store operation timed out", "Try again later", "DB003"}},
	{"violates", UserMessage{"The catalog rejected the change", "Review the failed rows for invalid values", "DB004"}},
	{"rate limit", UserMessage{"Too many requests", "Wait a moment before trying again", "RATE001"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Try again or contact support",
	Code:    "ERR000",
}

// MapError converts err into a UserMessage. A nil error maps to the zero
// value; an unrecognized error maps to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, s := range sentinelMessages {
		if errors.Is(err, s.target) {
			return s.msg
		}
	}

	text := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(text, p.pattern) {
			return p.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	return err != nil && MapError(err).Code != defaultMessage.Code
}
