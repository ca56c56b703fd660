// event.go: public Event, Message, Level, and DispatcherState aliases
//
// Copyright (c) 2026 ausimian
// SPDX-License-Identifier: MIT

package lokiagent

import (
	"github.com/ausimian/loki-logger-handler/internal/dispatcher"
	"github.com/ausimian/loki-logger-handler/internal/logentry"
)

// Level is the severity of a log event (spec §3's enumeration).
type Level = logentry.Level

const (
	Debug     = logentry.Debug
	Info      = logentry.Info
	Notice    = logentry.Notice
	Warning   = logentry.Warning
	Error     = logentry.Error
	Critical  = logentry.Critical
	Alert     = logentry.Alert
	Emergency = logentry.Emergency
)

// ParseLevel parses one of the enumerated level names.
func ParseLevel(s string) (Level, bool) { return logentry.ParseLevel(s) }

// Event is the shape the host logging facade is documented to deliver to
// Store (spec §6 event schema): a level, a message, and a metadata map.
type Event = logentry.Event

// Message is the sum type a host facade's log call carries: TextMessage,
// ReportMessage, KeyedReportMessage, or FormatMessage.
type Message = logentry.Message

// TextMessage wraps a plain-text message body.
func TextMessage(s string) Message { return logentry.Text(s) }

// ReportMessage wraps a structured key/value report rendered as
// space-separated key=value pairs (non-string values in Go-syntax %#v
// form) unless overridden by meta["report_cb"].
func ReportMessage(report map[string]any) Message { return logentry.Report(report) }

// KeyValue is one pair of a KeyedReportMessage.
type KeyValue = logentry.KeyValue

// KeyedReportMessage wraps an order-preserving key/value report.
func KeyedReportMessage(pairs []KeyValue) Message { return logentry.KeyedReport(pairs) }

// FormatMessage wraps a printf-style template and its arguments.
func FormatMessage(template string, args ...any) Message {
	return logentry.Format{Template: template, Args: args}
}

// DispatcherState is the read-only diagnostic snapshot exposed by
// GetState: consecutive push failures and the next scheduled interval.
type DispatcherState = dispatcher.State
