package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hvgate/hvgate/internal/auditlog"
)

func TestPrintHistory(t *testing.T) {
	entries := []auditlog.Entry{
		{
			Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Action:    auditlog.ActionStart,
			Target:    "web",
			ClientIP:  "10.0.0.5",
			Status:    auditlog.StatusOK,
		},
		{
			Timestamp: time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
			Action:    auditlog.ActionStop,
			Target:    "db",
			ClientIP:  "10.0.0.6",
			Status:    auditlog.StatusError,
			Details:   strings.Repeat("x", 100),
		},
	}

	buf := &bytes.Buffer{}
	printHistory(entries, buf)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "TIME")
	assert.Contains(t, lines[0], "DETAILS")
	assert.Contains(t, lines[1], "start")
	assert.Contains(t, lines[1], "web")
	assert.Contains(t, lines[2], "error")

	// long details are truncated with an ellipsis
	assert.Contains(t, lines[2], "...")
	assert.NotContains(t, lines[2], strings.Repeat("x", 61))
}

func TestPrintHistoryEmpty(t *testing.T) {
	buf := &bytes.Buffer{}
	printHistory(nil, buf)

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"), "just the header")
}
