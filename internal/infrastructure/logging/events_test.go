package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/covreport/internal/domain"
)

func TestEventLogger_Publish(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(&buf, Options{Level: "info", JSON: true})
	require.NoError(t, err)

	p := NewEventLogger(logger)
	totals := domain.ReportTotals{Files: 3, Coverage: "75.00000"}
	require.NoError(t, p.Publish(domain.NewReportMergedEvent("abc", 2, totals)))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ReportMerged", entry["msg"])
	assert.Equal(t, "events", entry["logger"])
	assert.Equal(t, "abc", entry["commit"])
	assert.EqualValues(t, 2, entry["session"])
	assert.Equal(t, "75.00000", entry["coverage"])
}

func TestEventLogger_PublishAll(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(&buf, Options{Level: "info", JSON: true})
	require.NoError(t, err)

	err = NewEventLogger(logger).PublishAll([]domain.DomainEvent{
		domain.NewCarryForwardAppliedEvent("c2", "c1", []string{"unit"}, 1, true),
		domain.NewSessionsDeletedEvent("c2", []int{0, 1}, 4),
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"parent":"c1"`)
	assert.Contains(t, lines[1], `"files_left":4`)
}

func TestEventLogger_HiddenAtWarn(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(&buf, Options{})
	require.NoError(t, err)

	require.NoError(t, NewEventLogger(logger).Publish(domain.NewSessionsDeletedEvent("c", []int{1}, 0)))
	assert.Empty(t, buf.String())
}

func TestNewEventLogger_Nil(t *testing.T) {
	assert.NoError(t, NewEventLogger(nil).Publish(domain.NewSessionsDeletedEvent("c", nil, 0)))
}
