package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
)

func TestRenderTableNumericColumnsRightAligned(t *testing.T) {
	out := renderTable(
		[]column{textCol("Category"), numCol("Current")},
		[][]string{{"Blood", "70.00"}},
	)
	assert.Contains(t, out, "   70.00 │")
	assert.Contains(t, out, "│ Blood    │")
}

func TestRenderTableFillsMissingCells(t *testing.T) {
	out := renderTable(
		[]column{textCol("Action"), textCol("Reason"), textCol("Match")},
		[][]string{{"emit", ""}},
	)
	assert.Contains(t, out, "│ emit   │ -      │ -     │")
}

func TestRenderTableWrapsWideColumns(t *testing.T) {
	reasoning := strings.Repeat("dismissed near threshold ", 6)
	out := renderTable([]column{wideCol("Reasoning")}, [][]string{{reasoning}})
	for _, line := range strings.Split(out, "\n") {
		assert.LessOrEqual(t, len([]rune(line)), 48+4)
	}
}

func TestRenderTableNoColumns(t *testing.T) {
	assert.Empty(t, renderTable(nil, nil))
}

func TestDisplayCategory(t *testing.T) {
	assert.Equal(t, "Swear Words", displayCategory(detection.SwearWords))
	assert.Equal(t, "Blood", displayCategory(detection.Blood))
}
