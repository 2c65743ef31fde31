package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jazzyalex/agent-sessions/internal/tui/components"
)

func TestTabAtXMatchesTabWidths(t *testing.T) {
	n := len(components.Tabs)
	for active := 0; active < n; active++ {
		a := App{activeTab: active}
		pos := 0

		for i := 0; i < n; i++ {
			w := tabWidthForTest(i, active)
			x := pos + w/2 // midpoint inside this tab
			assert.Equal(t, i, a.tabAtX(x), "active=%d x=%d", active, x)
			pos += w + 1 // separator
		}
		assert.Equal(t, -1, a.tabAtX(pos+50))
	}
}

func tabWidthForTest(tabIdx, activeIdx int) int {
	nameWidths := []int{
		len("Search"),
		len("Browse"),
		len("Repos"),
		len("Settings"),
	}

	w := nameWidths[tabIdx] + 2 // horizontal padding in tab renderer
	if tabIdx != activeIdx && tabIdx == 3 {
		w += 3 // inactive Settings adds "[x]"
	}
	return w
}
