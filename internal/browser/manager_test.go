// File: internal/browser/manager_test.go
package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageStateUnknownTab(t *testing.T) {
	m := &Manager{tabs: map[string]*Tab{}}

	state, err := m.PageState(context.Background(), "no-such-tab")
	assert.Error(t, err)
	assert.Nil(t, state)
}

func TestPageStateNoRootTab(t *testing.T) {
	m := &Manager{}

	state, err := m.PageState(context.Background(), "")
	assert.Error(t, err)
	assert.Nil(t, state)
}
