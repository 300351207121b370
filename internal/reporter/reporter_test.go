package reporter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotifyAndClear(t *testing.T) {
	r := New()
	assert.Empty(t, r.Last())

	r.Notify("could not refresh")
	assert.Equal(t, "could not refresh", r.Last())

	r.Notify("")
	assert.Empty(t, r.Last())
}

func TestNilReporterIsSafe(t *testing.T) {
	var r *Reporter
	r.Notify("dropped")
	assert.Empty(t, r.Last())
}
