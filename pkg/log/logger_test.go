package log

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestSetLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		logger = newLogger()
	})

	SetLevel(1)
	Debugf("hidden %d", 1)
	assert.NotContains(t, buf.String(), "hidden")

	SetLevel(0)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	Debugf("shown %d", 2)
	assert.Contains(t, buf.String(), "shown 2")
}
