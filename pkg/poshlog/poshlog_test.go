// SPDX-License-Identifier: MPL-2.0

package poshlog

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel_Valid(t *testing.T) {
	for _, s := range []string{"none", "error", "info", "debug"} {
		lvl, err := ParseLevel(s)
		require.NoError(t, err)
		assert.Equal(t, Level(s), lvl)
	}
}

func TestParseLevel_RejectsUnknown(t *testing.T) {
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNew_NoneLevelSuppressesInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "dispatcher", LevelNone)
	logger.Info("should not appear")
	assert.Empty(t, buf.String())
}

func TestNew_DebugLevelEmitsDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "dispatcher", LevelDebug)
	logger.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
	assert.Equal(t, log.DebugLevel, logger.GetLevel())
}
