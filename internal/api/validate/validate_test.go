package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserIDOrDefault(t *testing.T) {
	assert.Equal(t, "anonymous", UserIDOrDefault(""))
	assert.Equal(t, "anonymous", UserIDOrDefault("   "))
	assert.Equal(t, "u1", UserIDOrDefault("u1"))
	assert.Equal(t, "u1", UserIDOrDefault(" u1 "))
}

func TestChatMessage(t *testing.T) {
	assert.Error(t, ChatMessage(""))
	assert.Error(t, ChatMessage("  \n"))
	assert.NoError(t, ChatMessage("hello"))
	assert.Error(t, ChatMessage(strings.Repeat("x", maxMessageBytes+1)))
}

func TestSessionID(t *testing.T) {
	assert.Error(t, SessionID(""))
	assert.NoError(t, SessionID("u1"))
	assert.Error(t, SessionID(strings.Repeat("s", maxIDBytes+1)))
}

func TestWindowSize(t *testing.T) {
	n, err := WindowSize("")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = WindowSize("5")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = WindowSize("abc")
	assert.Error(t, err)
	_, err = WindowSize("0")
	assert.Error(t, err)
	_, err = WindowSize("101")
	assert.Error(t, err)
}
