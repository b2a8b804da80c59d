package adapter

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdioAdapter_SendWritesChannelPrefixedLine(t *testing.T) {
	var buf bytes.Buffer
	a := NewStdioAdapter(&buf)
	require.NoError(t, a.AdapterSend("ops", "approved"))
	assert.Equal(t, "[ops] approved\n", buf.String())
}

func TestStdioAdapter_ReplyUsesMessageChannel(t *testing.T) {
	var buf bytes.Buffer
	a := NewStdioAdapter(&buf)
	msg := Message{
		ID:        "m1",
		Platform:  "cli",
		Channel:   "console",
		Sender:    "operator",
		Type:      TypeCommand,
		Content:   Content{Text: "score git:commit:local"},
		Timestamp: time.Now(),
	}
	require.NoError(t, a.AdapterReply(msg, "0.82"))
	assert.Equal(t, "[console] 0.82\n", buf.String())
}
