package adapter

import (
	"fmt"
	"io"
)

// StdioAdapter writes responses to an io.Writer, prefixed with the
// channel name. It is the Adapter ACE's CLI uses when a proposal's
// outcome needs to be surfaced directly to the operator's terminal
// rather than routed back through a chat platform.
type StdioAdapter struct {
	Out io.Writer
}

func NewStdioAdapter(out io.Writer) *StdioAdapter {
	return &StdioAdapter{Out: out}
}

func (a *StdioAdapter) AdapterSend(channel string, response string) error {
	_, err := fmt.Fprintf(a.Out, "[%s] %s\n", channel, response)
	return err
}

func (a *StdioAdapter) AdapterReply(message Message, response string) error {
	return a.AdapterSend(message.Channel, response)
}
