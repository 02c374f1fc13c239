package client

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"

	"github.com/omochice/linkchat/pkg/protocol"
)

// Console drives an interactive chat session: lines read from In are sent
// as chat messages and received messages are printed to the terminal.
type Console struct {
	Client Client
	In     io.Reader
}

// Run joins the room and blocks until In is exhausted or the user types
// "quit" or "exit". It leaves the room before returning.
func (c *Console) Run() error {
	if err := c.Client.Join(); err != nil {
		return fmt.Errorf("failed to join chat: %w", err)
	}

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for msg := range c.Client.Messages() {
			printMessage(msg)
		}
	}()

	pterm.Info.Println("Type your messages (or 'quit' to exit):")
	scanner := bufio.NewScanner(c.In)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "quit" || text == "exit" {
			break
		}
		if err := c.Client.SendMessage(text); err != nil {
			pterm.Error.Printfln("Failed to send message: %v", err)
		}
	}

	if err := c.Client.Leave(); err != nil {
		pterm.Warning.Printfln("Failed to send leave message: %v", err)
	}
	c.Client.Disconnect()
	<-printed

	return scanner.Err()
}

// FormatMessage renders msg as one terminal line.
func FormatMessage(msg protocol.ChatMessage) string {
	switch msg.Kind {
	case protocol.ChatKindJoin:
		return fmt.Sprintf("*** %s joined the chat ***", msg.Sender)
	case protocol.ChatKindLeave:
		return fmt.Sprintf("*** %s left the chat ***", msg.Sender)
	default:
		return fmt.Sprintf("[%s]: %s", msg.Sender, msg.Content)
	}
}

func printMessage(msg protocol.ChatMessage) {
	switch msg.Kind {
	case protocol.ChatKindJoin, protocol.ChatKindLeave:
		pterm.FgGray.Println(FormatMessage(msg))
	default:
		pterm.Println(FormatMessage(msg))
	}
}
