package main

import (
	"fmt"
	"io"

	"github.com/zhouzirui/private-chat/internal/client"
	"github.com/zhouzirui/private-chat/internal/model/chat"
	"github.com/zhouzirui/private-chat/internal/service/channel"
	"github.com/zhouzirui/private-chat/internal/service/session"
)

// view prints each snapshot incrementally: a badge line whenever
// connectivity changes and every log entry once.
type view struct {
	out     io.Writer
	badge   string
	printed int
}

func (v *view) render(snap client.Snapshot) {
	if badge := badgeFor(snap); badge != v.badge {
		fmt.Fprintln(v.out, badge)
		v.badge = badge
	}
	if v.printed > len(snap.Messages) {
		v.printed = 0
	}
	for _, msg := range snap.Messages[v.printed:] {
		fmt.Fprintln(v.out, formatEntry(msg))
	}
	v.printed = len(snap.Messages)
}

func badgeFor(snap client.Snapshot) string {
	switch {
	case snap.Session == session.Unauthenticated && snap.AuthErr != nil:
		return fmt.Sprintf("○ signed out (%v)", snap.AuthErr)
	case snap.Session == session.Unauthenticated:
		return "○ signed out"
	case snap.Connected && snap.Identity != nil:
		return fmt.Sprintf("● connected as %s", snap.Identity.DisplayName)
	case snap.Channel == channel.Connecting:
		return "◌ connecting"
	case snap.ChannelErr != nil:
		return fmt.Sprintf("✕ disconnected: %v", snap.ChannelErr)
	default:
		return "○ disconnected"
	}
}

func formatEntry(msg chat.Message) string {
	name := msg.Author
	if msg.IsAutomated {
		name = "🤖 " + name
	}
	return fmt.Sprintf("[%s] %s: %s", msg.Time().Format("15:04"), name, msg.Body)
}
