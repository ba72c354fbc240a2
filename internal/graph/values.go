package graph

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// IDNode is a bare identifier with no resolved entity.
type IDNode struct{ ID string }

func (n *IDNode) node()          {}
func (n *IDNode) Kind() Kind     { return KindID }
func (n *IDNode) Name() string   { return n.ID }
func (n *IDNode) String() string { return n.ID }

func (n *IDNode) attrs() attrs {
	return attrs{
		{"id", func() any { return n.ID }},
		{"created_at", func() any { return snowflakeTime(n.ID) }},
	}
}

func (n *IDNode) Entries() []string            { return entries(n, n.attrs()) }
func (n *IDNode) Attr(name string) (any, bool) { return lookup(n, n.attrs(), name) }

// UnicodeEmojiNode is a standard emoji character sequence.
type UnicodeEmojiNode struct{ Value string }

func (n *UnicodeEmojiNode) node()           {}
func (n *UnicodeEmojiNode) Kind() Kind      { return KindUnicodeEmoji }
func (n *UnicodeEmojiNode) Name() string    { return n.Value }
func (n *UnicodeEmojiNode) String() string  { return n.Value }
func (n *UnicodeEmojiNode) Mention() string { return n.Value }

func (n *UnicodeEmojiNode) attrs() attrs {
	return attrs{{"name", func() any { return n.Value }}}
}

func (n *UnicodeEmojiNode) Entries() []string            { return entries(n, n.attrs()) }
func (n *UnicodeEmojiNode) Attr(name string) (any, bool) { return lookup(n, n.attrs(), name) }

// ColorNode is a 24-bit RGB color.
type ColorNode struct{ Value int }

func (n *ColorNode) node()          {}
func (n *ColorNode) Kind() Kind     { return KindColor }
func (n *ColorNode) Name() string   { return n.Hex() }
func (n *ColorNode) String() string { return n.Hex() }

// Hex renders the color as #rrggbb.
func (n *ColorNode) Hex() string { return fmt.Sprintf("#%06x", n.Value&0xffffff) }

func (n *ColorNode) attrs() attrs {
	return attrs{
		{"value", func() any { return n.Value }},
		{"hex", func() any { return n.Hex() }},
		{"r", func() any { return (n.Value >> 16) & 0xff }},
		{"g", func() any { return (n.Value >> 8) & 0xff }},
		{"b", func() any { return n.Value & 0xff }},
	}
}

func (n *ColorNode) Entries() []string            { return entries(n, n.attrs()) }
func (n *ColorNode) Attr(name string) (any, bool) { return lookup(n, n.attrs(), name) }

// Permission bits by API name.
var permissionNames = []struct {
	name string
	bit  int64
}{
	{"create_instant_invite", 1 << 0},
	{"kick_members", 1 << 1},
	{"ban_members", 1 << 2},
	{"administrator", 1 << 3},
	{"manage_channels", 1 << 4},
	{"manage_guild", 1 << 5},
	{"add_reactions", 1 << 6},
	{"view_audit_log", 1 << 7},
	{"priority_speaker", 1 << 8},
	{"stream", 1 << 9},
	{"view_channel", 1 << 10},
	{"send_messages", 1 << 11},
	{"send_tts_messages", 1 << 12},
	{"manage_messages", 1 << 13},
	{"embed_links", 1 << 14},
	{"attach_files", 1 << 15},
	{"read_message_history", 1 << 16},
	{"mention_everyone", 1 << 17},
	{"use_external_emojis", 1 << 18},
	{"view_guild_insights", 1 << 19},
	{"connect", 1 << 20},
	{"speak", 1 << 21},
	{"mute_members", 1 << 22},
	{"deafen_members", 1 << 23},
	{"move_members", 1 << 24},
	{"use_vad", 1 << 25},
	{"change_nickname", 1 << 26},
	{"manage_nicknames", 1 << 27},
	{"manage_roles", 1 << 28},
	{"manage_webhooks", 1 << 29},
	{"manage_emojis", 1 << 30},
	{"use_application_commands", 1 << 31},
	{"manage_threads", 1 << 34},
	{"moderate_members", 1 << 40},
}

// PermissionsNode is a permission bit set.
type PermissionsNode struct{ Bits int64 }

func (n *PermissionsNode) node()        {}
func (n *PermissionsNode) Kind() Kind   { return KindPermissions }
func (n *PermissionsNode) Name() string { return "permissions" }

// Has reports whether the named permission is granted. Administrator grants all.
func (n *PermissionsNode) Has(name string) bool {
	if n.Bits&(1<<3) != 0 {
		return true
	}
	for _, p := range permissionNames {
		if p.name == name {
			return n.Bits&p.bit != 0
		}
	}
	return false
}

func (n *PermissionsNode) String() string {
	var granted []string
	for _, p := range permissionNames {
		if n.Bits&p.bit != 0 {
			granted = append(granted, p.name)
		}
	}
	return strings.Join(granted, ", ")
}

func (n *PermissionsNode) attrs() attrs {
	a := make(attrs, 0, len(permissionNames)+1)
	a = append(a, attr{"value", func() any { return n.Bits }})
	for _, p := range permissionNames {
		name := p.name
		a = append(a, attr{name, func() any { return n.Has(name) }})
	}
	return a
}

func (n *PermissionsNode) Entries() []string            { return entries(n, n.attrs()) }
func (n *PermissionsNode) Attr(name string) (any, bool) { return lookup(n, n.attrs(), name) }

func snowflakeTime(id string) any {
	t, err := discordgo.SnowflakeTimestamp(id)
	if err != nil {
		return nil
	}
	return t.UTC()
}

func optionalTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}
