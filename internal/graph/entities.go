package graph

import (
	"sort"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// UserNode views a platform user.
type UserNode struct {
	U  *discordgo.User
	ix *Index
}

func (n *UserNode) node()            {}
func (n *UserNode) Kind() Kind       { return KindUser }
func (n *UserNode) Name() string     { return n.String() }
func (n *UserNode) String() string   { return userString(n.U) }
func (n *UserNode) Mention() string  { return n.U.Mention() }
func (n *UserNode) ImageURL() string { return n.U.AvatarURL("") }

func (n *UserNode) attrs() attrs {
	u := n.U
	return attrs{
		{"id", func() any { return u.ID }},
		{"name", func() any { return u.Username }},
		{"global_name", func() any { return u.GlobalName }},
		{"display_name", func() any { return userDisplayName(u) }},
		{"discriminator", func() any { return u.Discriminator }},
		{"bot", func() any { return u.Bot }},
		{"mention", func() any { return u.Mention() }},
		{"avatar_url", func() any { return u.AvatarURL("") }},
		{"created_at", func() any { return snowflakeTime(u.ID) }},
		{"banner_color", func() any {
			if u.AccentColor == 0 {
				return Null
			}
			return &ColorNode{Value: u.AccentColor}
		}},
	}
}

func (n *UserNode) Entries() []string            { return entries(n, n.attrs()) }
func (n *UserNode) Attr(name string) (any, bool) { return lookup(n, n.attrs(), name) }

func userString(u *discordgo.User) string {
	if u.Discriminator == "" || u.Discriminator == "0" {
		return u.Username
	}
	return u.Username + "#" + u.Discriminator
}

func userDisplayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// MemberNode views a user's membership in a guild.
type MemberNode struct {
	M  *discordgo.Member
	ix *Index
}

func (n *MemberNode) node()            {}
func (n *MemberNode) Kind() Kind       { return KindMember }
func (n *MemberNode) Name() string     { return n.String() }
func (n *MemberNode) String() string   { return userString(n.M.User) }
func (n *MemberNode) Mention() string  { return "<@" + n.M.User.ID + ">" }
func (n *MemberNode) ImageURL() string { return n.M.User.AvatarURL("") }

// DisplayName is the nickname, else the global name, else the username.
func (n *MemberNode) DisplayName() string {
	if n.M.Nick != "" {
		return n.M.Nick
	}
	return userDisplayName(n.M.User)
}

func (n *MemberNode) attrs() attrs {
	m := n.M
	return attrs{
		{"id", func() any { return m.User.ID }},
		{"name", func() any { return m.User.Username }},
		{"nick", func() any { return m.Nick }},
		{"display_name", func() any { return n.DisplayName() }},
		{"mention", func() any { return n.Mention() }},
		{"bot", func() any { return m.User.Bot }},
		{"joined_at", func() any { return optionalTime(&m.JoinedAt) }},
		{"avatar_url", func() any { return n.ImageURL() }},
		{"user", func() any { return n.ix.user(m.User) }},
		{"guild", func() any { return n.ix.guildNode(m.GuildID) }},
		{"roles", func() any { return NewList("roles", n.roles()) }},
		{"top_role", func() any { return n.topRole() }},
		{"color", func() any { return n.color() }},
		{"status", func() any { return n.status() }},
		{"activity", func() any {
			acts := n.activities()
			if len(acts) == 0 {
				return Null
			}
			return acts[0]
		}},
		{"activities", func() any { return NewList("activities", n.activities()) }},
		{"permissions", func() any { return &PermissionsNode{Bits: n.permissions()} }},
	}
}

func (n *MemberNode) Entries() []string            { return entries(n, n.attrs()) }
func (n *MemberNode) Attr(name string) (any, bool) { return lookup(n, n.attrs(), name) }

// memberRoles returns the member's roles, highest position first.
func (n *MemberNode) memberRoles() []*discordgo.Role {
	var out []*discordgo.Role
	for _, id := range n.M.Roles {
		if r := n.ix.role(n.M.GuildID, id); r != nil {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position > out[j].Position })
	return out
}

func (n *MemberNode) roles() []any {
	rs := n.memberRoles()
	out := make([]any, len(rs))
	for i, r := range rs {
		out[i] = n.ix.roleNode(n.M.GuildID, r)
	}
	return out
}

func (n *MemberNode) topRole() any {
	rs := n.memberRoles()
	if len(rs) == 0 {
		return Null
	}
	return n.ix.roleNode(n.M.GuildID, rs[0])
}

func (n *MemberNode) color() any {
	for _, r := range n.memberRoles() {
		if r.Color != 0 {
			return &ColorNode{Value: r.Color}
		}
	}
	return &ColorNode{}
}

func (n *MemberNode) presence() *discordgo.Presence {
	return n.ix.presence(n.M.GuildID, n.M.User.ID)
}

func (n *MemberNode) status() string {
	if p := n.presence(); p != nil && p.Status != "" {
		return string(p.Status)
	}
	return string(discordgo.StatusOffline)
}

func (n *MemberNode) activities() []any {
	p := n.presence()
	if p == nil {
		return nil
	}
	out := make([]any, 0, len(p.Activities))
	for _, a := range p.Activities {
		if a != nil {
			out = append(out, &ActivityNode{A: a})
		}
	}
	return out
}

func (n *MemberNode) permissions() int64 {
	g := n.ix.guild(n.M.GuildID)
	if g != nil && g.OwnerID == n.M.User.ID {
		return 1 << 3
	}
	var bits int64
	if everyone := n.ix.role(n.M.GuildID, n.M.GuildID); everyone != nil {
		bits |= everyone.Permissions
	}
	for _, r := range n.memberRoles() {
		bits |= r.Permissions
	}
	return bits
}

// GuildNode views a guild.
type GuildNode struct {
	G  *discordgo.Guild
	ix *Index
}

func (n *GuildNode) node()          {}
func (n *GuildNode) Kind() Kind     { return KindGuild }
func (n *GuildNode) Name() string   { return n.G.Name }
func (n *GuildNode) String() string { return n.G.Name }

func (n *GuildNode) ImageURL() string {
	if n.G.Icon == "" {
		return ""
	}
	return discordgo.EndpointGuildIcon(n.G.ID, n.G.Icon)
}

func (n *GuildNode) attrs() attrs {
	g := n.G
	return attrs{
		{"id", func() any { return g.ID }},
		{"name", func() any { return g.Name }},
		{"description", func() any { return g.Description }},
		{"owner_id", func() any { return g.OwnerID }},
		{"owner", func() any { return n.ix.memberNode(g.ID, g.OwnerID) }},
		{"icon_url", func() any { return n.ImageURL() }},
		{"created_at", func() any { return snowflakeTime(g.ID) }},
		{"member_count", func() any {
			if g.MemberCount > 0 {
				return g.MemberCount
			}
			return len(g.Members)
		}},
		{"channels", func() any { return NewList("channels", n.channels(nil)) }},
		{"text_channels", func() any { return NewList("text_channels", n.channels(isVariant(ChannelText))) }},
		{"voice_channels", func() any { return NewList("voice_channels", n.channels(isVariant(ChannelVoice))) }},
		{"categories", func() any { return NewList("categories", n.channels(isVariant(ChannelCategory))) }},
		{"roles", func() any { return NewList("roles", n.roles()) }},
		{"emojis", func() any { return NewList("emojis", n.emojis()) }},
		{"members", func() any { return NewList("members", n.members()) }},
		{"get", func() any {
			return NewLookup("get", true, func(id string) (any, bool) {
				v, ok := n.ix.LookupIn(g.ID, id)
				return v, ok
			})
		}},
		{"find", func() any {
			return NewLookup("find", false, func(q string) (any, bool) {
				return n.ix.Find(q, FindOptions{GuildID: g.ID}), true
			})
		}},
	}
}

func (n *GuildNode) Entries() []string            { return entries(n, n.attrs()) }
func (n *GuildNode) Attr(name string) (any, bool) { return lookup(n, n.attrs(), name) }

func isVariant(v ChannelVariant) func(*discordgo.Channel) bool {
	return func(c *discordgo.Channel) bool { return channelVariant(c.Type) == v }
}

func (n *GuildNode) channels(keep func(*discordgo.Channel) bool) []any {
	chans := append([]*discordgo.Channel(nil), n.G.Channels...)
	sort.SliceStable(chans, func(i, j int) bool { return chans[i].Position < chans[j].Position })
	var out []any
	for _, c := range chans {
		if keep == nil || keep(c) {
			out = append(out, n.ix.channelNode(c))
		}
	}
	return out
}

func (n *GuildNode) roles() []any {
	rs := append([]*discordgo.Role(nil), n.G.Roles...)
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Position > rs[j].Position })
	out := make([]any, len(rs))
	for i, r := range rs {
		out[i] = n.ix.roleNode(n.G.ID, r)
	}
	return out
}

func (n *GuildNode) emojis() []any {
	out := make([]any, len(n.G.Emojis))
	for i, e := range n.G.Emojis {
		out[i] = n.ix.emojiNode(e)
	}
	return out
}

func (n *GuildNode) members() []any {
	out := make([]any, 0, len(n.G.Members))
	for _, m := range n.G.Members {
		if m.User != nil {
			out = append(out, n.ix.memberFor(n.G.ID, m))
		}
	}
	return out
}

// ChannelVariant distinguishes channel kinds.
type ChannelVariant int

const (
	ChannelOther ChannelVariant = iota
	ChannelText
	ChannelVoice
	ChannelCategory
	ChannelNews
	ChannelThread
	ChannelForum
	ChannelDM
)

func (v ChannelVariant) String() string {
	switch v {
	case ChannelText:
		return "text"
	case ChannelVoice:
		return "voice"
	case ChannelCategory:
		return "category"
	case ChannelNews:
		return "news"
	case ChannelThread:
		return "thread"
	case ChannelForum:
		return "forum"
	case ChannelDM:
		return "dm"
	default:
		return "other"
	}
}

func channelVariant(t discordgo.ChannelType) ChannelVariant {
	switch t {
	case discordgo.ChannelTypeGuildText:
		return ChannelText
	case discordgo.ChannelTypeGuildVoice, discordgo.ChannelTypeGuildStageVoice:
		return ChannelVoice
	case discordgo.ChannelTypeGuildCategory:
		return ChannelCategory
	case discordgo.ChannelTypeGuildNews:
		return ChannelNews
	case discordgo.ChannelTypeGuildNewsThread, discordgo.ChannelTypeGuildPublicThread, discordgo.ChannelTypeGuildPrivateThread:
		return ChannelThread
	case discordgo.ChannelTypeGuildForum:
		return ChannelForum
	case discordgo.ChannelTypeDM, discordgo.ChannelTypeGroupDM:
		return ChannelDM
	default:
		return ChannelOther
	}
}

// ChannelNode views a channel.
type ChannelNode struct {
	C  *discordgo.Channel
	ix *Index
}

func (n *ChannelNode) node()                   {}
func (n *ChannelNode) Kind() Kind              { return KindChannel }
func (n *ChannelNode) Name() string            { return n.String() }
func (n *ChannelNode) Mention() string         { return n.C.Mention() }
func (n *ChannelNode) Variant() ChannelVariant { return channelVariant(n.C.Type) }

func (n *ChannelNode) String() string {
	if n.C.Name == "" && len(n.C.Recipients) > 0 {
		return "DM with " + userString(n.C.Recipients[0])
	}
	return n.C.Name
}

func (n *ChannelNode) attrs() attrs {
	c := n.C
	return attrs{
		{"id", func() any { return c.ID }},
		{"name", func() any { return c.Name }},
		{"type", func() any { return n.Variant().String() }},
		{"topic", func() any { return c.Topic }},
		{"nsfw", func() any { return c.NSFW }},
		{"position", func() any { return c.Position }},
		{"mention", func() any { return c.Mention() }},
		{"created_at", func() any { return snowflakeTime(c.ID) }},
		{"guild", func() any { return n.ix.guildNode(n.guildID()) }},
		{"parent", func() any {
			if c.ParentID == "" {
				return Null
			}
			if p := n.ix.channel(c.ParentID); p != nil {
				return n.ix.channelNode(p)
			}
			return &IDNode{ID: c.ParentID}
		}},
		{"children", func() any { return NewList("children", n.children()) }},
		{"messages", func() any { return NewList("messages", n.messages()) }},
	}
}

func (n *ChannelNode) Entries() []string            { return entries(n, n.attrs()) }
func (n *ChannelNode) Attr(name string) (any, bool) { return lookup(n, n.attrs(), name) }

func (n *ChannelNode) guildID() string {
	if n.C.GuildID != "" {
		return n.C.GuildID
	}
	return n.ix.channelGuild[n.C.ID]
}

func (n *ChannelNode) children() []any {
	g := n.ix.guild(n.guildID())
	if g == nil {
		return nil
	}
	var out []any
	for _, c := range g.Channels {
		if c.ParentID == n.C.ID {
			out = append(out, n.ix.channelNode(c))
		}
	}
	return out
}

func (n *ChannelNode) messages() []any {
	out := make([]any, 0, len(n.C.Messages))
	for _, m := range n.C.Messages {
		out = append(out, n.ix.messageNode(m))
	}
	return out
}

// RoleNode views a guild role.
type RoleNode struct {
	R       *discordgo.Role
	GuildID string
	ix      *Index
}

func (n *RoleNode) node()           {}
func (n *RoleNode) Kind() Kind      { return KindRole }
func (n *RoleNode) Name() string    { return n.R.Name }
func (n *RoleNode) String() string  { return n.R.Name }
func (n *RoleNode) Mention() string { return n.R.Mention() }

func (n *RoleNode) attrs() attrs {
	r := n.R
	return attrs{
		{"id", func() any { return r.ID }},
		{"name", func() any { return r.Name }},
		{"mention", func() any { return r.Mention() }},
		{"color", func() any { return &ColorNode{Value: r.Color} }},
		{"position", func() any { return r.Position }},
		{"hoist", func() any { return r.Hoist }},
		{"managed", func() any { return r.Managed }},
		{"mentionable", func() any { return r.Mentionable }},
		{"permissions", func() any { return &PermissionsNode{Bits: r.Permissions} }},
		{"members", func() any { return NewList("members", n.members()) }},
		{"created_at", func() any { return snowflakeTime(r.ID) }},
	}
}

func (n *RoleNode) Entries() []string            { return entries(n, n.attrs()) }
func (n *RoleNode) Attr(name string) (any, bool) { return lookup(n, n.attrs(), name) }

func (n *RoleNode) members() []any {
	g := n.ix.guild(n.GuildID)
	if g == nil {
		return nil
	}
	var out []any
	for _, m := range g.Members {
		if m.User == nil {
			continue
		}
		if n.R.ID == n.GuildID || containsString(m.Roles, n.R.ID) {
			out = append(out, n.ix.memberFor(n.GuildID, m))
		}
	}
	return out
}

// EmojiNode views a custom guild emoji.
type EmojiNode struct {
	E  *discordgo.Emoji
	ix *Index
}

func (n *EmojiNode) node()           {}
func (n *EmojiNode) Kind() Kind      { return KindEmoji }
func (n *EmojiNode) Name() string    { return n.E.Name }
func (n *EmojiNode) String() string  { return n.E.Name }
func (n *EmojiNode) Mention() string { return n.E.MessageFormat() }

func (n *EmojiNode) ImageURL() string {
	if n.E.ID == "" {
		return ""
	}
	if n.E.Animated {
		return discordgo.EndpointEmojiAnimated(n.E.ID)
	}
	return discordgo.EndpointEmoji(n.E.ID)
}

func (n *EmojiNode) attrs() attrs {
	e := n.E
	return attrs{
		{"id", func() any { return e.ID }},
		{"name", func() any { return e.Name }},
		{"animated", func() any { return e.Animated }},
		{"mention", func() any { return e.MessageFormat() }},
		{"url", func() any { return n.ImageURL() }},
		{"created_at", func() any { return snowflakeTime(e.ID) }},
	}
}

func (n *EmojiNode) Entries() []string            { return entries(n, n.attrs()) }
func (n *EmojiNode) Attr(name string) (any, bool) { return lookup(n, n.attrs(), name) }

// MessageNode views a message.
type MessageNode struct {
	M  *discordgo.Message
	ix *Index
}

func (n *MessageNode) node()          {}
func (n *MessageNode) Kind() Kind     { return KindMessage }
func (n *MessageNode) Name() string   { return n.M.ID }
func (n *MessageNode) String() string { return n.M.Content }

// URL is the jump link to the message.
func (n *MessageNode) URL() string {
	guild := n.M.GuildID
	if guild == "" {
		guild = n.ix.channelGuild[n.M.ChannelID]
	}
	if guild == "" {
		guild = "@me"
	}
	return "https://discord.com/channels/" + guild + "/" + n.M.ChannelID + "/" + n.M.ID
}

func (n *MessageNode) attrs() attrs {
	m := n.M
	return attrs{
		{"id", func() any { return m.ID }},
		{"content", func() any { return m.Content }},
		{"author", func() any {
			if m.Author == nil {
				return Null
			}
			return n.ix.user(m.Author)
		}},
		{"member", func() any {
			if m.Author == nil {
				return Null
			}
			return n.ix.memberNode(n.guildID(), m.Author.ID)
		}},
		{"channel", func() any {
			if c := n.ix.channel(m.ChannelID); c != nil {
				return n.ix.channelNode(c)
			}
			return &IDNode{ID: m.ChannelID}
		}},
		{"guild", func() any { return n.ix.guildNode(n.guildID()) }},
		{"timestamp", func() any { return optionalTime(&m.Timestamp) }},
		{"edited_timestamp", func() any { return optionalTime(m.EditedTimestamp) }},
		{"pinned", func() any { return m.Pinned }},
		{"url", func() any { return n.URL() }},
		{"mentions", func() any {
			out := make([]any, len(m.Mentions))
			for i, u := range m.Mentions {
				out[i] = n.ix.user(u)
			}
			return NewList("mentions", out)
		}},
		{"reactions", func() any { return NewListEntries("reactions", n.reactions()) }},
		{"attachments", func() any { return NewListEntries("attachments", n.attachments()) }},
		{"embeds", func() any { return NewListEntries("embeds", n.embeds()) }},
	}
}

func (n *MessageNode) Entries() []string            { return entries(n, n.attrs()) }
func (n *MessageNode) Attr(name string) (any, bool) { return lookup(n, n.attrs(), name) }

func (n *MessageNode) guildID() string {
	if n.M.GuildID != "" {
		return n.M.GuildID
	}
	return n.ix.channelGuild[n.M.ChannelID]
}

func (n *MessageNode) reactions() []Entry {
	var out []Entry
	for _, r := range n.M.Reactions {
		if r == nil || r.Emoji == nil {
			continue
		}
		emoji := n.ix.emojiValue(r.Emoji)
		out = append(out, Entry{Name: r.Emoji.Name, Value: NewObject(r.Emoji.Name,
			Entry{"emoji", emoji},
			Entry{"count", r.Count},
			Entry{"me", r.Me},
		)})
	}
	return out
}

func (n *MessageNode) attachments() []Entry {
	var out []Entry
	for _, a := range n.M.Attachments {
		out = append(out, Entry{Name: a.Filename, Value: NewObject(a.Filename,
			Entry{"id", a.ID},
			Entry{"filename", a.Filename},
			Entry{"url", a.URL},
			Entry{"size", a.Size},
			Entry{"content_type", a.ContentType},
		)})
	}
	return out
}

func (n *MessageNode) embeds() []Entry {
	var out []Entry
	for i, e := range n.M.Embeds {
		name := e.Title
		if name == "" {
			name = "embed " + strconv.Itoa(i)
		}
		out = append(out, Entry{Name: name, Value: NewObject(name,
			Entry{"title", e.Title},
			Entry{"description", e.Description},
			Entry{"url", e.URL},
			Entry{"color", &ColorNode{Value: e.Color}},
		)})
	}
	return out
}

// ActivityVariant distinguishes presence activities.
type ActivityVariant int

const (
	ActivityRich ActivityVariant = iota
	ActivityCustom
	ActivityGame
	ActivityStreaming
	ActivitySpotify
)

func (v ActivityVariant) String() string {
	switch v {
	case ActivityCustom:
		return "custom"
	case ActivityGame:
		return "game"
	case ActivityStreaming:
		return "streaming"
	case ActivitySpotify:
		return "spotify"
	default:
		return "rich"
	}
}

// ActivityNode views a presence activity.
type ActivityNode struct {
	A *discordgo.Activity
}

func (n *ActivityNode) node()          {}
func (n *ActivityNode) Kind() Kind     { return KindActivity }
func (n *ActivityNode) Name() string   { return n.Variant().String() }
func (n *ActivityNode) String() string { return n.A.Name }

// Variant classifies the activity.
func (n *ActivityNode) Variant() ActivityVariant {
	switch n.A.Type {
	case discordgo.ActivityTypeCustom:
		return ActivityCustom
	case discordgo.ActivityTypeGame:
		return ActivityGame
	case discordgo.ActivityTypeStreaming:
		return ActivityStreaming
	case discordgo.ActivityTypeListening:
		if strings.EqualFold(n.A.Name, "spotify") {
			return ActivitySpotify
		}
	}
	return ActivityRich
}

func (n *ActivityNode) attrs() attrs {
	a := n.A
	out := attrs{
		{"name", func() any { return a.Name }},
		{"type", func() any { return n.Variant().String() }},
		{"details", func() any { return a.Details }},
		{"state", func() any { return a.State }},
		{"url", func() any { return a.URL }},
		{"emoji", func() any {
			switch {
			case a.Emoji.ID != "":
				return &EmojiNode{E: &a.Emoji}
			case a.Emoji.Name != "":
				return &UnicodeEmojiNode{Value: a.Emoji.Name}
			default:
				return Null
			}
		}},
		{"created_at", func() any { return optionalTime(&a.CreatedAt) }},
		{"application_id", func() any { return a.ApplicationID }},
	}
	switch n.Variant() {
	case ActivityStreaming:
		out = append(out, attr{"platform", func() any { return streamPlatform(a.URL) }})
	case ActivitySpotify:
		out = append(out,
			attr{"title", func() any { return a.Details }},
			attr{"artists", func() any { return a.State }},
			attr{"album", func() any { return a.Assets.LargeText }},
		)
	}
	return out
}

func (n *ActivityNode) Entries() []string            { return entries(n, n.attrs()) }
func (n *ActivityNode) Attr(name string) (any, bool) { return lookup(n, n.attrs(), name) }

func streamPlatform(url string) string {
	switch {
	case strings.Contains(url, "twitch.tv"):
		return "twitch"
	case strings.Contains(url, "youtube.com"), strings.Contains(url, "youtu.be"):
		return "youtube"
	default:
		return ""
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
