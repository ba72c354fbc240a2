package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/sahilm/fuzzy"
)

type memberKey struct{ guild, user string }

type roleRef struct {
	guildID string
	role    *discordgo.Role
}

// Index is a lookup table over a state snapshot. It is read-only once built.
type Index struct {
	bot          *discordgo.User
	guilds       []*discordgo.Guild
	guildByID    map[string]*discordgo.Guild
	users        []*discordgo.User
	userByID     map[string]*discordgo.User
	members      map[memberKey]*discordgo.Member
	presences    map[memberKey]*discordgo.Presence
	channels     map[string]*discordgo.Channel
	channelGuild map[string]string
	roles        map[string]roleRef
	emojis       map[string]*discordgo.Emoji
	emojiGuild   map[string]string
	messages     map[string]*discordgo.Message
}

// NewIndex indexes the state under its read lock. Extra users are included
// for entities the state does not cache, such as DM recipients.
func NewIndex(state *discordgo.State, extraUsers ...*discordgo.User) *Index {
	ix := &Index{
		guildByID:    make(map[string]*discordgo.Guild),
		userByID:     make(map[string]*discordgo.User),
		members:      make(map[memberKey]*discordgo.Member),
		presences:    make(map[memberKey]*discordgo.Presence),
		channels:     make(map[string]*discordgo.Channel),
		channelGuild: make(map[string]string),
		roles:        make(map[string]roleRef),
		emojis:       make(map[string]*discordgo.Emoji),
		emojiGuild:   make(map[string]string),
		messages:     make(map[string]*discordgo.Message),
	}
	if state == nil {
		for _, u := range extraUsers {
			ix.addUser(u)
		}
		return ix
	}

	state.RLock()
	defer state.RUnlock()

	if state.User != nil {
		ix.bot = state.User
		ix.addUser(state.User)
	}
	for _, g := range state.Guilds {
		ix.addGuild(g)
	}
	for _, c := range state.PrivateChannels {
		ix.addChannel("", c)
		for _, u := range c.Recipients {
			ix.addUser(u)
		}
	}
	for _, u := range extraUsers {
		ix.addUser(u)
	}
	return ix
}

func (ix *Index) addUser(u *discordgo.User) {
	if u == nil || u.ID == "" {
		return
	}
	if _, ok := ix.userByID[u.ID]; ok {
		return
	}
	ix.userByID[u.ID] = u
	ix.users = append(ix.users, u)
}

func (ix *Index) addGuild(g *discordgo.Guild) {
	ix.guilds = append(ix.guilds, g)
	ix.guildByID[g.ID] = g
	for _, m := range g.Members {
		if m.User == nil {
			continue
		}
		ix.addUser(m.User)
		ix.members[memberKey{g.ID, m.User.ID}] = m
	}
	for _, p := range g.Presences {
		if p.User != nil {
			ix.presences[memberKey{g.ID, p.User.ID}] = p
		}
	}
	for _, r := range g.Roles {
		ix.roles[r.ID] = roleRef{guildID: g.ID, role: r}
	}
	for _, e := range g.Emojis {
		if e.ID != "" {
			ix.emojis[e.ID] = e
			ix.emojiGuild[e.ID] = g.ID
		}
	}
	for _, c := range g.Channels {
		ix.addChannel(g.ID, c)
	}
	for _, c := range g.Threads {
		ix.addChannel(g.ID, c)
	}
}

func (ix *Index) addChannel(guildID string, c *discordgo.Channel) {
	ix.channels[c.ID] = c
	if guildID != "" {
		ix.channelGuild[c.ID] = guildID
	}
	for _, m := range c.Messages {
		ix.messages[m.ID] = m
		if m.Author != nil {
			ix.addUser(m.Author)
		}
	}
}

// Bot returns the bot's own user, if known.
func (ix *Index) Bot() *discordgo.User { return ix.bot }

// User returns the indexed user with id.
func (ix *Index) User(id string) *discordgo.User { return ix.userByID[id] }

func (ix *Index) guild(id string) *discordgo.Guild { return ix.guildByID[id] }

func (ix *Index) channel(id string) *discordgo.Channel { return ix.channels[id] }

func (ix *Index) role(guildID, id string) *discordgo.Role {
	ref, ok := ix.roles[id]
	if !ok || ref.guildID != guildID {
		return nil
	}
	return ref.role
}

func (ix *Index) presence(guildID, userID string) *discordgo.Presence {
	return ix.presences[memberKey{guildID, userID}]
}

func (ix *Index) user(u *discordgo.User) Node {
	if known, ok := ix.userByID[u.ID]; ok {
		u = known
	}
	return &UserNode{U: u, ix: ix}
}

func (ix *Index) guildNode(id string) any {
	if g := ix.guild(id); g != nil {
		return &GuildNode{G: g, ix: ix}
	}
	return Null
}

func (ix *Index) memberNode(guildID, userID string) any {
	if m, ok := ix.members[memberKey{guildID, userID}]; ok {
		return ix.memberFor(guildID, m)
	}
	return Null
}

func (ix *Index) memberFor(guildID string, m *discordgo.Member) *MemberNode {
	if m.GuildID == "" {
		cp := *m
		cp.GuildID = guildID
		m = &cp
	}
	return &MemberNode{M: m, ix: ix}
}

func (ix *Index) channelNode(c *discordgo.Channel) *ChannelNode {
	return &ChannelNode{C: c, ix: ix}
}

func (ix *Index) roleNode(guildID string, r *discordgo.Role) *RoleNode {
	return &RoleNode{R: r, GuildID: guildID, ix: ix}
}

func (ix *Index) emojiNode(e *discordgo.Emoji) *EmojiNode {
	return &EmojiNode{E: e, ix: ix}
}

func (ix *Index) emojiValue(e *discordgo.Emoji) Node {
	if e.ID == "" {
		return &UnicodeEmojiNode{Value: e.Name}
	}
	if known, ok := ix.emojis[e.ID]; ok {
		return ix.emojiNode(known)
	}
	return ix.emojiNode(e)
}

func (ix *Index) messageNode(m *discordgo.Message) *MessageNode {
	return &MessageNode{M: m, ix: ix}
}

// Member returns the member view of userID in guildID.
func (ix *Index) Member(guildID, userID string) (*MemberNode, bool) {
	m, ok := ix.members[memberKey{guildID, userID}]
	if !ok {
		return nil, false
	}
	return ix.memberFor(guildID, m), true
}

// Lookup resolves an ID to a guild, channel, role, emoji, message or user.
func (ix *Index) Lookup(id string) (Node, bool) {
	if g, ok := ix.guildByID[id]; ok {
		return &GuildNode{G: g, ix: ix}, true
	}
	if c, ok := ix.channels[id]; ok {
		return ix.channelNode(c), true
	}
	if ref, ok := ix.roles[id]; ok {
		return ix.roleNode(ref.guildID, ref.role), true
	}
	if e, ok := ix.emojis[id]; ok {
		return ix.emojiNode(e), true
	}
	if m, ok := ix.messages[id]; ok {
		return ix.messageNode(m), true
	}
	if u, ok := ix.userByID[id]; ok {
		return &UserNode{U: u, ix: ix}, true
	}
	return nil, false
}

// LookupIn resolves an ID inside one guild. Users resolve to their member view.
func (ix *Index) LookupIn(guildID, id string) (Node, bool) {
	if m, ok := ix.Member(guildID, id); ok {
		return m, true
	}
	if r := ix.role(guildID, id); r != nil {
		return ix.roleNode(guildID, r), true
	}
	if c, ok := ix.channels[id]; ok && ix.channelGuild[id] == guildID {
		return ix.channelNode(c), true
	}
	if e, ok := ix.emojis[id]; ok && ix.emojiGuild[id] == guildID {
		return ix.emojiNode(e), true
	}
	if m, ok := ix.messages[id]; ok && ix.channelGuild[m.ChannelID] == guildID {
		return ix.messageNode(m), true
	}
	return nil, false
}

// FindOptions narrows a search.
type FindOptions struct {
	// Exact requires a name to equal the query, ignoring case.
	Exact bool
	// Fuzzy matches the query as a subsequence rather than a substring.
	Fuzzy bool
	// GuildID limits the search to one guild's entities.
	GuildID string
}

type candidate struct {
	id    string
	names []string
	node  Node
}

type matched struct {
	candidate
	name string
}

type matchSource []matched

func (s matchSource) String(i int) string { return s[i].name }
func (s matchSource) Len() int            { return len(s) }

// Find searches entity names for query, ignoring case. Results are ranked by
// match quality, ties keeping member, user, guild, emoji, channel, role order.
func (ix *Index) Find(query string, opts FindOptions) *ListNode {
	q := strings.ToLower(query)
	seen := make(map[string]bool)
	var hits []matched
	for _, c := range ix.candidates(opts.GuildID) {
		if seen[c.id] {
			continue
		}
		if name, ok := matchNames(c.names, q, opts); ok {
			seen[c.id] = true
			hits = append(hits, matched{candidate: c, name: name})
		}
	}

	values := make([]any, 0, len(hits))
	if q == "" || opts.Exact {
		for _, h := range hits {
			values = append(values, h.node)
		}
		return NewList(query, values)
	}
	ranked := fuzzy.FindFrom(q, matchSource(hits))
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Index < ranked[j].Index
	})
	for _, m := range ranked {
		values = append(values, hits[m.Index].node)
	}
	return NewList(query, values)
}

func matchNames(names []string, q string, opts FindOptions) (string, bool) {
	for _, name := range names {
		if name == "" {
			continue
		}
		n := strings.ToLower(name)
		switch {
		case opts.Exact:
			if n == q {
				return n, true
			}
		case opts.Fuzzy:
			if isSubsequence(q, n) {
				return n, true
			}
		default:
			if strings.Contains(n, q) {
				return n, true
			}
		}
	}
	return "", false
}

func isSubsequence(q, s string) bool {
	qr := []rune(q)
	if len(qr) == 0 {
		return true
	}
	i := 0
	for _, r := range s {
		if r == qr[i] {
			i++
			if i == len(qr) {
				return true
			}
		}
	}
	return false
}

func (ix *Index) candidates(guildID string) []candidate {
	guilds := ix.guilds
	if guildID != "" {
		guilds = nil
		if g := ix.guild(guildID); g != nil {
			guilds = []*discordgo.Guild{g}
		}
	}

	var out []candidate
	for _, g := range guilds {
		for _, m := range g.Members {
			if m.User == nil {
				continue
			}
			mn := ix.memberFor(g.ID, m)
			out = append(out, candidate{
				id:    m.User.ID,
				names: []string{m.User.Username, m.Nick, m.User.GlobalName, userString(m.User)},
				node:  mn,
			})
		}
	}
	if guildID == "" {
		for _, u := range ix.users {
			out = append(out, candidate{
				id:    u.ID,
				names: []string{u.Username, u.GlobalName, userString(u)},
				node:  &UserNode{U: u, ix: ix},
			})
		}
		for _, g := range guilds {
			out = append(out, candidate{id: g.ID, names: []string{g.Name}, node: &GuildNode{G: g, ix: ix}})
		}
	}
	for _, g := range guilds {
		for _, e := range g.Emojis {
			out = append(out, candidate{id: e.ID, names: []string{e.Name}, node: ix.emojiNode(e)})
		}
	}
	for _, g := range guilds {
		for _, c := range g.Channels {
			out = append(out, candidate{id: c.ID, names: []string{c.Name}, node: ix.channelNode(c)})
		}
	}
	for _, g := range guilds {
		for _, r := range g.Roles {
			out = append(out, candidate{id: r.ID, names: []string{r.Name}, node: ix.roleNode(g.ID, r)})
		}
	}
	return out
}

// Wrap converts a discordgo value into its node view.
func (ix *Index) Wrap(v any) Node {
	switch v := v.(type) {
	case Node:
		return v
	case nil:
		return Null
	case *discordgo.User:
		return ix.user(v)
	case *discordgo.Member:
		if v.User == nil {
			return Null
		}
		return ix.memberFor(v.GuildID, v)
	case *discordgo.Guild:
		return &GuildNode{G: v, ix: ix}
	case *discordgo.Channel:
		return ix.channelNode(v)
	case *discordgo.Role:
		if ref, ok := ix.roles[v.ID]; ok {
			return ix.roleNode(ref.guildID, v)
		}
		return ix.roleNode("", v)
	case *discordgo.Emoji:
		return ix.emojiValue(v)
	case *discordgo.Message:
		return ix.messageNode(v)
	case *discordgo.Activity:
		return &ActivityNode{A: v}
	default:
		return &UnknownNode{Label: fmt.Sprintf("%T", v)}
	}
}
