package graph

import (
	"os"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	guildID   = "200000000000000001"
	aliceID   = "100000000000000001"
	bobID     = "100000000000000002"
	generalID = "400000000000000002"
)

func loadFixture(t *testing.T) *Fixture {
	t.Helper()
	f, err := os.Open("testdata/guild.yaml")
	require.NoError(t, err)
	defer f.Close()
	fx, err := LoadFixture(f)
	require.NoError(t, err)
	return fx
}

func attrOf(t *testing.T, n Node, path ...string) any {
	t.Helper()
	var v any = n
	for _, p := range path {
		node, ok := v.(Node)
		require.True(t, ok, "%s: not a node", p)
		v, ok = node.Attr(p)
		require.True(t, ok, "missing attribute %s", p)
	}
	return v
}

func TestMemberAttributes(t *testing.T) {
	fx := loadFixture(t)
	ix := fx.Index()
	alice, ok := ix.Member(guildID, aliceID)
	require.True(t, ok)

	assert.Equal(t, "Ally", attrOf(t, alice, "display_name"))
	assert.Equal(t, "Admin", attrOf(t, alice, "top_role", "name"))
	assert.Equal(t, "#ff0000", attrOf(t, alice, "color", "hex"))
	assert.Equal(t, "online", attrOf(t, alice, "status"))
	assert.Equal(t, "activity/spotify", attrOf(t, alice, "activity", ".type"))
	assert.Equal(t, "Song Title", attrOf(t, alice, "activity", "title"))
	assert.Equal(t, true, attrOf(t, alice, "permissions", "kick_members"))
	assert.Equal(t, "<@"+aliceID+">", attrOf(t, alice, ".discord"))
	assert.Equal(t, time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC), attrOf(t, alice, "joined_at"))

	roles := attrOf(t, alice, "roles").(*ListNode)
	assert.Equal(t, "Admin, Member", roles.String())

	bob, ok := ix.Member(guildID, bobID)
	require.True(t, ok)
	assert.Equal(t, "bob", attrOf(t, bob, "display_name"))
	assert.Equal(t, true, attrOf(t, bob, "permissions", "send_messages"))
	assert.Equal(t, false, attrOf(t, bob, "permissions", "manage_guild"))
	assert.Equal(t, "game", attrOf(t, bob, "activity", "type"))
}

func TestUserFallbacks(t *testing.T) {
	fx := loadFixture(t)
	ix := fx.Index()

	carol, ok := ix.Lookup("100000000000000003")
	require.True(t, ok)
	assert.Equal(t, KindUser, carol.Kind())
	assert.Equal(t, "carol#4242", carol.String())
	assert.Equal(t, "carol", attrOf(t, carol, "display_name"))
	assert.Equal(t, Null, attrOf(t, carol, "banner_color"))

	alice, _ := ix.Lookup(aliceID)
	assert.Equal(t, "Alice A", attrOf(t, alice, "display_name"))
	assert.Equal(t, "#0000ff", attrOf(t, alice, "banner_color", "hex"))
	assert.Contains(t, alice.Entries(), MetaImageURL)
	assert.IsType(t, time.Time{}, attrOf(t, alice, "created_at"))
}

func TestGuildAttributes(t *testing.T) {
	fx := loadFixture(t)
	ix := fx.Index()
	g, ok := ix.Lookup(guildID)
	require.True(t, ok)

	assert.Equal(t, "Test Guild", g.String())
	assert.Equal(t, 3, attrOf(t, g, "member_count"))
	assert.Equal(t, "Ally", attrOf(t, g, "owner", "display_name"))
	assert.Equal(t, discordgo.EndpointGuildIcon(guildID, "iconhash"), attrOf(t, g, ".image_url"))

	names := func(v any) []string {
		l := v.(*ListNode)
		out := make([]string, 0, l.Len())
		for _, it := range l.Items() {
			out = append(out, it.Name)
		}
		return out
	}
	want := []string{"Text Channels", "general", "random", "Lounge"}
	if diff := cmp.Diff(want, names(attrOf(t, g, "channels"))); diff != "" {
		t.Errorf("channels mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"general", "random"}, names(attrOf(t, g, "text_channels")))
	assert.Equal(t, []string{"Admin", "Member", "@everyone"}, names(attrOf(t, g, "roles")))
	assert.Equal(t, []string{"alice", "bob"}, names(attrOf(t, g, "roles", "Member", "members")))

	get := attrOf(t, g, "get").(*LookupNode)
	assert.True(t, get.Strict())
	member, ok := get.Attr(bobID)
	require.True(t, ok)
	assert.Equal(t, KindMember, member.(Node).Kind())
	_, ok = get.Attr("123")
	assert.False(t, ok)
}

func TestChannelAndMessage(t *testing.T) {
	fx := loadFixture(t)
	ix := fx.Index()
	general, ok := ix.Lookup(generalID)
	require.True(t, ok)

	assert.Equal(t, "channel/text", attrOf(t, general, ".type"))
	assert.Equal(t, "Text Channels", attrOf(t, general, "parent", "name"))
	assert.Equal(t, "Test Guild", attrOf(t, general, "guild", "name"))

	msgs := attrOf(t, general, "messages").(*ListNode)
	require.Equal(t, 2, msgs.Len())
	first := msgs.Values()[0].(Node)
	assert.Equal(t, "hello there", first.String())
	assert.Equal(t, "bob", attrOf(t, first, "author", "name"))
	assert.Equal(t, "https://discord.com/channels/"+guildID+"/"+generalID+"/600000000000000001", attrOf(t, first, "url"))

	category, _ := ix.Lookup("400000000000000001")
	assert.Equal(t, "channel/category", TypeName(category))
	assert.Equal(t, 2, attrOf(t, category, "children", ".count"))
}

func TestFind(t *testing.T) {
	fx := loadFixture(t)
	ix := fx.Index()

	tests := []struct {
		name  string
		query string
		opts  FindOptions
		want  []string
	}{
		{"member by username", "bob", FindOptions{}, []string{"member:bob"}},
		{"member by nick", "ally", FindOptions{}, []string{"member:alice"}},
		{"case insensitive", "GENERAL", FindOptions{}, []string{"channel:general"}},
		{"user not deduplicated away", "carol", FindOptions{}, []string{"user:carol#4242"}},
		{"exact", "admin", FindOptions{Exact: true}, []string{"role:Admin"}},
		{"exact misses substring", "adm", FindOptions{Exact: true}, nil},
		{"fuzzy", "prt", FindOptions{Fuzzy: true}, []string{"emoji:party_parrot"}},
		{"guild scope", "test", FindOptions{GuildID: guildID}, nil},
		{"none", "zzz", FindOptions{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, v := range ix.Find(tt.query, tt.opts).Values() {
				n := v.(Node)
				got = append(got, n.Kind().String()+":"+n.String())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindDeduplicatesMembers(t *testing.T) {
	fx := loadFixture(t)
	res := fx.Index().Find("a", FindOptions{})
	seen := map[string]int{}
	for _, v := range res.Values() {
		if id, ok := v.(Node).Attr("id"); ok {
			seen[id.(string)]++
		}
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "id %s listed more than once", id)
	}
	assert.Equal(t, 1, seen[aliceID])
}

func TestListNaming(t *testing.T) {
	l := NewList("x", []any{"a", "b", "a", "a", ""})
	var names []string
	for _, it := range l.Items() {
		names = append(names, it.Name)
	}
	assert.Equal(t, []string{"a", "b", "a (1)", "a (2)", "4"}, names)
	v, ok := l.Attr(MetaCount)
	require.True(t, ok)
	assert.Equal(t, 5, v)
}

func TestRootCurrent(t *testing.T) {
	fx := loadFixture(t)
	ix := fx.Index()
	root := NewRoot(ix, fx.Context)

	assert.Equal(t, []string{"current", "get", "find", MetaType, MetaStr}, root.Entries())
	assert.Equal(t, KindMember, attrOf(t, root, "current", "member").(Node).Kind())
	assert.Equal(t, "$rps rock", attrOf(t, root, "current", "message", "content"))
	assert.Equal(t, "clibot", attrOf(t, root, "current", "bot", "name"))

	dm := Current(ix, Context{UserID: bobID})
	assert.Equal(t, Null, attrOf(t, dm, "guild"))
	assert.Equal(t, Null, attrOf(t, dm, "member"))
}

func TestPermissions(t *testing.T) {
	p := &PermissionsNode{Bits: 1<<11 | 1<<10}
	assert.True(t, p.Has("send_messages"))
	assert.False(t, p.Has("ban_members"))
	assert.Equal(t, "view_channel, send_messages", p.String())

	admin := &PermissionsNode{Bits: 1 << 3}
	assert.True(t, admin.Has("ban_members"))
}

func TestToJSON(t *testing.T) {
	fx := loadFixture(t)
	ix := fx.Index()
	role, ok := ix.Lookup("300000000000000002")
	require.True(t, ok)

	got := ToJSON(role, 1).(map[string]any)
	assert.Equal(t, "role", got["type"])
	assert.Equal(t, "Member", got["name"])
	assert.Equal(t, "#00ff00", got["color"])
	assert.Equal(t, []any{"alice", "bob"}, ToJSON(attrOf(t, role, "members"), 1))
	assert.Equal(t, "alice, bob", ToJSON(attrOf(t, role, "members"), 0))
	assert.Equal(t, "Member", ToJSON(role, 0))
}

func TestDescribe(t *testing.T) {
	c := &ColorNode{Value: 0x123456}
	assert.Equal(t, "#123456", Describe(c))
	assert.Equal(t, "value: 1193046\nhex: #123456\nr: 18\ng: 52\nb: 86", Describe(NewObject("c",
		Entry{"value", 1193046}, Entry{"hex", "#123456"}, Entry{"r", 18}, Entry{"g", 52}, Entry{"b", 86})))
	assert.Equal(t, "unknown", Describe(&UnknownNode{Label: "x"}))
}
