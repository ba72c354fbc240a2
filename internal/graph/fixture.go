package graph

import (
	"fmt"
	"io"
	"time"

	"github.com/bwmarrin/discordgo"
	"gopkg.in/yaml.v3"
)

// Fixture is a state snapshot decoded from YAML.
type Fixture struct {
	State   *discordgo.State
	Context Context
	Users   []*discordgo.User
}

// Index indexes the fixture state.
func (f *Fixture) Index() *Index { return NewIndex(f.State, f.Users...) }

type fixtureFile struct {
	Bot     *fixtureUser   `yaml:"bot"`
	Users   []fixtureUser  `yaml:"users"`
	Guilds  []fixtureGuild `yaml:"guilds"`
	Context struct {
		UserID    string `yaml:"user_id"`
		GuildID   string `yaml:"guild_id"`
		ChannelID string `yaml:"channel_id"`
		MessageID string `yaml:"message_id"`
	} `yaml:"context"`
}

type fixtureUser struct {
	ID            string `yaml:"id"`
	Username      string `yaml:"username"`
	GlobalName    string `yaml:"global_name"`
	Discriminator string `yaml:"discriminator"`
	Avatar        string `yaml:"avatar"`
	AccentColor   int    `yaml:"accent_color"`
	Bot           bool   `yaml:"bot"`
}

type fixtureGuild struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	OwnerID     string `yaml:"owner_id"`
	Icon        string `yaml:"icon"`
	Description string `yaml:"description"`
	Roles       []struct {
		ID          string `yaml:"id"`
		Name        string `yaml:"name"`
		Color       int    `yaml:"color"`
		Position    int    `yaml:"position"`
		Permissions int64  `yaml:"permissions"`
		Hoist       bool   `yaml:"hoist"`
		Mentionable bool   `yaml:"mentionable"`
	} `yaml:"roles"`
	Channels []struct {
		ID       string `yaml:"id"`
		Name     string `yaml:"name"`
		Type     string `yaml:"type"`
		Topic    string `yaml:"topic"`
		Position int    `yaml:"position"`
		ParentID string `yaml:"parent_id"`
		NSFW     bool   `yaml:"nsfw"`
	} `yaml:"channels"`
	Emojis []struct {
		ID       string `yaml:"id"`
		Name     string `yaml:"name"`
		Animated bool   `yaml:"animated"`
	} `yaml:"emojis"`
	Members []struct {
		UserID   string    `yaml:"user_id"`
		Nick     string    `yaml:"nick"`
		Roles    []string  `yaml:"roles"`
		JoinedAt time.Time `yaml:"joined_at"`
	} `yaml:"members"`
	Presences []struct {
		UserID     string `yaml:"user_id"`
		Status     string `yaml:"status"`
		Activities []struct {
			Name    string `yaml:"name"`
			Type    string `yaml:"type"`
			Details string `yaml:"details"`
			State   string `yaml:"state"`
			URL     string `yaml:"url"`
			Emoji   string `yaml:"emoji"`
		} `yaml:"activities"`
	} `yaml:"presences"`
	Messages []struct {
		ID        string    `yaml:"id"`
		ChannelID string    `yaml:"channel_id"`
		AuthorID  string    `yaml:"author_id"`
		Content   string    `yaml:"content"`
		Timestamp time.Time `yaml:"timestamp"`
		Pinned    bool      `yaml:"pinned"`
	} `yaml:"messages"`
}

var channelTypes = map[string]discordgo.ChannelType{
	"":         discordgo.ChannelTypeGuildText,
	"text":     discordgo.ChannelTypeGuildText,
	"voice":    discordgo.ChannelTypeGuildVoice,
	"category": discordgo.ChannelTypeGuildCategory,
	"news":     discordgo.ChannelTypeGuildNews,
	"forum":    discordgo.ChannelTypeGuildForum,
}

var activityTypes = map[string]discordgo.ActivityType{
	"":          discordgo.ActivityTypeGame,
	"game":      discordgo.ActivityTypeGame,
	"streaming": discordgo.ActivityTypeStreaming,
	"listening": discordgo.ActivityTypeListening,
	"watching":  discordgo.ActivityTypeWatching,
	"custom":    discordgo.ActivityTypeCustom,
	"competing": discordgo.ActivityTypeCompeting,
}

func (u fixtureUser) user() *discordgo.User {
	return &discordgo.User{
		ID:            u.ID,
		Username:      u.Username,
		GlobalName:    u.GlobalName,
		Discriminator: u.Discriminator,
		Avatar:        u.Avatar,
		AccentColor:   u.AccentColor,
		Bot:           u.Bot,
	}
}

// LoadFixture decodes a YAML snapshot into a populated state.
func LoadFixture(r io.Reader) (*Fixture, error) {
	var file fixtureFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}

	state := discordgo.NewState()
	state.MaxMessageCount = 100

	users := make(map[string]*discordgo.User)
	f := &Fixture{State: state}
	if file.Bot != nil {
		state.User = file.Bot.user()
		users[state.User.ID] = state.User
	}
	for _, fu := range file.Users {
		u := fu.user()
		users[u.ID] = u
		f.Users = append(f.Users, u)
	}
	userFor := func(id string) (*discordgo.User, error) {
		u, ok := users[id]
		if !ok {
			return nil, fmt.Errorf("fixture: unknown user %q", id)
		}
		return u, nil
	}

	for _, fg := range file.Guilds {
		g := &discordgo.Guild{
			ID:          fg.ID,
			Name:        fg.Name,
			OwnerID:     fg.OwnerID,
			Icon:        fg.Icon,
			Description: fg.Description,
		}
		for _, r := range fg.Roles {
			g.Roles = append(g.Roles, &discordgo.Role{
				ID:          r.ID,
				Name:        r.Name,
				Color:       r.Color,
				Position:    r.Position,
				Permissions: r.Permissions,
				Hoist:       r.Hoist,
				Mentionable: r.Mentionable,
			})
		}
		for _, c := range fg.Channels {
			t, ok := channelTypes[c.Type]
			if !ok {
				return nil, fmt.Errorf("fixture: channel %s: unknown type %q", c.ID, c.Type)
			}
			g.Channels = append(g.Channels, &discordgo.Channel{
				ID:       c.ID,
				GuildID:  g.ID,
				Name:     c.Name,
				Type:     t,
				Topic:    c.Topic,
				Position: c.Position,
				ParentID: c.ParentID,
				NSFW:     c.NSFW,
			})
		}
		for _, e := range fg.Emojis {
			g.Emojis = append(g.Emojis, &discordgo.Emoji{ID: e.ID, Name: e.Name, Animated: e.Animated})
		}
		for _, m := range fg.Members {
			u, err := userFor(m.UserID)
			if err != nil {
				return nil, err
			}
			g.Members = append(g.Members, &discordgo.Member{
				GuildID:  g.ID,
				User:     u,
				Nick:     m.Nick,
				Roles:    m.Roles,
				JoinedAt: m.JoinedAt,
			})
		}
		g.MemberCount = len(g.Members)
		for _, p := range fg.Presences {
			u, err := userFor(p.UserID)
			if err != nil {
				return nil, err
			}
			pr := &discordgo.Presence{User: u, Status: discordgo.Status(p.Status)}
			for _, a := range p.Activities {
				t, ok := activityTypes[a.Type]
				if !ok {
					return nil, fmt.Errorf("fixture: activity %q: unknown type %q", a.Name, a.Type)
				}
				pr.Activities = append(pr.Activities, &discordgo.Activity{
					Name:    a.Name,
					Type:    t,
					Details: a.Details,
					State:   a.State,
					URL:     a.URL,
					Emoji:   discordgo.Emoji{Name: a.Emoji},
				})
			}
			g.Presences = append(g.Presences, pr)
		}
		if err := state.GuildAdd(g); err != nil {
			return nil, fmt.Errorf("fixture: guild %s: %w", g.ID, err)
		}
		for _, m := range fg.Messages {
			u, err := userFor(m.AuthorID)
			if err != nil {
				return nil, err
			}
			msg := &discordgo.Message{
				ID:        m.ID,
				ChannelID: m.ChannelID,
				GuildID:   g.ID,
				Author:    u,
				Content:   m.Content,
				Timestamp: m.Timestamp,
				Pinned:    m.Pinned,
			}
			if err := state.MessageAdd(msg); err != nil {
				return nil, fmt.Errorf("fixture: message %s: %w", m.ID, err)
			}
		}
	}

	f.Context = Context{
		UserID:    file.Context.UserID,
		GuildID:   file.Context.GuildID,
		ChannelID: file.Context.ChannelID,
		MessageID: file.Context.MessageID,
	}
	return f, nil
}
