// Package graph exposes chat-platform entities as a read-only tree of nodes.
//
// Nodes are views over discordgo state. They never mutate it.
package graph

import (
	"fmt"
	"strings"
	"time"
)

// Kind tags a node.
type Kind int

const (
	KindUnknown Kind = iota
	KindObject
	KindID
	KindUnicodeEmoji
	KindColor
	KindUser
	KindMember
	KindGuild
	KindChannel
	KindRole
	KindEmoji
	KindMessage
	KindActivity
	KindPermissions
	KindList
	KindNull
)

var kindNames = [...]string{
	KindUnknown:      "unknown",
	KindObject:       "object",
	KindID:           "id",
	KindUnicodeEmoji: "unicode-emoji",
	KindColor:        "color",
	KindUser:         "user",
	KindMember:       "member",
	KindGuild:        "guild",
	KindChannel:      "channel",
	KindRole:         "role",
	KindEmoji:        "emoji",
	KindMessage:      "message",
	KindActivity:     "activity",
	KindPermissions:  "permissions",
	KindList:         "list",
	KindNull:         "null",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Node is a read view over one entity. The set of implementations is closed.
type Node interface {
	Kind() Kind
	// Name is the entry name used when the node is listed inside a container.
	Name() string
	// String is the display form.
	String() string
	// Entries lists child names in order, including dot-prefixed meta entries.
	Entries() []string
	// Attr returns a child node or scalar.
	Attr(name string) (any, bool)

	node()
}

// Meta entry names present on every node.
const (
	MetaType     = ".type"
	MetaStr      = ".str"
	MetaDiscord  = ".discord"
	MetaImageURL = ".image_url"
	MetaCount    = ".count"
)

type mentioner interface{ Mention() string }

type imager interface{ ImageURL() string }

type attr struct {
	name string
	get  func() any
}

type attrs []attr

func (a attrs) names() []string {
	out := make([]string, len(a))
	for i := range a {
		out[i] = a[i].name
	}
	return out
}

func (a attrs) get(name string) (any, bool) {
	for i := range a {
		if a[i].name == name {
			return a[i].get(), true
		}
	}
	return nil, false
}

func entries(n Node, a attrs) []string {
	return append(a.names(), metaNames(n)...)
}

func lookup(n Node, a attrs, name string) (any, bool) {
	if strings.HasPrefix(name, ".") {
		return meta(n, name)
	}
	return a.get(name)
}

func metaNames(n Node) []string {
	out := []string{MetaType, MetaStr}
	if m, ok := n.(mentioner); ok && m.Mention() != "" {
		out = append(out, MetaDiscord)
	}
	if i, ok := n.(imager); ok && i.ImageURL() != "" {
		out = append(out, MetaImageURL)
	}
	return out
}

func meta(n Node, name string) (any, bool) {
	switch name {
	case MetaType:
		return TypeName(n), true
	case MetaStr:
		return n.String(), true
	case MetaDiscord:
		if m, ok := n.(mentioner); ok && m.Mention() != "" {
			return m.Mention(), true
		}
	case MetaImageURL:
		if i, ok := n.(imager); ok && i.ImageURL() != "" {
			return i.ImageURL(), true
		}
	}
	return nil, false
}

// TypeName is the kind name, qualified by variant for channels and
// activities (e.g. "channel/text", "activity/spotify").
func TypeName(n Node) string {
	switch n := n.(type) {
	case *ChannelNode:
		return n.Kind().String() + "/" + n.Variant().String()
	case *ActivityNode:
		return n.Kind().String() + "/" + n.Variant().String()
	default:
		return n.Kind().String()
	}
}

// Scalar renders an attribute value as text.
func Scalar(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case Node:
		return v.String()
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return v.UTC().Format(time.RFC3339)
	case *time.Time:
		if v == nil {
			return ""
		}
		return Scalar(*v)
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(v)
	}
}

// Child returns the node at name, or false when the attribute is missing or
// not a node.
func Child(n Node, name string) (Node, bool) {
	v, ok := n.Attr(name)
	if !ok {
		return nil, false
	}
	c, ok := v.(Node)
	return c, ok
}
