package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayText(t *testing.T) {
	cases := map[Type]string{
		TypeMention: "bob mentioned you in a comment",
		TypeComment: "bob commented on your post",
		TypeReply:   "bob replied to your comment",
		TypeLike:    "bob liked your post",
	}
	for typ, want := range cases {
		assert.Equal(t, want, DisplayText(typ, "bob"))
	}
	assert.Empty(t, DisplayText(Type("SHARE"), "bob"))
}

func TestParseType(t *testing.T) {
	typ, ok := ParseType(" comment ")
	assert.True(t, ok)
	assert.Equal(t, TypeComment, typ)

	_, ok = ParseType("SHARE")
	assert.False(t, ok)
}

func TestMentions(t *testing.T) {
	assert.Equal(t, []string{"alice", "bob_2"}, Mentions("hey @alice and @bob_2, cc @alice"))
	assert.Nil(t, Mentions("no handles here, mail me at @"))
}
