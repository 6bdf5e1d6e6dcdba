package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLinkTitleSplitsUserWordsAndTokens(t *testing.T) {
	lt := parseLinkTitle("user words here bref://abcdef123456")
	assert.Equal(t, "user words here", lt.userWords)
	assert.Equal(t, "abcdef123456", lt.bref)
	assert.False(t, lt.autoTitle)
}

func TestParseLinkTitleAutoTitleToken(t *testing.T) {
	lt := parseLinkTitle("auto-title:true bref://abcdef123456")
	assert.True(t, lt.autoTitle)
	assert.Equal(t, "abcdef123456", lt.bref)
	assert.Equal(t, "", lt.userWords)
}

func TestParseLinkTitleEmpty(t *testing.T) {
	lt := parseLinkTitle("")
	assert.Equal(t, linkTitle{}, lt)
	assert.Equal(t, "", lt.String())
}

func TestLinkTitleStringCanonicalOrder(t *testing.T) {
	lt := linkTitle{userWords: "a note", bref: "abcdef123456", autoTitle: true}
	assert.Equal(t, "a note auto-title:true bref://abcdef123456", lt.String())
}

func TestLinkTitleRoundTrip(t *testing.T) {
	for _, s := range []string{
		"bref://abcdef123456",
		"user note bref://abcdef123456",
		"just words",
		"",
	} {
		assert.Equal(t, s, parseLinkTitle(s).String(), "title %q should be a fixed point", s)
	}
}
