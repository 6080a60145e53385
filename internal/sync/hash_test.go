package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashEntryDeterministic(t *testing.T) {
	h1 := HashEntry("Hello", "greeting")
	h2 := HashEntry("Hello", "greeting")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHashEntryUnicodeNormalization(t *testing.T) {
	// "é" precomposed (U+00E9) vs decomposed (U+0065 U+0301)
	composed := "café"
	decomposed := "café"
	assert.NotEqual(t, composed, decomposed)
	assert.Equal(t, HashEntry(composed, ""), HashEntry(decomposed, ""))
}

func TestHashEntryFieldBoundary(t *testing.T) {
	// value and comment must not blur into each other
	assert.NotEqual(t, HashEntry("ab", "c"), HashEntry("a", "bc"))
	assert.NotEqual(t, HashEntry("ab", ""), HashEntry("", "ab"))
}

func TestHashEntryCommentChangesHash(t *testing.T) {
	assert.NotEqual(t, HashEntry("Hello", ""), HashEntry("Hello", "greeting"))
}

func TestHashPluralGroup(t *testing.T) {
	forms := map[PluralForm]string{
		PluralOne:   "%d item",
		PluralOther: "%d items",
	}

	h1 := HashPluralGroup(forms, "cart counter")
	h2 := HashPluralGroup(map[PluralForm]string{
		PluralOther: "%d items",
		PluralOne:   "%d item",
	}, "cart counter")
	assert.Equal(t, h1, h2, "map iteration order must not affect the hash")

	// changing one form changes the whole group hash
	changed := map[PluralForm]string{
		PluralOne:   "%d item",
		PluralOther: "%d things",
	}
	assert.NotEqual(t, h1, HashPluralGroup(changed, "cart counter"))

	// dropping a form changes the hash
	dropped := map[PluralForm]string{
		PluralOther: "%d items",
	}
	assert.NotEqual(t, h1, HashPluralGroup(dropped, "cart counter"))

	// comment participates
	assert.NotEqual(t, h1, HashPluralGroup(forms, ""))
}

func TestHashPluralGroupFormLabels(t *testing.T) {
	// the same text under different forms must hash differently
	a := HashPluralGroup(map[PluralForm]string{PluralOne: "x"}, "")
	b := HashPluralGroup(map[PluralForm]string{PluralOther: "x"}, "")
	assert.NotEqual(t, a, b)
}

func TestHashPluralGroupNormalization(t *testing.T) {
	a := HashPluralGroup(map[PluralForm]string{PluralOther: "café"}, "")
	b := HashPluralGroup(map[PluralForm]string{PluralOther: "café"}, "")
	assert.Equal(t, a, b)
}
