package flatjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlocale/openlocale/internal/sync"
)

func file(path, content string) sync.RemoteFile {
	return sync.RemoteFile{Path: path, Content: []byte(content)}
}

func TestParsePlainEntries(t *testing.T) {
	p := New()

	entries, errs := p.Parse([]sync.RemoteFile{
		file("locales/de.json", `{
			"hello": "Hallo",
			"bye": {"value": "Tschüss", "comment": "farewell"}
		}`),
	}, "en")

	require.Empty(t, errs)
	require.Len(t, entries, 2)

	hello := entries[sync.EntryIdentity{Key: "hello", Language: "de"}]
	require.NotNil(t, hello)
	assert.Equal(t, "Hallo", hello.Value)
	assert.Equal(t, sync.HashEntry("Hallo", ""), hello.Hash)
	assert.False(t, hello.IsPlural)

	bye := entries[sync.EntryIdentity{Key: "bye", Language: "de"}]
	require.NotNil(t, bye)
	assert.Equal(t, "Tschüss", bye.Value)
	assert.Equal(t, "farewell", bye.Comment)
	assert.Equal(t, sync.HashEntry("Tschüss", "farewell"), bye.Hash)
}

func TestParsePluralGroup(t *testing.T) {
	p := New()

	entries, errs := p.Parse([]sync.RemoteFile{
		file("locales/de.json", `{
			"items.plural.one": "%d Stück",
			"items.plural.other": {"value": "%d Stücke", "comment": "cart"}
		}`),
	}, "en")

	require.Empty(t, errs)
	require.Len(t, entries, 2)

	one := entries[sync.EntryIdentity{Key: "items", Language: "de", Plural: sync.PluralOne}]
	other := entries[sync.EntryIdentity{Key: "items", Language: "de", Plural: sync.PluralOther}]
	require.NotNil(t, one)
	require.NotNil(t, other)

	assert.True(t, one.IsPlural)
	assert.True(t, other.IsPlural)

	want := sync.HashPluralGroup(map[sync.PluralForm]string{
		sync.PluralOne:   "%d Stück",
		sync.PluralOther: "%d Stücke",
	}, "cart")
	assert.Equal(t, want, one.Hash, "every form carries the group hash")
	assert.Equal(t, want, other.Hash)
	assert.Equal(t, "cart", one.Comment)
}

func TestParsePluralAnchorFromDefaultLanguage(t *testing.T) {
	p := New()

	entries, errs := p.Parse([]sync.RemoteFile{
		// default language listed last on purpose; it must still anchor
		file("locales/de.json", `{"items.plural.other": "%d Stücke"}`),
		file("locales/en.json", `{"items.plural.one": "%d item", "items.plural.other": "%d items"}`),
	}, "en")

	require.Empty(t, errs)

	de := entries[sync.EntryIdentity{Key: "items", Language: "de", Plural: sync.PluralOther}]
	require.NotNil(t, de)
	assert.Equal(t, "%d items", de.SourcePluralText)
}

func TestParseUnknownPluralFormIsPlainKey(t *testing.T) {
	p := New()

	entries, errs := p.Parse([]sync.RemoteFile{
		file("locales/de.json", `{"items.plural.dozens": "viele"}`),
	}, "en")

	require.Empty(t, errs)
	require.Len(t, entries, 1)

	plain := entries[sync.EntryIdentity{Key: "items.plural.dozens", Language: "de"}]
	require.NotNil(t, plain)
	assert.False(t, plain.IsPlural)
}

func TestParseErrorIsIsolatedPerFile(t *testing.T) {
	p := New()

	entries, errs := p.Parse([]sync.RemoteFile{
		file("locales/de.json", `{"hello": "Hallo"}`),
		file("locales/fr.json", `{not json`),
		file("locales/it.txt", `whatever`),
	}, "en")

	require.Len(t, errs, 2)
	paths := []string{errs[0].Path, errs[1].Path}
	assert.Contains(t, paths, "locales/fr.json")
	assert.Contains(t, paths, "locales/it.txt")

	// the healthy file still parsed
	require.Len(t, entries, 1)
	assert.NotNil(t, entries[sync.EntryIdentity{Key: "hello", Language: "de"}])
}

func TestParseLanguageFromFileName(t *testing.T) {
	p := New()

	entries, errs := p.Parse([]sync.RemoteFile{
		file("deep/nested/path/pt-BR.json", `{"hello": "Olá"}`),
	}, "en")

	require.Empty(t, errs)
	assert.NotNil(t, entries[sync.EntryIdentity{Key: "hello", Language: "pt-BR"}])
}
