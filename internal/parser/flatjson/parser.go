// Package flatjson parses flat JSON translation files: one file per language,
// named <language>.json, holding a flat object of key to value. A value is
// either a plain string or an object with "value" and optional "comment"
// fields. Plural groups use the `<key>.plural.<form>` key convention with
// CLDR form names.
package flatjson

import (
	"fmt"
	"path"
	"strings"

	"github.com/goccy/go-json"

	"github.com/openlocale/openlocale/internal/sync"
)

const (
	FormatName   = "flatjson"
	pluralMarker = ".plural."
)

type Parser struct{}

var _ sync.FileParser = (*Parser)(nil)

func New() *Parser {
	return &Parser{}
}

func (p *Parser) Format() string {
	return FormatName
}

// Parse turns remote files into entries keyed by identity. Parse failures are
// isolated per file: a malformed file is skipped and reported while the rest
// of the set proceeds.
func (p *Parser) Parse(files []sync.RemoteFile, defaultLanguage string) (map[sync.EntryIdentity]*sync.RemoteEntry, []sync.ParseFileError) {
	entries := make(map[sync.EntryIdentity]*sync.RemoteEntry)
	var parseErrors []sync.ParseFileError

	// parse the default language first so plural anchor texts are available
	ordered := make([]sync.RemoteFile, 0, len(files))
	for _, f := range files {
		if languageOf(f.Path) == defaultLanguage {
			ordered = append(ordered, f)
		}
	}
	for _, f := range files {
		if languageOf(f.Path) != defaultLanguage {
			ordered = append(ordered, f)
		}
	}

	anchors := make(map[string]string) // plural base key -> default-language anchor text

	for _, f := range ordered {
		if err := p.parseFile(f, entries, anchors, defaultLanguage); err != nil {
			parseErrors = append(parseErrors, sync.ParseFileError{Path: f.Path, Err: err.Error()})
		}
	}

	return entries, parseErrors
}

type rawValue struct {
	Value   string `json:"value"`
	Comment string `json:"comment"`
}

type pluralGroup struct {
	forms   map[sync.PluralForm]string
	comment string
}

func (p *Parser) parseFile(f sync.RemoteFile, entries map[sync.EntryIdentity]*sync.RemoteEntry, anchors map[string]string, defaultLanguage string) error {
	language := languageOf(f.Path)
	if language == "" {
		return fmt.Errorf("cannot derive language from file name %q", path.Base(f.Path))
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(f.Content, &raw); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}

	groups := make(map[string]*pluralGroup)

	for key, rawVal := range raw {
		value, comment, err := decodeValue(rawVal)
		if err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}

		baseKey, form, isPlural := splitPluralKey(key)
		if !isPlural {
			id := sync.EntryIdentity{Key: key, Language: language}
			entries[id] = &sync.RemoteEntry{
				Identity: id,
				Value:    value,
				Comment:  comment,
				Hash:     sync.HashEntry(value, comment),
			}
			continue
		}

		group, ok := groups[baseKey]
		if !ok {
			group = &pluralGroup{forms: make(map[sync.PluralForm]string)}
			groups[baseKey] = group
		}
		group.forms[form] = value
		if comment != "" {
			group.comment = comment
		}
	}

	for baseKey, group := range groups {
		hash := sync.HashPluralGroup(group.forms, group.comment)

		if language == defaultLanguage {
			if other, ok := group.forms[sync.PluralOther]; ok {
				anchors[baseKey] = other
			}
		}

		for form, value := range group.forms {
			id := sync.EntryIdentity{Key: baseKey, Language: language, Plural: form}
			entries[id] = &sync.RemoteEntry{
				Identity:         id,
				Value:            value,
				Comment:          group.comment,
				Hash:             hash,
				IsPlural:         true,
				SourcePluralText: anchors[baseKey],
			}
		}
	}

	return nil
}

func decodeValue(raw json.RawMessage) (value, comment string, err error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, "", nil
	}

	var obj rawValue
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", "", fmt.Errorf("value must be a string or an object: %w", err)
	}
	return obj.Value, obj.Comment, nil
}

// splitPluralKey detects the `<key>.plural.<form>` convention. Keys with an
// unknown form name are treated as plain keys.
func splitPluralKey(key string) (baseKey string, form sync.PluralForm, ok bool) {
	idx := strings.LastIndex(key, pluralMarker)
	if idx < 0 {
		return key, sync.PluralNone, false
	}

	formName := key[idx+len(pluralMarker):]
	if formName == "" || !sync.ValidPluralForm(formName) || sync.PluralForm(formName) == sync.PluralNone {
		return key, sync.PluralNone, false
	}
	return key[:idx], sync.PluralForm(formName), true
}

// languageOf derives the language code from the file name: locales/de.json
// yields "de".
func languageOf(filePath string) string {
	base := path.Base(filePath)
	ext := path.Ext(base)
	if !strings.EqualFold(ext, ".json") {
		return ""
	}
	return strings.TrimSuffix(base, ext)
}
