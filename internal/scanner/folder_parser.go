package scanner

import (
	"regexp"
	"strconv"
	"strings"
)

// ParsedFolder is the result of parsing one remote folder name.
type ParsedFolder struct {
	Title  string
	Season int // 0 = no season marker found
	Year   *int
}

// ──────────────────── Compiled Regex (init once) ────────────────────

// Year in parentheses or brackets: "Title (2020)" / "Title [2020]".
var yearRx = regexp.MustCompile(`[\(\[]([12]\d{3})[\)\]]`)

// Season markers, in matching priority order:
//
//	"Show S02", "Show S02E05"  → compact marker
//	"Show Season 2"            → verbose marker
//	"Show 2nd Season"          → ordinal marker
var seasonCompactRx = regexp.MustCompile(`(?i)(?:^|[\s._-])S(\d{1,2})(?:E\d{1,4})?(?:[\s._-]|$)`)
var seasonVerboseRx = regexp.MustCompile(`(?i)(?:^|[\s._-])Season[\s._-]*(\d{1,2})(?:[\s._-]|$)`)
var seasonOrdinalRx = regexp.MustCompile(`(?i)(?:^|[\s._-])(\d{1,2})(?:st|nd|rd|th)[\s._-]+Season(?:[\s._-]|$)`)

var bracketContentRx = regexp.MustCompile(`\[[^\]]*\]`)
var braceContentRx = regexp.MustCompile(`\{[^}]*\}`)
var spaceRx = regexp.MustCompile(`\s+`)

// ParseFolderName extracts a clean title, an optional season number and an
// optional year from a remote folder name. The season marker and year are
// cut from the title; release-group brackets are stripped entirely.
func ParseFolderName(folderName string) ParsedFolder {
	parsed := ParsedFolder{Title: folderName}
	if folderName == "" || folderName == "." || folderName == "/" {
		return parsed
	}

	name := bracketContentRx.ReplaceAllString(folderName, " ")
	name = braceContentRx.ReplaceAllString(name, " ")

	if m := yearRx.FindStringSubmatch(folderName); len(m) >= 2 {
		y, _ := strconv.Atoi(m[1])
		if y >= 1900 && y <= 2100 {
			parsed.Year = &y
			if idx := strings.Index(name, m[0]); idx >= 0 {
				name = name[:idx]
			}
		}
	}

	cutAt := len(name)
	for _, rx := range []*regexp.Regexp{seasonCompactRx, seasonVerboseRx, seasonOrdinalRx} {
		m := rx.FindStringSubmatchIndex(name)
		if m == nil {
			continue
		}
		season, _ := strconv.Atoi(name[m[2]:m[3]])
		if season == 0 {
			continue
		}
		parsed.Season = season
		if m[0] < cutAt {
			cutAt = m[0]
		}
		break
	}

	title := cleanTitle(strings.TrimRight(name[:cutAt], " -–._"))
	if title == "" {
		// Marker-only names like "Season 1": fall back to the cleaned
		// name so the search query is never empty.
		title = cleanTitle(name)
	}
	if title == "" {
		title = folderName
	}
	parsed.Title = title

	return parsed
}

func cleanTitle(s string) string {
	s = strings.ReplaceAll(s, ".", " ")
	s = strings.ReplaceAll(s, "_", " ")
	return strings.TrimSpace(spaceRx.ReplaceAllString(s, " "))
}
