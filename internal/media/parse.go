package media

import (
	"regexp"
	"strconv"
	"strings"
)

// The parser derives a ParsedCandidate from a raw filename alone. It
// tries an ordered list of release-name patterns (most specific first)
// and stops at the first match; a name with no recognisable structure
// is a normal outcome, not a failure, so Parse never errors.

const unknownTitle = "Unknown Title"

var (
	// A trailing dot-segment is only treated as a file extension when it
	// looks like one; this stops a trailing year (Movie.Name.2020) from
	// being stripped as an extension.
	extensionPattern = regexp.MustCompile(`(?i)\.([a-z][a-z0-9]{1,4})$`)

	// Pattern: Movie.Name.2020.1080p.BluRay.x264-GROUP
	dotFullPattern = regexp.MustCompile(`(?i)^(.+?)\.(\d{4})\.(1080p|720p|2160p|4k)\.?(bluray|web-dl|webrip|dvd|hdtv)(?:\.([a-z0-9]+))?(?:-([a-z0-9]+))?$`)

	// Pattern: Movie Name (2020) [1080p] [BluRay] [x264]
	bracketPattern = regexp.MustCompile(`(?i)^(.+?)\s*\((\d{4})\)(?:\s*\[([^\]]+)\])?(?:\s*\[([^\]]+)\])?(?:\s*\[([^\]]+)\])?`)

	// Pattern: Movie.Name.2020.1080p.BluRay (trailing fields optional)
	dotLoosePattern = regexp.MustCompile(`(?i)^(.+?)\.(\d{4})\.(1080p|720p|2160p|4k)(?:\.([a-z0-9-]+))?`)

	// Pattern: Movie.Name.2020
	dotYearPattern = regexp.MustCompile(`^(.+?)\.(\d{4})(?:\.|$)`)

	// Fallback: the first standalone 4-digit run anywhere in the name. A
	// run bordered by further digits is not a year.
	looseYearPattern = regexp.MustCompile(`(?:^|[^0-9])(\d{4})(?:[^0-9]|$)`)
)

// Tag vocabularies. Tokens outside these sets are dropped rather
// than guessed, keeping the candidate free of junk release tags.
var (
	qualityVocab = map[string]string{
		"1080p": "1080p", "720p": "720p", "2160p": "2160p", "4k": "4K",
	}
	sourceVocab = map[string]string{
		"bluray": "BluRay", "web-dl": "WEB-DL", "webrip": "WEBRip", "dvd": "DVD", "hdtv": "HDTV",
	}
	codecVocab = map[string]string{
		"x264": "x264", "x265": "x265", "h264": "h264", "h265": "h265",
		"hevc": "HEVC", "xvid": "XviD", "divx": "DivX", "av1": "AV1",
	}
)

// Parse derives a structured candidate from the raw filename provided.
// It never fails: when no structural pattern matches, the whole name
// (minus extension) becomes the title and every other field is unset.
// An empty filename yields the "Unknown Title" placeholder.
func Parse(filename string) ParsedCandidate {
	name := extensionPattern.ReplaceAllString(filename, "")
	if normalizeTitle(name) == "" {
		return ParsedCandidate{Title: unknownTitle}
	}

	if groups := dotFullPattern.FindStringSubmatch(name); groups != nil {
		return ParsedCandidate{
			Title:   normalizeTitle(groups[1]),
			Year:    parseYear(groups[2]),
			Quality: lookupTag(qualityVocab, groups[3]),
			Source:  lookupTag(sourceVocab, groups[4]),
			Codec:   lookupTag(codecVocab, groups[5]),
			Group:   groups[6],
		}
	}

	if groups := bracketPattern.FindStringSubmatch(name); groups != nil {
		candidate := ParsedCandidate{
			Title: normalizeTitle(groups[1]),
			Year:  parseYear(groups[2]),
		}

		// The bracketed tags carry no positional guarantee, so each one
		// is classified against the vocabularies instead.
		for _, tag := range groups[3:6] {
			switch {
			case tag == "":
			case candidate.Quality == "" && lookupTag(qualityVocab, tag) != "":
				candidate.Quality = lookupTag(qualityVocab, tag)
			case candidate.Source == "" && lookupTag(sourceVocab, tag) != "":
				candidate.Source = lookupTag(sourceVocab, tag)
			case candidate.Codec == "" && lookupTag(codecVocab, tag) != "":
				candidate.Codec = lookupTag(codecVocab, tag)
			}
		}

		return candidate
	}

	if groups := dotLoosePattern.FindStringSubmatch(name); groups != nil {
		return ParsedCandidate{
			Title:   normalizeTitle(groups[1]),
			Year:    parseYear(groups[2]),
			Quality: lookupTag(qualityVocab, groups[3]),
			Source:  lookupTag(sourceVocab, groups[4]),
		}
	}

	if groups := dotYearPattern.FindStringSubmatch(name); groups != nil {
		return ParsedCandidate{
			Title: normalizeTitle(groups[1]),
			Year:  parseYear(groups[2]),
		}
	}

	if groups := looseYearPattern.FindStringSubmatchIndex(name); groups != nil {
		yearStart, yearEnd := groups[2], groups[3]
		title := normalizeTitle(name[:yearStart] + " " + name[yearEnd:])
		if title == "" {
			title = unknownTitle
		}

		return ParsedCandidate{
			Title: title,
			Year:  parseYear(name[yearStart:yearEnd]),
		}
	}

	return ParsedCandidate{Title: normalizeTitle(name)}
}

// normalizeTitle replaces dot/underscore separators with spaces,
// collapses runs of whitespace and trims leftover separator junk
// from the edges of the title.
func normalizeTitle(raw string) string {
	cleaned := strings.NewReplacer(".", " ", "_", " ").Replace(raw)
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	return strings.Trim(cleaned, " -")
}

func parseYear(raw string) *int {
	if len(raw) != 4 {
		return nil
	}

	year, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}

	return &year
}

func lookupTag(vocab map[string]string, token string) string {
	return vocab[strings.ToLower(token)]
}
