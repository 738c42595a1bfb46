package types

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// StreamType identifies a single data stream originating from the glasses
// or derived from one upstream.
type StreamType string

const (
	StreamButtonPress       StreamType = "button_press"
	StreamHeadPosition      StreamType = "head_position"
	StreamPhoneNotification StreamType = "phone_notification"
	StreamLocationUpdate    StreamType = "location_update"
	StreamCalendarEvent     StreamType = "calendar_event"
	StreamVAD               StreamType = "vad"
	StreamGlassesBattery    StreamType = "glasses_battery_update"
	StreamPhoneBattery      StreamType = "phone_battery_update"
	StreamAudioChunk        StreamType = "audio_chunk"
	StreamPhotoTaken        StreamType = "photo_taken"
	StreamOpenDashboard     StreamType = "open_dashboard"
	StreamTranscription     StreamType = "transcription"
	StreamTranslation       StreamType = "translation"
)

// Wildcard selectors cover every plain stream tag. They never cover
// language-parameterized streams.
const (
	WildcardAll  Selector = "all"
	WildcardStar Selector = "*"
)

// ErrInvalidSelector reports a malformed or unknown subscription selector.
var ErrInvalidSelector = errors.New("invalid stream selector")

var plainStreams = map[StreamType]struct{}{
	StreamButtonPress:       {},
	StreamHeadPosition:      {},
	StreamPhoneNotification: {},
	StreamLocationUpdate:    {},
	StreamCalendarEvent:     {},
	StreamVAD:               {},
	StreamGlassesBattery:    {},
	StreamPhoneBattery:      {},
	StreamAudioChunk:        {},
	StreamPhotoTaken:        {},
	StreamOpenDashboard:     {},
	StreamTranscription:     {},
	StreamTranslation:       {},
}

// localePattern accepts BCP-47 style tags: a 2-3 letter language subtag
// followed by optional 2-8 character subtags.
var localePattern = regexp.MustCompile(`^[A-Za-z]{2,3}(-[A-Za-z0-9]{2,8})*$`)

// KnownStream reports whether t is a recognized plain stream tag.
func KnownStream(t StreamType) bool {
	_, ok := plainStreams[t]
	return ok
}

// Selector is a normalized subscription selector: a plain stream tag, a
// wildcard, or a language-parameterized stream such as
// "transcription:en-US" or "translation:es-ES-to-en-US".
type Selector string

// ParseSelector validates raw and returns its canonical form. Locale
// parameters are case-normalized so equal subscriptions compare equal
// regardless of the case the app sent them in.
func ParseSelector(raw string) (Selector, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty selector", ErrInvalidSelector)
	}
	if sel := Selector(s); sel == WildcardAll || sel == WildcardStar {
		return sel, nil
	}

	head, param, hasParam := strings.Cut(s, ":")
	stream := StreamType(head)
	if !hasParam {
		if _, ok := plainStreams[stream]; !ok {
			return "", fmt.Errorf("%w: unknown stream %q", ErrInvalidSelector, s)
		}
		return Selector(s), nil
	}

	switch stream {
	case StreamTranscription:
		locale, err := normalizeLocale(param)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %s", ErrInvalidSelector, s, err)
		}
		return Selector(string(StreamTranscription) + ":" + locale), nil
	case StreamTranslation:
		srcRaw, tgtRaw, ok := strings.Cut(param, "-to-")
		if !ok {
			return "", fmt.Errorf("%w: %q: translation needs source and target locales", ErrInvalidSelector, s)
		}
		src, err := normalizeLocale(srcRaw)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %s", ErrInvalidSelector, s, err)
		}
		tgt, err := normalizeLocale(tgtRaw)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %s", ErrInvalidSelector, s, err)
		}
		return Selector(fmt.Sprintf("%s:%s-to-%s", StreamTranslation, src, tgt)), nil
	default:
		return "", fmt.Errorf("%w: stream %q does not take parameters", ErrInvalidSelector, head)
	}
}

// Type returns the stream tag portion of the selector.
func (s Selector) Type() StreamType {
	head, _, _ := strings.Cut(string(s), ":")
	return StreamType(head)
}

// IsWildcard reports whether the selector covers every plain stream.
func (s Selector) IsWildcard() bool {
	return s == WildcardAll || s == WildcardStar
}

// IsLanguage reports whether the selector carries locale parameters.
func (s Selector) IsLanguage() bool {
	if !strings.Contains(string(s), ":") {
		return false
	}
	t := s.Type()
	return t == StreamTranscription || t == StreamTranslation
}

// IsMedia reports whether the selector implies upstream audio capture.
// Wildcards count: they cover the plain audio_chunk stream.
func (s Selector) IsMedia() bool {
	if s.IsWildcard() {
		return true
	}
	switch s.Type() {
	case StreamAudioChunk, StreamTranscription, StreamTranslation:
		return true
	}
	return false
}

// Language returns the parsed locale parameters of a language selector.
func (s Selector) Language() (LanguageInfo, bool) {
	if !s.IsLanguage() {
		return LanguageInfo{}, false
	}
	_, param, _ := strings.Cut(string(s), ":")
	if s.Type() == StreamTranslation {
		src, tgt, _ := strings.Cut(param, "-to-")
		return LanguageInfo{Stream: StreamTranslation, Source: src, Target: tgt}, true
	}
	return LanguageInfo{Stream: StreamTranscription, Locale: param}, true
}

// Matches reports whether a stored subscription covers the queried
// selector. Wildcards cover plain streams only; language selectors match
// by exact normalized equality, never by bare stream tag.
func (s Selector) Matches(query Selector) bool {
	if s == query {
		return true
	}
	if s.IsWildcard() {
		if query.IsLanguage() {
			return false
		}
		_, plain := plainStreams[query.Type()]
		return plain
	}
	return false
}

// LanguageInfo holds the locale parameters of a language selector.
type LanguageInfo struct {
	Stream StreamType `json:"stream"`
	Locale string     `json:"locale,omitempty"`
	Source string     `json:"source,omitempty"`
	Target string     `json:"target,omitempty"`
}

func normalizeLocale(raw string) (string, error) {
	if !localePattern.MatchString(raw) {
		return "", fmt.Errorf("bad locale %q", raw)
	}
	parts := strings.Split(raw, "-")
	parts[0] = strings.ToLower(parts[0])
	for i, p := range parts[1:] {
		switch len(p) {
		case 2:
			parts[i+1] = strings.ToUpper(p)
		case 4:
			parts[i+1] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
		default:
			parts[i+1] = strings.ToLower(p)
		}
	}
	return strings.Join(parts, "-"), nil
}
