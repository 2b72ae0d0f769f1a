package schema

import (
	"path/filepath"
	"strings"

	"orderhub/internal/model"
)

// DetectChannel infers a channel from a file path: the filename tag first
// (WEB, MOB, BOU, case-sensitive), then a channel name anywhere in the path.
func DetectChannel(path string) model.Channel {
	base := filepath.Base(path)
	for _, ch := range model.Channels {
		if strings.Contains(base, ch.Tag()) {
			return ch
		}
	}
	lower := strings.ToLower(filepath.ToSlash(path))
	for _, ch := range model.Channels {
		if strings.Contains(lower, string(ch)) {
			return ch
		}
	}
	return model.ChannelUnknown
}

// ResolveChannel returns the declared channel when rec carries one, otherwise the
// channel detected from path. The detected value is written into rec so validation
// and normalization see the same channel. declared reports which case applied.
func ResolveChannel(rec model.SourceRecord, path string) (ch model.Channel, declared bool) {
	if rec.Has(model.FieldChannel) {
		s, _ := rec.String(model.FieldChannel)
		return model.ParseChannel(s), true
	}
	ch = DetectChannel(path)
	rec[model.FieldChannel] = string(ch)
	return ch, false
}
