package scorer

import (
	"bytes"
	"fmt"

	"github.com/bep/imagemeta"
)

// Metadata holds the embedded rights fields relevant to watermark detection.
type Metadata struct {
	EXIFCopyright string
	EXIFArtist    string
	IPTCCopyright string
	IPTCCredit    string
	IPTCSource    string
	XMPRights     string
	XMPUsageTerms string
}

// RightsFields returns the non-empty rights fields.
func (m *Metadata) RightsFields() []string {
	if m == nil {
		return nil
	}
	var out []string
	for _, f := range []string{
		m.EXIFCopyright,
		m.EXIFArtist,
		m.IPTCCopyright,
		m.IPTCCredit,
		m.IPTCSource,
		m.XMPRights,
		m.XMPUsageTerms,
	} {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// wantedTags maps (source, tag-name) → true for every tag we care about.
var wantedTags = map[imagemeta.Source]map[string]bool{
	imagemeta.EXIF: {
		"Copyright": true,
		"Artist":    true,
	},
	imagemeta.IPTC: {
		"CopyrightNotice": true,
		"Credit":          true,
		"Source":          true,
	},
	imagemeta.XMP: {
		"Rights":     true,
		"UsageTerms": true,
	},
}

// ExtractMetadata parses EXIF/IPTC/XMP rights fields from raw image bytes.
// Returns nil when nothing relevant is present or the data cannot be parsed;
// it never returns an error.
func ExtractMetadata(data []byte) *Metadata {
	if len(data) == 0 {
		return nil
	}

	meta := &Metadata{}
	found := false

	_, err := imagemeta.Decode(imagemeta.Options{
		R:       bytes.NewReader(data),
		Sources: imagemeta.EXIF | imagemeta.IPTC | imagemeta.XMP,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			if tags, ok := wantedTags[ti.Source]; ok {
				return tags[ti.Tag]
			}
			return false
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			value := tagValueString(ti.Value)
			if value == "" {
				return nil
			}
			switch {
			case ti.Source == imagemeta.EXIF && ti.Tag == "Copyright":
				meta.EXIFCopyright = value
			case ti.Source == imagemeta.EXIF && ti.Tag == "Artist":
				meta.EXIFArtist = value
			case ti.Source == imagemeta.IPTC && ti.Tag == "CopyrightNotice":
				meta.IPTCCopyright = value
			case ti.Source == imagemeta.IPTC && ti.Tag == "Credit":
				meta.IPTCCredit = value
			case ti.Source == imagemeta.IPTC && ti.Tag == "Source":
				meta.IPTCSource = value
			case ti.Source == imagemeta.XMP && ti.Tag == "Rights":
				meta.XMPRights = value
			case ti.Source == imagemeta.XMP && ti.Tag == "UsageTerms":
				meta.XMPUsageTerms = value
			default:
				return nil
			}
			found = true
			return nil
		},
	})
	if err != nil || !found {
		return nil
	}
	return meta
}

func tagValueString(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case []string:
		if len(value) == 0 {
			return ""
		}
		return value[0]
	case fmt.Stringer:
		return value.String()
	default:
		return ""
	}
}
