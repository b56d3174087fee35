package parser

import (
	"strings"
)

// Variant is one historical simulation log layout
type Variant int

const (
	TextV2 Variant = iota + 1
	TextV2_3
	TextV3
	TextV3_2
	TextV3_4
	TextV3_5
	BinaryV3_13
)

func (v Variant) String() string {
	switch v {
	case TextV2:
		return "text-2"
	case TextV2_3:
		return "text-2.3"
	case TextV3:
		return "text-3.0"
	case TextV3_2:
		return "text-3.2"
	case TextV3_4:
		return "text-3.4"
	case TextV3_5:
		return "text-3.5"
	case BinaryV3_13:
		return "binary-3.13"
	default:
		return "unknown"
	}
}

// SelectVariant maps a sniffed header to its parser. A version matches a
// known version p when it equals p or starts with p followed by a dot, so
// "3.2.1" selects the 3.2 layout but "3.20" does not.
func SelectVariant(h Header) (Variant, error) {
	switch h.Family {
	case Binary:
		if matchesVersion(h.Version, "3.13") {
			return BinaryV3_13, nil
		}
	case Text:
		switch h.Columns {
		case 7:
			if strings.HasPrefix(h.Version, "2.") {
				return TextV2_3, nil
			}
		case 6:
			switch {
			case strings.HasPrefix(h.Version, "2."):
				return TextV2, nil
			case matchesVersion(h.Version, "3.0"):
				return TextV3, nil
			case matchesVersion(h.Version, "3.2", "3.3"):
				return TextV3_2, nil
			case matchesVersion(h.Version, "3.4"):
				return TextV3_4, nil
			case matchesVersion(h.Version, "3.5", "3.6", "3.7", "3.8", "3.9", "3.10"):
				return TextV3_5, nil
			}
		}
	}
	return 0, &VersionError{Family: h.Family, Columns: h.Columns, Version: h.Version}
}

func matchesVersion(version string, prefixes ...string) bool {
	for _, p := range prefixes {
		if version == p || strings.HasPrefix(version, p+".") {
			return true
		}
	}
	return false
}
