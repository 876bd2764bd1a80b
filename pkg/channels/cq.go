package channels

import (
	"regexp"
	"strings"
)

// cqPattern matches one CQ code: [CQ:type] or [CQ:type,key=value,...].
var cqPattern = regexp.MustCompile(`\[CQ:([a-zA-Z0-9_]+)(?:,([^\]]*))?\]`)

var (
	cqTextEscaper    = strings.NewReplacer("&", "&amp;", "[", "&#91;", "]", "&#93;")
	cqTextUnescaper  = strings.NewReplacer("&#91;", "[", "&#93;", "]", "&amp;", "&")
	cqParamEscaper   = strings.NewReplacer("&", "&amp;", "[", "&#91;", "]", "&#93;", ",", "&#44;")
	cqParamUnescaper = strings.NewReplacer("&#91;", "[", "&#93;", "]", "&#44;", ",", "&amp;", "&")
)

func escapeCQText(s string) string { return cqTextEscaper.Replace(s) }

func unescapeCQText(s string) string { return cqTextUnescaper.Replace(s) }

func escapeCQParam(s string) string { return cqParamEscaper.Replace(s) }

func unescapeCQParam(s string) string { return cqParamUnescaper.Replace(s) }
