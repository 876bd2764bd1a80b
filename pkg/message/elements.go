package message

import (
	"fmt"
	"strconv"
)

// Element is one atomic unit of message content. Implementations are pure
// value objects; PlainText is the text-only rendering used for logging,
// repeat detection and fallback output on platforms that cannot carry the
// element natively.
type Element interface {
	PlainText() string
}

type Text struct {
	Content string
}

func (t Text) PlainText() string { return t.Content }

// Image carries exactly one of a download URL, a local file path or a
// base64-encoded blob. Use NewImage (or the source-specific helpers) so an
// invalid combination is rejected before it can reach a platform adapter.
type Image struct {
	URL    string
	Path   string
	Base64 string
}

func NewImage(url, path, base64 string) (Image, error) {
	set := 0
	if url != "" {
		set++
	}
	if path != "" {
		set++
	}
	if base64 != "" {
		set++
	}
	if set != 1 {
		return Image{}, fmt.Errorf("image needs exactly one of url/path/base64, got %d", set)
	}
	return Image{URL: url, Path: path, Base64: base64}, nil
}

func URLImage(url string) (Image, error) { return NewImage(url, "", "") }

func FileImage(path string) (Image, error) { return NewImage("", path, "") }

func Base64Image(data string) (Image, error) { return NewImage("", "", data) }

func (i Image) PlainText() string { return "[image]" }

// At mentions a user. Target is the platform-numeric ID; Name is the
// display handle for platforms that mention by username instead (Telegram).
type At struct {
	Target int64
	Name   string
}

func (a At) PlainText() string {
	if a.Name != "" {
		return "@" + a.Name
	}
	return "@" + strconv.FormatInt(a.Target, 10)
}

// Card is an opaque platform card payload (XML or rich JSON). Platforms
// without card support render it as the literal "[card]".
type Card struct {
	Content string
}

func (c Card) PlainText() string { return "[card]" }

type Voice struct {
	Path string
}

func (v Voice) PlainText() string { return "[voice]" }

type Nudge struct {
	Target int64
}

func (n Nudge) PlainText() string { return "[nudge]" }
