package message

import "strings"

// Receipt correlates a wrapper with the native message it was built from,
// for reply threading and deduplication.
type Receipt struct {
	Platform  string
	MessageID string
	From      int64
	To        int64
	Time      int64
}

// Wrapper is an ordered, appendable collection of elements plus a usable
// flag. A handler that cannot produce a complete reply marks the wrapper
// unusable instead of sending a partial message; adapters and the gateway
// must not send or command-match an unusable wrapper.
//
// A wrapper is built once, consumed once by an adapter, then discarded.
type Wrapper struct {
	elements []Element
	usable   bool
	receipt  *Receipt
}

func New() *Wrapper {
	return &Wrapper{usable: true}
}

func NewWithReceipt(r Receipt) *Wrapper {
	return &Wrapper{usable: true, receipt: &r}
}

func (w *Wrapper) Append(elements ...Element) *Wrapper {
	w.elements = append(w.elements, elements...)
	return w
}

func (w *Wrapper) AppendText(text string) *Wrapper {
	return w.Append(Text{Content: text})
}

func (w *Wrapper) SetUsable(usable bool) *Wrapper {
	w.usable = usable
	return w
}

func (w *Wrapper) Usable() bool { return w.usable }

func (w *Wrapper) IsEmpty() bool { return len(w.elements) == 0 }

func (w *Wrapper) Receipt() *Receipt { return w.receipt }

// Elements returns a copy; mutating the returned slice does not affect the
// wrapper.
func (w *Wrapper) Elements() []Element {
	out := make([]Element, len(w.elements))
	copy(out, w.elements)
	return out
}

// AllText concatenates the content of all Text elements in order. Keyword
// and command-prefix matching runs against this, so non-text elements
// (mentions, images) never leak into the command line.
func (w *Wrapper) AllText() string {
	var sb strings.Builder
	for _, e := range w.elements {
		if t, ok := e.(Text); ok {
			sb.WriteString(t.Content)
		}
	}
	return sb.String()
}

// PlainText renders every element's text fallback in order.
func (w *Wrapper) PlainText() string {
	var sb strings.Builder
	for _, e := range w.elements {
		sb.WriteString(e.PlainText())
	}
	return sb.String()
}

// Equal compares element sequences structurally. Receipts and usable flags
// are correlation/transport state, not content, and are ignored.
func (w *Wrapper) Equal(other *Wrapper) bool {
	if other == nil || len(w.elements) != len(other.elements) {
		return false
	}
	for i, e := range w.elements {
		if e != other.elements[i] {
			return false
		}
	}
	return true
}

// Find returns the first element of type T in insertion order.
func Find[T Element](w *Wrapper) (T, bool) {
	for _, e := range w.elements {
		if v, ok := e.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}
