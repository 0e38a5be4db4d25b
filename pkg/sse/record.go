package sse

import "strings"

const (
	// DataPrefix marks a line that carries a payload.
	DataPrefix = "data: "

	// DoneSentinel is the payload that signals the end of the stream.
	DoneSentinel = "[DONE]"
)

// Kind classifies a single upstream line.
type Kind int

const (
	// KindIgnore is a line with nothing to translate: blank lines, comments,
	// fields other than data, or a data line with an empty payload.
	KindIgnore Kind = iota

	// KindData is a data line with a non-empty payload.
	KindData

	// KindDone is the terminal sentinel.
	KindDone
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindDone:
		return "done"
	default:
		return "ignore"
	}
}

// Record is a classified upstream line.
type Record struct {
	Kind Kind

	// Data is the payload with DataPrefix removed. Only set for KindData.
	Data string
}

// ParseLine classifies one complete line returned by Reassembler.Feed.
// Surrounding whitespace on the payload, including a CR left by CRLF framing,
// is ignored.
func ParseLine(line string) Record {
	payload, ok := strings.CutPrefix(line, DataPrefix)
	if !ok {
		return Record{Kind: KindIgnore}
	}

	payload = strings.TrimSpace(payload)
	switch payload {
	case "":
		return Record{Kind: KindIgnore}
	case DoneSentinel:
		return Record{Kind: KindDone}
	default:
		return Record{Kind: KindData, Data: payload}
	}
}
