package gateway

import (
	"errors"

	"github.com/tidwall/gjson"
)

// ErrMalformedReply is returned when the assistant answers with something
// other than a JSON object.
var ErrMalformedReply = errors.New("malformed assistant reply")

type Kind int

const (
	Success Kind = iota + 1
	Failure
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// Reply is the parsed assistant answer. Text is set for Success, Message for
// Failure, never both.
type Reply struct {
	Kind    Kind
	Text    string
	Message string
}

// Display is the text shown as the last response.
func (r Reply) Display() string {
	if r.Kind == Success {
		return r.Text
	}
	return "Error: " + r.Message
}

// parseReply interprets a reply body. A truthy "response" wins; anything else
// is a Failure carrying "error" as the assistant rendered it ("undefined" when
// the field is absent).
func parseReply(body []byte) (Reply, error) {
	if !gjson.ValidBytes(body) {
		return Reply{}, ErrMalformedReply
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return Reply{}, ErrMalformedReply
	}

	if response := doc.Get("response"); truthy(response) {
		return Reply{Kind: Success, Text: text(response)}, nil
	}
	errField := doc.Get("error")
	if !errField.Exists() {
		return Reply{Kind: Failure, Message: "undefined"}, nil
	}
	return Reply{Kind: Failure, Message: text(errField)}, nil
}

func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.String:
		return v.Str != ""
	case gjson.Number:
		return v.Num != 0
	case gjson.True, gjson.JSON:
		return true
	default:
		return false
	}
}

func text(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.Str
	}
	return v.Raw
}
