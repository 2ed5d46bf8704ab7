package fallback

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrNoAction reports a form built without a target.
var ErrNoAction = errors.New("fallback: form action is empty")

// Field is one hidden input of a synthetic form.
type Field struct {
	Name  string
	Value string
}

// Form is a synthetic form equivalent to a partial navigation request.
// Browsers only submit GET and POST, so any other verb becomes a POST
// carrying a lowercased _method field.
type Form struct {
	Action string
	Method string
	Fields []Field
}

// Submitter performs the actual submission of a synthetic form.
type Submitter interface {
	Submit(f *Form) error
}

// SubmitterFunc adapts a function to the Submitter interface.
type SubmitterFunc func(f *Form) error

func (fn SubmitterFunc) Submit(f *Form) error { return fn(f) }

// BuildForm translates a navigation target into a submittable form.
// Data may be url.Values, map[string]string, an encoded query string,
// or nil.
func BuildForm(action, method string, data any) (*Form, error) {
	if action == "" {
		return nil, ErrNoAction
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = "GET"
	}

	f := &Form{Action: action}
	switch method {
	case "GET":
		f.Method = "GET"
	case "POST":
		f.Method = "POST"
	default:
		f.Method = "POST"
		f.Fields = append(f.Fields, Field{Name: "_method", Value: strings.ToLower(method)})
	}

	fields, err := flatten(data)
	if err != nil {
		return nil, err
	}
	f.Fields = append(f.Fields, fields...)
	return f, nil
}

// flatten normalizes the supported data shapes into ordered fields.
// Encoded strings keep their pair order; maps sort by key so output is
// deterministic.
func flatten(data any) ([]Field, error) {
	switch d := data.(type) {
	case nil:
		return nil, nil
	case string:
		return parsePairs(d)
	case url.Values:
		keys := make([]string, 0, len(d))
		for k := range d {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var fields []Field
		for _, k := range keys {
			for _, v := range d[k] {
				fields = append(fields, Field{Name: k, Value: v})
			}
		}
		return fields, nil
	case map[string]string:
		keys := make([]string, 0, len(d))
		for k := range d {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]Field, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, Field{Name: k, Value: d[k]})
		}
		return fields, nil
	default:
		return nil, fmt.Errorf("fallback: unsupported form data type %T", data)
	}
}

func parsePairs(encoded string) ([]Field, error) {
	encoded = strings.TrimPrefix(encoded, "?")
	if encoded == "" {
		return nil, nil
	}
	var fields []Field
	for _, pair := range strings.Split(encoded, "&") {
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		n, err := url.QueryUnescape(name)
		if err != nil {
			return nil, fmt.Errorf("fallback: malformed form data %q", pair)
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("fallback: malformed form data %q", pair)
		}
		fields = append(fields, Field{Name: n, Value: v})
	}
	return fields, nil
}

// HTML renders the form as markup suitable for splicing into a document
// and submitting.
func (f *Form) HTML() (string, error) {
	form := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Form,
		Data:     "form",
		Attr: []html.Attribute{
			{Key: "action", Val: f.Action},
			{Key: "method", Val: strings.ToLower(f.Method)},
			{Key: "style", Val: "display:none"},
		},
	}
	for _, field := range f.Fields {
		input := &html.Node{
			Type:     html.ElementNode,
			DataAtom: atom.Input,
			Data:     "input",
			Attr: []html.Attribute{
				{Key: "type", Val: "hidden"},
				{Key: "name", Val: field.Name},
				{Key: "value", Val: field.Value},
			},
		}
		form.AppendChild(input)
	}
	var b strings.Builder
	if err := html.Render(&b, form); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Values re-encodes the fields for submitters that post programmatically.
func (f *Form) Values() url.Values {
	vals := make(url.Values, len(f.Fields))
	for _, field := range f.Fields {
		vals.Add(field.Name, field.Value)
	}
	return vals
}
