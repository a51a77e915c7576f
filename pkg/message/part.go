// Package message implements the multipart part model shared by inbound
// parsing, outgoing request building and response assembly.
package message

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// DefaultChunkName labels parts that carry no explicit name of their own.
const DefaultChunkName = "default"

// ErrorHeader marks a part synthesized from a failed downstream call.
const ErrorHeader = "X-Routerd-Error"

// Part is one labelled segment of a multipart body.
type Part struct {
	Name   string
	Header textproto.MIMEHeader
	Body   []byte
}

// IsError reports whether the part was synthesized from a downstream failure.
func (p Part) IsError() bool {
	return p.Header.Get(ErrorHeader) != ""
}

// ErrorPart builds the synthesized reply part recorded for a failed call to
// the named service.
func ErrorPart(service, reason string) Part {
	h := make(textproto.MIMEHeader)
	h.Set(ErrorHeader, reason)
	return Part{Name: service, Header: h, Body: []byte(reason)}
}

// Encode serializes parts as a multipart/form-data body. The part name
// becomes the form field name; remaining part headers are carried verbatim.
func Encode(parts []Part) (contentType string, body []byte) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, part := range parts {
		h := make(textproto.MIMEHeader, len(part.Header)+1)
		for k, v := range part.Header {
			h[k] = v
		}
		name := part.Name
		if name == "" {
			name = DefaultChunkName
		}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q`, name))

		pw, err := w.CreatePart(h)
		if err != nil {
			continue
		}
		pw.Write(part.Body)
	}

	w.Close()
	return w.FormDataContentType(), buf.Bytes()
}

// Decode parses a multipart body into its parts. It reports false when the
// content type is not multipart or the body cannot be parsed.
func Decode(contentType string, body []byte) ([]Part, bool) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return nil, false
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, false
	}

	var parts []Part
	mr := multipart.NewReader(bytes.NewReader(body), boundary)
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false
		}

		data, err := io.ReadAll(p)
		if err != nil {
			return nil, false
		}

		h := make(textproto.MIMEHeader, len(p.Header))
		for k, v := range p.Header {
			if k == "Content-Disposition" {
				continue
			}
			h[k] = v
		}
		parts = append(parts, Part{Name: p.FormName(), Header: h, Body: data})
	}

	return parts, true
}

// ParseReply converts a downstream HTTP response into reply parts for the
// producing service. Non-2xx statuses become a single error part. Multipart
// bodies with at least one part keep their own part names, with unnamed
// parts falling back to the default chunk name; any other body becomes one
// part named after the service.
func ParseReply(service string, status int, contentType string, body []byte) []Part {
	if status < 200 || status > 299 {
		p := ErrorPart(service, fmt.Sprintf("status %d", status))
		if len(body) > 0 {
			p.Body = body
		}
		return []Part{p}
	}

	if parts, ok := Decode(contentType, body); ok && len(parts) > 0 {
		for i := range parts {
			if parts[i].Name == "" {
				parts[i].Name = DefaultChunkName
			}
		}
		return parts
	}

	h := make(textproto.MIMEHeader)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return []Part{{Name: service, Header: h, Body: body}}
}
