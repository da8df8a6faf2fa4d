package livereload

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// maxInjectSize bounds how much of a response is buffered for injection.
const maxInjectSize = 4 << 20

// InjectScript inserts tag before the last </body> in doc. Without a body
// end tag it goes before </html>, and failing that at the end.
func InjectScript(doc []byte, tag string) []byte {
	at := closingTagOffset(doc)
	out := make([]byte, 0, len(doc)+len(tag))
	out = append(out, doc[:at]...)
	out = append(out, tag...)
	return append(out, doc[at:]...)
}

// closingTagOffset tokenizes doc and returns the byte offset of the last
// </body>, or of </html>, or len(doc).
func closingTagOffset(doc []byte) int {
	z := html.NewTokenizer(bytes.NewReader(doc))
	var (
		offset int
		body   = -1
		htm    = -1
	)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if !errors.Is(z.Err(), io.EOF) {
				return len(doc)
			}
			break
		}
		raw := len(z.Raw())
		if tt == html.EndTagToken {
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Body:
				body = offset
			case atom.Html:
				htm = offset
			}
		}
		offset += raw
	}
	switch {
	case body >= 0:
		return body
	case htm >= 0:
		return htm
	default:
		return len(doc)
	}
}

// injector buffers HTML responses so the client script can be inserted
// once the handler is done. Non-HTML and oversized responses pass through.
type injector struct {
	http.ResponseWriter
	tag           string
	statusCode    int
	buffer        []byte
	headerWritten bool
	passthrough   bool
	decided       bool
}

func newInjector(w http.ResponseWriter, tag string) *injector {
	return &injector{ResponseWriter: w, tag: tag, statusCode: http.StatusOK}
}

func (l *injector) WriteHeader(code int) {
	l.statusCode = code
	if l.passthrough {
		l.ResponseWriter.WriteHeader(code)
		l.headerWritten = true
	}
}

func (l *injector) Write(data []byte) (int, error) {
	if !l.decided {
		l.decided = true
		ct := l.Header().Get("Content-Type")
		isHTML := ct == "" || strings.Contains(ct, "text/html")
		if !isHTML || l.statusCode != http.StatusOK {
			l.passthrough = true
			l.ResponseWriter.WriteHeader(l.statusCode)
			l.headerWritten = true
		}
	}
	if l.passthrough {
		return l.ResponseWriter.Write(data)
	}
	if len(l.buffer)+len(data) > maxInjectSize {
		l.passthrough = true
		l.Header().Del("Content-Length")
		l.ResponseWriter.WriteHeader(l.statusCode)
		l.headerWritten = true
		if len(l.buffer) > 0 {
			if _, err := l.ResponseWriter.Write(l.buffer); err != nil {
				return 0, err
			}
			l.buffer = nil
		}
		return l.ResponseWriter.Write(data)
	}
	l.buffer = append(l.buffer, data...)
	return len(data), nil
}

// finalize must be called after the handler returns.
func (l *injector) finalize() {
	if l.passthrough || len(l.buffer) == 0 {
		if !l.headerWritten {
			l.ResponseWriter.WriteHeader(l.statusCode)
		}
		return
	}
	out := InjectScript(l.buffer, l.tag)
	l.Header().Del("Content-Length")
	l.ResponseWriter.WriteHeader(l.statusCode)
	_, _ = l.ResponseWriter.Write(out)
}

// scriptTag is the element injected into served pages.
func scriptTag(src string) string {
	return `<script async src="` + src + `"></script>`
}
