package livereload

import (
	"bytes"
	"strings"
	"text/template"
)

// ScriptOptions shape the client script.
type ScriptOptions struct {
	// Notify shows an in-page banner before reloading.
	Notify bool
	// Minify strips indentation and newlines.
	Minify bool
	// Endpoint is the SSE path, "/livereload" when empty.
	Endpoint string
}

var scriptTemplate = template.Must(template.New("livereload").Parse(`(() => {
  if (window.__SPECSERVE_LR__) return;
  window.__SPECSERVE_LR__ = true;
  function banner(msg) {
    const el = document.createElement('div');
    el.textContent = msg;
    el.style.cssText = 'position:fixed;top:0;right:0;z-index:2147483647;padding:6px 12px;background:#1d1f21;color:#fff;font:12px sans-serif';
    document.body.appendChild(el);
  }
  function connect() {
    const es = new EventSource('{{.Endpoint}}');
    let current = null;
    es.onmessage = (e) => {
      try {
        const p = JSON.parse(e.data);
        if (current === null) { current = p.hash; return; }
        if (p.hash && p.hash !== current) {
          console.log('[specserve] change detected, reloading');
{{- if .Notify}}
          banner('specserve: reloading');
          setTimeout(() => location.reload(), 150);
{{- else}}
          location.reload();
{{- end}}
        }
      } catch (_) {}
    };
    es.onerror = () => {
      console.warn('[specserve] livereload error - retrying');
      es.close();
      setTimeout(connect, 2000);
    };
  }
  connect();
})();
`))

// Script renders the client script.
func Script(opts ScriptOptions) string {
	if opts.Endpoint == "" {
		opts.Endpoint = "/livereload"
	}
	var buf bytes.Buffer
	if err := scriptTemplate.Execute(&buf, opts); err != nil {
		// The template is static; Execute only fails on a programming error.
		panic(err)
	}
	if !opts.Minify {
		return buf.String()
	}
	return minify(buf.String())
}

// minify joins trimmed lines. The script has no line comments or
// statements that depend on automatic semicolon insertion.
func minify(js string) string {
	var b strings.Builder
	for _, line := range strings.Split(js, "\n") {
		b.WriteString(strings.TrimSpace(line))
	}
	return b.String()
}
