package livereload

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScript_Variants(t *testing.T) {
	plain := Script(ScriptOptions{})
	assert.Contains(t, plain, "new EventSource('/livereload')")
	assert.NotContains(t, plain, "banner('specserve")
	assert.Contains(t, plain, "\n")

	notify := Script(ScriptOptions{Notify: true})
	assert.Contains(t, notify, "banner('specserve: reloading')")

	minified := Script(ScriptOptions{Minify: true, Endpoint: "/lr"})
	assert.NotContains(t, minified, "\n")
	assert.Less(t, len(minified), len(plain))
	assert.True(t, strings.HasPrefix(minified, "(() => {if (window.__SPECSERVE_LR__) return;"))
	assert.Contains(t, minified, "new EventSource('/lr')")
}

func TestRenderMarkdown(t *testing.T) {
	page, err := RenderMarkdown("docs/<x>.md", []byte("# Title\n\n| a | b |\n|---|---|\n| 1 | 2 |\n"))
	assert.NoError(t, err)
	s := string(page)
	assert.Contains(t, s, "<title>&lt;x&gt;.md</title>")
	assert.Contains(t, s, "<h1>Title</h1>")
	assert.Contains(t, s, "<table>")
	assert.Contains(t, s, "</body>")
}
