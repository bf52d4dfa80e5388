package fts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSections(t *testing.T) {
	source := "# Title\n\nSome body text with `inline code`.\n\n## Section\n\nMore prose.\n\n```go\nfunc main() {}\n```\n"
	sections := ExtractSections(source)

	assert.Equal(t, "Title\nSection", sections.Headings)
	assert.Contains(t, sections.Body, "Some body text with")
	assert.Contains(t, sections.Body, "More prose.")
	assert.Contains(t, sections.Code, "inline code")
	assert.Contains(t, sections.Code, "func main() {}")
	// code never leaks into the body bucket
	assert.NotContains(t, sections.Body, "func main")
}

func TestExtractSectionsEmpty(t *testing.T) {
	sections := ExtractSections("")
	assert.Empty(t, sections.Headings)
	assert.Empty(t, sections.Body)
	assert.Empty(t, sections.Code)
}

func TestExtractSectionsIndentedCodeBlock(t *testing.T) {
	source := "para\n\n    indented code line\n"
	sections := ExtractSections(source)
	assert.Contains(t, sections.Code, "indented code line")
	assert.NotContains(t, sections.Body, "indented code line")
}
