package extract

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidates(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		opts     []Option
		expected []string
	}{
		{
			name:     "single block after intro",
			input:    "intro\n```json\n{\"type\":\"task_list\",\"items\":[]}\n```\n",
			expected: []string{`{"type":"task_list","items":[]}`},
		},
		{
			name:     "no blocks",
			input:    "just some text without fences",
			expected: nil,
		},
		{
			name:     "empty input",
			input:    "",
			expected: nil,
		},
		{
			name:     "block at very start",
			input:    "```json\n{\"a\":1}\n```",
			expected: []string{`{"a":1}`},
		},
		{
			name:     "surrounding whitespace is trimmed",
			input:    "```json\n\n   {\"a\":1}  \n\n```",
			expected: []string{`{"a":1}`},
		},
		{
			name: "multiple blocks separated by text",
			input: "first\n```json\n{\"a\":1}\n```\nthen some words\nand more\n" +
				"```json\n[1,2,3]\n```\nlast\n```JSON\n{\"c\":true}\n```",
			expected: []string{`{"a":1}`, `[1,2,3]`, `{"c":true}`},
		},
		{
			name:     "unterminated block is dropped",
			input:    "here you go\n```json\n{\"a\":1",
			expected: nil,
		},
		{
			name:     "unterminated block does not swallow the next one",
			input:    "```json\n{\"a\":1\n```json\n{\"b\":2}\n```",
			expected: []string{`{"b":2}`},
		},
		{
			name:     "fence inside a payload string does not split the block",
			input:    "```json\n{\"md\":\"wrap it in ``` fences\"}\n```",
			expected: []string{"{\"md\":\"wrap it in ``` fences\"}"},
		},
		{
			name:     "compact single line block",
			input:    "Result: ```json {\"a\":1}``` done",
			expected: []string{`{"a":1}`},
		},
		{
			name:     "compact block followed by a multi-line block",
			input:    "Result: ```json {\"a\":1}``` then\nsome text\n```\n[2]\n```",
			expected: []string{`{"a":1}`, `[2]`},
		},
		{
			name:     "info string after the label is not payload",
			input:    "```json title=x\n{\"a\":1}\n```",
			expected: []string{`{"a":1}`},
		},
		{
			name:     "payload starting on the opening line",
			input:    "```json {\"a\":\n1}\n```",
			expected: []string{"{\"a\":\n1}"},
		},
		{
			name:     "indented closing fence",
			input:    "```json\n  {\"a\":1}\n  ```\n",
			expected: []string{`{"a":1}`},
		},
		{
			name:     "other labels are skipped without losing sync",
			input:    "```go\nfmt.Println(\"```\")\n```\n```json\n{\"ok\":true}\n```",
			expected: []string{`{"ok":true}`},
		},
		{
			name:     "unlabeled fence is accepted by default",
			input:    "```\n[1]\n```",
			expected: []string{`[1]`},
		},
		{
			name:     "unlabeled fence dropped when label required",
			input:    "```\n[1]\n```\n```json\n[2]\n```",
			opts:     []Option{RequireLabel()},
			expected: []string{`[2]`},
		},
		{
			name:     "custom labels",
			input:    "```yaml\na: 1\n```\n```json\n[2]\n```",
			opts:     []Option{WithLabels("yaml")},
			expected: []string{`a: 1`},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := slices.Collect(Candidates(tc.input, tc.opts...))
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestBlocks_LabelAndOffset(t *testing.T) {
	input := "ab\n```Json\n{}\n```"
	blocks := slices.Collect(Blocks(input))
	require.Len(t, blocks, 1)
	assert.Equal(t, "Json", blocks[0].Label)
	assert.Equal(t, 3, blocks[0].Offset)
	assert.Equal(t, "{}", blocks[0].Payload)
}

func TestBlocks_StopsEarly(t *testing.T) {
	input := "```json\n[1]\n```\n```json\n[2]\n```\n```json\n[3]\n```"
	var seen []string
	for p := range Candidates(input) {
		seen = append(seen, p)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"[1]", "[2]"}, seen)
}

func TestScan(t *testing.T) {
	seq, err := Scan([]byte("```json\n{\"a\":1}\n```"))
	require.NoError(t, err)
	assert.Len(t, slices.Collect(seq), 1)

	seq, err = Scan("no blocks")
	require.NoError(t, err)
	assert.Empty(t, slices.Collect(seq))

	_, err = Scan(42)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Scan(nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Scan([]byte{0xff, 0xfe})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
