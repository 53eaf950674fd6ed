// Package fence finds fenced code blocks in markdown-ish text and replaces
// their bodies by byte span. Span splicing is the only mutation offered:
// substring replacement would corrupt documents that repeat content.
package fence

import "strings"

// Block is one fenced code block. Start and End delimit the whole block
// (opening fence line through closing fence line, newline included when
// present); BodyStart and BodyEnd delimit the code between the fences.
type Block struct {
	Lang      string
	Body      string
	Start     int
	End       int
	BodyStart int
	BodyEnd   int
}

// Scan returns every fenced code block in document order. A fence is a line
// of three or more backticks indented at most three spaces; the info
// string's first field, lowercased, is the language tag. An unterminated
// fence yields no block.
func Scan(text string) []Block {
	var blocks []Block

	offset := 0
	var open *Block
	var openTicks int

	for offset <= len(text) {
		lineEnd := strings.IndexByte(text[offset:], '\n')
		var next int
		var line string
		if lineEnd < 0 {
			line = text[offset:]
			next = len(text) + 1 // past the end, terminates the loop
		} else {
			line = text[offset : offset+lineEnd]
			next = offset + lineEnd + 1
		}

		ticks, info, ok := fenceLine(line)
		switch {
		case ok && open == nil:
			open = &Block{
				Lang:      langTag(info),
				Start:     offset,
				BodyStart: next,
			}
			openTicks = ticks
		case ok && open != nil && ticks >= openTicks && info == "":
			open.BodyEnd = offset
			open.Body = text[open.BodyStart:open.BodyEnd]
			if lineEnd < 0 {
				open.End = len(text)
			} else {
				open.End = next
			}
			blocks = append(blocks, *open)
			open = nil
		}

		offset = next
	}

	return blocks
}

// First returns the first block in document order whose language tag
// satisfies match, or false if none does.
func First(text string, match func(lang string) bool) (Block, bool) {
	for _, b := range Scan(text) {
		if match(b.Lang) {
			return b, true
		}
	}
	return Block{}, false
}

// Replace splices a new body into the block, keeping everything outside the
// body span byte-for-byte, the fence lines included. The body is normalized
// to end with a newline so the closing fence stays on its own line.
func Replace(text string, b Block, body string) string {
	if body != "" && !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	return text[:b.BodyStart] + body + text[b.BodyEnd:]
}

// fenceLine reports whether the line is a backtick fence, returning the
// backtick count and the trimmed info string. Info strings containing
// backticks disqualify the line (inline code, not a fence).
func fenceLine(line string) (int, string, bool) {
	trimmed := line
	for i := 0; i < 3 && strings.HasPrefix(trimmed, " "); i++ {
		trimmed = trimmed[1:]
	}

	ticks := 0
	for ticks < len(trimmed) && trimmed[ticks] == '`' {
		ticks++
	}
	if ticks < 3 {
		return 0, "", false
	}

	info := strings.TrimSpace(trimmed[ticks:])
	if strings.Contains(info, "`") {
		return 0, "", false
	}
	return ticks, info, true
}

// langTag extracts the language tag from an info string.
func langTag(info string) string {
	if info == "" {
		return ""
	}
	fields := strings.Fields(info)
	return strings.ToLower(fields[0])
}
