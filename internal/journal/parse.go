package journal

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/yonran/refreshmint/internal/rmerrors"
)

var multiSpace = regexp.MustCompile(`\s{2,}`)

// ParseBlocks splits raw journal text into blank-line-separated blocks,
// parses each into an Entry, and returns them in file order. A file that
// does not exist is the caller's concern (see Read in io.go); an empty or
// all-blank input parses to an empty, non-nil slice.
func ParseBlocks(source string, text string) ([]*Entry, error) {
	var entries []*Entry
	lineNo := 0
	var block []string
	blockStart := 0

	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		e, err := parseBlock(source, block, blockStart)
		block = nil
		if err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	}

	lines := strings.Split(text, "\n")
	// A trailing newline produces one spurious empty final element; drop it
	// so it isn't mistaken for a blank-line separator.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	for _, line := range lines {
		lineNo++
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		if len(block) == 0 {
			blockStart = lineNo
		}
		block = append(block, line)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if entries == nil {
		entries = []*Entry{}
	}
	return entries, nil
}

func parseBlock(source string, lines []string, startLine int) (*Entry, error) {
	endLine := startLine + len(lines) - 1
	header := lines[0]

	dateStr, marker, description, err := splitHeader(header)
	if err != nil {
		return nil, rmerrors.ParseError(source, startLine, endLine, err.Error())
	}
	date, err := ParseDate(dateStr)
	if err != nil {
		return nil, rmerrors.ParseError(source, startLine, endLine, err.Error())
	}
	status, err := ParseStatus(marker)
	if err != nil {
		return nil, rmerrors.ParseError(source, startLine, endLine, err.Error())
	}

	e := &Entry{Date: date, Status: status, Description: description}

	sawID := false
	var commentLines []string

	for i := 1; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, ";") {
			if err := parsePostingLine(e, trimmed); err != nil {
				return nil, rmerrors.ParseError(source, startLine, endLine, err.Error())
			}
			continue
		}
		content := strings.TrimSpace(strings.TrimPrefix(trimmed, ";"))

		switch {
		case strings.HasPrefix(content, "id:"):
			if sawID {
				return nil, rmerrors.ParseError(source, startLine, endLine, "duplicate id tag in block")
			}
			sawID = true
			e.ID = strings.TrimSpace(strings.TrimPrefix(content, "id:"))
		case strings.HasPrefix(content, "evidence:"):
			e.Evidence = append(e.Evidence, strings.TrimSpace(strings.TrimPrefix(content, "evidence:")))
		case strings.HasPrefix(content, "extracted-by:"):
			e.ExtractedBy = strings.TrimSpace(strings.TrimPrefix(content, "extracted-by:"))
		case strings.HasPrefix(content, "posted:"):
			e.Posted = strings.TrimSpace(strings.TrimPrefix(content, "posted:"))
		case isPostedPostingTag(content):
			idx, ref, perr := parsePostedPostingTag(content)
			if perr != nil {
				return nil, rmerrors.ParseError(source, startLine, endLine, perr.Error())
			}
			e.PostedPostings = append(e.PostedPostings, PostedPosting{Index: idx, Reference: ref})
		default:
			if key, value, ok := genericTag(content); ok {
				e.Tags = append(e.Tags, Tag{Key: key, Value: value})
			} else {
				commentLines = append(commentLines, content)
			}
		}
	}

	if len(commentLines) > 0 {
		e.Comment = strings.Join(commentLines, "\n")
	}

	if err := e.Validate(); err != nil {
		return nil, rmerrors.ParseError(source, startLine, endLine, err.Error())
	}

	return e, nil
}

// splitHeader splits a header line "YYYY-MM-DD  [! |* ]description" into
// its date, marker ("", "!", "*"), and description parts.
func splitHeader(header string) (date, marker, description string, err error) {
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return "", "", "", errAs("malformed header: empty")
	}
	date = fields[0]
	rest := strings.TrimSpace(strings.TrimPrefix(header, date))
	if strings.HasPrefix(rest, "! ") {
		return date, "!", strings.TrimSpace(rest[2:]), nil
	}
	if strings.HasPrefix(rest, "* ") {
		return date, "*", strings.TrimSpace(rest[2:]), nil
	}
	if rest == "!" || rest == "*" {
		return date, rest, "", nil
	}
	return date, "", rest, nil
}

func isPostedPostingTag(content string) bool {
	if !strings.HasPrefix(content, "posted-posting-") {
		return false
	}
	rest := content[len("posted-posting-"):]
	idx := strings.IndexByte(rest, ':')
	if idx <= 0 {
		return false
	}
	_, err := strconv.Atoi(rest[:idx])
	return err == nil
}

func parsePostedPostingTag(content string) (int, string, error) {
	rest := content[len("posted-posting-"):]
	idx := strings.IndexByte(rest, ':')
	n, err := strconv.Atoi(rest[:idx])
	if err != nil {
		return 0, "", err
	}
	return n, strings.TrimSpace(rest[idx+1:]), nil
}

// genericTag recognizes "key: value" lines whose key is a single token
// (no whitespace).
func genericTag(content string) (key, value string, ok bool) {
	idx := strings.IndexByte(content, ':')
	if idx <= 0 {
		return "", "", false
	}
	k := content[:idx]
	if strings.ContainsAny(k, " \t") {
		return "", "", false
	}
	return k, strings.TrimSpace(content[idx+1:]), true
}

func parsePostingLine(e *Entry, line string) error {
	parts := multiSpace.Split(line, 2)
	account := strings.TrimSpace(parts[0])
	if len(parts) == 1 {
		e.Postings = append(e.Postings, Posting{Account: account})
		return nil
	}
	amountFields := strings.Fields(parts[1])
	if len(amountFields) != 2 {
		return errAs("unparseable amount in posting line: " + line)
	}
	e.Postings = append(e.Postings, Posting{
		Account: account,
		Amount:  &Amount{Quantity: amountFields[0], Commodity: amountFields[1]},
	})
	return nil
}

type parseErr string

func (e parseErr) Error() string { return string(e) }

func errAs(msg string) error { return parseErr(msg) }
