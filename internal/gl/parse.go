package gl

import (
	"regexp"
	"strings"

	"github.com/yonran/refreshmint/internal/journal"
	"github.com/yonran/refreshmint/internal/rmerrors"
)

var multiSpace = regexp.MustCompile(`\s{2,}`)

// ParseBlocks splits raw general-journal text into blank-line-separated
// blocks and parses each into a Transaction.
func ParseBlocks(source string, text string) ([]*Transaction, error) {
	var txns []*Transaction
	lineNo := 0
	var block []string
	blockStart := 0

	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		t, err := parseBlock(source, block, blockStart)
		block = nil
		if err != nil {
			return err
		}
		txns = append(txns, t)
		return nil
	}

	lines := strings.Split(text, "\n")
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

	return txns, nil
}

func parseBlock(source string, lines []string, startLine int) (*Transaction, error) {
	endLine := startLine + len(lines) - 1
	header := lines[0]

	dateStr, marker, description, err := splitHeader(header)
	if err != nil {
		return nil, rmerrors.ParseError(source, startLine, endLine, err.Error())
	}
	date, err := journal.ParseDate(dateStr)
	if err != nil {
		return nil, rmerrors.ParseError(source, startLine, endLine, err.Error())
	}
	status, err := journal.ParseStatus(marker)
	if err != nil {
		return nil, rmerrors.ParseError(source, startLine, endLine, err.Error())
	}

	t := &Transaction{Date: date, Status: status, Description: description}

	for i := 1; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(trimmed, ";") {
			if err := parsePostingLine(t, trimmed); err != nil {
				return nil, rmerrors.ParseError(source, startLine, endLine, err.Error())
			}
			continue
		}
		content := strings.TrimSpace(strings.TrimPrefix(trimmed, ";"))
		switch {
		case strings.HasPrefix(content, "id:"):
			t.ID = strings.TrimSpace(strings.TrimPrefix(content, "id:"))
		case strings.HasPrefix(content, "generated-by:"):
			t.GeneratedBy = strings.TrimSpace(strings.TrimPrefix(content, "generated-by:"))
		case strings.HasPrefix(content, "source:"):
			src, err := ParseSource(strings.TrimSpace(strings.TrimPrefix(content, "source:")))
			if err != nil {
				return nil, rmerrors.ParseError(source, startLine, endLine, err.Error())
			}
			t.Sources = append(t.Sources, src)
		case strings.HasPrefix(content, "evidence:"):
			t.Evidence = append(t.Evidence, strings.TrimSpace(strings.TrimPrefix(content, "evidence:")))
		}
	}

	if err := t.Validate(); err != nil {
		return nil, rmerrors.ParseError(source, startLine, endLine, err.Error())
	}

	return t, nil
}

func splitHeader(header string) (date, marker, description string, err error) {
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return "", "", "", errEmpty
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

var errEmpty = parseErr("gl: malformed header: empty")

type parseErr string

func (e parseErr) Error() string { return string(e) }

func parsePostingLine(t *Transaction, line string) error {
	parts := multiSpace.Split(line, 2)
	account := strings.TrimSpace(parts[0])
	if len(parts) == 1 {
		t.Postings = append(t.Postings, journal.Posting{Account: account})
		return nil
	}
	amountFields := strings.Fields(parts[1])
	if len(amountFields) != 2 {
		return parseErr("gl: unparseable amount in posting line: " + line)
	}
	t.Postings = append(t.Postings, journal.Posting{
		Account: account,
		Amount:  &journal.Amount{Quantity: amountFields[0], Commodity: amountFields[1]},
	})
	return nil
}
