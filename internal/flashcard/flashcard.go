// Package flashcard reads and writes the plain-text card body stored in
// flashcard excerpts:
//
//	Q: question text
//	A: answer, possibly
//	spanning lines
//	C: optional context
package flashcard

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	contextPrefix  = "C:"
)

// Card is one question/answer pair.
type Card struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Context  string `json:"context,omitempty"`
}

// Format renders c as a card body ending in a newline.
func Format(c Card) string {
	var b strings.Builder
	writeBlock(&b, questionPrefix, c.Question)
	writeBlock(&b, answerPrefix, c.Answer)
	if c.Context != "" {
		writeBlock(&b, contextPrefix, c.Context)
	}
	return b.String()
}

func writeBlock(b *strings.Builder, prefix, text string) {
	b.WriteString(prefix)
	if text != "" {
		b.WriteString(" ")
		b.WriteString(strings.TrimRight(text, "\n"))
	}
	b.WriteString("\n")
}

type state int

const (
	seeking state = iota
	readingQuestion
	readingAnswer
	readingContext
)

// Parse reads the first card in r. Lines before the first "Q:" are
// ignored; a second "Q:" ends the card.
func Parse(r io.Reader) (Card, error) {
	var (
		card  Card
		block []string
		cur   = seeking
	)
	flush := func() {
		content := strings.TrimRight(strings.Join(block, "\n"), "\n")
		switch cur {
		case readingQuestion:
			card.Question = content
		case readingAnswer:
			card.Answer = content
		case readingContext:
			card.Context = content
		}
		block = nil
	}

	scanner := bufio.NewScanner(r)
scan:
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		next := cur
		var rest string
		switch {
		case strings.HasPrefix(line, questionPrefix):
			if cur != seeking {
				break scan
			}
			next, rest = readingQuestion, line[len(questionPrefix):]
		case strings.HasPrefix(line, answerPrefix) && cur != seeking:
			next, rest = readingAnswer, line[len(answerPrefix):]
		case strings.HasPrefix(line, contextPrefix) && cur != seeking:
			next, rest = readingContext, line[len(contextPrefix):]
		default:
			if cur != seeking {
				block = append(block, line)
			}
			continue
		}
		flush()
		cur = next
		block = append(block, strings.TrimPrefix(rest, " "))
	}
	if err := scanner.Err(); err != nil {
		return Card{}, fmt.Errorf("flashcard: read: %w", err)
	}
	flush()

	if card.Question == "" {
		return Card{}, fmt.Errorf("flashcard: no question found")
	}
	return card, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (Card, error) {
	return Parse(strings.NewReader(s))
}
