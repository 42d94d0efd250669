package linking

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jdkato/prose/v2"
)

// Paragraph is one block-level element of an article body, decomposed into
// plain-text sentences. Markup is stripped per block before sentence
// segmentation, so a tag can never be split.
type Paragraph struct {
	Sentences []string
}

type siteKey struct {
	Paragraph int
	Sentence  int
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	blankLineRe  = regexp.MustCompile(`\n\s*\n`)
	// Fallback splitter if prose segmentation fails: terminator + whitespace.
	naiveSentenceRe = regexp.MustCompile(`([.!?])\s+`)
)

const blockSelector = "p, li, h1, h2, h3, h4, h5, h6, blockquote"

// Locator finds insertion addresses for anchor phrases inside article
// bodies. It is stateless; per-pass site collision tracking is carried by
// the caller's used map.
type Locator struct {
	contextWords int
}

func NewLocator() *Locator {
	return &Locator{contextWords: 18}
}

// Decompose splits a body into paragraphs of plain-text sentences. HTML
// bodies decompose on block-level elements; plain text falls back to
// blank-line separation. Blocks that yield no text are dropped.
func (l *Locator) Decompose(body string) []Paragraph {
	blocks := splitBlocks(body)

	paragraphs := make([]Paragraph, 0, len(blocks))
	for _, block := range blocks {
		sentences := splitSentences(block)
		if len(sentences) == 0 {
			continue
		}
		paragraphs = append(paragraphs, Paragraph{Sentences: sentences})
	}
	return paragraphs
}

// Locate picks the best insertion site for anchor. Sentences already
// mentioning the candidate's keyword or anchor text win; otherwise the first
// sentence not claimed by an earlier suggestion in the same pass is used.
// The chosen site is recorded in used. The returned anchor is truncated to
// the sentence when it would not fit naturally.
func (l *Locator) Locate(paragraphs []Paragraph, anchor, keyword string, used map[siteKey]bool) (*Placement, string, error) {
	if len(paragraphs) == 0 {
		return nil, "", ErrNoPlacement
	}

	lowAnchor := strings.ToLower(strings.TrimSpace(anchor))
	lowKeyword := strings.ToLower(strings.TrimSpace(keyword))

	pick := siteKey{-1, -1}

	for pi, para := range paragraphs {
		for si, sentence := range para.Sentences {
			if used[siteKey{pi, si}] {
				continue
			}
			low := strings.ToLower(sentence)
			if (lowKeyword != "" && strings.Contains(low, lowKeyword)) ||
				(lowAnchor != "" && strings.Contains(low, lowAnchor)) {
				pick = siteKey{pi, si}
				break
			}
		}
		if pick.Paragraph >= 0 {
			break
		}
	}

	if pick.Paragraph < 0 {
		for pi, para := range paragraphs {
			for si := range para.Sentences {
				if !used[siteKey{pi, si}] {
					pick = siteKey{pi, si}
					break
				}
			}
			if pick.Paragraph >= 0 {
				break
			}
		}
	}

	if pick.Paragraph < 0 {
		return nil, "", ErrNoPlacement
	}

	sentence := paragraphs[pick.Paragraph].Sentences[pick.Sentence]

	finalAnchor := anchor
	if len(finalAnchor) > len(sentence) {
		finalAnchor = strings.TrimRight(sentence, ".!? ")
	}

	used[pick] = true

	return &Placement{
		ParagraphIndex: pick.Paragraph,
		SentenceIndex:  pick.Sentence,
		Position:       insertionOffset(sentence),
		Context:        l.contextWindow(sentence),
	}, finalAnchor, nil
}

// insertionOffset is the byte offset at the end of the sentence, before the
// terminal punctuation, where an appended link reads naturally.
func insertionOffset(sentence string) int {
	trimmed := strings.TrimRight(sentence, " ")
	trimmed = strings.TrimRight(trimmed, ".!?")
	trimmed = strings.TrimRight(trimmed, " ")
	return len(trimmed)
}

func (l *Locator) contextWindow(sentence string) string {
	words := strings.Fields(sentence)
	if len(words) <= l.contextWords {
		return sentence
	}
	// The insertion point sits at the sentence end, so keep the tail.
	return "…" + strings.Join(words[len(words)-l.contextWords:], " ")
}

func splitBlocks(body string) []string {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}

	if strings.Contains(body, "<") {
		if blocks := htmlBlocks(body); blocks != nil {
			return blocks
		}
	}

	parts := blankLineRe.Split(body, -1)
	blocks := make([]string, 0, len(parts))
	for _, part := range parts {
		if text := normalizeSpace(part); text != "" {
			blocks = append(blocks, text)
		}
	}
	return blocks
}

func htmlBlocks(body string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var blocks []string
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// Only leaf blocks: a blockquote wrapping <p> elements would
		// otherwise contribute its text twice.
		if s.Find(blockSelector).Length() > 0 {
			return
		}
		if text := normalizeSpace(s.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})

	if len(blocks) > 0 {
		return blocks
	}

	// Markup without block elements, e.g. a bare <span> wrapper.
	if text := normalizeSpace(doc.Find("body").Text()); text != "" {
		return []string{text}
	}
	return nil
}

func splitSentences(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err == nil {
		sentences := make([]string, 0, 4)
		for _, s := range doc.Sentences() {
			if t := strings.TrimSpace(s.Text); t != "" {
				sentences = append(sentences, t)
			}
		}
		if len(sentences) > 0 {
			return sentences
		}
	}

	return naiveSplitSentences(text)
}

func naiveSplitSentences(text string) []string {
	marked := naiveSentenceRe.ReplaceAllString(text, "$1\x00")
	parts := strings.Split(marked, "\x00")
	sentences := make([]string, 0, len(parts))
	for _, part := range parts {
		if t := strings.TrimSpace(part); t != "" {
			sentences = append(sentences, t)
		}
	}
	return sentences
}

func normalizeSpace(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}
