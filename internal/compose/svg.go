package compose

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

const (
	svgWidth         = 191 * 3
	svgHeight        = 100 * 3
	maxSVGSentences  = 3
	defaultSVGFontPx = 16
)

var ErrTooManySentences = errors.New("text card allows at most 3 sentences")

// sentence placement by index: top bold centred, middle centred, bottom
// italic right-aligned.
var svgSlots = [maxSVGSentences]struct {
	at     float64
	x      string
	anchor string
	extra  string
}{
	{0.25, "50%", "middle", " font-weight: bold;"},
	{0.5, "50%", "middle", ""},
	{0.75, "80%", "end", " font-style: italic;"},
}

type svgDoc struct {
	XMLName xml.Name  `xml:"svg"`
	Xmlns   string    `xml:"xmlns,attr"`
	Version string    `xml:"version,attr"`
	ViewBox string    `xml:"viewBox,attr"`
	Style   string    `xml:"style,attr"`
	CSS     string    `xml:"style"`
	Texts   []svgText `xml:"text"`
}

type svgText struct {
	X      string `xml:"x,attr"`
	Y      int    `xml:"y,attr"`
	Anchor string `xml:"text-anchor,attr"`
	Style  string `xml:"style,attr"`
	Value  string `xml:",chardata"`
}

// TextSVG lays out up to three newline-separated sentences on a white card.
// Long sentences are broken into lines of a fixed number of words.
func TextSVG(text string, fontSize int) ([]byte, error) {
	if fontSize <= 0 {
		fontSize = defaultSVGFontPx
	}
	sentences := strings.Split(text, "\n")
	if len(sentences) > maxSVGSentences {
		return nil, fmt.Errorf("%w: got %d", ErrTooManySentences, len(sentences))
	}

	doc := svgDoc{
		Xmlns:   "http://www.w3.org/2000/svg",
		Version: "1.1",
		ViewBox: fmt.Sprintf("0 0 %d %d", svgWidth, svgHeight),
		Style:   "background: white;",
		CSS:     fmt.Sprintf("text { font-family: 'Arial', sans-serif; font-size: %dpx; fill: black; }", fontSize),
	}

	wordsPerLine := max(1, svgWidth/(fontSize*4))
	lineHeight := float64(fontSize) * 1.5

	for i, sentence := range sentences {
		slot := svgSlots[i]
		top := svgHeight*slot.at - lineHeight/2
		if i == 2 {
			top = svgHeight*slot.at - lineHeight
		}

		words := strings.Split(sentence, " ")
		for j := 0; j < len(words); j += wordsPerLine {
			end := min(j+wordsPerLine, len(words))
			doc.Texts = append(doc.Texts, svgText{
				X:      slot.x,
				Y:      int(top + lineHeight*float64(j/wordsPerLine)),
				Anchor: slot.anchor,
				Style:  fmt.Sprintf("white-space: pre; font-size: %dpx;", fontSize) + slot.extra,
				Value:  strings.Join(words[j:end], " "),
			})
		}
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding svg: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
