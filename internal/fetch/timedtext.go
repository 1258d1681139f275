package fetch

import (
	"encoding/xml"
	"fmt"
	"html"
	"strings"
)

// timedText mirrors the XML served by YouTube's timedtext endpoint:
// <transcript><text start="1.2" dur="3.4">line</text>...</transcript>
type timedText struct {
	XMLName xml.Name       `xml:"transcript"`
	Lines   []timedTextCue `xml:"text"`
}

type timedTextCue struct {
	Start string `xml:"start,attr"`
	Dur   string `xml:"dur,attr"`
	Body  string `xml:",chardata"`
}

// TimedTextToTranscript converts a timedtext caption document into plain
// transcript text, one cue per line. Cue bodies are HTML-escaped in the
// source and may contain embedded newlines within a single cue.
func TimedTextToTranscript(data []byte) (string, error) {
	var doc timedText
	if err := xml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parse timedtext: %w", err)
	}

	lines := make([]string, 0, len(doc.Lines))
	for _, cue := range doc.Lines {
		text := html.UnescapeString(cue.Body)
		text = strings.Join(strings.Fields(text), " ")
		if text == "" {
			continue
		}
		lines = append(lines, text)
	}

	if len(lines) == 0 {
		return "", fmt.Errorf("caption track is empty")
	}

	return strings.Join(lines, "\n"), nil
}
