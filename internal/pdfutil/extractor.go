// Package pdfutil inspects PDF artifacts produced by the conversion backend.
package pdfutil

import (
	"bytes"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// Info summarizes a converted PDF document.
type Info struct {
	Pages      int
	TextLength int
}

// Inspect reads PDF bytes and reports the page count and extractable text
// length. Pages that fail text extraction still count toward Pages.
func Inspect(data []byte) (Info, error) {
	reader := bytes.NewReader(data)
	doc, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return Info{}, fmt.Errorf("new pdf reader: %w", err)
	}
	info := Info{Pages: doc.NumPage()}
	for page := 1; page <= info.Pages; page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		info.TextLength += len(strings.TrimSpace(content))
	}
	return info, nil
}
