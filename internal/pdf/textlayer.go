package pdf

import (
	"bytes"
	"fmt"

	pdfreader "github.com/ledongthuc/pdf"
)

// textLayer extracts the embedded text of every page, 1-based. Pages with no
// text layer come back as empty strings. The underlying reader panics on some
// malformed files, so failures are converted into an error and the caller
// falls back to OCR for the whole document.
func textLayer(data []byte) (pages map[int]string, n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf text layer: %v", r)
		}
	}()

	r, err := pdfreader.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, fmt.Errorf("pdf text layer: %w", err)
	}
	n = r.NumPage()
	pages = make(map[int]string, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages[i] = ""
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			pages[i] = ""
			continue
		}
		pages[i] = text
	}
	return pages, n, nil
}
