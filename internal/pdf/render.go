package pdf

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/gen2brain/go-fitz"
)

// Renderer rasterizes selected PDF pages. Page numbers are 1-based.
type Renderer interface {
	PageCount(pdf []byte) (int, error)
	Render(ctx context.Context, pdf []byte, pages []int, dpi int) (map[int]image.Image, error)
}

// FitzRenderer rasterizes through MuPDF.
type FitzRenderer struct{}

var _ Renderer = (*FitzRenderer)(nil)

func (FitzRenderer) PageCount(pdfBytes []byte) (int, error) {
	doc, err := fitz.NewFromMemory(pdfBytes)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

func (FitzRenderer) Render(_ context.Context, pdfBytes []byte, pages []int, dpi int) (map[int]image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfBytes)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	out := make(map[int]image.Image, len(pages))
	for _, p := range pages {
		if p < 1 || p > doc.NumPage() {
			continue
		}
		img, err := doc.ImageDPI(p-1, float64(dpi))
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", p, err)
		}
		out[p] = img
	}
	return out, nil
}

// PopplerRenderer shells out to pdftoppm/pdfinfo. Used as the fallback when
// MuPDF rejects a document.
type PopplerRenderer struct{}

var _ Renderer = (*PopplerRenderer)(nil)

func (PopplerRenderer) PageCount(pdfBytes []byte) (int, error) {
	tmp, cleanup, err := writeTemp(pdfBytes)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	out, err := exec.Command("pdfinfo", tmp).Output()
	if err != nil {
		return 0, fmt.Errorf("pdfinfo: %w", err)
	}
	for _, line := range splitLines(string(out)) {
		var n int
		if _, err := fmt.Sscanf(line, "Pages: %d", &n); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("pdfinfo: page count not found")
}

func (PopplerRenderer) Render(ctx context.Context, pdfBytes []byte, pages []int, dpi int) (map[int]image.Image, error) {
	tmp, cleanup, err := writeTemp(pdfBytes)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	outDir, err := os.MkdirTemp("", "ebookqa-pages-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(outDir)

	out := make(map[int]image.Image, len(pages))
	for _, p := range pages {
		prefix := filepath.Join(outDir, "page-"+strconv.Itoa(p))
		cmd := exec.CommandContext(ctx, "pdftoppm",
			"-f", strconv.Itoa(p), "-l", strconv.Itoa(p),
			"-r", strconv.Itoa(dpi), "-png", "-singlefile",
			tmp, prefix)
		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("pdftoppm page %d: %w", p, err)
		}
		f, err := os.Open(prefix + ".png")
		if err != nil {
			return nil, fmt.Errorf("read rendered page %d: %w", p, err)
		}
		img, err := png.Decode(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("decode rendered page %d: %w", p, err)
		}
		out[p] = img
	}
	return out, nil
}

// FallbackRenderer tries the primary renderer and falls back on failure.
type FallbackRenderer struct {
	Primary  Renderer
	Fallback Renderer
	Logger   *log.Logger
}

var _ Renderer = (*FallbackRenderer)(nil)

func (r FallbackRenderer) PageCount(pdfBytes []byte) (int, error) {
	n, err := r.Primary.PageCount(pdfBytes)
	if err != nil && r.Fallback != nil {
		r.logf("primary renderer page count failed: %v", err)
		return r.Fallback.PageCount(pdfBytes)
	}
	return n, err
}

func (r FallbackRenderer) Render(ctx context.Context, pdfBytes []byte, pages []int, dpi int) (map[int]image.Image, error) {
	out, err := r.Primary.Render(ctx, pdfBytes, pages, dpi)
	if err != nil && r.Fallback != nil {
		r.logf("primary renderer failed: %v", err)
		return r.Fallback.Render(ctx, pdfBytes, pages, dpi)
	}
	return out, err
}

func (r FallbackRenderer) logf(format string, args ...interface{}) {
	if r.Logger != nil {
		r.Logger.Printf(format, args...)
	}
}

func writeTemp(data []byte) (string, func(), error) {
	f, err := os.CreateTemp("", "ebookqa-*.pdf")
	if err != nil {
		return "", nil, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, err
	}
	f.Close()
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
