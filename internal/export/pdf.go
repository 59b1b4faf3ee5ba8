package export

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/go-pdf/fpdf"

	"github.com/alkime/ebooks/internal/ebook"
)

const pageImageName = "page"

// PDF renders book to a bitmap and embeds it as the only page of a PDF sized
// to the bitmap, one point per pixel. Long books produce one tall page.
func PDF(book ebook.Ebook, style ebook.Style) ([]byte, error) {
	data, _, err := renderPDF(book, style)
	return data, err
}

// renderPDF is PDF that also reports the page height in pixels.
func renderPDF(book ebook.Ebook, style ebook.Style) ([]byte, int, error) {
	img, err := Rasterize(book, style)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to rasterize ebook: %w", err)
	}

	var page bytes.Buffer
	if err := png.Encode(&page, img); err != nil {
		return nil, 0, fmt.Errorf("failed to encode page image: %w", err)
	}

	w, h := float64(img.Bounds().Dx()), float64(img.Bounds().Dy())

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: w, Ht: h},
	})
	pdf.SetTitle(book.Title, true)
	pdf.SetCreator("ebooks", true)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(pageImageName, opts, &page)
	pdf.ImageOptions(pageImageName, 0, 0, w, h, false, opts, 0, "")

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, 0, fmt.Errorf("failed to write pdf: %w", err)
	}

	return out.Bytes(), img.Bounds().Dy(), nil
}
