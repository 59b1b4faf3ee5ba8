package export

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif" // cover decoders
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strconv"
	"strings"
	"sync"
	"unicode"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/alkime/ebooks/internal/ebook"
	"github.com/alkime/ebooks/internal/markdown"
)

// Page layout in CSS pixels; everything is multiplied by pageScale.
const (
	pageWidth   = 800
	pageScale   = 2
	pagePadding = 48

	coverBoxWidth  = 384
	coverBoxHeight = coverBoxWidth * 4 / 3
	coverGap       = 40

	h1Size   = 40
	h2Size   = 28
	bodySize = 17

	ruleThickness = 2
)

type blockLayout struct {
	size       float64
	lineHeight float64
	marginTop  float64
	marginBot  float64
	heading    bool
}

var layouts = map[markdown.Kind]blockLayout{
	markdown.Heading1:  {size: h1Size, lineHeight: 1.2, marginTop: 24, marginBot: 28, heading: true},
	markdown.Heading2:  {size: h2Size, lineHeight: 1.3, marginTop: 28, marginBot: 12, heading: true},
	markdown.Paragraph: {size: bodySize, lineHeight: 1.6, marginTop: 0, marginBot: 14},
}

type fontSet struct {
	regular, bold, italic, boldItalic *opentype.Font
}

var (
	loadFontsOnce sync.Once
	goFonts       fontSet
	goFontsErr    error
)

func loadFonts() (fontSet, error) {
	loadFontsOnce.Do(func() {
		parse := func(name string, ttf []byte) *opentype.Font {
			f, err := opentype.Parse(ttf)
			if err != nil && goFontsErr == nil {
				goFontsErr = fmt.Errorf("failed to parse %s font: %w", name, err)
			}
			return f
		}

		goFonts = fontSet{
			regular:    parse("regular", goregular.TTF),
			bold:       parse("bold", gobold.TTF),
			italic:     parse("italic", goitalic.TTF),
			boldItalic: parse("bold italic", gobolditalic.TTF),
		}
	})

	return goFonts, goFontsErr
}

type faceKey struct {
	size         float64
	bold, italic bool
}

// rasterizer lays out and paints one ebook page.
type rasterizer struct {
	fonts   fontSet
	faces   map[faceKey]font.Face
	palette palette
	scale   float64
	width   int
}

type palette struct {
	background, text, heading, accent color.Color
}

func newPalette(p ebook.Palette) palette {
	return palette{
		background: hexColor(p.Background),
		text:       hexColor(p.Text),
		heading:    hexColor(p.Heading),
		accent:     hexColor(p.Accent),
	}
}

// hexColor parses "#rrggbb", falling back to black.
func hexColor(s string) color.Color {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "#"), 16, 32)
	if err != nil || len(strings.TrimPrefix(s, "#")) != 6 {
		return color.Black
	}

	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}

func newRasterizer(style ebook.Style) (*rasterizer, error) {
	fonts, err := loadFonts()
	if err != nil {
		return nil, err
	}

	return &rasterizer{
		fonts:   fonts,
		faces:   make(map[faceKey]font.Face),
		palette: newPalette(style.Palette()),
		scale:   pageScale,
		width:   pageWidth * pageScale,
	}, nil
}

func (r *rasterizer) close() {
	for _, f := range r.faces {
		_ = f.Close()
	}
}

func (r *rasterizer) px(v float64) int {
	return int(math.Round(v * r.scale))
}

func (r *rasterizer) face(size float64, bold, italic bool) (font.Face, error) {
	key := faceKey{size: size, bold: bold, italic: italic}
	if f, ok := r.faces[key]; ok {
		return f, nil
	}

	src := r.fonts.regular
	switch {
	case bold && italic:
		src = r.fonts.boldItalic
	case bold:
		src = r.fonts.bold
	case italic:
		src = r.fonts.italic
	}

	f, err := opentype.NewFace(src, &opentype.FaceOptions{
		Size:    size * r.scale,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	r.faces[key] = f

	return f, nil
}

// op paints one element onto the page.
type op interface {
	paint(dst *image.RGBA)
}

type textOp struct {
	text string
	face font.Face
	col  color.Color
	x, y int // y is the baseline
}

func (o textOp) paint(dst *image.RGBA) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(o.col),
		Face: o.face,
		Dot:  fixed.P(o.x, o.y),
	}
	d.DrawString(o.text)
}

type rectOp struct {
	rect image.Rectangle
	col  color.Color
}

func (o rectOp) paint(dst *image.RGBA) {
	draw.Draw(dst, o.rect, image.NewUniform(o.col), image.Point{}, draw.Src)
}

type imageOp struct {
	rect image.Rectangle
	src  image.Image
}

func (o imageOp) paint(dst *image.RGBA) {
	xdraw.CatmullRom.Scale(dst, o.rect, o.src, o.src.Bounds(), xdraw.Over, nil)
}

// piece is a fragment of a word in a single face.
type piece struct {
	text string
	face font.Face
}

type word struct {
	pieces []piece
	width  int
}

// Rasterize paints the cover and rendered body into a single bitmap at
// pageScale times the base layout width.
func Rasterize(book ebook.Ebook, style ebook.Style) (*image.RGBA, error) {
	r, err := newRasterizer(style)
	if err != nil {
		return nil, err
	}
	defer r.close()

	ops, height, err := r.layout(book)
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, r.width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(r.palette.background), image.Point{}, draw.Src)
	for _, o := range ops {
		o.paint(img)
	}

	return img, nil
}

func (r *rasterizer) layout(book ebook.Ebook) ([]op, int, error) {
	var ops []op

	left := r.px(pagePadding)
	contentWidth := r.width - 2*left
	y := r.px(pagePadding)

	cover, err := decodeCover(book)
	if err != nil {
		return nil, 0, err
	}
	if cover != nil {
		boxW, boxH := r.px(coverBoxWidth), r.px(coverBoxHeight)
		box := image.Rect((r.width-boxW)/2, y, (r.width+boxW)/2, y+boxH)
		ops = append(ops, imageOp{rect: fitRect(cover.Bounds(), box), src: cover})
		y += boxH + r.px(coverGap)
	}

	for i, block := range markdown.Parse(book.Markdown) {
		l := layouts[block.Kind]
		if i > 0 {
			y += r.px(l.marginTop)
		}

		col := r.palette.text
		if l.heading {
			col = r.palette.heading
		}

		lines, err := r.wrap(block, l, contentWidth)
		if err != nil {
			return nil, 0, err
		}

		lineHeight := r.px(l.size * l.lineHeight)
		for _, line := range lines {
			ascent := 0
			if len(line) > 0 && len(line[0].pieces) > 0 {
				ascent = line[0].pieces[0].face.Metrics().Ascent.Ceil()
			}
			baseline := y + (lineHeight-r.px(l.size))/2 + ascent
			ops = append(ops, r.lineOps(line, left, baseline, col)...)
			y += lineHeight
		}

		if block.Kind == markdown.Heading1 {
			y += r.px(8)
			ops = append(ops, rectOp{
				rect: image.Rect(left, y, left+contentWidth, y+r.px(ruleThickness)),
				col:  r.palette.accent,
			})
			y += r.px(ruleThickness)
		}

		y += r.px(l.marginBot)
	}

	return ops, y + r.px(pagePadding), nil
}

func (r *rasterizer) lineOps(line []word, left, baseline int, col color.Color) []op {
	var ops []op

	x := left
	for i, w := range line {
		if i > 0 {
			x += spaceWidth(w.pieces[0].face)
		}
		for _, p := range w.pieces {
			ops = append(ops, textOp{text: p.text, face: p.face, col: col, x: x, y: baseline})
			x += font.MeasureString(p.face, p.text).Ceil()
		}
	}

	return ops
}

// wrap breaks a block into lines of words no wider than maxWidth. A single
// word wider than the line gets a line of its own.
func (r *rasterizer) wrap(block markdown.Block, l blockLayout, maxWidth int) ([][]word, error) {
	words, err := r.words(block, l)
	if err != nil {
		return nil, err
	}

	var (
		lines   [][]word
		current []word
		width   int
	)

	for _, w := range words {
		next := w.width
		if len(current) > 0 {
			next += width + spaceWidth(w.pieces[0].face)
		}
		if len(current) > 0 && next > maxWidth {
			lines = append(lines, current)
			current, next = nil, w.width
		}
		current = append(current, w)
		width = next
	}
	if len(current) > 0 {
		lines = append(lines, current)
	}

	return lines, nil
}

// words splits the block's spans on whitespace. A word may cross span
// boundaries, e.g. a bold term followed by a comma.
func (r *rasterizer) words(block markdown.Block, l blockLayout) ([]word, error) {
	var (
		words   []word
		current word
	)

	flush := func() {
		if len(current.pieces) > 0 {
			words = append(words, current)
		}
		current = word{}
	}

	for _, span := range block.Spans {
		face, err := r.face(l.size, l.heading || span.Bold, span.Italic)
		if err != nil {
			return nil, err
		}

		var sb strings.Builder
		emit := func() {
			if sb.Len() == 0 {
				return
			}
			text := sb.String()
			current.pieces = append(current.pieces, piece{text: text, face: face})
			current.width += font.MeasureString(face, text).Ceil()
			sb.Reset()
		}

		for _, c := range span.Text {
			if unicode.IsSpace(c) {
				emit()
				flush()
				continue
			}
			sb.WriteRune(c)
		}
		emit()
	}
	flush()

	return words, nil
}

func spaceWidth(face font.Face) int {
	return font.MeasureString(face, " ").Ceil()
}

// fitRect scales src to fit inside box, preserving its aspect ratio, centred.
func fitRect(src, box image.Rectangle) image.Rectangle {
	sw, sh := float64(src.Dx()), float64(src.Dy())
	if sw == 0 || sh == 0 {
		return image.Rectangle{Min: box.Min, Max: box.Min}
	}

	ratio := math.Min(float64(box.Dx())/sw, float64(box.Dy())/sh)
	w, h := int(math.Round(sw*ratio)), int(math.Round(sh*ratio))
	x := box.Min.X + (box.Dx()-w)/2
	y := box.Min.Y + (box.Dy()-h)/2

	return image.Rect(x, y, x+w, y+h)
}

func decodeCover(book ebook.Ebook) (image.Image, error) {
	data, err := book.CoverImage()
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode cover image: %w", err)
	}

	return img, nil
}
