package pdfgen

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"

	"pgr-report-service/models"
)

// Page geometry in millimeters, font sizes in points.
const (
	pageMargin  = 10.0
	breakMargin = 15.0

	baseFontSize = 10.0
	lineHeight   = 6.0
	textLineUnit = 5.0

	imgWidth    = 55.0
	imgHeight   = 35.0
	imgMargin   = 5.0
	gridColumns = 3

	captionFontSize = 8.0
	captionLineUnit = 3.5
	captionGap      = 1.0

	badgeFontSize = 8.0
	badgeHeight   = 5.0
	badgePadX     = 2.0
	badgeGap      = 2.0
	badgeRowGap   = 1.0
	badgeRadius   = 1.2

	// Fixed slack per item block so prediction stays ahead of drawing.
	blockPadding = 15.0

	statusLabel = "Status:"
)

// ProcessedImage is a fetched, annotated and re-encoded image ready for
// placement, with the caption derived from its annotations.
type ProcessedImage struct {
	Data    []byte
	Caption string
}

// Layout owns the page cursor for the duration of one report. It is not
// safe for concurrent use; all drawing happens on one goroutine.
type Layout struct {
	pdf    *fpdf.Fpdf
	tr     func(string) string
	imgSeq int
}

func newLayout(title string) *Layout {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, breakMargin)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", baseFontSize)
	return &Layout{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
}

// ContentWidth is the drawable width between the side margins.
func (l *Layout) ContentWidth() float64 {
	w, _ := l.pdf.GetPageSize()
	left, _, right, _ := l.pdf.GetMargins()
	return w - left - right
}

// LineCount predicts how many lines text will occupy when word-wrapped
// into the given width: explicit newlines split lines, words pack greedily
// by measured string width, and a single word wider than the width
// consumes a line by itself. Empty lines count as one.
func (l *Layout) LineCount(text string, width float64) int {
	if text == "" {
		return 1
	}
	total := 0
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			total++
			continue
		}
		current := ""
		count := 1
		for _, word := range strings.Split(line, " ") {
			if l.pdf.GetStringWidth(l.tr(word)) > width {
				if current != "" {
					count++
				}
				current = ""
				continue
			}
			test := word
			if current != "" {
				test = current + " " + word
			}
			if l.pdf.GetStringWidth(l.tr(test)) <= width {
				current = test
			} else {
				count++
				current = word
			}
		}
		total += count
	}
	return total
}

// ItemBlockHeight predicts the full height of one checklist item block so
// the page break can happen before any of it is drawn.
func (l *Layout) ItemBlockHeight(item models.ChecklistItem, images []ProcessedImage) float64 {
	width := l.ContentWidth()
	h := float64(l.LineCount("Item: "+item.Label, width)) * textLineUnit
	_, badgesH := l.planBadges(statusText(item.Conforme), item.Tags)
	h += badgesH + badgeRowGap
	h += float64(l.LineCount("Problema(s): "+item.Problema, width)) * textLineUnit
	h += l.gridHeight(images)
	return h + blockPadding
}

// EnsureSpace starts a new page when the predicted block would cross the
// page-break trigger line; items never split across pages.
func (l *Layout) EnsureSpace(blockHeight float64) {
	_, pageH := l.pdf.GetPageSize()
	if l.pdf.GetY()+blockHeight > pageH-breakMargin {
		l.pdf.AddPage()
	}
}

func (l *Layout) drawHeader(key string, rev models.Revision, runDate, valDate string, sum Summary, logo []byte) {
	if tp := imageType(logo); tp != "" {
		opts := fpdf.ImageOptions{ImageType: tp}
		l.pdf.RegisterImageOptionsReader("logo", opts, bytes.NewReader(logo))
		l.pdf.ImageOptions("logo", pageMargin, 12, 25, 0, false, opts, 0, "")
	} else {
		l.pdf.Text(pageMargin, 15, "Logo N/A")
	}

	l.pdf.SetY(10)
	l.pdf.SetX(40)
	l.cell(50, "Código: "+key)
	l.cell(50, "KM: "+rev.KM)
	l.cellLn(0, "Data Execução: "+runDate)
	l.pdf.SetX(40)
	l.cell(50, "Placa: "+rev.Placa)
	l.cell(50, "Tipo: "+rev.TipoEvento)
	l.cellLn(0, "Data Validação: "+valDate)
	l.pdf.Ln(5)

	left, _, _, _ := l.pdf.GetMargins()
	gap := 2.0
	colWidth := (l.ContentWidth() - gap) / 2

	// Two bordered cells side by side, overall height taken from the
	// taller of the two.
	startY := l.pdf.GetY()
	l.pdf.MultiCell(colWidth, lineHeight-1, l.tr("Descrição:\n"+rev.Descricao), "1", "L", false)
	yLeft := l.pdf.GetY()
	l.pdf.SetXY(left+colWidth+gap, startY)
	l.pdf.MultiCell(colWidth, lineHeight-1, l.tr("Observação Validação:\n"+rev.ObservacaoValidacao), "1", "L", false)
	if yLeft > l.pdf.GetY() {
		l.pdf.SetY(yLeft)
	}
	l.pdf.Ln(2)

	l.borderCell(colWidth, "Colaborador: "+rev.Colaborador, 0)
	l.pdf.SetX(left + colWidth + gap)
	l.borderCell(colWidth, "Validador: "+rev.Validador, 1)
	l.borderCell(colWidth, fmt.Sprintf("Perguntas OK: %d / NOK: %d", sum.OKItems, sum.NOKItems), 0)
	l.pdf.SetX(left + colWidth + gap)
	l.borderCell(colWidth, fmt.Sprintf("Fotos OK: %d / NOK: %d", sum.OKPhotos, sum.NOKPhotos), 1)
	l.pdf.Ln(8)
}

func (l *Layout) drawItem(item models.ChecklistItem, images []ProcessedImage) {
	if item.Conforme {
		l.pdf.SetFillColor(230, 240, 255)
	} else {
		l.pdf.SetFillColor(255, 200, 200)
	}

	l.pdf.MultiCell(0, textLineUnit, l.tr("Item: "+item.Label), "", "L", true)
	l.drawStatusAndTags(item)
	l.pdf.MultiCell(0, textLineUnit, l.tr("Problema(s): "+item.Problema), "", "L", true)

	if len(images) > 0 {
		l.pdf.Ln(2)
		l.drawImageGrid(images)
	} else {
		l.pdf.Ln(5)
	}
	l.pdf.Ln(4)
}

func statusText(conforme bool) string {
	if conforme {
		return "Conforme"
	}
	return "Não Conforme"
}

// plannedBadge is a badge position relative to the badge block origin.
type plannedBadge struct {
	text   string
	x, y   float64
	w      float64
	status bool
}

// planBadges lays the status badge and tag badges left to right after the
// "Status:" label, wrapping to the left margin whenever the next badge
// would cross the right margin. Returns the plan and the block height.
func (l *Layout) planBadges(status string, tags []models.Tag) ([]plannedBadge, float64) {
	width := l.ContentWidth()
	l.pdf.SetFontSize(badgeFontSize)
	defer l.pdf.SetFontSize(baseFontSize)

	x := l.pdf.GetStringWidth(l.tr(statusLabel)) + badgeGap
	y := 0.0
	plan := make([]plannedBadge, 0, len(tags)+1)
	place := func(text string, isStatus bool) {
		w := l.pdf.GetStringWidth(l.tr(text)) + 2*badgePadX
		if x > 0 && x+w > width {
			x = 0
			y += badgeHeight + badgeRowGap
		}
		plan = append(plan, plannedBadge{text: text, x: x, y: y, w: w, status: isStatus})
		x += w + badgeGap
	}
	place(status, true)
	for _, t := range tags {
		place(t.Label(), false)
	}
	return plan, y + badgeHeight
}

func (l *Layout) drawStatusAndTags(item models.ChecklistItem) {
	plan, blockH := l.planBadges(statusText(item.Conforme), item.Tags)
	left, _, _, _ := l.pdf.GetMargins()
	y0 := l.pdf.GetY()

	l.pdf.SetFontSize(badgeFontSize)
	l.pdf.SetXY(left, y0)
	l.pdf.CellFormat(l.pdf.GetStringWidth(l.tr(statusLabel)), badgeHeight, l.tr(statusLabel), "", 0, "L", false, 0, "")

	for _, b := range plan {
		x, y := left+b.x, y0+b.y
		if b.status {
			if item.Conforme {
				l.pdf.SetDrawColor(36, 140, 42)
				l.pdf.SetFillColor(222, 245, 222)
				l.pdf.SetTextColor(20, 100, 26)
			} else {
				l.pdf.SetDrawColor(200, 30, 30)
				l.pdf.SetFillColor(255, 214, 214)
				l.pdf.SetTextColor(160, 20, 20)
			}
			l.pdf.RoundedRect(x, y, b.w, badgeHeight, badgeRadius, "1234", "FD")
		} else {
			l.pdf.SetDrawColor(128, 128, 128)
			l.pdf.SetTextColor(90, 90, 90)
			l.pdf.RoundedRect(x, y, b.w, badgeHeight, badgeRadius, "1234", "D")
		}
		l.pdf.SetXY(x, y)
		l.pdf.CellFormat(b.w, badgeHeight, l.tr(b.text), "", 0, "C", false, 0, "")
	}

	l.pdf.SetFontSize(baseFontSize)
	l.pdf.SetTextColor(0, 0, 0)
	l.pdf.SetDrawColor(0, 0, 0)
	l.pdf.SetXY(left, y0+blockH+badgeRowGap)
}

// gridHeight predicts the image grid height: rows of up to gridColumns
// cells, each row as tall as its tallest image+caption pair.
func (l *Layout) gridHeight(images []ProcessedImage) float64 {
	total := 0.0
	for start := 0; start < len(images); start += gridColumns {
		end := start + gridColumns
		if end > len(images) {
			end = len(images)
		}
		rowCaption := 0.0
		for _, img := range images[start:end] {
			if h := l.captionHeight(img.Caption); h > rowCaption {
				rowCaption = h
			}
		}
		total += imgHeight + rowCaption + imgMargin
	}
	return total
}

func (l *Layout) captionHeight(caption string) float64 {
	if caption == "" {
		return 0
	}
	l.pdf.SetFontSize(captionFontSize)
	lines := l.LineCount(caption, imgWidth)
	l.pdf.SetFontSize(baseFontSize)
	return captionGap + float64(lines)*captionLineUnit
}

func (l *Layout) drawImageGrid(images []ProcessedImage) {
	left, _, _, _ := l.pdf.GetMargins()
	for start := 0; start < len(images); start += gridColumns {
		end := start + gridColumns
		if end > len(images) {
			end = len(images)
		}
		row := images[start:end]
		y := l.pdf.GetY()

		rowCaption := 0.0
		for _, img := range row {
			if h := l.captionHeight(img.Caption); h > rowCaption {
				rowCaption = h
			}
		}

		for i, img := range row {
			tp := imageType(img.Data)
			if tp == "" {
				continue
			}
			x := left + float64(i)*(imgWidth+imgMargin)
			l.imgSeq++
			name := fmt.Sprintf("item-img-%d", l.imgSeq)
			opts := fpdf.ImageOptions{ImageType: tp}
			l.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(img.Data))
			l.pdf.ImageOptions(name, x, y, imgWidth, imgHeight, false, opts, 0, "")

			if img.Caption != "" {
				l.pdf.SetXY(x, y+imgHeight+captionGap)
				l.pdf.SetFontSize(captionFontSize)
				l.pdf.MultiCell(imgWidth, captionLineUnit, l.tr(img.Caption), "", "L", false)
				l.pdf.SetFontSize(baseFontSize)
			}
		}

		l.pdf.SetXY(left, y+imgHeight+rowCaption+imgMargin)
	}
}

// Output serializes the finished document.
func (l *Layout) Output() ([]byte, error) {
	var buf bytes.Buffer
	if err := l.pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (l *Layout) cell(w float64, text string) {
	l.pdf.CellFormat(w, lineHeight, l.tr(text), "", 0, "L", false, 0, "")
}

func (l *Layout) cellLn(w float64, text string) {
	l.pdf.CellFormat(w, lineHeight, l.tr(text), "", 1, "L", false, 0, "")
}

func (l *Layout) borderCell(w float64, text string, ln int) {
	l.pdf.CellFormat(w, lineHeight, l.tr(text), "1", ln, "L", false, 0, "")
}

// imageType sniffs the encoded format, empty when unsupported.
func imageType(data []byte) string {
	switch {
	case len(data) > 2 && data[0] == 0xFF && data[1] == 0xD8:
		return "JPEG"
	case bytes.HasPrefix(data, []byte("\x89PNG")):
		return "PNG"
	case bytes.HasPrefix(data, []byte("GIF8")):
		return "GIF"
	}
	return ""
}
