// Package pdfgen turns a normalized PGR checklist into a paginated PDF,
// deciding page breaks from predicted block heights before drawing.
package pdfgen

import (
	"context"
	"errors"
	"runtime/debug"

	"github.com/apex/log"

	"pgr-report-service/annotate"
	"pgr-report-service/config"
	"pgr-report-service/fetch"
	"pgr-report-service/models"
)

// ErrGeneration is the single failure surfaced for anything unrecoverable
// during assembly; resource-level failures never escalate to it.
var ErrGeneration = errors.New("falha ao gerar o relatório")

// Summary holds the OK/NOK partition counts shown in the header.
type Summary struct {
	OKItems   int
	NOKItems  int
	OKPhotos  int
	NOKPhotos int
}

// Generator assembles checklist reports. Safe for concurrent use; every
// call builds its own Layout.
type Generator struct {
	fetcher *fetch.Fetcher
	locator *fetch.Locator
	cfg     *config.Config
}

func NewGenerator(fetcher *fetch.Fetcher, cfg *config.Config) *Generator {
	return &Generator{
		fetcher: fetcher,
		locator: &fetch.Locator{
			Enabled:      cfg.UseGCSForStorageURLs,
			StorageHosts: cfg.StorageURLHosts,
		},
		cfg: cfg,
	}
}

// Generate renders the report to PDF bytes. Individual image failures are
// logged and dropped; anything else fails the whole document.
func (g *Generator) Generate(ctx context.Context, report *models.ChecklistReport) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Panic while generating report %s: %v\n%s", report.Key, r, debug.Stack())
			out = nil
			err = ErrGeneration
		}
	}()

	// Acquire every image up front: the header summary counts only images
	// that actually made it, and block-height prediction needs captions.
	rendered := make([]RenderedItem, len(report.Items))
	for i := range report.Items {
		rendered[i] = RenderedItem{
			Item:   report.Items[i],
			Images: g.resolveImages(ctx, report.Items[i].Images),
		}
	}

	layout := newLayout("Checklist PGR - " + report.Key)

	sum := Summarize(rendered)
	logo := g.fetcher.FetchBlob(ctx, g.cfg.LogoObject)
	runDate := FormatDate(report.Revision.RunDate, g.cfg.StrictDates)
	valDate := FormatDate(report.Revision.DataValidacao, g.cfg.StrictDates)
	layout.drawHeader(report.Key, report.Revision, runDate, valDate, sum, logo)

	for _, ri := range rendered {
		layout.EnsureSpace(layout.ItemBlockHeight(ri.Item, ri.Images))
		layout.drawItem(ri.Item, ri.Images)
	}

	data, err := layout.Output()
	if err != nil {
		log.Errorf("Serializing report %s: %v", report.Key, err)
		return nil, ErrGeneration
	}
	return data, nil
}

// RenderedItem pairs a checklist item with the images that survived
// acquisition, annotation and re-encoding.
type RenderedItem struct {
	Item   models.ChecklistItem
	Images []ProcessedImage
}

// Summarize partitions items by conformity and totals the photos that were
// actually acquired; references that failed to fetch do not count.
func Summarize(items []RenderedItem) Summary {
	var sum Summary
	for _, ri := range items {
		if ri.Item.Conforme {
			sum.OKItems++
			sum.OKPhotos += len(ri.Images)
		} else {
			sum.NOKItems++
			sum.NOKPhotos += len(ri.Images)
		}
	}
	return sum
}

// resolveImages classifies each reference, fetches by source type (batched
// where the source allows), then annotates and re-encodes. Results are
// grouped by source, ordered within each group; failed images simply
// disappear from the grid.
func (g *Generator) resolveImages(ctx context.Context, refs []models.ImageRef) []ProcessedImage {
	var (
		paths      []string
		pathRefs   []int
		targets    []fetch.Target
		targetRefs []int
		urls       []string
		urlRefs    []int
	)
	for i, ref := range refs {
		if ref.Path != "" {
			paths = append(paths, ref.Path)
			pathRefs = append(pathRefs, i)
		}
		if ref.URL != "" {
			if t, ok := g.locator.Parse(ref.URL); ok {
				targets = append(targets, t)
				targetRefs = append(targetRefs, i)
			} else {
				urls = append(urls, ref.URL)
				urlRefs = append(urlRefs, i)
			}
		}
	}

	var raw [][]byte
	var refIdx []int
	collect := func(results [][]byte, srcRefs []int) {
		for j, d := range results {
			if d != nil {
				raw = append(raw, d)
				refIdx = append(refIdx, srcRefs[j])
			}
		}
	}
	if len(paths) > 0 {
		collect(g.fetcher.FetchBlobBatch(ctx, paths), pathRefs)
	}
	if len(targets) > 0 {
		collect(g.fetcher.FetchTargets(ctx, targets), targetRefs)
	}
	if len(urls) > 0 {
		collect(g.fetcher.FetchURLBatch(ctx, urls), urlRefs)
	}

	images := make([]ProcessedImage, 0, len(raw))
	for k, d := range raw {
		data, caption := annotate.Apply(d, refs[refIdx[k]].Annotations, g.cfg.MaxImageBytes)
		if data == nil {
			continue
		}
		images = append(images, ProcessedImage{Data: data, Caption: caption})
	}
	return images
}
