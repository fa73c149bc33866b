package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agroamigo/sipsa-cli/internal/model"
	"github.com/agroamigo/sipsa-cli/internal/parse"
	"github.com/agroamigo/sipsa-cli/internal/store"
)

// ProcessOptions narrows which entries a run touches. EntryID wins
// over the other filters.
type ProcessOptions struct {
	EntryID string
	Date    *time.Time
	Kind    model.FileKind
	Limit   int
}

// Run processes pending download entries through extraction and
// normalization. Individual entry failures are recorded and counted,
// never fatal; only infrastructure errors abort the run.
func (p *Pipeline) Run(ctx context.Context, opts ProcessOptions) (*Summary, error) {
	entries, err := p.selectEntries(ctx, opts)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	if len(entries) == 0 {
		zap.L().Info("no pending entries")
		return summary, nil
	}
	zap.L().Info("processing entries",
		zap.Int("entries", len(entries)),
		zap.Int("workers", p.workers()),
		zap.Bool("dry_run", p.DryRun),
	)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for i := range entries {
		entry := entries[i]
		g.Go(func() error {
			res := p.processEntry(gctx, &entry)
			mu.Lock()
			summary.add(res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, eris.Wrap(err, "pipeline: run")
	}

	zap.L().Info("processing complete",
		zap.Int("entries", summary.Entries),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int64("observations", summary.Observations),
		zap.Int("errors", summary.Errors),
	)
	return summary, nil
}

// processEntryByID runs one entry regardless of its processed flag.
// This is the retry coordinator's entry point.
func (p *Pipeline) processEntryByID(ctx context.Context, entryID string) (entryResult, error) {
	entry, err := p.Store.GetDownloadEntry(ctx, entryID)
	if err != nil {
		return entryResult{}, err
	}
	if entry == nil {
		return entryResult{}, eris.Errorf("pipeline: entry %s not found", entryID)
	}
	return p.processEntry(ctx, entry), nil
}

func (p *Pipeline) selectEntries(ctx context.Context, opts ProcessOptions) ([]model.DownloadEntry, error) {
	if opts.EntryID != "" {
		entry, err := p.Store.GetDownloadEntry(ctx, opts.EntryID)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, eris.Errorf("pipeline: entry %s not found", opts.EntryID)
		}
		return []model.DownloadEntry{*entry}, nil
	}
	unprocessed := false
	return p.Store.ListDownloadEntries(ctx, store.EntryFilter{
		Processed: &unprocessed,
		FileKind:  opts.Kind,
		Date:      opts.Date,
		Limit:     opts.Limit,
	})
}

func (p *Pipeline) processEntry(ctx context.Context, entry *model.DownloadEntry) entryResult {
	log := zap.L().With(
		zap.String("entry_id", entry.ID),
		zap.String("file_kind", string(entry.FileKind)),
		zap.String("storage_path", entry.StoragePath),
	)
	log.Info("processing entry", zap.String("name", entry.RowName))

	res := entryResult{}
	var err error
	switch entry.FileKind {
	case model.FileKindZIP:
		err = p.processArchive(ctx, entry, &res)
	case model.FileKindPDF:
		err = p.processDocument(ctx, entry, nil, nil, &res)
	case model.FileKindExcel:
		err = p.processExcel(ctx, entry, &res)
	default:
		err = eris.Errorf("pipeline: unknown file kind %q", entry.FileKind)
	}
	if err != nil {
		log.Error("entry processing failed", zap.Error(err))
		p.recordError(ctx, &model.ProcessingError{
			Kind:            model.ErrProcessingFailed,
			Message:         err.Error(),
			SourcePath:      entry.StoragePath,
			SourceKind:      entry.FileKind,
			DownloadEntryID: entry.ID,
		}, &res)
		return res
	}

	if res.observations == 0 {
		// Every bulletin carries prices; silence means extraction
		// missed, not that the market closed.
		p.recordError(ctx, &model.ProcessingError{
			Kind:            model.ErrNoPricesExtracted,
			Message:         "file processed but no prices were extracted",
			SourcePath:      entry.StoragePath,
			SourceKind:      entry.FileKind,
			DownloadEntryID: entry.ID,
		}, &res)
	}

	if !p.DryRun {
		if err := p.Store.MarkEntryProcessed(ctx, entry.ID); err != nil {
			log.Error("mark processed failed", zap.Error(err))
			res.errors++
			return res
		}
	}
	res.success = res.observations > 0
	log.Info("entry done",
		zap.Int64("observations", res.observations),
		zap.Int("errors", res.errors),
	)
	return res
}

func (p *Pipeline) processArchive(ctx context.Context, entry *model.DownloadEntry, res *entryResult) error {
	exp := &Expander{Store: p.Store, Objects: p.Objects, DryRun: p.DryRun}
	expansion, err := exp.Expand(ctx, entry)
	if err != nil {
		return err
	}
	res.documents += expansion.Skipped

	for i := range expansion.Docs {
		doc := expansion.Docs[i]
		res.documents++
		docRes := entryResult{}
		if err := p.processDocument(ctx, entry, &doc, expansion.Payloads[doc.StoragePath], &docRes); err != nil {
			return err
		}
		if docRes.observations == 0 && docRes.errors == 0 {
			p.recordError(ctx, &model.ProcessingError{
				Kind:                model.ErrNoPricesExtracted,
				Message:             "document processed but no prices were extracted",
				SourcePath:          doc.StoragePath,
				SourceKind:          model.FileKindPDF,
				DownloadEntryID:     entry.ID,
				ExtractedDocumentID: doc.ID,
			}, &docRes)
		}
		if !p.DryRun && (docRes.observations > 0 || docRes.errors == 0) {
			if err := p.Store.MarkDocumentProcessed(ctx, doc.ID); err != nil {
				return err
			}
		}
		res.observations += docRes.observations
		res.errors += docRes.errors
	}
	return nil
}

// processDocument parses one PDF: either a standalone bulletin (doc ==
// nil) or an archive member. Archive member filenames name the city
// and date more reliably than the PDF header, so they fill gaps the
// parser leaves. A non-nil payload carries the bytes already in hand;
// otherwise the object is fetched from storage.
func (p *Pipeline) processDocument(ctx context.Context, entry *model.DownloadEntry, doc *model.ExtractedDocument, payload []byte, res *entryResult) error {
	src := Source{Kind: model.FileKindPDF, Path: entry.StoragePath, EntryID: entry.ID}
	if doc != nil {
		src.Path = doc.StoragePath
		src.DocumentID = doc.ID
	}

	data := payload
	if data == nil {
		var err error
		data, err = p.Objects.Get(ctx, src.Path)
		if err != nil {
			p.recordError(ctx, &model.ProcessingError{
				Kind:                model.ErrDownloadFailed,
				Message:             err.Error(),
				SourcePath:          src.Path,
				SourceKind:          model.FileKindPDF,
				DownloadEntryID:     src.EntryID,
				ExtractedDocumentID: src.DocumentID,
			}, res)
			return nil
		}
	}

	parsed, err := parse.ParsePDF(data)
	if err != nil {
		// An unreadable PDF is a document defect, not an
		// infrastructure failure.
		p.recordError(ctx, &model.ProcessingError{
			Kind:                model.ErrCorruptedPDF,
			Message:             err.Error(),
			SourcePath:          src.Path,
			SourceKind:          model.FileKindPDF,
			DownloadEntryID:     src.EntryID,
			ExtractedDocumentID: src.DocumentID,
		}, res)
		return nil
	}
	if doc != nil {
		meta := parse.InferMeta(
			parse.StaticMeta(doc.City, doc.Market, doc.DocDate),
			parse.StaticMeta("", "", entry.RowDate),
		)
		for i := range parsed.Rows {
			if parsed.Rows[i].City == "" {
				parsed.Rows[i].City = meta.City
				parsed.Rows[i].Market = meta.Market
			}
			if parsed.Rows[i].PriceDate == nil {
				parsed.Rows[i].PriceDate = meta.Date
			}
		}
	}
	return p.persist(ctx, parsed, src, res)
}

func (p *Pipeline) processExcel(ctx context.Context, entry *model.DownloadEntry, res *entryResult) error {
	src := Source{Kind: model.FileKindExcel, Path: entry.StoragePath, EntryID: entry.ID}

	data, err := p.Objects.Get(ctx, entry.StoragePath)
	if err != nil {
		p.recordError(ctx, &model.ProcessingError{
			Kind:            model.ErrDownloadFailed,
			Message:         err.Error(),
			SourcePath:      entry.StoragePath,
			SourceKind:      model.FileKindExcel,
			DownloadEntryID: entry.ID,
		}, res)
		return nil
	}

	parsed, err := parse.ParseExcel(data, entry.RowDate)
	if err != nil {
		p.recordError(ctx, &model.ProcessingError{
			Kind:            model.ErrExcelParse,
			Message:         err.Error(),
			SourcePath:      entry.StoragePath,
			SourceKind:      model.FileKindExcel,
			DownloadEntryID: entry.ID,
		}, res)
		return nil
	}
	return p.persist(ctx, parsed, src, res)
}

func (p *Pipeline) persist(ctx context.Context, parsed *parse.Result, src Source, res *entryResult) error {
	obs, normIssues := Normalize(parsed.Rows, src, p.Geo)
	issues := append(parsed.Issues, normIssues...)

	for _, iss := range issues {
		p.recordError(ctx, &model.ProcessingError{
			Kind:                iss.Kind,
			Message:             iss.Message,
			SourcePath:          src.Path,
			SourceKind:          src.Kind,
			DownloadEntryID:     src.EntryID,
			ExtractedDocumentID: src.DocumentID,
			RowData:             iss.Row,
		}, res)
	}

	if p.DryRun {
		res.observations += int64(len(obs))
		return nil
	}
	n, err := p.Store.InsertPriceObservations(ctx, obs)
	if err != nil {
		return err
	}
	res.observations += n
	return nil
}

// recordError writes to the ledger unless dry-run, and always counts.
func (p *Pipeline) recordError(ctx context.Context, perr *model.ProcessingError, res *entryResult) {
	res.errors++
	if p.DryRun {
		return
	}
	if err := p.Store.RecordProcessingError(ctx, perr); err != nil {
		zap.L().Error("record processing error", zap.Error(err))
	}
}
