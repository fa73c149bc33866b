package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/agroamigo/sipsa-cli/internal/fetcher"
	"github.com/agroamigo/sipsa-cli/internal/model"
	"github.com/agroamigo/sipsa-cli/internal/parse"
	"github.com/agroamigo/sipsa-cli/internal/storage"
	"github.com/agroamigo/sipsa-cli/internal/store"
)

// Expander unpacks a city-report archive into per-city documents in
// object storage and the extracted_documents table. Expansion is
// re-entrant: members already extracted and processed are skipped,
// members extracted but never processed are handed back for another
// attempt under their original ID.
type Expander struct {
	Store   store.Store
	Objects storage.ObjectStore
	DryRun  bool
}

// Expansion is the outcome of unpacking one archive: the documents
// still needing processing, the member bytes read along the way keyed
// by storage path, and the count skipped as already done.
type Expansion struct {
	Docs     []model.ExtractedDocument
	Payloads map[string][]byte
	Skipped  int
}

// Expand unpacks the archive. In dry-run mode nothing is written to
// object storage or the database; the documents and their bytes are
// returned for in-memory parsing only.
func (e *Expander) Expand(ctx context.Context, entry *model.DownloadEntry) (*Expansion, error) {
	data, err := e.Objects.Get(ctx, entry.StoragePath)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read archive %s", entry.StoragePath)
	}
	members, err := fetcher.ListZIPMembers(data)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: open archive %s", entry.StoragePath)
	}

	exp := &Expansion{Payloads: map[string][]byte{}}
	for _, member := range members {
		if !strings.HasSuffix(strings.ToLower(member), ".pdf") {
			continue
		}
		meta := parse.InferMeta(
			parse.FilenameMeta(member),
			parse.StaticMeta("", "", entry.RowDate),
		)
		key := "extracted/unknown_date/" + member
		if meta.Date != nil {
			key = storage.ExtractedKey(*meta.Date, member)
		}

		existing, err := e.Store.GetExtractedDocumentByPath(ctx, key)
		if err != nil {
			return exp, err
		}
		if existing != nil {
			if existing.Processed {
				exp.Skipped++
				continue
			}
			exp.Docs = append(exp.Docs, *existing)
			continue
		}

		pdfData, err := fetcher.ReadZIPMember(data, member)
		if err != nil {
			return exp, eris.Wrapf(err, "pipeline: read member %s", member)
		}
		doc := model.ExtractedDocument{
			DownloadEntryID: entry.ID,
			ArchivePath:     entry.StoragePath,
			Filename:        member,
			StoragePath:     key,
			City:            meta.City,
			Market:          meta.Market,
			DocDate:         meta.Date,
		}
		if !e.DryRun {
			if err := e.Objects.Put(ctx, key, pdfData); err != nil {
				return exp, eris.Wrapf(err, "pipeline: store member %s", member)
			}
			if err := e.Store.CreateExtractedDocument(ctx, &doc); err != nil {
				return exp, err
			}
		}
		exp.Payloads[key] = pdfData
		exp.Docs = append(exp.Docs, doc)
	}

	zap.L().Debug("archive expanded",
		zap.String("archive", entry.StoragePath),
		zap.Int("pending", len(exp.Docs)),
		zap.Int("already_done", exp.Skipped),
		zap.Bool("dry_run", e.DryRun),
	)
	return exp, nil
}
