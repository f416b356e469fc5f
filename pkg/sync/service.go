package sync

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shelfpost/shelfpost/pkg/books"
	"github.com/shelfpost/shelfpost/pkg/config"
	"github.com/shelfpost/shelfpost/pkg/ledger"
	"github.com/shelfpost/shelfpost/pkg/match"
	"github.com/shelfpost/shelfpost/pkg/metadata"
	"github.com/shelfpost/shelfpost/pkg/models"
	"github.com/shelfpost/shelfpost/pkg/source"
	"github.com/shelfpost/shelfpost/pkg/storage"
	"github.com/shelfpost/shelfpost/pkg/tasks"
	"github.com/uptrace/bun"
)

// Counts aggregates per-message outcomes of a metadata pass.
type Counts struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// FileCounts aggregates the file-linking pass.
type FileCounts struct {
	Linked    int `json:"linked"`
	Unmatched int `json:"unmatched"`
	Errors    int `json:"errors"`
}

// Result is the payload a completed sync task reports.
type Result struct {
	Metadata Counts     `json:"metadata"`
	Files    FileCounts `json:"files"`
}

// Service drives sync runs. A run is strictly sequential: each message's
// media download, storage write, catalog write, and ledger row happen in
// order before the next message, which keeps the resumability watermark
// honest. Overlapping runs are prevented by the HTTP handlers, not here.
type Service struct {
	cfg         *config.Config
	source      source.Client
	parser      metadata.Parser
	bookService *books.Service
	ledger      *ledger.Service
	reconciler  *books.Reconciler
	storage     storage.Storage
	registry    *tasks.Registry
	log         logger.Logger
}

func NewService(cfg *config.Config, db *bun.DB, src source.Client, store storage.Storage, registry *tasks.Registry) *Service {
	bookService := books.NewService(db)
	ledgerService := ledger.New(db)

	return &Service{
		cfg:         cfg,
		source:      src,
		parser:      metadata.NewKeyedParser(),
		bookService: bookService,
		ledger:      ledgerService,
		reconciler:  books.NewReconciler(bookService, ledgerService),
		storage:     store,
		registry:    registry,
		log:         logger.New(),
	}
}

// RunFullSync processes every message in the metadata channel from the
// newest backward, then runs the file-linking pass.
func (svc *Service) RunFullSync(ctx context.Context, taskID string, limit int) (*Result, error) {
	return svc.run(ctx, taskID, 0, limit)
}

// RunUpdateSync resumes the backward crawl from the watermark: the message
// id of the most recently written ledger row. With an empty ledger it
// behaves like a full sync.
func (svc *Service) RunUpdateSync(ctx context.Context, taskID string, limit int) (*Result, error) {
	latest, err := svc.ledger.Latest(ctx)
	if err != nil {
		return nil, err
	}
	offsetID := int64(0)
	if latest != nil {
		offsetID = latest.TelegramMessageID
	}
	return svc.run(ctx, taskID, offsetID, limit)
}

// RunAutoSync picks full or update. Full is chosen when the ledger is empty
// or when a scan of current channel message ids finds one the ledger doesn't
// know, which means an update run would walk past it forever.
func (svc *Service) RunAutoSync(ctx context.Context, taskID string, limit int) (*Result, error) {
	full, err := svc.needsFullSync(ctx)
	if err != nil {
		return nil, err
	}
	if full {
		svc.appendEvent(taskID, tasks.Event{Kind: tasks.EventInfo, Outcome: "auto sync: running full sync"})
		return svc.RunFullSync(ctx, taskID, limit)
	}
	svc.appendEvent(taskID, tasks.Event{Kind: tasks.EventInfo, Outcome: "auto sync: running update sync"})
	return svc.RunUpdateSync(ctx, taskID, limit)
}

// RunLinkFiles runs only the file-linking pass.
func (svc *Service) RunLinkFiles(ctx context.Context, taskID string) (*Result, error) {
	if err := svc.registry.UpdateStatus(taskID, tasks.StatusRunning, "starting file linking"); err != nil {
		return nil, err
	}
	fileCounts, err := svc.linkFiles(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return &Result{Files: *fileCounts}, nil
}

func (svc *Service) run(ctx context.Context, taskID string, offsetID int64, limit int) (*Result, error) {
	if err := svc.registry.UpdateStatus(taskID, tasks.StatusRunning, "starting metadata sync"); err != nil {
		return nil, err
	}

	counts, err := svc.syncMetadata(ctx, taskID, offsetID, limit)
	if err != nil {
		return nil, err
	}

	fileCounts, err := svc.linkFiles(ctx, taskID)
	if err != nil {
		return nil, err
	}

	return &Result{Metadata: *counts, Files: *fileCounts}, nil
}

// needsFullSync is auto sync's gap check. It only looks at message ids, not
// content, so the scan is one cheap listing pass.
func (svc *Service) needsFullSync(ctx context.Context) (bool, error) {
	count, err := svc.ledger.Count(ctx)
	if err != nil {
		return false, err
	}
	if count == 0 {
		return true, nil
	}

	seen, err := svc.ledger.MessageIDSet(ctx)
	if err != nil {
		return false, err
	}

	channelID := strconv.FormatInt(svc.cfg.MetadataChannelID, 10)
	offsetID := int64(0)
	for {
		messages, err := svc.source.ListMessages(ctx, channelID, svc.cfg.SyncBatchSize, offsetID)
		if err != nil {
			return false, errors.WithStack(err)
		}
		if len(messages) == 0 {
			return false, nil
		}
		minID := int64(0)
		for _, msg := range messages {
			if _, ok := seen[msg.ID]; !ok {
				return true, nil
			}
			if minID == 0 || msg.ID < minID {
				minID = msg.ID
			}
		}
		if len(messages) < svc.cfg.SyncBatchSize {
			return false, nil
		}
		offsetID = minID
	}
}

// syncMetadata crawls the metadata channel backward in batches. A failure to
// list a batch is fatal; a failure inside one message is recorded against
// that message and the batch continues.
func (svc *Service) syncMetadata(ctx context.Context, taskID string, offsetID int64, limit int) (*Counts, error) {
	counts := &Counts{}
	channelID := strconv.FormatInt(svc.cfg.MetadataChannelID, 10)
	processed := 0

	for {
		messages, err := svc.source.ListMessages(ctx, channelID, svc.cfg.SyncBatchSize, offsetID)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if len(messages) == 0 {
			break
		}

		minID := int64(0)
		for _, msg := range messages {
			if minID == 0 || msg.ID < minID {
				minID = msg.ID
			}

			item, outcome := svc.processMessage(ctx, msg)
			svc.recordOutcome(taskID, item, outcome, counts)

			processed++
			if limit > 0 && processed >= limit {
				return counts, nil
			}
		}
		offsetID = minID

		progress := 5 + processed/10
		if progress > 60 {
			progress = 60
		}
		_ = svc.registry.UpdateProgress(taskID, progress, nil, nil)

		if len(messages) < svc.cfg.SyncBatchSize {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errors.WithStack(ctx.Err())
		case <-time.After(svc.cfg.SyncBatchPause):
		}
	}

	return counts, nil
}

// processMessage classifies one message and returns a human-readable item
// label plus the outcome.
func (svc *Service) processMessage(ctx context.Context, msg source.Message) (string, books.Outcome) {
	item := fmt.Sprintf("message %d", msg.ID)

	if strings.TrimSpace(msg.Text) == "" {
		if err := svc.ledger.Upsert(ctx, msg.ID, nil); err != nil {
			return item, books.Outcome{Status: books.StatusError, Reason: err.Error()}
		}
		return item, books.Outcome{Status: books.StatusSkipped, Reason: books.ReasonNoText}
	}

	parsed := svc.parser.Parse(msg.Text)
	if parsed.Title != "" {
		item = parsed.Title
	}

	var coverURL *string
	if msg.Media != nil && msg.Media.IsImage() && parsed.Title != "" && parsed.Author != "" {
		data, err := svc.downloadWithRetry(ctx, msg.Media.Ref, svc.cfg.CoverFetchTimeout)
		if err != nil {
			// the record is still created without a cover
			svc.log.Err(err).Warn("cover download failed", logger.Data{"message_id": msg.ID})
		} else if url, err := svc.storage.SaveCover(msg.ID, data); err != nil {
			svc.log.Err(err).Warn("cover save failed", logger.Data{"message_id": msg.ID})
		} else {
			coverURL = &url
		}
	}

	return item, svc.reconciler.Reconcile(ctx, parsed, msg.ID, coverURL)
}

func (svc *Service) recordOutcome(taskID, item string, outcome books.Outcome, counts *Counts) {
	var kind tasks.EventKind
	switch outcome.Status {
	case books.StatusAdded:
		counts.Added++
		kind = tasks.EventAdded
	case books.StatusUpdated:
		counts.Updated++
		kind = tasks.EventUpdated
	case books.StatusSkipped:
		counts.Skipped++
		kind = tasks.EventSkipped
	case books.StatusError:
		counts.Errors++
		kind = tasks.EventError
	}

	detail := outcome.Reason
	if len(outcome.Notes) > 0 {
		if detail != "" {
			detail += "; "
		}
		detail += strings.Join(outcome.Notes, ", ")
	}
	svc.appendEvent(taskID, tasks.Event{Kind: kind, Item: item, Outcome: detail})
}

// linkFiles walks catalog records that reference a post but have no file yet
// and links the best-scoring attachment from the file channel.
func (svc *Service) linkFiles(ctx context.Context, taskID string) (*FileCounts, error) {
	counts := &FileCounts{}
	if svc.cfg.FileChannelID == 0 {
		return counts, nil
	}

	candidates, err := svc.bookService.ListBooks(ctx, books.ListBooksOptions{MissingFiles: true})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return counts, nil
	}

	listing, err := svc.listFileMessages(ctx)
	if err != nil {
		return nil, err
	}
	filenames := make([]string, len(listing))
	for i, msg := range listing {
		filenames[i] = msg.Media.Filename
	}

	for i, book := range candidates {
		best, ok := match.BestMatch(book.Title, book.Author, filenames, svc.cfg.MatchThreshold)
		if !ok {
			counts.Unmatched++
			svc.appendEvent(taskID, tasks.Event{Kind: tasks.EventSkipped, Item: book.Title, Outcome: "no file matched"})
			continue
		}

		if err := svc.linkFile(ctx, book, listing[best.Index].Media); err != nil {
			counts.Errors++
			svc.appendEvent(taskID, tasks.Event{Kind: tasks.EventError, Item: book.Title, Outcome: err.Error()})
			continue
		}

		counts.Linked++
		svc.appendEvent(taskID, tasks.Event{Kind: tasks.EventUpdated, Item: book.Title, Outcome: "linked " + best.Filename})

		progress := 60 + (i+1)*35/len(candidates)
		_ = svc.registry.UpdateProgress(taskID, progress, nil, nil)
	}

	return counts, nil
}

func (svc *Service) linkFile(ctx context.Context, book *models.Book, media *source.Media) error {
	data, err := svc.downloadWithRetry(ctx, media.Ref, svc.cfg.FileFetchTimeout)
	if err != nil {
		return err
	}

	fileURL, err := svc.storage.SaveFile(book.ID, media.Filename, data)
	if err != nil {
		return err
	}

	size := int64(len(data))
	format := fileFormat(media.Filename)
	book.FileURL = &fileURL
	book.FileSizeBytes = &size
	book.FileFormat = &format

	return svc.bookService.UpdateBook(ctx, book, books.UpdateBookOptions{
		Columns: []string{"file_url", "file_size_bytes", "file_format"},
	})
}

// listFileMessages fetches every attachment-bearing message in the file
// channel, crawling backward with the offset pinned to the minimum id seen.
func (svc *Service) listFileMessages(ctx context.Context) ([]source.Message, error) {
	channelID := strconv.FormatInt(svc.cfg.FileChannelID, 10)
	listing := []source.Message{}
	offsetID := int64(0)

	for {
		messages, err := svc.source.ListMessages(ctx, channelID, svc.cfg.SyncBatchSize, offsetID)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if len(messages) == 0 {
			break
		}

		minID := int64(0)
		for _, msg := range messages {
			if minID == 0 || msg.ID < minID {
				minID = msg.ID
			}
			if msg.Media != nil && msg.Media.Kind == source.MediaKindDocument && msg.Media.Filename != "" {
				listing = append(listing, msg)
			}
		}
		offsetID = minID

		if len(messages) < svc.cfg.SyncBatchSize {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errors.WithStack(ctx.Err())
		case <-time.After(svc.cfg.SyncBatchPause):
		}
	}

	return listing, nil
}

// downloadWithRetry races each attempt against a deadline and backs off a
// little longer after each failure. Exhausting attempts is reported to the
// caller, which decides whether that degrades the item or fails the run.
func (svc *Service) downloadWithRetry(ctx context.Context, ref string, timeout time.Duration) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= svc.cfg.MediaFetchAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		data, err := svc.source.DownloadMedia(attemptCtx, ref)
		cancel()
		if err == nil {
			return data, nil
		}
		lastErr = err

		if attempt < svc.cfg.MediaFetchAttempts {
			select {
			case <-ctx.Done():
				return nil, errors.WithStack(ctx.Err())
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}
	return nil, errors.Wrapf(lastErr, "media download failed after %d attempts", svc.cfg.MediaFetchAttempts)
}

func fileFormat(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}

func (svc *Service) appendEvent(taskID string, event tasks.Event) {
	_ = svc.registry.UpdateProgress(taskID, -1, &event, nil)
}
