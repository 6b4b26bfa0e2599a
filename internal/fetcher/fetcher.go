package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/LimaLegalLab/jurisprudencia/backend/internal/rulings"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

var (
	errMissingSourceURL = errors.New("source url is required")
	// ErrPageUnavailable marks a page whose retry budget was exhausted.
	// The run skips the page and continues.
	ErrPageUnavailable = errors.New("fetcher: page unavailable after retries")
	noOpLogger         = zap.NewNop()
)

// FetchError carries an operation-coded failure from the fetch engine.
type FetchError struct {
	code string
	err  error
}

func (e *FetchError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *FetchError) Unwrap() error {
	return e.err
}

func (e *FetchError) Code() string {
	return e.code
}

const (
	opFetcherNew = "fetcher.new"
	opFetchPage  = "fetcher.fetch_page"
)

func newFetchError(operation, reason string, cause error) error {
	return &FetchError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Default request headers expected by the source API.
var sourceHeaders = map[string]string{
	"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":     "application/json, text/plain, */*",
	"Referer":    "https://jurisprudencia.sedetc.gob.pe/",
}

// Config describes the dependencies and knobs of the fetch engine.
type Config struct {
	SourceURL    string
	Timeout      time.Duration
	PageDelay    time.Duration
	RetryBudget  int
	RetryBackoff time.Duration
	HTTPClient   *http.Client
	Logger       *zap.Logger
	// Sleep is replaceable in tests; defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration)
}

// Request bounds one fetch run.
type Request struct {
	StartPage int
	// MaxPages limits pages processed in this run; zero means unbounded.
	MaxPages int
	// StopDate (YYYY-MM-DD) halts the run at the first item published
	// before it. An unparsable value disables the filter.
	StopDate string
}

// Fetcher drives paginated retrieval from the remote sentencia API with
// per-page retry/backoff and an inter-page pacing delay.
type Fetcher struct {
	sourceURL    string
	timeout      time.Duration
	pageDelay    time.Duration
	retryBudget  int
	retryBackoff time.Duration
	client       *http.Client
	logger       *zap.Logger
	sleep        func(ctx context.Context, d time.Duration)
}

// NewFetcher validates the configuration and constructs a fetch engine.
func NewFetcher(cfg Config) (*Fetcher, error) {
	if cfg.SourceURL == "" {
		return nil, newFetchError(opFetcherNew, "missing_source_url", errMissingSourceURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryBudget < 1 {
		cfg.RetryBudget = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 5 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}
	return &Fetcher{
		sourceURL:    cfg.SourceURL,
		timeout:      cfg.Timeout,
		pageDelay:    cfg.PageDelay,
		retryBudget:  cfg.RetryBudget,
		retryBackoff: cfg.RetryBackoff,
		client:       client,
		logger:       logger,
		sleep:        sleep,
	}, nil
}

type pageEnvelope struct {
	Error      bool           `json:"error"`
	Message    string         `json:"message"`
	Data       []pageItem     `json:"data"`
	Pagination pagePagination `json:"pagination"`
}

type pageItem struct {
	Source sourceRecord `json:"_source"`
}

type pagePagination struct {
	NumPages int `json:"num_pages"`
}

type sourceRecord struct {
	ID              int64    `json:"id"`
	RulingNumber    string   `json:"numero_sentencia"`
	PublicationDate string   `json:"fecha_publicacion"`
	Plaintiff       string   `json:"nombre_demandante"`
	Defendant       string   `json:"nombre_demandado"`
	CaseFileNumber  string   `json:"numero_expediente"`
	Grounds         []string `json:"fundamentos"`
	FileURL         string   `json:"url_archivo"`
}

// Fetch walks the paginated source starting at req.StartPage and returns the
// normalized records accumulated before a stop condition ended the run.
// Failed pages are skipped; malformed or error-flagged payloads end the run
// cleanly with partial results.
func (f *Fetcher) Fetch(ctx context.Context, req Request) ([]rulings.Record, error) {
	page := req.StartPage
	if page < 1 {
		page = 1
	}

	var stopDate time.Time
	stopDateSet := false
	if req.StopDate != "" {
		parsed, err := time.Parse(dateLayout, req.StopDate)
		if err != nil {
			f.logger.Warn("invalid stop date, filter disabled",
				zap.String("stop_date", req.StopDate), zap.Error(err))
		} else {
			stopDate = parsed
			stopDateSet = true
		}
	}

	var records []rulings.Record
	pagesProcessed := 0

	for {
		if ctx.Err() != nil {
			f.logger.Info("fetch interrupted by shutdown", zap.Int("page", page))
			break
		}
		if req.MaxPages > 0 && pagesProcessed >= req.MaxPages {
			f.logger.Info("page limit reached for this run", zap.Int("max_pages", req.MaxPages))
			break
		}

		env, err := f.fetchPage(ctx, page)
		if errors.Is(err, ErrPageUnavailable) {
			f.logger.Error("skipping unavailable page", zap.Int("page", page), zap.Error(err))
			page++
			pagesProcessed++
			continue
		}
		if err != nil {
			f.logger.Error("fetch run terminated", zap.Int("page", page), zap.Error(err))
			break
		}

		if env.Error || len(env.Data) == 0 {
			f.logger.Warn("source reported no data",
				zap.Int("page", page), zap.String("message", env.Message))
			break
		}

		reachedStopDate := false
		for _, item := range env.Data {
			if stopDateSet {
				switch compareToStop(item.Source.PublicationDate, stopDate) {
				case stopOlder:
					// Everything after this item is older still; discard it
					// and end the run.
					f.logger.Info("stop date passed",
						zap.String("item_date", item.Source.PublicationDate),
						zap.String("stop_date", req.StopDate))
					reachedStopDate = true
				case stopBoundary:
					// The boundary record itself is kept; later items and
					// pages can only be older.
					f.logger.Info("stop date reached",
						zap.String("item_date", item.Source.PublicationDate),
						zap.String("stop_date", req.StopDate))
					records = append(records, normalize(item.Source))
					reachedStopDate = true
				}
				if reachedStopDate {
					break
				}
			}
			records = append(records, normalize(item.Source))
		}
		if reachedStopDate {
			break
		}

		if env.Pagination.NumPages > 0 && page >= env.Pagination.NumPages {
			f.logger.Info("all source pages fetched", zap.Int("num_pages", env.Pagination.NumPages))
			break
		}

		page++
		pagesProcessed++
		if f.pageDelay > 0 {
			f.sleep(ctx, f.pageDelay)
		}
	}

	f.logger.Info("fetch run finished", zap.Int("records", len(records)))
	return records, nil
}

// fetchPage issues one page request with a bounded retry loop. HTTP 429,
// 5xx and transport failures consume a retry slot and double the backoff.
// A non-retryable client error or an undecodable body is terminal for the run.
func (f *Fetcher) fetchPage(ctx context.Context, page int) (pageEnvelope, error) {
	backoff := f.retryBackoff
	var lastErr error

	for attempt := 1; attempt <= f.retryBudget; attempt++ {
		f.logger.Info("fetching page",
			zap.Int("page", page), zap.Int("attempt", attempt), zap.Int("budget", f.retryBudget))

		env, retryable, err := f.requestPage(ctx, page)
		if err == nil {
			return env, nil
		}
		if !retryable {
			return pageEnvelope{}, err
		}

		lastErr = err
		f.logger.Warn("page attempt failed",
			zap.Int("page", page), zap.Duration("backoff", backoff), zap.Error(err))
		if attempt < f.retryBudget {
			f.sleep(ctx, backoff)
			backoff *= 2
		}
	}

	return pageEnvelope{}, newFetchError(opFetchPage, "retries_exhausted",
		fmt.Errorf("%w: %v", ErrPageUnavailable, lastErr))
}

func (f *Fetcher) requestPage(ctx context.Context, page int) (pageEnvelope, bool, error) {
	requestCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodGet,
		fmt.Sprintf("%s?page=%d", f.sourceURL, page), nil)
	if err != nil {
		return pageEnvelope{}, false, newFetchError(opFetchPage, "build_request_failed", err)
	}
	for name, value := range sourceHeaders {
		httpReq.Header.Set(name, value)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return pageEnvelope{}, true, newFetchError(opFetchPage, "transport_failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return pageEnvelope{}, true, newFetchError(opFetchPage, "retryable_status",
			fmt.Errorf("http %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return pageEnvelope{}, false, newFetchError(opFetchPage, "unexpected_status",
			fmt.Errorf("http %d", resp.StatusCode))
	}

	var env pageEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return pageEnvelope{}, false, newFetchError(opFetchPage, "decode_failed", err)
	}
	return env, false, nil
}

func normalize(source sourceRecord) rulings.Record {
	grounds := source.Grounds
	if grounds == nil {
		grounds = []string{}
	}
	return rulings.Record{
		ID:              source.ID,
		RulingNumber:    orUnknown(source.RulingNumber),
		PublicationDate: orUnknown(source.PublicationDate),
		Plaintiff:       orUnknown(source.Plaintiff),
		Defendant:       orUnknown(source.Defendant),
		CaseFileNumber:  orUnknown(source.CaseFileNumber),
		Grounds:         grounds,
		FileURL:         orUnknown(source.FileURL),
	}
}

func orUnknown(value string) string {
	if value == "" {
		return rulings.UnknownField
	}
	return value
}

type stopComparison int

const (
	stopNewer stopComparison = iota
	stopBoundary
	stopOlder
)

func compareToStop(itemDate string, stopDate time.Time) stopComparison {
	if itemDate == "" || itemDate == rulings.UnknownField {
		return stopNewer
	}
	parsed, err := time.Parse(dateLayout, itemDate)
	if err != nil {
		return stopNewer
	}
	if parsed.Before(stopDate) {
		return stopOlder
	}
	if parsed.Equal(stopDate) {
		return stopBoundary
	}
	return stopNewer
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
