// Package archive exports the ledger's event log to S3-compatible object
// storage as JSON Lines, one object per run covering the entries appended
// since the previous run.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/jmerrifield20/agriledger/internal/trustledger"
)

// Uploader is the subset of *s3.Client the archiver uses.
type Uploader interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

const keyPrefix = "ledger-"

// Config describes the destination bucket.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional; S3-compatible endpoint such as MinIO
	Prefix          string
	PathStyle       bool
	AccessKeyID     string // optional; default credential chain otherwise
	SecretAccessKey string
	HTTPClient      *http.Client // optional
}

// NewS3Client builds an S3 client from cfg.
func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
	}), nil
}

// Result describes one archive run.
type Result struct {
	Key       string `json:"key,omitempty"`
	FromIndex int    `json:"from_index"`
	ToIndex   int    `json:"to_index"`
	Entries   int    `json:"entries"`
	Root      string `json:"root"`
}

// Archiver uploads new event-log entries on each Run.
type Archiver struct {
	log    trustledger.Ledger
	client Uploader
	bucket string
	prefix string
	logger *zap.Logger

	mu      sync.Mutex // one run at a time; guards next and resumed
	next    int
	resumed bool
}

// New returns an Archiver writing to cfg.Bucket under cfg.Prefix.
func New(log trustledger.Ledger, client Uploader, cfg Config, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		log:    log,
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger,
	}
}

// Run uploads every entry appended since the last successful run. It is a
// no-op when nothing is new.
func (a *Archiver) Run(ctx context.Context) (Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.resumed {
		if err := a.resume(ctx); err != nil {
			return Result{}, err
		}
	}

	entries, err := a.log.Entries(ctx, a.next, 0)
	if err != nil {
		return Result{}, fmt.Errorf("read event log: %w", err)
	}
	if len(entries) == 0 {
		return Result{FromIndex: a.next, ToIndex: a.next - 1}, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return Result{}, fmt.Errorf("encode entry %d: %w", e.Index, err)
		}
	}

	first, last := entries[0], entries[len(entries)-1]
	res := Result{
		Key:       path.Join(a.prefix, fmt.Sprintf(keyPrefix+"%010d-%010d.jsonl", first.Index, last.Index)),
		FromIndex: first.Index,
		ToIndex:   last.Index,
		Entries:   len(entries),
		Root:      last.Hash,
	}

	if _, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(res.Key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
		Metadata: map[string]string{
			"ledger-root":       res.Root,
			"ledger-from-index": fmt.Sprint(res.FromIndex),
			"ledger-to-index":   fmt.Sprint(res.ToIndex),
		},
	}); err != nil {
		return Result{}, fmt.Errorf("upload %s: %w", res.Key, err)
	}
	a.next = last.Index + 1

	a.logger.Info("event log archived",
		zap.String("bucket", a.bucket),
		zap.String("key", res.Key),
		zap.Int("entries", res.Entries),
		zap.String("root", res.Root),
	)
	return res, nil
}

// resume seeds the watermark from the highest index already archived under
// the prefix. A watermark past the end of the log means the log was reset,
// and archiving restarts from the genesis entry.
func (a *Archiver) resume(ctx context.Context) error {
	next := 0
	p := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(path.Join(a.prefix, keyPrefix)),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list archived objects: %w", err)
		}
		for _, obj := range page.Contents {
			if to, ok := archivedTo(aws.ToString(obj.Key)); ok && to+1 > next {
				next = to + 1
			}
		}
	}

	n, err := a.log.Len(ctx)
	if err != nil {
		return fmt.Errorf("read event log length: %w", err)
	}
	if next > n {
		a.logger.Warn("archive is ahead of the event log; archiving from genesis",
			zap.Int("archived_through", next-1),
			zap.Int("log_entries", n),
		)
		next = 0
	}
	a.next = next
	a.resumed = true
	if next > 0 {
		a.logger.Info("archive resumed", zap.Int("from_index", next))
	}
	return nil
}

// archivedTo parses the last index out of a ledger-<from>-<to>.jsonl key.
func archivedTo(key string) (int, bool) {
	name, ok := strings.CutPrefix(path.Base(key), keyPrefix)
	if !ok {
		return 0, false
	}
	name, ok = strings.CutSuffix(name, ".jsonl")
	if !ok {
		return 0, false
	}
	_, to, ok := strings.Cut(name, "-")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(to)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Start runs the archiver every interval until ctx is cancelled.
func (a *Archiver) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := a.Run(ctx); err != nil {
					a.logger.Warn("periodic archive failed", zap.Error(err))
				}
			}
		}
	}()
}
