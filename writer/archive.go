package writer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "tickflow/config"
	"tickflow/logger"
)

// s3API is the subset of the S3 client the archiver needs, kept narrow so
// tests can stub it.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver uploads completed day files to S3. A column file is complete once
// its date suffix is strictly before the current UTC day; files are never
// modified or removed locally.
type Archiver struct {
	config   *appconfig.Config
	client   s3API
	dataPath string
	uploaded map[string]struct{}
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
}

func NewArchiver(cfg *appconfig.Config) (*Archiver, error) {
	s3cfg := cfg.Storage.S3
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(s3cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s3cfg.AccessKeyID, s3cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Archiver{
		config:   cfg,
		client:   s3.NewFromConfig(awsCfg),
		dataPath: cfg.Recorder.DataPath,
		uploaded: make(map[string]struct{}),
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}, nil
}

func (a *Archiver) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("archiver already running")
	}
	a.running = true
	a.mu.Unlock()

	log := a.log.WithComponent("archiver")
	log.WithFields(logger.Fields{
		"bucket":        a.config.Storage.S3.Bucket,
		"prefix":        a.config.Storage.S3.Prefix,
		"scan_interval": a.config.Storage.S3.ScanInterval.String(),
	}).Info("starting archiver")

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.config.Storage.S3.ScanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.scanAndUpload(ctx, time.Now().UTC())
			}
		}
	}()

	return nil
}

func (a *Archiver) Stop() {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
	a.wg.Wait()
	a.log.WithComponent("archiver").Info("archiver stopped")
}

var binFileRegexp = regexp.MustCompile(`\.(\d{2})\.(\d{2})\.(\d{2})\.bin$`)

// fileDate extracts the day a column file belongs to from its name.
func fileDate(name string) (time.Time, bool) {
	m := binFileRegexp.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	date := time.Date(2000+year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if date.Day() != day || int(date.Month()) != month {
		return time.Time{}, false
	}
	return date, true
}

func (a *Archiver) scanAndUpload(ctx context.Context, now time.Time) {
	log := a.log.WithComponent("archiver")
	today := now.Truncate(24 * time.Hour)

	err := filepath.WalkDir(a.dataPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		date, ok := fileDate(d.Name())
		if !ok || !date.Before(today) {
			return nil
		}

		a.mu.RLock()
		_, done := a.uploaded[path]
		a.mu.RUnlock()
		if done {
			return nil
		}

		if err := a.upload(ctx, path); err != nil {
			log.WithError(err).WithFields(logger.Fields{"file": path}).Warn("upload failed, will retry on next scan")
			return nil
		}

		a.mu.Lock()
		a.uploaded[path] = struct{}{}
		a.mu.Unlock()
		return nil
	})
	if err != nil && ctx.Err() == nil {
		log.WithError(err).Warn("archive scan failed")
	}
}

func (a *Archiver) upload(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	key := a.objectKey(path)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.config.Storage.S3.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	logger.IncrementArchiveUpload(info.Size())
	a.log.WithComponent("archiver").WithFields(logger.Fields{
		"file":  path,
		"key":   key,
		"bytes": info.Size(),
	}).Info("archived day file")
	return nil
}

// objectKey mirrors the local layout under the configured prefix.
func (a *Archiver) objectKey(path string) string {
	rel, err := filepath.Rel(a.dataPath, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = filepath.ToSlash(rel)
	prefix := strings.Trim(a.config.Storage.S3.Prefix, "/")
	if prefix == "" {
		return rel
	}
	return prefix + "/" + rel
}
