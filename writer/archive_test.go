package writer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "tickflow/config"
	"tickflow/logger"
)

type fakeS3 struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	f.keys = append(f.keys, *params.Key)
	f.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

func TestFileDate(t *testing.T) {
	cases := []struct {
		name string
		want string
		ok   bool
	}{
		{"price.07.03.24.bin", "2024-03-07", true},
		{"maker_order_id.31.12.23.bin", "2023-12-31", true},
		{"price.bin", "", false},
		{"price.99.99.24.bin", "", false},
		{"notes.txt", "", false},
	}
	for _, tc := range cases {
		date, ok := fileDate(tc.name)
		if ok != tc.ok {
			t.Errorf("fileDate(%q) ok = %v, want %v", tc.name, ok, tc.ok)
			continue
		}
		if ok && date.Format("2006-01-02") != tc.want {
			t.Errorf("fileDate(%q) = %s, want %s", tc.name, date.Format("2006-01-02"), tc.want)
		}
	}
}

func newTestArchiver(t *testing.T, dataPath string) (*Archiver, *fakeS3) {
	t.Helper()
	cfg := &appconfig.Config{}
	cfg.Recorder.DataPath = dataPath
	cfg.Storage.S3.Bucket = "tickflow-archive"
	cfg.Storage.S3.Prefix = "ticks"
	fake := &fakeS3{}
	return &Archiver{
		config:   cfg,
		client:   fake,
		dataPath: dataPath,
		uploaded: make(map[string]struct{}),
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}, fake
}

func TestScanUploadsOnlyCompletedDays(t *testing.T) {
	dir := t.TempDir()
	mdDir := filepath.Join(dir, "coinbase", "BTC-USD", "MD")
	if err := os.MkdirAll(mdDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	now := time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC)
	for _, name := range []string{
		"price.01.06.24.bin", // completed day
		"price.02.06.24.bin", // today, still being written
		"readme.txt",         // not a column file
	} {
		if err := os.WriteFile(filepath.Join(mdDir, name), []byte{1, 2, 3, 4}, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	a, fake := newTestArchiver(t, dir)
	a.scanAndUpload(context.Background(), now)

	keys := fake.uploaded()
	if len(keys) != 1 {
		t.Fatalf("uploads = %v, want one", keys)
	}
	want := "ticks/coinbase/BTC-USD/MD/price.01.06.24.bin"
	if keys[0] != want {
		t.Errorf("key = %q, want %q", keys[0], want)
	}

	// A second scan must not re-upload.
	a.scanAndUpload(context.Background(), now)
	if len(fake.uploaded()) != 1 {
		t.Errorf("file re-uploaded: %v", fake.uploaded())
	}
}

func TestObjectKeyWithoutPrefix(t *testing.T) {
	dir := t.TempDir()
	a, _ := newTestArchiver(t, dir)
	a.config.Storage.S3.Prefix = ""

	key := a.objectKey(filepath.Join(dir, "kraken", "BTC-USD", "TRADES", "id.01.06.24.bin"))
	if key != "kraken/BTC-USD/TRADES/id.01.06.24.bin" {
		t.Errorf("key = %q", key)
	}
}
