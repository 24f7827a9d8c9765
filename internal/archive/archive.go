// Package archive persists imported blocks outside the primary database,
// spec.md §6's "Persisted artefacts outside the DB": an append-only hex
// dump (blockchain.BlockRecorder), optional S3 upload of rotated dump
// files, and a directory watcher that triggers the upload once a file
// is rotated out from under the writer.
package archive

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/rjeczalik/notify"

	"github.com/relayix/chaincore/blockchain/types"
	"github.com/relayix/chaincore/log"
	"github.com/relayix/chaincore/ser/rlp"
)

var logger = log.NewModuleLogger(log.Archive)

// Recorder appends every block it's given, RLP-encoded and hex-dumped
// one line per block, to a rotating file under dir. It satisfies
// blockchain.BlockRecorder.
type Recorder struct {
	mu      sync.Mutex
	dir     string
	file    *os.File
	maxSize int64
	written int64
	seq     int
}

// NewRecorder opens (creating) the first dump file under dir, rotating
// to a new file once the current one exceeds maxSizeBytes.
func NewRecorder(dir string, maxSizeBytes int64) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("archive: mkdir %s: %w", dir, err)
	}
	r := &Recorder{dir: dir, maxSize: maxSizeBytes}
	if err := r.rotate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recorder) rotate() error {
	if r.file != nil {
		r.file.Close()
	}
	name := filepath.Join(r.dir, fmt.Sprintf("blocks-%04d.hex", r.seq))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", name, err)
	}
	r.file = f
	r.written = 0
	r.seq++
	return nil
}

// Record hex-dumps block's RLP encoding as one line, rotating the
// backing file first if it has grown past maxSize.
func (r *Recorder) Record(block *types.Block) {
	enc, err := rlp.EncodeToBytes(&struct {
		Header *types.Header
		Body   *types.Body
	}{block.Header(), block.Body()})
	if err != nil {
		logger.Error("failed to encode block for archive", "number", block.NumberU64(), "err", err)
		return
	}
	line := hex.EncodeToString(enc) + "\n"

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.written > 0 && r.written+int64(len(line)) > r.maxSize {
		if err := r.rotate(); err != nil {
			logger.Error("failed to rotate archive file", "err", err)
			return
		}
	}
	n, err := r.file.WriteString(line)
	if err != nil {
		logger.Error("failed to write archive line", "number", block.NumberU64(), "err", err)
		return
	}
	r.written += int64(n)
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}

// Uploader pushes rotated dump files to S3 once the directory watcher
// observes them being closed for writing (a rename/create event for a
// new file implies the previous one is done).
type Uploader struct {
	bucket   string
	prefix   string
	uploader *s3manager.Uploader
}

// NewUploader builds an S3 uploader from the default AWS credential
// chain, the same idiom every aws-sdk-go consumer in the ecosystem uses.
func NewUploader(bucket, prefix, region string) (*Uploader, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("archive: aws session: %w", err)
	}
	return &Uploader{bucket: bucket, prefix: prefix, uploader: s3manager.NewUploader(sess)}, nil
}

func (u *Uploader) Upload(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", path, err)
	}
	defer f.Close()

	key := filepath.Join(u.prefix, filepath.Base(path))
	_, err = u.uploader.Upload(&s3manager.UploadInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	return err
}

// WatchAndUpload watches dir for rotated-out dump files (create events,
// since Recorder never modifies a file once it has rotated away from
// it) and uploads each new file once it stops being the active target.
// Grounded on rjeczalik/notify's directory-watch idiom; stop closes the
// watch.
func WatchAndUpload(dir string, uploader *Uploader, activeFile func() string) (stop func(), err error) {
	events := make(chan notify.EventInfo, 16)
	if err := notify.Watch(filepath.Join(dir, "..."), events, notify.Create); err != nil {
		return nil, fmt.Errorf("archive: watch %s: %w", dir, err)
	}

	done := make(chan struct{})
	go func() {
		// pending holds created files that were still the active target
		// when last checked; each event re-checks them.
		var pending []string
		for {
			select {
			case ev := <-events:
				pending = append(pending, ev.Path())
				active := activeFile()
				kept := pending[:0]
				for _, path := range pending {
					if path == active {
						kept = append(kept, path)
						continue
					}
					if err := uploader.Upload(path); err != nil {
						logger.Error("failed to upload archive file", "path", path, "err", err)
					}
				}
				pending = kept
			case <-done:
				notify.Stop(events)
				return
			}
		}
	}()

	return func() { close(done) }, nil
}
