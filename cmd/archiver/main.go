package main

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/saviobatista/iss-tracker/internal/nats"
	"github.com/saviobatista/iss-tracker/internal/types"
)

const (
	dateLayout    = "2006-01-02"
	rotationCheck = time.Minute
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		cancel()
	}()

	outputDir, natsURL := parseEnvironment()
	if err := run(ctx, outputDir, natsURL); err != nil {
		log.Printf("Archiver failed: %v", err)
		os.Exit(1)
	}
}

// run archives every sample published on NATS until ctx is cancelled
func run(ctx context.Context, outputDir, natsURL string) error {
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	client, err := nats.New(natsURL)
	if err != nil {
		return fmt.Errorf("failed to create NATS client: %w", err)
	}

	archiver := NewArchiver(outputDir)
	if err := archiver.Start(ctx); err != nil {
		client.Close()
		return err
	}

	if err := client.SubscribeSamples(func(s *types.PublishedSample) {
		if err := archiver.WriteSample(s); err != nil {
			log.Printf("Failed to archive sample: %v", err)
		}
	}); err != nil {
		client.Close()
		_ = archiver.Close()
		return fmt.Errorf("failed to subscribe to samples: %w", err)
	}

	log.Printf("Archiving samples from %s into %s", natsURL, outputDir)
	<-ctx.Done()

	log.Println("Shutting down...")
	client.Close() // stop deliveries before the file goes away
	if err := archiver.Close(); err != nil {
		return err
	}
	log.Printf("Archived %d samples", archiver.Written())
	return nil
}

// parseEnvironment extracts environment variables with defaults
func parseEnvironment() (string, string) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Failed to load .env file: %v", err)
	}

	outputDir := os.Getenv("OUTPUT_DIR")
	if outputDir == "" {
		outputDir = "./archive"
	}

	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://nats:4222" // Docker service name
	}

	return outputDir, natsURL
}

// Archiver writes samples as JSON lines into one file per UTC day.
// Finished days are gzip-compressed.
type Archiver struct {
	outputDir string
	now       func() time.Time

	mu      sync.Mutex
	file    *os.File
	buf     *bufio.Writer
	date    string
	written uint64
}

// NewArchiver creates an archiver writing into outputDir
func NewArchiver(outputDir string) *Archiver {
	return &Archiver{
		outputDir: outputDir,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start compresses files left over from earlier days, opens today's file,
// and checks for day changes until ctx is done.
func (a *Archiver) Start(ctx context.Context) error {
	a.mu.Lock()
	today := a.today()
	a.compressStale(today)
	err := a.openLocked(today)
	a.mu.Unlock()
	if err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(rotationCheck)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := a.RotateIfNeeded(); err != nil {
					log.Printf("Failed to rotate archive: %v", err)
				}
			}
		}
	}()
	return nil
}

// WriteSample appends one sample to the current day's file
func (a *Archiver) WriteSample(s *types.PublishedSample) error {
	line, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal sample: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.rotateLocked(); err != nil {
		return err
	}
	if _, err := a.buf.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write sample: %w", err)
	}
	// a crash loses at most the sample being written
	if err := a.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush archive: %w", err)
	}
	a.written++
	return nil
}

// RotateIfNeeded switches to a new file when the UTC day has changed
func (a *Archiver) RotateIfNeeded() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rotateLocked()
}

// Close flushes and closes the current file. It is left uncompressed.
func (a *Archiver) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closeLocked()
}

// Written returns the number of samples archived
func (a *Archiver) Written() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.written
}

func (a *Archiver) today() string {
	return a.now().Format(dateLayout)
}

func (a *Archiver) rotateLocked() error {
	today := a.today()
	if a.file != nil && a.date == today {
		return nil
	}

	prev := a.date
	if err := a.closeLocked(); err != nil {
		return err
	}
	if prev != "" && prev != today {
		if err := compressFile(archivePath(a.outputDir, prev)); err != nil {
			log.Printf("Warning: Failed to compress archive for %s: %v", prev, err)
		}
	}
	return a.openLocked(today)
}

// compressStale gzips every uncompressed archive not belonging to today
func (a *Archiver) compressStale(today string) {
	matches, err := filepath.Glob(filepath.Join(a.outputDir, "iss_*.jsonl"))
	if err != nil {
		log.Printf("Warning: Failed to list archives: %v", err)
		return
	}
	current := archivePath(a.outputDir, today)
	for _, path := range matches {
		if path == current {
			continue
		}
		if err := compressFile(path); err != nil {
			log.Printf("Warning: Failed to compress %s: %v", path, err)
			continue
		}
		log.Printf("Compressed leftover archive %s", filepath.Base(path))
	}
}

func (a *Archiver) openLocked(date string) error {
	//nolint:gosec // path is built from the output directory and a date
	file, err := os.OpenFile(archivePath(a.outputDir, date), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open archive file: %w", err)
	}
	a.file = file
	a.buf = bufio.NewWriter(file)
	a.date = date
	return nil
}

func (a *Archiver) closeLocked() error {
	if a.file == nil {
		return nil
	}
	if err := a.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush archive: %w", err)
	}
	if err := a.file.Close(); err != nil {
		return fmt.Errorf("failed to close archive file: %w", err)
	}
	a.file = nil
	a.buf = nil
	return nil
}

// archivePath returns the file holding the samples of one day
func archivePath(dir, date string) string {
	return filepath.Join(dir, fmt.Sprintf("iss_%s.jsonl", date))
}

// compressFile gzips filePath into filePath.gz and removes the original
func compressFile(filePath string) error {
	//nolint:gosec // filePath is controlled by application logic
	src, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	//nolint:gosec // compressed path is controlled by application logic
	dst, err := os.Create(filePath + ".gz")
	if err != nil {
		return fmt.Errorf("failed to create compressed file: %w", err)
	}

	zw := gzip.NewWriter(dst)
	zw.Name = filepath.Base(filePath)
	if _, err := io.Copy(zw, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("failed to write compressed data: %w", err)
	}
	if err := zw.Close(); err != nil {
		_ = dst.Close()
		return fmt.Errorf("failed to finish compressed data: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to close compressed file: %w", err)
	}

	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to remove original file: %w", err)
	}
	return nil
}
