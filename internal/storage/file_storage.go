// internal/storage/file_storage.go
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileStorage provides JSON document persistence under a base
// directory, with per-file locking, atomic writes, and a small
// read cache.
type FileStorage struct {
	BaseDir string

	fileLocks sync.Map // full path -> *sync.RWMutex

	cache        map[string]*cacheEntry
	cacheMutex   sync.RWMutex
	cacheExpiry  time.Duration
	maxCacheSize int
}

type cacheEntry struct {
	data      []byte
	timestamp time.Time
}

// NewFileStorage creates the storage service, ensuring the base
// directory exists
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &FileStorage{
		BaseDir:      baseDir,
		cache:        make(map[string]*cacheEntry),
		cacheExpiry:  5 * time.Minute,
		maxCacheSize: 100,
	}, nil
}

func (fs *FileStorage) getFileLock(fullPath string) *sync.RWMutex {
	value, _ := fs.fileLocks.LoadOrStore(fullPath, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

// SaveFile writes raw content atomically: a temp file is written
// first and renamed into place so readers never observe a torn file.
func (fs *FileStorage) SaveFile(dirPath, filename string, content []byte) error {
	fullDirPath := filepath.Join(fs.BaseDir, dirPath)
	fullPath := filepath.Join(fullDirPath, filename)

	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(fullDirPath, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tempPath := fullPath + ".tmp"
	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("replacing file: %w", err)
	}

	fs.invalidateCache(fullPath)
	return nil
}

// SaveJSON marshals a document with indentation and saves it
func (fs *FileStorage) SaveJSON(dirPath, filename string, data interface{}) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return fs.SaveFile(dirPath, filename, content)
}

// LoadJSON reads and unmarshals a document, going through the cache
func (fs *FileStorage) LoadJSON(dirPath, filename string, target interface{}) error {
	fullPath := filepath.Join(fs.BaseDir, dirPath, filename)

	if content, ok := fs.readCache(fullPath); ok {
		return json.Unmarshal(content, target)
	}

	lock := fs.getFileLock(fullPath)
	lock.RLock()
	content, err := os.ReadFile(fullPath)
	lock.RUnlock()
	if err != nil {
		return fmt.Errorf("reading %s: %w", filename, err)
	}

	fs.writeCache(fullPath, content)
	return json.Unmarshal(content, target)
}

// Exists reports whether a document is present
func (fs *FileStorage) Exists(dirPath, filename string) bool {
	fullPath := filepath.Join(fs.BaseDir, dirPath, filename)
	_, err := os.Stat(fullPath)
	return err == nil
}

// DeleteFile removes a document; missing files are not an error
func (fs *FileStorage) DeleteFile(dirPath, filename string) error {
	fullPath := filepath.Join(fs.BaseDir, dirPath, filename)

	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting %s: %w", filename, err)
	}

	fs.invalidateCache(fullPath)
	return nil
}

// ListFiles returns the names of documents in a directory matching
// an extension (e.g. ".json"), sorted for deterministic listings.
func (fs *FileStorage) ListFiles(dirPath, extension string) ([]string, error) {
	fullDirPath := filepath.Join(fs.BaseDir, dirPath)

	entries, err := os.ReadDir(fullDirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("listing %s: %w", dirPath, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), extension) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// FileSize reports a document's size in bytes
func (fs *FileStorage) FileSize(dirPath, filename string) (int64, error) {
	info, err := os.Stat(filepath.Join(fs.BaseDir, dirPath, filename))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// ------------------------------------------------
// Read cache
// ------------------------------------------------

func (fs *FileStorage) readCache(fullPath string) ([]byte, bool) {
	fs.cacheMutex.RLock()
	defer fs.cacheMutex.RUnlock()

	entry, ok := fs.cache[fullPath]
	if !ok || time.Since(entry.timestamp) > fs.cacheExpiry {
		return nil, false
	}
	return entry.data, true
}

func (fs *FileStorage) writeCache(fullPath string, content []byte) {
	fs.cacheMutex.Lock()
	defer fs.cacheMutex.Unlock()

	if len(fs.cache) >= fs.maxCacheSize {
		fs.evictOldestLocked()
	}
	fs.cache[fullPath] = &cacheEntry{data: content, timestamp: time.Now()}
}

func (fs *FileStorage) invalidateCache(fullPath string) {
	fs.cacheMutex.Lock()
	defer fs.cacheMutex.Unlock()
	delete(fs.cache, fullPath)
}

func (fs *FileStorage) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	for key, entry := range fs.cache {
		if oldestKey == "" || entry.timestamp.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.timestamp
		}
	}
	if oldestKey != "" {
		delete(fs.cache, oldestKey)
	}
}
