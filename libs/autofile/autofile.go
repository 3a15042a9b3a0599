package autofile

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

/* AutoFile usage

// Create/Append to ./trace.log, rotating at 64MiB and keeping 4 old files
af, err := OpenAutoFile("trace.log", WithRotation(64<<20, 4))
if err != nil {
	panic(err)
}

// During this time, the file may be moved e.g. by logRotate, or rotated by
// the AutoFile itself once it grows past its size limit.
for i := 0; i < 60; i++ {
	af.Write([]byte(fmt.Sprintf("LOOP(%v)\n", i)))
	time.Sleep(time.Second)
}

err = af.Close()
*/

const (
	autoFileClosePeriod = 1000 * time.Millisecond
	autoFilePerms       = os.FileMode(0600)
)

// AutoFile automatically closes and re-opens file for writing. The file is
// automatically setup to close itself every 1s and upon receiving SIGHUP.
//
// This is useful for using a log file with the logrotate tool. With
// WithRotation the AutoFile also rotates itself: once the file reaches the
// size limit it is renamed to Path.1 (older files shift to Path.2 ...) and
// a fresh file is started.
type AutoFile struct {
	Path string

	maxSize  int64
	maxFiles int

	closeTicker      *time.Ticker
	closeTickerStopc chan struct{} // closed when closeTicker is stopped
	hupc             chan os.Signal

	mtx  sync.Mutex
	file *os.File
	size int64
}

// Option configures an AutoFile.
type Option func(*AutoFile)

// WithRotation rotates the file once it reaches maxSize bytes, keeping at
// most maxFiles rotated files. A maxSize of zero disables rotation.
func WithRotation(maxSize int64, maxFiles int) Option {
	return func(af *AutoFile) {
		af.maxSize = maxSize
		af.maxFiles = maxFiles
	}
}

// OpenAutoFile creates an AutoFile in the path. If there is an error, it
// will be of type *PathError.
func OpenAutoFile(path string, opts ...Option) (*AutoFile, error) {
	var err error
	path, err = filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	af := &AutoFile{
		Path:             path,
		closeTicker:      time.NewTicker(autoFileClosePeriod),
		closeTickerStopc: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(af)
	}
	if err := af.openFile(); err != nil {
		af.Close()
		return nil, err
	}

	// Close file on SIGHUP.
	af.hupc = make(chan os.Signal, 1)
	signal.Notify(af.hupc, syscall.SIGHUP)
	go func() {
		for range af.hupc {
			_ = af.closeFile()
		}
	}()

	go af.closeFileRoutine()

	return af, nil
}

// Close shuts down the closing goroutine, SIGHUP handler and closes the
// AutoFile.
func (af *AutoFile) Close() error {
	af.closeTicker.Stop()
	close(af.closeTickerStopc)
	if af.hupc != nil {
		signal.Stop(af.hupc)
		close(af.hupc)
	}
	return af.closeFile()
}

func (af *AutoFile) closeFileRoutine() {
	for {
		select {
		case <-af.closeTicker.C:
			_ = af.closeFile()
		case <-af.closeTickerStopc:
			return
		}
	}
}

func (af *AutoFile) closeFile() (err error) {
	af.mtx.Lock()
	defer af.mtx.Unlock()

	file := af.file
	if file == nil {
		return nil
	}

	af.file = nil
	return file.Close()
}

// Write writes len(b) bytes to the AutoFile. It returns the number of bytes
// written and an error, if any. Write returns a non-nil error when n !=
// len(b).
// Opens AutoFile if needed, and rotates it first if b would push it past
// the size limit.
func (af *AutoFile) Write(b []byte) (n int, err error) {
	af.mtx.Lock()
	defer af.mtx.Unlock()

	if af.file == nil {
		if err = af.openFile(); err != nil {
			return
		}
	}

	if af.maxSize > 0 && af.size > 0 && af.size+int64(len(b)) > af.maxSize {
		if err = af.rotate(); err != nil {
			return
		}
	}

	n, err = af.file.Write(b)
	af.size += int64(n)
	return
}

// Sync commits the current contents of the file to stable storage.
// Opens AutoFile if needed.
func (af *AutoFile) Sync() error {
	af.mtx.Lock()
	defer af.mtx.Unlock()

	if af.file == nil {
		if err := af.openFile(); err != nil {
			return err
		}
	}
	return af.file.Sync()
}

func (af *AutoFile) openFile() error {
	file, err := os.OpenFile(af.Path, os.O_RDWR|os.O_CREATE|os.O_APPEND, autoFilePerms)
	if err != nil {
		return err
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	af.file = file
	af.size = stat.Size()
	return nil
}

// rotate must be called with mtx held and the file open.
func (af *AutoFile) rotate() error {
	if err := af.file.Close(); err != nil {
		return err
	}
	af.file = nil

	if af.maxFiles > 0 {
		_ = os.Remove(af.rotatedPath(af.maxFiles))
		for i := af.maxFiles - 1; i >= 1; i-- {
			if err := os.Rename(af.rotatedPath(i), af.rotatedPath(i+1)); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		if err := os.Rename(af.Path, af.rotatedPath(1)); err != nil {
			return err
		}
	} else if err := os.Truncate(af.Path, 0); err != nil {
		return err
	}

	return af.openFile()
}

func (af *AutoFile) rotatedPath(i int) string {
	return fmt.Sprintf("%s.%d", af.Path, i)
}

// Size returns the size of the AutoFile. It returns -1 and an error if fails
// get stats or open file.
// Opens AutoFile if needed.
func (af *AutoFile) Size() (int64, error) {
	af.mtx.Lock()
	defer af.mtx.Unlock()

	if af.file == nil {
		if err := af.openFile(); err != nil {
			return -1, err
		}
	}

	stat, err := af.file.Stat()
	if err != nil {
		return -1, err
	}
	return stat.Size(), nil
}
