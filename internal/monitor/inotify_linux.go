//go:build linux

package monitor

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

const inotifyEventHeaderSize = 16 // sizeof(struct inotify_event) sans the variable-length name

func newDefaultBackend() (backend, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize inotify: %w", err)
	}

	b := &inotifyBackend{
		fd:        fd,
		watchDirs: make(map[int32]string),
		evts:      make(chan Event, 64),
		errs:      make(chan error, 1),
		done:      make(chan struct{}),
	}

	file := os.NewFile(uintptr(fd), "inotify")
	b.file = file

	go b.run()

	return b, nil
}

type inotifyBackend struct {
	mu        sync.Mutex
	fd        int
	file      *os.File
	watchDirs map[int32]string // watch descriptor -> path

	evts chan Event
	errs chan error
	done chan struct{}
}

const watchMask = unix.IN_CREATE | unix.IN_DELETE | unix.IN_MODIFY | unix.IN_ATTRIB |
	unix.IN_MOVED_FROM | unix.IN_MOVED_TO | unix.IN_DELETE_SELF | unix.IN_MOVE_SELF

func (b *inotifyBackend) watch(path string) error {
	wd, err := unix.InotifyAddWatch(b.fd, path, watchMask)
	if err != nil {
		return fmt.Errorf("unable to watch %q: %w", path, err)
	}
	b.mu.Lock()
	b.watchDirs[int32(wd)] = path
	b.mu.Unlock()
	return nil
}

func (b *inotifyBackend) unwatch(path string) error {
	b.mu.Lock()
	var wd int32 = -1
	for k, v := range b.watchDirs {
		if v == path {
			wd = k
			break
		}
	}
	if wd != -1 {
		delete(b.watchDirs, wd)
	}
	b.mu.Unlock()

	if wd == -1 {
		return nil
	}
	if _, err := unix.InotifyRmWatch(b.fd, uint32(wd)); err != nil && err != unix.EINVAL {
		return fmt.Errorf("unable to unwatch %q: %w", path, err)
	}
	return nil
}

func (b *inotifyBackend) events() <-chan Event { return b.evts }
func (b *inotifyBackend) errors() <-chan error { return b.errs }

func (b *inotifyBackend) close() error {
	close(b.done)
	return b.file.Close()
}

func (b *inotifyBackend) run() {
	defer close(b.evts)

	buffer := make([]byte, 64*1024)
	var pendingMoveFrom string
	var pendingMoveCookie uint32
	havePendingMove := false

	for {
		n, err := b.file.Read(buffer)
		if err != nil {
			select {
			case <-b.done:
				return
			default:
			}
			if err == syscall.EAGAIN || err == syscall.EINTR {
				continue
			}
			select {
			case b.errs <- err:
			default:
			}
			return
		}

		offset := 0
		for offset+inotifyEventHeaderSize <= n {
			wd := int32(binary.LittleEndian.Uint32(buffer[offset : offset+4]))
			mask := binary.LittleEndian.Uint32(buffer[offset+4 : offset+8])
			cookie := binary.LittleEndian.Uint32(buffer[offset+8 : offset+12])
			nameLen := binary.LittleEndian.Uint32(buffer[offset+12 : offset+16])

			var name string
			if nameLen > 0 {
				nameBytes := buffer[offset+inotifyEventHeaderSize : offset+inotifyEventHeaderSize+int(nameLen)]
				for i, c := range nameBytes {
					if c == 0 {
						nameBytes = nameBytes[:i]
						break
					}
				}
				name = string(nameBytes)
			}
			offset += inotifyEventHeaderSize + int(nameLen)

			b.mu.Lock()
			dir, known := b.watchDirs[wd]
			b.mu.Unlock()
			if !known {
				continue
			}
			path := dir
			if name != "" {
				path = dir + "/" + name
			}
			isDir := mask&unix.IN_ISDIR != 0

			switch {
			case mask&unix.IN_CREATE != 0:
				b.deliver(Event{Kind: EventCreated, Path: path, IsDir: isDir})
			case mask&unix.IN_MODIFY != 0:
				b.deliver(Event{Kind: EventUpdated, Path: path, IsDir: isDir})
			case mask&unix.IN_ATTRIB != 0:
				b.deliver(Event{Kind: EventAttributeUpdated, Path: path, IsDir: isDir})
			case mask&unix.IN_DELETE != 0, mask&unix.IN_DELETE_SELF != 0:
				b.deliver(Event{Kind: EventDeleted, Path: path, IsDir: isDir})
			case mask&unix.IN_MOVED_FROM != 0:
				pendingMoveFrom = path
				pendingMoveCookie = cookie
				havePendingMove = true
			case mask&unix.IN_MOVED_TO != 0:
				if havePendingMove && cookie == pendingMoveCookie {
					b.deliver(Event{Kind: EventMoved, Path: pendingMoveFrom, Dest: path, IsDir: isDir, SrcWasMonitored: true})
					havePendingMove = false
				} else {
					b.deliver(Event{Kind: EventCreated, Path: path, IsDir: isDir})
				}
			case mask&unix.IN_MOVE_SELF != 0:
				b.deliver(Event{Kind: EventDeleted, Path: path, IsDir: isDir})
			}
		}
	}
}

func (b *inotifyBackend) deliver(ev Event) {
	select {
	case b.evts <- ev:
	case <-b.done:
	}
}
