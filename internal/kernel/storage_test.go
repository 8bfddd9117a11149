package kernel_test

import (
	"bytes"
	"testing"

	"github.com/rv64vm/sandbox/internal/kernel"
)

func TestCreateFindWriteReadFile(t *testing.T) {
	s := kernel.NewStorage()

	idx := s.CreateFile("hello.txt")
	if idx == 0 {
		t.Fatalf("create failed")
	}

	if got := s.FindFile("hello.txt"); got != idx {
		t.Fatalf("find = %d, want %d", got, idx)
	}

	s.Write(idx, []byte("hello"))

	buf := make([]byte, 16)

	n, _ := s.Read(idx, buf)
	if !bytes.Equal(buf[:n], []byte("hello")) {
		t.Fatalf("read = %q, want hello", buf[:n])
	}
}

func TestCreateFileDuplicateNameFails(t *testing.T) {
	s := kernel.NewStorage()

	s.CreateFile("a")

	if idx := s.CreateFile("a"); idx != 0 {
		t.Fatalf("duplicate create = %d, want 0", idx)
	}
}

func TestDeleteFileMakesItAbsent(t *testing.T) {
	s := kernel.NewStorage()

	idx := s.CreateFile("a")
	s.Delete(idx)

	if got := s.FindFile("a"); got != 0 {
		t.Fatalf("find after delete = %d, want 0", got)
	}
}

func TestWriteTruncatesToMaxFileSize(t *testing.T) {
	s := kernel.NewStorage()
	idx := s.CreateFile("big")

	data := make([]byte, kernel.MaxFileSize+100)
	s.Write(idx, data)

	buf := make([]byte, kernel.MaxFileSize+100)

	n, _ := s.Read(idx, buf)
	if n != kernel.MaxFileSize {
		t.Fatalf("read length = %d, want %d", n, kernel.MaxFileSize)
	}
}

func TestSnapshotOfWriteIsFrozen(t *testing.T) {
	s := kernel.NewStorage()
	idx := s.CreateFile("a")

	s.Write(idx, []byte("first"))

	snap := *s
	s.Write(idx, []byte("second"))

	buf := make([]byte, 16)
	n, _ := snap.Read(idx, buf)

	if string(buf[:n]) != "first" {
		t.Fatalf("snapshot's view = %q, want %q (must not alias the live Write)", buf[:n], "first")
	}
}

func TestDirectoryChildren(t *testing.T) {
	s := kernel.NewStorage()

	dir := s.CreateDirectory("docs")
	f := s.CreateFile("notes.txt")

	if kind := s.AddChild(dir, f); kind.String() != "success" {
		t.Fatalf("add child = %v, want success", kind)
	}

	children := s.Children(dir)
	if len(children) != 1 || children[0] != f {
		t.Fatalf("children = %v, want [%d]", children, f)
	}
}
