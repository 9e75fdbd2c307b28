package store

import (
	"bytes"
	"io"
	"testing"

	"cci/internal/logging"
)

func quietLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{
		Format: logging.HumanFormat,
		Level:  logging.ErrorLevel,
		Output: io.Discard,
	})
}

func TestPutGetRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	blob := bytes.Repeat([]byte("scip-bytes "), 1000)
	entry, err := s.Put(PartitionPackages, PackageKey("auth_kit", "1.2.0"), "auth_kit", "1.2.0", blob)
	if err != nil {
		t.Fatal(err)
	}
	if entry.BlobPath == "" {
		t.Fatal("no blob path recorded")
	}

	got, meta, err := s.Get(PartitionPackages, "auth_kit-1.2.0")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, blob) {
		t.Error("decompressed blob differs from input")
	}
	if meta.Package != "auth_kit" || meta.Version != "1.2.0" {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestGetMissing(t *testing.T) {
	s, err := Open(t.TempDir(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, _, err := s.Get(PartitionSDK, "3.4.0"); err == nil {
		t.Fatal("missing entry returned without error")
	}
}

func TestListByPartition(t *testing.T) {
	s, err := Open(t.TempDir(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := s.Put(PartitionSDK, "3.4.0", "sdk", "3.4.0", []byte("a")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put(PartitionPackages, "x-1.0.0", "x", "1.0.0", []byte("b")); err != nil {
		t.Fatal(err)
	}

	all, err := s.List("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("List(all) = %d entries, want 2", len(all))
	}

	sdks, err := s.List(PartitionSDK)
	if err != nil {
		t.Fatal(err)
	}
	if len(sdks) != 1 || sdks[0].Key != "3.4.0" {
		t.Errorf("List(sdk) = %+v", sdks)
	}
}

func TestPutReplaces(t *testing.T) {
	s, err := Open(t.TempDir(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := s.Put(PartitionGit, "abc123", "pkg", "", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put(PartitionGit, "abc123", "pkg", "", []byte("v2")); err != nil {
		t.Fatal(err)
	}

	got, _, err := s.Get(PartitionGit, "abc123")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v2" {
		t.Errorf("blob = %q, want v2", got)
	}

	entries, err := s.List(PartitionGit)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("entries = %d, want 1 after replace", len(entries))
	}
}
