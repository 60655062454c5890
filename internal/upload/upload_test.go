package upload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestAccepted(t *testing.T) {
	tests := []struct {
		mime string
		want bool
	}{
		{"image/jpeg", true},
		{"image/png", true},
		{"image/jpg", true},
		{"IMAGE/PNG", true},
		{"image/png; charset=binary", true},
		{"image/gif", false},
		{"application/pdf", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := Accepted(tt.mime); got != tt.want {
			t.Errorf("Accepted(%q) = %v, want %v", tt.mime, got, tt.want)
		}
	}
}

func TestFilter(t *testing.T) {
	in := []Image{
		{Name: "a.png", MIMEType: "image/png"},
		{Name: "doc.pdf", MIMEType: "application/pdf"},
		{Name: "b.jpg", MIMEType: "image/jpeg"},
		{Name: "c.gif", MIMEType: "image/gif"},
	}
	got := Filter(in)
	want := []Image{
		{Name: "a.png", MIMEType: "image/png"},
		{Name: "b.jpg", MIMEType: "image/jpeg"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Filter mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterAllRejected(t *testing.T) {
	got := Filter([]Image{{Name: "x.pdf", MIMEType: "application/pdf"}})
	if len(got) != 0 {
		t.Errorf("len(Filter) = %d, want 0", len(got))
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	pngPath := filepath.Join(dir, "leaf.png")
	txtPath := filepath.Join(dir, "notes.txt")
	jpgPath := filepath.Join(dir, "noext")
	if err := os.WriteFile(pngPath, pngHeader, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(txtPath, []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(jpgPath, []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00"), 0o600); err != nil {
		t.Fatal(err)
	}

	imgs, err := Load(pngPath, txtPath, jpgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(imgs) != 3 {
		t.Fatalf("len = %d, want 3", len(imgs))
	}
	if imgs[0].Name != "leaf.png" || imgs[0].MIMEType != "image/png" {
		t.Errorf("imgs[0] = %q %q", imgs[0].Name, imgs[0].MIMEType)
	}
	if imgs[1].MIMEType != "text/plain" {
		t.Errorf("imgs[1].MIMEType = %q, want text/plain", imgs[1].MIMEType)
	}
	if imgs[2].MIMEType != "image/jpeg" {
		t.Errorf("imgs[2].MIMEType = %q, want image/jpeg", imgs[2].MIMEType)
	}
	if got := len(Filter(imgs)); got != 2 {
		t.Errorf("accepted = %d, want 2", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDetectTypeExtensionFallback(t *testing.T) {
	if got := DetectType("leaf.jpg", []byte{0x01, 0x02}); got != "image/jpeg" {
		t.Errorf("DetectType = %q, want image/jpeg", got)
	}
	if got := DetectType("blob", []byte{0x01, 0x02}); got != "application/octet-stream" {
		t.Errorf("DetectType = %q, want application/octet-stream", got)
	}
}
