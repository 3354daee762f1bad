package platform

import (
	"bytes"
	"context"
	"testing"
)

func TestMemfilePageSourceDeterministicPFNs(t *testing.T) {
	m := NewMemfilePageSource()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		p, err := m.AllocOnePage(ctx)
		if err != nil {
			t.Fatalf("AllocOnePage() #%d error = %v", i, err)
		}
		if p.PFN != uint64(i) {
			t.Fatalf("AllocOnePage() #%d PFN = %d, want %d", i, p.PFN, i)
		}
	}
}

func TestMemfilePageSourceReadPageRoundTrips(t *testing.T) {
	m := NewMemfilePageSource()
	ctx := context.Background()

	p, err := m.AllocOnePage(ctx)
	if err != nil {
		t.Fatalf("AllocOnePage() error = %v", err)
	}
	for i := range p.Bytes {
		p.Bytes[i] = 0xAB
	}
	if _, err := m.file.WriteAt(p.Bytes, int64(p.PFN)*int64(len(p.Bytes))); err != nil {
		t.Fatalf("WriteAt() error = %v", err)
	}

	got, err := m.ReadPage(p)
	if err != nil {
		t.Fatalf("ReadPage() error = %v", err)
	}
	if !bytes.Equal(got, p.Bytes) {
		t.Fatal("ReadPage() content does not match what was written")
	}
}
