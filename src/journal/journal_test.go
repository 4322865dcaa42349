package journal

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/mosaicnetworks/tabsync/src/common"
	"github.com/mosaicnetworks/tabsync/src/envelope"
)

func journals(t *testing.T) map[string]Journal {
	bj, err := NewBadgerJournal(filepath.Join(t.TempDir(), "journal"), common.NewTestEntry(t, common.TestLogLevel))
	if err != nil {
		t.Fatal(err)
	}
	return map[string]Journal{
		"inmem":  NewInmemJournal(10),
		"badger": bj,
	}
}

func TestRecordAndEntries(t *testing.T) {
	gen := envelope.NewIDGenerator("")

	for name, j := range journals(t) {
		t.Run(name, func(t *testing.T) {
			defer j.Close()

			if j.Last() != 0 {
				t.Fatalf("Last should be 0, not %d", j.Last())
			}

			envs := []*envelope.Envelope{
				envelope.NewSync(gen, "store"),
				envelope.NewChange(gen, "store", map[string]interface{}{"count": 1}),
			}

			for i, env := range envs {
				seq, err := j.Record(Entry{Kind: Sent, Envelope: env})
				if err != nil {
					t.Fatal(err)
				}
				if seq != uint64(i+1) {
					t.Fatalf("seq should be %d, not %d", i+1, seq)
				}
			}

			if _, err := j.Record(Entry{Kind: Rejected, Origin: "https://evil.example", Detail: "malformed"}); err != nil {
				t.Fatal(err)
			}

			entries, err := j.Entries(0, 0)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 3 {
				t.Fatalf("entries should have 3 items, not %d", len(entries))
			}
			if entries[1].Envelope.ID != envs[1].ID {
				t.Fatalf("entries[1] should be %s, not %s", envs[1].ID, entries[1].Envelope.ID)
			}
			if !envelope.Equal(entries[1].Envelope.State, envs[1].State) {
				t.Fatalf("entries[1] state should be %v, not %v", envs[1].State, entries[1].Envelope.State)
			}
			if entries[2].Envelope != nil || entries[2].Detail != "malformed" || entries[2].Kind != Rejected {
				t.Fatalf("unexpected rejected entry %#v", entries[2])
			}
			if entries[0].Time.IsZero() {
				t.Fatal("entry time should be set")
			}

			entries, err = j.Entries(2, 1)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 1 || entries[0].Seq != 2 {
				t.Fatalf("Entries(2, 1) returned %#v", entries)
			}

			if j.Last() != 3 {
				t.Fatalf("Last should be 3, not %d", j.Last())
			}
		})
	}
}

func TestInmemJournalCapacity(t *testing.T) {
	j := NewInmemJournal(3)
	for i := 0; i < 5; i++ {
		j.Record(Entry{Kind: Accepted})
	}

	entries, _ := j.Entries(0, 0)
	if len(entries) != 3 {
		t.Fatalf("entries should have 3 items, not %d", len(entries))
	}
	if entries[0].Seq != 3 || entries[2].Seq != 5 {
		t.Fatalf("expected seqs 3..5, got %d..%d", entries[0].Seq, entries[2].Seq)
	}
}

func TestBadgerJournalWipesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal")

	if err := os.MkdirAll(path, 0700); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(path, "stale")
	if err := ioutil.WriteFile(stale, []byte("old"), 0600); err != nil {
		t.Fatal(err)
	}

	j, err := NewBadgerJournal(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("stale file should have been removed")
	}
	if j.Path() != path {
		t.Fatalf("Path should be %s, not %s", path, j.Path())
	}
}
