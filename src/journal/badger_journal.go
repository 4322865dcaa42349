package journal

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const entryPrefix = "entry"

func entryKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s_%020d", entryPrefix, seq))
}

// BadgerJournal writes entries to a badger database. The directory is wiped
// when the journal is opened, so entries never outlive the process that wrote
// them.
type BadgerJournal struct {
	db   *badger.DB
	path string

	mu   sync.Mutex
	last uint64
}

// NewBadgerJournal wipes path and opens a fresh database in it.
func NewBadgerJournal(path string, logger *logrus.Entry) (*BadgerJournal, error) {
	if err := os.RemoveAll(path); err != nil {
		return nil, errors.Wrapf(err, "wiping %s", path)
	}
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, errors.Wrapf(err, "creating %s", path)
	}

	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithTruncate(true)

	if logger != nil {
		opts = opts.WithLogger(logger.WithField("ns", "badger"))
	}

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening badger journal in %s", path)
	}

	return &BadgerJournal{
		db:   handle,
		path: path,
	}, nil
}

// Record implements the Journal interface.
func (j *BadgerJournal) Record(e Entry) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	e.Seq = j.last + 1
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	val, err := e.Marshal()
	if err != nil {
		return 0, err
	}

	// insert [entry_seq] => [entry bytes]
	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(e.Seq), val)
	})
	if err != nil {
		return 0, err
	}

	j.last = e.Seq
	return e.Seq, nil
}

// Entries implements the Journal interface.
func (j *BadgerJournal) Entries(from uint64, limit int) ([]Entry, error) {
	if from == 0 {
		from = 1
	}

	res := []Entry{}
	prefix := []byte(entryPrefix)

	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(entryKey(from)); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(res) == limit {
				break
			}

			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			var e Entry
			if err := e.Unmarshal(data); err != nil {
				return err
			}
			res = append(res, e)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return res, nil
}

// Last implements the Journal interface.
func (j *BadgerJournal) Last() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}

// Path returns the database directory.
func (j *BadgerJournal) Path() string {
	return j.path
}

// Close implements the Journal interface.
func (j *BadgerJournal) Close() error {
	return j.db.Close()
}
