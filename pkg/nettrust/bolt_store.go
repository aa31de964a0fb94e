package nettrust

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/skycoin/skywire-utilities/pkg/logging"
)

var json = jsoniter.ConfigFastest

// TRUSTBUCKET defines the key for the trust bucket
const TRUSTBUCKET = "trust"

// BoltStore implements Store on top of a bbolt file.
type BoltStore struct {
	db  *bolt.DB
	log logrus.FieldLogger
}

// NewBoltStore opens (or creates) the trust database at path.
func NewBoltStore(path string, log logrus.FieldLogger) (*BoltStore, error) {
	if log == nil {
		log = logging.MustGetLogger("trust_store")
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open trust db %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(TRUSTBUCKET))
		return err
	})
	if err != nil {
		if cErr := db.Close(); cErr != nil {
			log.WithError(cErr).Warn("Failed to close trust db.")
		}
		return nil, fmt.Errorf("failed to create trust bucket: %w", err)
	}

	log.WithField("path", path).Debug("Opened trust db.")

	return &BoltStore{db: db, log: log}, nil
}

// Trust implements Store.
func (s *BoltStore) Trust(n Network) (TrustLevel, bool, error) {
	var (
		rec Record
		ok  bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(TRUSTBUCKET))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(n.Key()))
		if v == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return Unknown, false, s.wrapErr(err)
	}
	if !ok {
		return Unknown, false, nil
	}
	return rec.Trust, true, nil
}

// SetTrust implements Store.
func (s *BoltStore) SetTrust(n Network, t TrustLevel) error {
	encoded, err := json.Marshal(Record{Network: n, Trust: t})
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(TRUSTBUCKET))
		if err != nil {
			return err
		}
		return b.Put([]byte(n.Key()), encoded)
	})
	return s.wrapErr(err)
}

// Networks implements Store.
func (s *BoltStore) Networks() ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(TRUSTBUCKET))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("could not decode trust of %s: %w", k, err)
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, s.wrapErr(err)
	}
	sortRecords(out)
	return out, nil
}

// Close closes the db
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) wrapErr(err error) error {
	if err == bolt.ErrDatabaseNotOpen {
		return ErrStoreClosed
	}
	return err
}
