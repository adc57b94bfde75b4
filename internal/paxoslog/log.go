// Package paxoslog is the durable, on-disk half of a Paxos acceptor,
// backed by go.etcd.io/bbolt for crash-safe local storage.
//
// Three record kinds are persisted: n_h (highest proposal seen),
// (n_a, v_a) (highest accepted proposal and its value), and values[i]
// (decided value for instance i). Restart replays the bucket contents
// back into acceptor state.
package paxoslog

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketNH      = []byte("n_h")
	bucketNAVA    = []byte("n_a_v_a")
	bucketDecided = []byte("decided")
)

// Log is a durable per-node acceptor log. One Log is opened per
// acceptor; instances are keyed within it by their big-endian uint64
// instance id so bbolt's key ordering matches instance order.
type Log struct {
	db *bolt.DB
}

// Open creates or reopens the acceptor log at path.
func Open(path string) (*Log, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketNH, bucketNAVA, bucketDecided} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Log{db: db}, nil
}

// Close releases the underlying file.
func (l *Log) Close() error { return l.db.Close() }

func instanceKey(instance uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], instance)
	return b[:]
}

// ProposalRecord is the gob-encoded payload stored for n_h and for the
// (n_a, v_a) pair.
type ProposalRecord struct {
	Seq   uint64
	Node  string
	Value []byte // empty for a bare n_h record
}

func encodeRecord(r ProposalRecord) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := gob.NewEncoder(buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(b []byte) (ProposalRecord, error) {
	var r ProposalRecord
	err := gob.NewDecoder(bytes.NewReader(b)).Decode(&r)
	return r, err
}

// PutNH persists the highest proposal number seen for instance.
func (l *Log) PutNH(instance uint64, seq uint64, node string) error {
	rec, err := encodeRecord(ProposalRecord{Seq: seq, Node: node})
	if err != nil {
		return err
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNH).Put(instanceKey(instance), rec)
	})
}

// PutAccepted persists the highest accepted proposal and its value
// for instance.
func (l *Log) PutAccepted(instance uint64, seq uint64, node string, v []byte) error {
	rec, err := encodeRecord(ProposalRecord{Seq: seq, Node: node, Value: v})
	if err != nil {
		return err
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNAVA).Put(instanceKey(instance), rec)
	})
}

// PutDecided persists the decided value for instance. Decided
// instances are append-only and immutable once written.
func (l *Log) PutDecided(instance uint64, v []byte) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDecided).Put(instanceKey(instance), v)
	})
}

// ReplayedState is everything an acceptor needs to resume after restart.
type ReplayedState struct {
	NH         map[uint64]ProposalRecord
	Accepted   map[uint64]ProposalRecord
	Decided    map[uint64][]byte
	MaxDecided uint64
}

// Replay reads the full log back into memory; called once at acceptor
// startup.
func (l *Log) Replay() (ReplayedState, error) {
	out := ReplayedState{
		NH:       make(map[uint64]ProposalRecord),
		Accepted: make(map[uint64]ProposalRecord),
		Decided:  make(map[uint64][]byte),
	}
	err := l.db.View(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketNH).ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				return err
			}
			out.NH[binary.BigEndian.Uint64(k)] = rec
			return nil
		}); err != nil {
			return err
		}
		if err := tx.Bucket(bucketNAVA).ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				return err
			}
			out.Accepted[binary.BigEndian.Uint64(k)] = rec
			return nil
		}); err != nil {
			return err
		}
		return tx.Bucket(bucketDecided).ForEach(func(k, v []byte) error {
			instance := binary.BigEndian.Uint64(k)
			value := make([]byte, len(v))
			copy(value, v)
			out.Decided[instance] = value
			if instance > out.MaxDecided {
				out.MaxDecided = instance
			}
			return nil
		})
	})
	return out, err
}
