package kb

import (
	"container/heap"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Store provides brute-force nearest-neighbor search over catalog records
// backed by SQLite. The record set is loaded once during warmup and treated
// as an immutable snapshot; rebuilds replace it atomically.
//
// When the record count exceeds ~100K and query latency becomes noticeable,
// consider an ANN-capable backend. Use ExportAll() to extract records for
// migration.
type Store struct {
	db *sql.DB
}

// NewStore wraps an existing *sql.DB for KB operations.
// The kb_records table must already exist (created via migrations).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert adds records to the kb_records table.
func (s *Store) Insert(records []Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}
	if err := insertTx(tx, records); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ReplaceAll swaps the full record snapshot in a single transaction, so
// concurrent readers never observe a half-built knowledge base.
func (s *Store) ReplaceAll(records []Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning replace transaction: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM kb_records"); err != nil {
		tx.Rollback()
		return fmt.Errorf("clearing kb_records: %w", err)
	}
	if err := insertTx(tx, records); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func insertTx(tx *sql.Tx, records []Record) error {
	stmt, err := tx.Prepare(`
		INSERT INTO kb_records (id, title, body_text, type, keywords, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		blob := encodeFloat32s(r.Embedding)
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		keywords, err := json.Marshal(r.Keywords)
		if err != nil {
			return fmt.Errorf("marshalling keywords for %s: %w", r.ID, err)
		}
		if _, err := stmt.Exec(r.ID, r.Title, r.BodyText, r.Type, string(keywords), blob, createdAt.Format(time.RFC3339)); err != nil {
			return fmt.Errorf("inserting record %s: %w", r.ID, err)
		}
	}
	return nil
}

// seqDist holds only the rowid and distance during the scan phase.
// Full record details are fetched only for the k winners.
type seqDist struct {
	Seq      int64
	Distance float32
}

// NearestNeighbors scans all records and returns the k nearest by negated
// inner product over normalized embeddings. Results are ordered by distance
// ascending, ties broken by insertion order.
func (s *Store) NearestNeighbors(vector []float32, k int) ([]Neighbor, error) {
	if k < 1 {
		k = 1
	}

	// Phase 1: scan only rowid + embedding to find the k nearest.
	rows, err := s.db.Query(`SELECT rowid, embedding FROM kb_records`)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	h := &seqDistHeap{}
	heap.Init(h)

	// Reusable buffer for decoding embeddings to avoid per-row allocations.
	var buf []float32

	for rows.Next() {
		var seq int64
		var blob []byte
		if err := rows.Scan(&seq, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for rowid %d: %w", seq, err)
		}

		dist := -cosine(vector, buf, queryNorm)
		if h.Len() < k {
			heap.Push(h, seqDist{Seq: seq, Distance: dist})
		} else if dist < (*h)[0].Distance {
			(*h)[0] = seqDist{Seq: seq, Distance: dist}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	if h.Len() == 0 {
		return nil, nil
	}

	// Phase 2: fetch full records only for the winning rowids.
	seqs := make([]int64, h.Len())
	dists := make(map[int64]float32, h.Len())
	for i := len(seqs) - 1; i >= 0; i-- {
		item := heap.Pop(h).(seqDist)
		seqs[i] = item.Seq
		dists[item.Seq] = item.Distance
	}

	queryArgs := make([]interface{}, len(seqs))
	for i, seq := range seqs {
		queryArgs[i] = seq
	}
	fullQuery := `SELECT rowid, id, title, body_text, type, keywords, embedding, created_at
		FROM kb_records WHERE rowid IN (?` + strings.Repeat(",?", len(seqs)-1) + `)`

	fullRows, err := s.db.Query(fullQuery, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("fetching nearest records: %w", err)
	}
	defer fullRows.Close()

	var results []Neighbor
	for fullRows.Next() {
		r, err := scanRecord(fullRows)
		if err != nil {
			return nil, err
		}
		results = append(results, Neighbor{Record: r, Distance: dists[r.Seq]})
	}
	if err := fullRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nearest records: %w", err)
	}

	// The IN query returns rowid order; re-sort by distance ascending with
	// insertion order as tie-break. Insertion sort is fine at k elements.
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && less(results[j], results[j-1]); j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}

	return results, nil
}

func less(a, b Neighbor) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Seq < b.Seq
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(rows rowScanner) (Record, error) {
	var r Record
	var keywords string
	var blob []byte
	var createdAt string
	if err := rows.Scan(&r.Seq, &r.ID, &r.Title, &r.BodyText, &r.Type, &keywords, &blob, &createdAt); err != nil {
		return Record{}, fmt.Errorf("scanning record: %w", err)
	}
	if err := json.Unmarshal([]byte(keywords), &r.Keywords); err != nil {
		return Record{}, fmt.Errorf("decoding keywords for %s: %w", r.ID, err)
	}
	embedding, err := decodeFloat32s(blob)
	if err != nil {
		return Record{}, fmt.Errorf("decoding embedding for %s: %w", r.ID, err)
	}
	r.Embedding = embedding
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Record{}, fmt.Errorf("parsing created_at for %s: %w", r.ID, err)
	}
	r.CreatedAt = t
	return r, nil
}

// Count returns the number of records in the knowledge base.
func (s *Store) Count() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM kb_records").Scan(&count)
	return count, err
}

// ExportAll returns all records in insertion order.
// Used for data migration to another backend.
func (s *Store) ExportAll() ([]Record, error) {
	rows, err := s.db.Query(`
		SELECT rowid, id, title, body_text, type, keywords, embedding, created_at
		FROM kb_records ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying all records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
// Returns an error if the byte slice length is not a multiple of 4 (indicates data corruption).
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// decodeFloat32sInto decodes little-endian bytes into the provided buffer,
// reusing it to avoid per-row allocations during search scans.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine computes dot(a,b) / (aNorm * bNorm).
// aNorm is the precomputed L2 norm of vector a.
func cosine(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// seqDistHeap is a max-heap of seqDist ordered by Distance (largest on top),
// used to keep the k smallest distances during the scan phase.
type seqDistHeap []seqDist

func (h seqDistHeap) Len() int            { return len(h) }
func (h seqDistHeap) Less(i, j int) bool  { return h[i].Distance > h[j].Distance }
func (h seqDistHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *seqDistHeap) Push(x interface{}) { *h = append(*h, x.(seqDist)) }
func (h *seqDistHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
