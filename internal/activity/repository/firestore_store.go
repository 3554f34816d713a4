package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/calybase/calybase-backend/internal/activity/domain"
)

const auditCollection = "auditLog"

// maxWritesPerTx is Firestore's limit on writes in a single transaction.
const maxWritesPerTx = 500

// FirestoreStore keeps audit entries in the auditLog collection, one
// document per entry with a generated id.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

// Write creates the entries in transactions of at most maxWritesPerTx
// documents. Chunks committed before a failing one stay stored; the caller
// re-sends the whole batch, so entries may be delivered twice.
func (s *FirestoreStore) Write(ctx context.Context, entries []domain.Entry) error {
	col := s.client.Collection(auditCollection)

	for _, chunk := range chunkEntries(entries, maxWritesPerTx) {
		err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			for i := range chunk {
				if err := tx.Create(col.NewDoc(), chunk[i]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("write %d audit entries: %w", len(chunk), err)
		}
	}
	return nil
}

func chunkEntries(entries []domain.Entry, size int) [][]domain.Entry {
	var chunks [][]domain.Entry
	for start := 0; start < len(entries); start += size {
		chunks = append(chunks, entries[start:min(start+size, len(entries))])
	}
	return chunks
}

// Query returns entries newest first, bounded by q.
func (s *FirestoreStore) Query(ctx context.Context, q domain.Query) ([]domain.Entry, error) {
	query := s.client.Collection(auditCollection).OrderBy("timestamp", firestore.Desc)
	if !q.From.IsZero() {
		query = query.Where("timestamp", ">=", q.From)
	}
	if !q.To.IsZero() {
		query = query.Where("timestamp", "<=", q.To)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	it := query.Documents(ctx)
	defer it.Stop()

	var entries []domain.Entry
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query audit entries: %w", err)
		}

		var e domain.Entry
		if err := snap.DataTo(&e); err != nil {
			return nil, fmt.Errorf("decode audit entry %s: %w", snap.Ref.ID, err)
		}
		e.ID = snap.Ref.ID
		entries = append(entries, e)
	}

	return entries, nil
}
