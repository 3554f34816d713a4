package repository

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/calybase/calybase-backend/internal/members/domain"
)

const membersCollection = "membres"

// maxWritesPerTx is Firestore's limit on writes in a single transaction.
const maxWritesPerTx = 500

type FirestoreMemberRepository struct {
	client *firestore.Client
}

func NewFirestoreMemberRepository(client *firestore.Client) *FirestoreMemberRepository {
	return &FirestoreMemberRepository{client: client}
}

func (r *FirestoreMemberRepository) col() *firestore.CollectionRef {
	return r.client.Collection(membersCollection)
}

// List returns every member ordered by nom.
func (r *FirestoreMemberRepository) List(ctx context.Context) ([]domain.Member, error) {
	it := r.col().OrderBy("nom", firestore.Asc).Documents(ctx)
	defer it.Stop()

	members := []domain.Member{}
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list members: %w", err)
		}
		m, err := decode(snap)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, nil
}

func (r *FirestoreMemberRepository) Get(ctx context.Context, id string) (*domain.Member, error) {
	snap, err := r.col().Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, domain.ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get member %s: %w", id, err)
	}
	return decode(snap)
}

func decode(snap *firestore.DocumentSnapshot) (*domain.Member, error) {
	var m domain.Member
	if err := snap.DataTo(&m); err != nil {
		return nil, fmt.Errorf("decode member %s: %w", snap.Ref.ID, err)
	}
	m.ID = snap.Ref.ID
	return &m, nil
}

// Create stores m under a generated id and sets m.ID.
func (r *FirestoreMemberRepository) Create(ctx context.Context, m *domain.Member) error {
	ref := r.col().NewDoc()
	if _, err := ref.Create(ctx, m); err != nil {
		return fmt.Errorf("create member: %w", err)
	}
	m.ID = ref.ID
	return nil
}

// CreateMany stores members in transactions of at most 500 writes.
func (r *FirestoreMemberRepository) CreateMany(ctx context.Context, members []domain.Member) error {
	col := r.col()
	for start := 0; start < len(members); start += maxWritesPerTx {
		end := min(start+maxWritesPerTx, len(members))
		chunk := members[start:end]

		err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			for i := range chunk {
				if err := tx.Create(col.NewDoc(), chunk[i]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("create %d members: %w", len(chunk), err)
		}
	}
	return nil
}

// Update overwrites the editable fields of an existing member.
func (r *FirestoreMemberRepository) Update(ctx context.Context, id string, in domain.Input, at time.Time) error {
	_, err := r.col().Doc(id).Update(ctx, []firestore.Update{
		{Path: "nom", Value: in.Nom},
		{Path: "prenom", Value: in.Prenom},
		{Path: "email", Value: in.Email},
		{Path: "telephone", Value: in.Telephone},
		{Path: "updatedAt", Value: at},
	})
	return mapWriteErr(err, "update", id)
}

func (r *FirestoreMemberRepository) SetAvatar(ctx context.Context, id, url string, at time.Time) error {
	_, err := r.col().Doc(id).Update(ctx, []firestore.Update{
		{Path: "avatarUrl", Value: url},
		{Path: "updatedAt", Value: at},
	})
	return mapWriteErr(err, "set avatar of", id)
}

func (r *FirestoreMemberRepository) Delete(ctx context.Context, id string) error {
	_, err := r.col().Doc(id).Delete(ctx, firestore.Exists)
	return mapWriteErr(err, "delete", id)
}

// DeleteMany removes the given members. Missing ids are ignored.
func (r *FirestoreMemberRepository) DeleteMany(ctx context.Context, ids []string) error {
	col := r.col()
	for start := 0; start < len(ids); start += maxWritesPerTx {
		end := min(start+maxWritesPerTx, len(ids))
		chunk := ids[start:end]

		err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			for _, id := range chunk {
				if err := tx.Delete(col.Doc(id)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("delete %d members: %w", len(chunk), err)
		}
	}
	return nil
}

func mapWriteErr(err error, op, id string) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.NotFound {
		return domain.ErrMemberNotFound
	}
	return fmt.Errorf("%s member %s: %w", op, id, err)
}
