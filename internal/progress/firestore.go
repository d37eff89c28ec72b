package progress

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/jonathan/job-matcher/internal/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultCollection is the Firestore collection holding progress documents.
const DefaultCollection = "progress"

// progressDoc is the Firestore shape of a progress record, keyed by tracking id.
type progressDoc struct {
	UserID      string     `firestore:"userId"`
	Stage       string     `firestore:"stage"`
	Status      string     `firestore:"status"`
	Percentage  int        `firestore:"percentage"`
	UpdatedBy   string     `firestore:"updatedBy"`
	Error       string     `firestore:"error,omitempty"`
	StartedAt   time.Time  `firestore:"startedAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
	CompletedAt *time.Time `firestore:"completedAt"`
}

func toDoc(rec *types.ProgressRecord) progressDoc {
	return progressDoc{
		UserID:      rec.UserID.String(),
		Stage:       rec.Stage,
		Status:      string(rec.Status),
		Percentage:  rec.Percentage,
		UpdatedBy:   rec.UpdatedBy.String(),
		Error:       rec.Error,
		StartedAt:   rec.StartedAt,
		UpdatedAt:   rec.UpdatedAt,
		CompletedAt: rec.CompletedAt,
	}
}

func fromDoc(trackingID uuid.UUID, d progressDoc) (*types.ProgressRecord, error) {
	userID, err := uuid.Parse(d.UserID)
	if err != nil {
		return nil, fmt.Errorf("progress %s: invalid userId: %w", trackingID, err)
	}
	updatedBy, err := uuid.Parse(d.UpdatedBy)
	if err != nil {
		updatedBy = userID
	}
	return &types.ProgressRecord{
		TrackingID:  trackingID,
		UserID:      userID,
		Stage:       d.Stage,
		Status:      types.ProgressStatus(d.Status),
		Percentage:  d.Percentage,
		UpdatedBy:   updatedBy,
		Error:       d.Error,
		StartedAt:   d.StartedAt,
		UpdatedAt:   d.UpdatedAt,
		CompletedAt: d.CompletedAt,
	}, nil
}

// FirestoreStore keeps progress records as documents in one collection, so clients
// can also listen to them directly.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore creates a store on a new Firestore client for projectID.
func NewFirestoreStore(ctx context.Context, projectID, collection string) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	if collection == "" {
		collection = DefaultCollection
	}
	return &FirestoreStore{client: client, collection: collection}, nil
}

// Close releases the Firestore client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) doc(trackingID uuid.UUID) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(trackingID.String())
}

// CreateProgress creates the document; it fails if one already exists.
func (s *FirestoreStore) CreateProgress(ctx context.Context, rec *types.ProgressRecord) error {
	if _, err := s.doc(rec.TrackingID).Create(ctx, toDoc(rec)); err != nil {
		return fmt.Errorf("failed to create progress document: %w", err)
	}
	return nil
}

// GetProgress reads the document, returning nil, nil when it does not exist.
func (s *FirestoreStore) GetProgress(ctx context.Context, trackingID uuid.UUID) (*types.ProgressRecord, error) {
	snap, err := s.doc(trackingID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get progress document: %w", err)
	}
	var d progressDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode progress document: %w", err)
	}
	return fromDoc(trackingID, d)
}

// UpdateProgress applies fn inside a Firestore transaction.
func (s *FirestoreStore) UpdateProgress(ctx context.Context, trackingID uuid.UUID, fn func(*types.ProgressRecord) error) (*types.ProgressRecord, error) {
	ref := s.doc(trackingID)
	var updated *types.ProgressRecord
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("progress record %s: %w", trackingID, types.ErrNotFound)
			}
			return err
		}
		var d progressDoc
		if err := snap.DataTo(&d); err != nil {
			return fmt.Errorf("failed to decode progress document: %w", err)
		}
		rec, err := fromDoc(trackingID, d)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
		updated = rec
		return tx.Set(ref, toDoc(rec))
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

var (
	_ Store = (*FirestoreStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
