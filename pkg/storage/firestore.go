package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Juliapixel/projeto-goodwe/pkg/log"
	"github.com/Juliapixel/projeto-goodwe/pkg/types"
)

const actionCollection = "action_history"

// actionIDLayout is fixed width so document IDs sort like their timestamps
// down to the nanosecond.
const actionIDLayout = "2006-01-02T15:04:05.000000000Z07:00"

func actionID(t time.Time) string {
	return t.UTC().Format(actionIDLayout)
}

// FirestoreProvider implements the Database interface using Google Cloud
// Firestore. Each action is a document keyed by its UTC timestamp.
type FirestoreProvider struct {
	client     *firestore.Client
	projectID  string
	database   string
	collection string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")
	collection := lflag.String("firestore-collection", actionCollection, "Firestore collection holding the action history")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database
		f.collection = *collection

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	if f.collection == "" {
		return fmt.Errorf("firestore collection cannot be empty")
	}
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) actions() *firestore.CollectionRef {
	return f.client.Collection(f.collection)
}

// InsertAction implements Database. An existing document is never
// overwritten.
func (f *FirestoreProvider) InsertAction(ctx context.Context, action types.Action) error {
	jsonBytes, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal action: %w", err)
	}

	docID := actionID(action.Timestamp)
	_, err = f.actions().Doc(docID).Create(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"timestamp": action.Timestamp,
		"reason":    string(action.Reason),
		"desiredOn": action.DesiredOn,
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("failed to insert action %s: %w", docID, ErrDuplicateAction)
		}
		return fmt.Errorf("failed to insert action: %w", err)
	}
	return nil
}

func decodeAction(ctx context.Context, doc *firestore.DocumentSnapshot) (types.Action, error) {
	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "action doc missing json", slog.String("actionID", doc.Ref.ID), slog.Any("err", err))
		return types.Action{}, fmt.Errorf("action document %s missing 'json' field: %w", doc.Ref.ID, err)
	}

	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "action doc json not string", slog.String("actionID", doc.Ref.ID))
		return types.Action{}, fmt.Errorf("action document %s 'json' field is not string", doc.Ref.ID)
	}

	var a types.Action
	if err := json.Unmarshal([]byte(jsonStr), &a); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal action", slog.String("actionID", doc.Ref.ID), slog.Any("err", err))
		return types.Action{}, fmt.Errorf("failed to unmarshal action (id=%s): %w", doc.Ref.ID, err)
	}
	return a, nil
}

// GetActionHistory implements Database.
func (f *FirestoreProvider) GetActionHistory(ctx context.Context, start, end time.Time) ([]types.Action, error) {
	startDocID := actionID(start)
	endDocID := actionID(end)

	coll := f.actions()
	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(startDocID)).
		Where(firestore.DocumentID, "<", coll.Doc(endDocID)).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var actions []types.Action
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating actions: %w", err)
		}

		a, err := decodeAction(ctx, doc)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// GetLatestAction implements Database.
func (f *FirestoreProvider) GetLatestAction(ctx context.Context) (*types.Action, error) {
	iter := f.actions().
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest action: %w", err)
	}
	a, err := decodeAction(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
