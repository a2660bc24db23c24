package cache

import (
	"fmt"

	"github.com/asaidimu/go-odm/core/schema"
	"github.com/asaidimu/go-odm/utils"
	"go.mongodb.org/mongo-driver/bson"
)

type documentEnvelope struct {
	Documents []bson.M `bson:"documents"`
	Count     *int64   `bson:"count,omitempty"`
}

// EncodeDocuments serializes a document window for storage.
func EncodeDocuments(docs []schema.Document) ([]byte, error) {
	env := documentEnvelope{Documents: make([]bson.M, len(docs))}
	for i, d := range docs {
		env.Documents[i] = bson.M(d)
	}
	b, err := bson.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode documents: %w", err)
	}
	return b, nil
}

// DecodeDocuments is the inverse of EncodeDocuments. Values come back in the
// shapes the stores return: 32-bit integers widened to int64 and dates as
// time.Time in UTC. Errors wrap ErrCorrupt.
func DecodeDocuments(b []byte) ([]schema.Document, error) {
	var env documentEnvelope
	if err := bson.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	docs := make([]schema.Document, len(env.Documents))
	for i, d := range env.Documents {
		m, _ := utils.FromBSON(d).(map[string]any)
		docs[i] = schema.Document(m)
	}
	return docs, nil
}

// EncodeCount serializes a count result.
func EncodeCount(n int64) ([]byte, error) {
	b, err := bson.Marshal(documentEnvelope{Documents: []bson.M{}, Count: &n})
	if err != nil {
		return nil, fmt.Errorf("failed to encode count: %w", err)
	}
	return b, nil
}

// DecodeCount is the inverse of EncodeCount. Errors wrap ErrCorrupt.
func DecodeCount(b []byte) (int64, error) {
	var env documentEnvelope
	if err := bson.Unmarshal(b, &env); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if env.Count == nil {
		return 0, fmt.Errorf("%w: missing count", ErrCorrupt)
	}
	return *env.Count, nil
}
