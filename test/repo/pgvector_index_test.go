package repo_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
	"github.com/xxxsen/docqa/internal/vectorindex"
	"github.com/xxxsen/docqa/test/testutil"
)

const testDimension = 384

func unitVector(axis int) []float32 {
	v := make([]float32, testDimension)
	v[axis] = 1
	return v
}

func TestPGVectorIndexQueryAndIsolation(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	idx, err := vectorindex.NewPGVector(ctx, db, testDimension)
	require.NoError(t, err)

	session := testutil.NewSessionID()
	other := testutil.NewSessionID()
	defer func() {
		_ = idx.DeleteBySession(ctx, session)
		_ = idx.DeleteBySession(ctx, other)
	}()
	docA := uuid.NewString()
	docB := uuid.NewString()
	entries := []vectorindex.Entry{
		{ChunkID: uuid.NewString(), Vector: unitVector(0), Meta: vectorindex.Meta{DocumentID: docA, SessionID: session, Filename: "a.txt", Text: "alpha"}},
		{ChunkID: uuid.NewString(), Vector: unitVector(1), Meta: vectorindex.Meta{DocumentID: docB, SessionID: session, Filename: "b.txt", ChunkIndex: 1, Text: "beta"}},
		{ChunkID: uuid.NewString(), Vector: unitVector(0), Meta: vectorindex.Meta{DocumentID: uuid.NewString(), SessionID: other, Filename: "c.txt", Text: "gamma"}},
	}
	require.NoError(t, idx.Upsert(ctx, entries))
	require.NoError(t, idx.Upsert(ctx, entries[:1]))

	hits, err := idx.Query(ctx, unitVector(0), 10, vectorindex.Filter{SessionID: session})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "alpha", hits[0].Meta.Text)
	require.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	require.InDelta(t, 0.5, hits[1].Similarity, 1e-6)

	hits, err = idx.Query(ctx, unitVector(0), 10, vectorindex.Filter{SessionID: session, DocumentIDs: []string{docB}})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "b.txt", hits[0].Meta.Filename)

	_, err = idx.Query(ctx, []float32{1, 0}, 10, vectorindex.Filter{SessionID: session})
	require.ErrorIs(t, err, appErr.ErrIndexInconsistency)

	require.NoError(t, idx.DeleteByDocument(ctx, docA))
	n, err := idx.Count(ctx, vectorindex.Filter{SessionID: session})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	n, err = idx.Count(ctx, vectorindex.Filter{SessionID: other})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestPGVectorIndexFillsTopKForSmallSession(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	idx, err := vectorindex.NewPGVector(ctx, db, testDimension)
	require.NoError(t, err)

	small := testutil.NewSessionID()
	crowd := testutil.NewSessionID()
	defer func() {
		_ = idx.DeleteBySession(ctx, small)
		_ = idx.DeleteBySession(ctx, crowd)
	}()
	crowdEntries := make([]vectorindex.Entry, 0, 600)
	for i := 0; i < 600; i++ {
		crowdEntries = append(crowdEntries, vectorindex.Entry{
			ChunkID: uuid.NewString(),
			Vector:  unitVector(0),
			Meta:    vectorindex.Meta{DocumentID: "crowd", SessionID: crowd, Filename: "crowd.txt", ChunkIndex: i, Text: "near"},
		})
	}
	require.NoError(t, idx.Upsert(ctx, crowdEntries))
	doc := uuid.NewString()
	smallEntries := make([]vectorindex.Entry, 0, 15)
	for i := 0; i < 15; i++ {
		smallEntries = append(smallEntries, vectorindex.Entry{
			ChunkID: uuid.NewString(),
			Vector:  unitVector(1 + i),
			Meta:    vectorindex.Meta{DocumentID: doc, SessionID: small, Filename: "small.txt", ChunkIndex: i, Text: "far"},
		})
	}
	require.NoError(t, idx.Upsert(ctx, smallEntries))

	hits, err := idx.Query(ctx, unitVector(0), 10, vectorindex.Filter{SessionID: small})
	require.NoError(t, err)
	require.Len(t, hits, 10)
	for i, h := range hits {
		require.Equal(t, small, h.Meta.SessionID)
		require.Equal(t, i, h.Meta.ChunkIndex)
	}
}
