// Package qdrant implements vector.Store against a Qdrant instance over
// gRPC.
package qdrant

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/vector"
)

const (
	payloadContent    = "content"
	payloadDocumentID = "document_id"
	payloadChunkIndex = "chunk_index"
)

// Store implements vector.Store using Qdrant.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	spec        vector.CollectionSpec
}

// New connects to Qdrant. The collection itself is created or validated
// by EnsureCollection.
func New(ctx context.Context, host string, port int, spec vector.CollectionSpec) (*Store, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		spec:        spec,
	}, nil
}

func distanceOf(m vector.Metric) (pb.Distance, error) {
	switch m {
	case vector.MetricCosine, "":
		return pb.Distance_Cosine, nil
	case vector.MetricDot:
		return pb.Distance_Dot, nil
	}
	return pb.Distance_UnknownDistance, fmt.Errorf("%w: unknown metric %q", vector.ErrMetricMismatch, m)
}

func (s *Store) EnsureCollection(ctx context.Context, spec vector.CollectionSpec, recreate bool) error {
	s.spec = spec
	distance, err := distanceOf(spec.Metric)
	if err != nil {
		return err
	}

	exists, err := s.collectionExists(ctx, spec.Name)
	if err != nil {
		return fmt.Errorf("listing collections: %w", err)
	}

	if exists && recreate {
		if _, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: spec.Name}); err != nil {
			return fmt.Errorf("dropping collection %s: %w", spec.Name, err)
		}
		exists = false
	}

	if exists {
		return s.validateCollection(ctx, spec, distance)
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: spec.Name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(spec.Dimensions),
					Distance: distance,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", spec.Name, err)
	}

	// Keyword index on document_id makes delete-by-document and filtered
	// search cheap.
	fieldType := pb.FieldType_FieldTypeKeyword
	_, err = s.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: spec.Name,
		FieldName:      payloadDocumentID,
		FieldType:      &fieldType,
	})
	if err != nil {
		return fmt.Errorf("indexing %s payload: %w", payloadDocumentID, err)
	}
	return nil
}

func (s *Store) collectionExists(ctx context.Context, name string) (bool, error) {
	resp, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, err
	}
	for _, c := range resp.Collections {
		if c.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// validateCollection fails fast when an existing collection was created
// with a different dimensionality or metric than configured.
func (s *Store) validateCollection(ctx context.Context, spec vector.CollectionSpec, distance pb.Distance) error {
	info, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: spec.Name})
	if err != nil {
		return fmt.Errorf("inspecting collection %s: %w", spec.Name, err)
	}
	params := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return fmt.Errorf("collection %s: unexpected vectors config shape", spec.Name)
	}
	if int(params.Size) != spec.Dimensions {
		return fmt.Errorf("%w: collection %s has %d, configured %d",
			vector.ErrDimensionMismatch, spec.Name, params.Size, spec.Dimensions)
	}
	if params.Distance != distance {
		return fmt.Errorf("%w: collection %s uses %s, configured %s",
			vector.ErrMetricMismatch, spec.Name, params.Distance, distance)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, rec := range records {
		if s.spec.Dimensions > 0 && len(rec.Vector) != s.spec.Dimensions {
			return fmt.Errorf("%w: record %s has %d, collection %s wants %d",
				vector.ErrDimensionMismatch, rec.ID, len(rec.Vector), s.spec.Name, s.spec.Dimensions)
		}
		payload := map[string]*pb.Value{
			payloadContent:    {Kind: &pb.Value_StringValue{StringValue: rec.Content}},
			payloadDocumentID: {Kind: &pb.Value_StringValue{StringValue: rec.DocumentID}},
			payloadChunkIndex: {Kind: &pb.Value_IntegerValue{IntegerValue: int64(rec.ChunkIndex)}},
		}
		for k, v := range rec.Metadata {
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
		}
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: rec.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: rec.Vector}}},
			Payload: payload,
		}
	}

	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.spec.Name,
		Points:         points,
	})
	return err
}

func (s *Store) Search(ctx context.Context, vec []float32, topK int, filter *vector.Filter) ([]vector.SearchResult, error) {
	if s.spec.Dimensions > 0 && len(vec) != s.spec.Dimensions {
		return nil, fmt.Errorf("%w: query has %d, collection %s wants %d",
			vector.ErrDimensionMismatch, len(vec), s.spec.Name, s.spec.Dimensions)
	}
	if topK <= 0 {
		return nil, nil
	}

	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.spec.Name,
		Vector:         vec,
		Limit:          uint64(topK),
		Filter:         qdrantFilter(filter),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, err
	}

	results := make([]vector.SearchResult, len(resp.Result))
	for i, pt := range resp.Result {
		r := vector.SearchResult{
			ID:       pt.Id.GetUuid(),
			Score:    pt.Score,
			Metadata: make(map[string]string),
		}
		for k, v := range pt.Payload {
			switch k {
			case payloadContent:
				r.Content = v.GetStringValue()
			case payloadDocumentID:
				r.DocumentID = v.GetStringValue()
			case payloadChunkIndex:
				r.ChunkIndex = int(v.GetIntegerValue())
			default:
				r.Metadata[k] = v.GetStringValue()
			}
		}
		results[i] = r
	}
	return results, nil
}

func (s *Store) Fetch(ctx context.Context, ids []string) ([]vector.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pointIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
	}
	resp, err := s.points.Get(ctx, &pb.GetPoints{
		CollectionName: s.spec.Name,
		Ids:            pointIDs,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, err
	}

	records := make([]vector.Record, 0, len(resp.Result))
	for _, pt := range resp.Result {
		rec := vector.Record{
			ID:       pt.Id.GetUuid(),
			Metadata: make(map[string]string),
		}
		for k, v := range pt.Payload {
			switch k {
			case payloadContent:
				rec.Content = v.GetStringValue()
			case payloadDocumentID:
				rec.DocumentID = v.GetStringValue()
			case payloadChunkIndex:
				rec.ChunkIndex = int(v.GetIntegerValue())
			default:
				rec.Metadata[k] = v.GetStringValue()
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.spec.Name,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: qdrantFilter(&vector.Filter{DocumentID: documentID}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", documentID, err)
	}
	return nil
}

func (s *Store) CountByDocument(ctx context.Context, documentID string) (int, error) {
	exact := true
	resp, err := s.points.Count(ctx, &pb.CountPoints{
		CollectionName: s.spec.Name,
		Filter:         qdrantFilter(&vector.Filter{DocumentID: documentID}),
		Exact:          &exact,
	})
	if err != nil {
		return 0, err
	}
	return int(resp.GetResult().GetCount()), nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func qdrantFilter(f *vector.Filter) *pb.Filter {
	if f == nil || f.DocumentID == "" {
		return nil
	}
	return &pb.Filter{
		Must: []*pb.Condition{{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key:   payloadDocumentID,
					Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: f.DocumentID}},
				},
			},
		}},
	}
}

var _ vector.Store = (*Store)(nil)
