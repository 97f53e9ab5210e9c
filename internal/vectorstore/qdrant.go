// Package vectorstore wraps the Qdrant vector index used for memory
// relevance lookups.
package vectorstore

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Config holds connection settings for a Qdrant instance.
type Config struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Client wraps gRPC connections to Qdrant's collections and points services.
type Client struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
}

// NewClient dials the Qdrant gRPC endpoint and returns a ready Client.
func NewClient(cfg Config) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	return &Client{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
	}, nil
}

// EnsureCollection creates the named collection if it does not already
// exist. Euclidean distance is used so that search scores can be mapped to
// the bounded similarity below.
func (c *Client) EnsureCollection(ctx context.Context, name string, dimension uint64) error {
	_, err := c.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	if err == nil {
		return nil
	}
	_, err = c.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     dimension,
					Distance: pb.Distance_Euclid,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

// Upsert inserts or updates a single point carrying the source document and
// string tags as payload.
func (c *Client) Upsert(ctx context.Context, collection, id string, vector []float32, document string, tags map[string]string) error {
	payload := map[string]*pb.Value{
		"document": {Kind: &pb.Value_StringValue{StringValue: document}},
	}
	for k, v := range tags {
		payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
	}
	_, err := c.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Points: []*pb.PointStruct{
			{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}}},
				Payload: payload,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upsert point %s: %w", id, err)
	}
	return nil
}

// Match is a single vector search hit. Similarity is derived from the
// distance metric and is always in (0, 1].
type Match struct {
	ID         string
	Similarity float64
	Document   string
	Tags       map[string]string
}

// Search performs a nearest-neighbor search, optionally filtered by tag
// equality, and returns matches ranked by similarity.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, topK uint64, tagFilter map[string]string) ([]*Match, error) {
	var filter *pb.Filter
	if len(tagFilter) > 0 {
		var must []*pb.Condition
		for k, v := range tagFilter {
			must = append(must, &pb.Condition{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key:   k,
						Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: v}},
					},
				},
			})
		}
		filter = &pb.Filter{Must: must}
	}

	resp, err := c.points.Search(ctx, &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          topK,
		Filter:         filter,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}

	matches := make([]*Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		m := &Match{
			ID:         r.Id.GetUuid(),
			Similarity: SimilarityFromDistance(float64(r.Score)),
			Tags:       make(map[string]string),
		}
		for k, v := range r.Payload {
			sv, ok := v.Kind.(*pb.Value_StringValue)
			if !ok {
				continue
			}
			if k == "document" {
				m.Document = sv.StringValue
			} else {
				m.Tags[k] = sv.StringValue
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// SimilarityFromDistance maps a non-negative distance to a similarity score
// via 1/(1+d): monotonically decreasing in distance and bounded in (0, 1].
func SimilarityFromDistance(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1.0 / (1.0 + distance)
}

// Close tears down the underlying gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
