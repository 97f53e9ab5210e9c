package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/smallville/internal/agent"
	"github.com/nidhogg/smallville/internal/dialogue"
	"github.com/nidhogg/smallville/internal/embedding"
	"github.com/nidhogg/smallville/internal/llm"
	"github.com/nidhogg/smallville/internal/memory"
	"github.com/nidhogg/smallville/internal/perception"
	pgstore "github.com/nidhogg/smallville/internal/store"
	"github.com/nidhogg/smallville/internal/vectorstore"
	"github.com/nidhogg/smallville/internal/world"
)

var residentNames = []string{
	"Ada", "Ben", "Cleo", "Dev", "Elif", "Farid", "Gwen", "Hugo", "Iris",
	"Jonas", "Kira", "Liam", "Mona", "Nils", "Odette", "Pavel", "Quinn",
	"Rosa", "Sven", "Tara", "Ulf", "Vera", "Wim", "Xena", "Yuri",
}

// buildTown assembles a small grid world with named locations and the
// requested number of residents scattered across it.
func buildTown(population int) *world.State {
	if population <= 0 {
		population = 10
	}
	if population > len(residentNames) {
		population = len(residentNames)
	}

	town := world.NewState(24, 24)
	town.AddLocation(&world.Location{
		ID:   "plaza",
		Name: "Town Plaza",
		Tiles: map[world.Position]bool{
			{X: 10, Y: 10}: true, {X: 11, Y: 10}: true,
			{X: 10, Y: 11}: true, {X: 11, Y: 11}: true,
		},
	})
	town.AddLocation(&world.Location{
		ID:   "cafe",
		Name: "Corner Cafe",
		Tiles: map[world.Position]bool{
			{X: 4, Y: 5}: true, {X: 5, Y: 5}: true,
		},
	})
	town.AddLocation(&world.Location{
		ID:   "library",
		Name: "Public Library",
		Tiles: map[world.Position]bool{
			{X: 18, Y: 6}: true, {X: 19, Y: 6}: true, {X: 18, Y: 7}: true,
		},
	})
	town.AddObject(&world.Object{ID: "fountain", Name: "Fountain", Position: world.Position{X: 11, Y: 11}})
	town.AddObject(&world.Object{ID: "bench-1", Name: "Bench", Position: world.Position{X: 9, Y: 10}})

	for i := 0; i < population; i++ {
		name := residentNames[i]
		town.AddAgent(&world.AgentState{
			ID:       fmt.Sprintf("agent-%d", i+1),
			Name:     name,
			Position: world.Position{X: 3 + (i*5)%18, Y: 4 + (i*3)%16},
		})
	}
	return town
}

// seedMemories gives a resident a starting memory stream so the first ticks
// have something to retrieve and reflect over.
func seedMemories(name string) *memory.Store {
	seeds := []struct {
		desc       string
		importance float64
		memType    memory.Type
	}{
		{fmt.Sprintf("%s opened the day with coffee at the Corner Cafe", name), 20, memory.TypeEpisodic},
		{fmt.Sprintf("%s knows the library closes early on weekends", name), 10, memory.TypeSemantic},
		{fmt.Sprintf("%s practiced the route from the plaza to the market", name), 15, memory.TypeProcedural},
		{fmt.Sprintf("%s noticed the fountain was being repaired", name), 35, memory.TypeEpisodic},
		{fmt.Sprintf("%s resolved to spend more time with neighbors", name), 60, memory.TypeReflective},
	}

	store := memory.NewStore()
	for _, seed := range seeds {
		m, err := memory.New(seed.desc, seed.importance, seed.memType, "vec:"+uuid.New().String())
		if err != nil {
			continue
		}
		store.Add(m)
	}
	return store
}

// indexMemories embeds a resident's seed memories and upserts them into the
// vector index so relevance queries have something to match.
func indexMemories(ctx context.Context, vectors *vectorstore.Client, embedder embedding.Provider, agentID string, store *memory.Store) error {
	memories := store.All()
	texts := make([]string, 0, len(memories))
	for _, m := range memories {
		texts = append(texts, m.Description)
	}

	embedded, err := embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed seed memories for %s: %w", agentID, err)
	}

	for i, m := range memories {
		err := vectors.Upsert(ctx, memoryCollection, uuid.New().String(), embedded[i], m.Description, map[string]string{
			"agent_id":      agentID,
			"embedding_ref": m.EmbeddingRef,
			"memory_type":   string(m.Type),
		})
		if err != nil {
			return fmt.Errorf("index seed memory for %s: %w", agentID, err)
		}
	}
	return nil
}

// relevanceFunc builds the per-tick relevance source: perceive the scene,
// embed the cached description, and rank stored memories via the vector
// index. Without a vector index every memory's relevance stays zero.
func relevanceFunc(
	town *world.State,
	perceiver *perception.Service,
	embedder embedding.Provider,
	vectors *vectorstore.Client,
	radius int,
	logger *zap.Logger,
) agent.RelevanceFunc {
	if vectors == nil {
		return nil
	}
	return func(ctx context.Context, agentID string, tickIndex int) (map[string]float64, error) {
		_, description, err := perceiver.CaptureAndDescribe(ctx, town, agentID, radius)
		if err != nil {
			return nil, err
		}

		queryVecs, err := embedder.Embed(ctx, []string{description})
		if err != nil {
			return nil, err
		}
		if len(queryVecs) == 0 {
			return nil, nil
		}

		matches, err := vectors.Search(ctx, memoryCollection, queryVecs[0],
			uint64(memory.DefaultTopK), map[string]string{"agent_id": agentID})
		if err != nil {
			return nil, err
		}

		relevance := make(map[string]float64, len(matches))
		for _, m := range matches {
			if ref, ok := m.Tags["embedding_ref"]; ok {
				relevance[ref] = m.Similarity
			}
		}
		logger.Debug("relevance resolved",
			zap.String("agent", agentID),
			zap.Int("tick", tickIndex),
			zap.Int("matches", len(matches)))
		return relevance, nil
	}
}

// runDialogues lets every co-located pair exchange a short conversation,
// persisting transcripts when a store is available.
func runDialogues(ctx context.Context, town *world.State, backend llm.Backend, store *pgstore.Store, logger *zap.Logger) {
	var sink dialogue.TurnSink
	if store != nil {
		sink = store
	}
	runner := dialogue.NewRunner(sink, logger)

	for _, pair := range dialogue.CoLocated(town) {
		first := &dialogue.LLMSpeaker{AgentID: pair[0].ID, AgentName: pair[0].Name, Generator: backend}
		second := &dialogue.LLMSpeaker{AgentID: pair[1].ID, AgentName: pair[1].Name, Generator: backend}
		if _, err := runner.Run(ctx, first, second, pair[0], pair[1], town, 4); err != nil {
			logger.Warn("dialogue failed",
				zap.String("first", pair[0].ID),
				zap.String("second", pair[1].ID),
				zap.Error(err))
		}
	}
}
