package policy

import (
	"context"
	"fmt"
	"runtime"

	"github.com/harunnryd/ivrbridge/internal/logger"
	"github.com/harunnryd/ivrbridge/internal/session"

	"github.com/philippgille/chromem-go"
)

const exemplarCollection = "intent-exemplars"

// Exemplars are paraphrases the keyword table misses, keyed by intent.
var Exemplars = map[string][]string{
	IntentBookFlight: {
		"I need to fly to another city",
		"get me a seat on a plane",
		"I would like to make a new flight reservation",
	},
	IntentCheckStatus: {
		"is my flight on time",
		"has my plane been delayed",
		"when does my flight depart",
	},
	IntentCancelBooking: {
		"call off my reservation",
		"I don't want to travel anymore, refund my trip",
		"drop my flight",
	},
	IntentDomesticFlight: {
		"within India",
		"a flight inside the country",
	},
	IntentInternationalFlight: {
		"flying abroad",
		"a flight to another country",
	},
	IntentSpeakToAgent: {
		"connect me to customer care",
		"let me talk to a real person",
		"operator please",
	},
}

// SemanticPolicy matches utterances against intent exemplars by embedding
// similarity. Keyword matches and slot filling are delegated to the keyword
// policy first, so the routing table keeps its precedence.
type SemanticPolicy struct {
	collection *chromem.Collection
	keyword    *KeywordPolicy
	threshold  float32
}

// NewSemanticPolicy embeds Exemplars into an in-memory collection.
func NewSemanticPolicy(ctx context.Context, embed chromem.EmbeddingFunc, threshold float64) (*SemanticPolicy, error) {
	db := chromem.NewDB()
	collection, err := db.CreateCollection(exemplarCollection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("create exemplar collection: %w", err)
	}

	var docs []chromem.Document
	for _, route := range Routes {
		for i, text := range Exemplars[route.Intent] {
			docs = append(docs, chromem.Document{
				ID:       fmt.Sprintf("%s-%d", route.Intent, i),
				Content:  text,
				Metadata: map[string]string{"intent": route.Intent},
			})
		}
	}
	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("embed exemplars: %w", err)
	}

	return &SemanticPolicy{
		collection: collection,
		keyword:    NewKeywordPolicy(),
		threshold:  float32(threshold),
	}, nil
}

func (p *SemanticPolicy) Name() string { return "semantic" }

func (p *SemanticPolicy) Process(ctx context.Context, callID, utterance string, sess *session.Session) (Result, error) {
	res, err := p.keyword.Process(ctx, callID, utterance, sess)
	if err != nil || res.Intent != IntentUnknown {
		return res, err
	}

	log := logger.From(ctx)
	matches, err := p.collection.Query(ctx, utterance, 1, nil, nil)
	if err != nil {
		log.Warn("Exemplar lookup failed, using keyword reply", "error", err)
		return res, nil
	}
	if len(matches) == 0 || matches[0].Similarity < p.threshold {
		return res, nil
	}

	route, ok := RouteFor(matches[0].Metadata["intent"])
	if !ok {
		return res, nil
	}
	log.Debug("Exemplar matched", "intent", route.Intent, "similarity", matches[0].Similarity)
	return route.Result(float64(matches[0].Similarity)), nil
}

// EmbeddingFunc adapts a model router to chromem's embedding callback.
func EmbeddingFunc(router interface {
	RouteEmbedding(ctx context.Context, model string, text string) ([]float32, error)
}, model string) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return router.RouteEmbedding(ctx, model, text)
	}
}
