// Package pipeline composes extraction, indexing, retrieval, reranking,
// prompt assembly, generation and citation resolution into the service the
// UI layer calls. Sources are ingested once per session; queries reuse the
// session's index and run the full per-query stage machine.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/astrali/finrag/internal/chunk"
	"github.com/astrali/finrag/internal/citation"
	"github.com/astrali/finrag/internal/embedder"
	"github.com/astrali/finrag/internal/index"
	"github.com/astrali/finrag/internal/ingestion"
	"github.com/astrali/finrag/internal/llm"
	"github.com/astrali/finrag/internal/marketdata"
	"github.com/astrali/finrag/internal/memory"
	"github.com/astrali/finrag/internal/prompt"
	"github.com/astrali/finrag/internal/reranker"
)

// dedupeThreshold is the Jaccard overlap above which two retrieved chunks
// count as near-duplicates and the lower-ranked one is dropped.
const dedupeThreshold = 0.7

// historyTurns is how many recent messages feed the prompt's history block.
const historyTurns = 10

// Options tunes the pipeline. Zero values take the documented defaults.
type Options struct {
	TopK            int           // final retrieval depth (default 5)
	RerankTopK      int           // shortlist after reranking (default 4)
	MaxContextChars int           // prompt context budget (default 12000)
	MaxSourceBytes  int64         // ingest size cap (default no limit)
	MaxChunkChars   int           // per-chunk length cap (default 2000)
	MarketWindow    string        // market chunk window (default quarter)
	BuildWorkers    int           // parallel embeds during build
	EmbedTimeout    time.Duration // deadline per embedding call
	GenerateTimeout time.Duration // deadline per generation call
	SystemPrompt    string        // override for the default instructions
	Model           string        // generation model override
}

func (o *Options) applyDefaults() {
	if o.TopK <= 0 {
		o.TopK = 5
	}
	if o.RerankTopK <= 0 {
		o.RerankTopK = 4
	}
	if o.MaxContextChars <= 0 {
		o.MaxContextChars = 12000
	}
	if o.MaxChunkChars <= 0 {
		o.MaxChunkChars = 2000
	}
	if o.MarketWindow == "" {
		o.MarketWindow = ingestion.WindowQuarter
	}
}

// Answer is a resolved query result with per-stage timings.
type Answer struct {
	citation.Answer
	Metadata Metadata
}

// Metadata reports how a query run went.
type Metadata struct {
	RetrievalMillis  int64
	GenerationMillis int64
	TotalMillis      int64
	ChunksRetrieved  int
	ChunksCited      int
	Model            string
}

// Service is the RAG pipeline orchestrator.
type Service struct {
	embedder  embedder.Embedder
	llmClient llm.LLM
	rerank    reranker.Reranker
	fetcher   marketdata.Fetcher
	memory    *memory.Store
	assembler *prompt.Assembler
	logger    *slog.Logger
	opts      Options
	registry  *sessionRegistry
}

// ServiceOption is a functional option for configuring Service.
type ServiceOption func(*Service)

// WithReranker replaces the default lexical reranker.
func WithReranker(r reranker.Reranker) ServiceOption {
	return func(s *Service) {
		s.rerank = r
	}
}

// WithFetcher sets the market-data source used by IngestTickers.
func WithFetcher(f marketdata.Fetcher) ServiceOption {
	return func(s *Service) {
		s.fetcher = f
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates the pipeline service.
func NewService(emb embedder.Embedder, llmClient llm.LLM, opts Options, svcOpts ...ServiceOption) *Service {
	opts.applyDefaults()

	s := &Service{
		embedder:  emb,
		llmClient: llmClient,
		rerank:    &reranker.LexicalReranker{},
		memory:    memory.DefaultStore(),
		logger:    slog.Default(),
		opts:      opts,
		registry:  newSessionRegistry(),
	}
	s.assembler = &prompt.Assembler{
		MaxContextChars: opts.MaxContextChars,
		SystemPrompt:    opts.SystemPrompt,
	}

	for _, opt := range svcOpts {
		opt(s)
	}

	return s
}

// IngestPDF extracts, chunks and indexes a PDF document, returning the
// handle of the new session that owns it.
func (s *Service) IngestPDF(ctx context.Context, data []byte) (uuid.UUID, error) {
	extractor := &ingestion.PDFExtractor{
		MaxSourceBytes: s.opts.MaxSourceBytes,
		MaxChunkChars:  s.opts.MaxChunkChars,
		Logger:         s.logger,
	}

	store, err := extractor.Extract(data)
	if err != nil {
		return uuid.Nil, failed(StageIngest, err)
	}

	return s.openSession(ctx, store)
}

// IngestTickers fetches the tickers' series, chunks them into calendar
// windows and indexes them, returning the new session's handle.
func (s *Service) IngestTickers(ctx context.Context, tickers []string, start, end time.Time) (uuid.UUID, error) {
	if s.fetcher == nil {
		return uuid.Nil, failed(StageIngest, fmt.Errorf("no market data fetcher configured"))
	}

	series, err := s.fetcher.Fetch(ctx, tickers, start, end)
	if err != nil && len(series) == 0 {
		return uuid.Nil, failed(StageIngest, err)
	}

	extractor := &ingestion.MarketExtractor{
		Window: s.opts.MarketWindow,
		Logger: s.logger,
	}

	store, err := extractor.Extract(series)
	if err != nil {
		return uuid.Nil, failed(StageIngest, err)
	}

	return s.openSession(ctx, store)
}

// openSession builds the semantic index for a store and registers the
// session. Index construction embeds every chunk, so it carries the embed
// deadline scaled by chunk count.
func (s *Service) openSession(ctx context.Context, store *chunk.Store) (uuid.UUID, error) {
	buildCtx := ctx
	if s.opts.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, s.opts.EmbedTimeout*time.Duration(store.Len()))
		defer cancel()
	}

	idx, err := index.Build(buildCtx, store, s.embedder, index.BuildOptions{Workers: s.opts.BuildWorkers})
	if err != nil {
		return uuid.Nil, failed(StageIngest, err)
	}

	session := &Session{
		ID:    uuid.New(),
		Kind:  store.Kind(),
		Store: store,
		Index: idx,
	}
	s.registry.put(session)

	s.logger.Info("session opened",
		"session_id", session.ID,
		"source", session.Kind,
		"chunks", store.Len(),
		"embedding_model", idx.ModelName(),
	)

	return session.ID, nil
}

// DropSession discards a session's store, index and conversation history.
func (s *Service) DropSession(id uuid.UUID) {
	s.registry.drop(id)
	s.memory.Clear(id.String())
}

// Ask runs one query through the full pipeline against a session's index
// and returns the generated answer with resolved citations. On failure the
// returned error is an *Error naming the stage that died.
func (s *Service) Ask(ctx context.Context, sessionID uuid.UUID, query string) (*Answer, error) {
	started := time.Now()

	session, ok := s.registry.get(sessionID)
	if !ok {
		return nil, failed(StageRetrieving, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID))
	}
	if query == "" {
		return nil, failed(StageRetrieving, fmt.Errorf("%w: query is empty", index.ErrInvalidArgument))
	}

	// Retrieving: embed the query, then overshoot the retrieval depth so
	// dedup and rerank floors still leave a full shortlist.
	retrievalStart := time.Now()
	queryVector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, failed(StageRetrieving, err)
	}

	retrieveK := s.opts.TopK * 3
	if retrieveK > session.Index.Len() {
		retrieveK = session.Index.Len()
	}
	results, err := session.Index.Search(queryVector, retrieveK)
	if err != nil {
		return nil, failed(StageRetrieving, err)
	}

	candidates := s.toCandidates(session.Store, results)
	candidates = dedupe(candidates)
	retrievalMillis := time.Since(retrievalStart).Milliseconds()

	// Reranking: the reranker's order and scores are authoritative from
	// here on; raw similarity is discarded.
	ranked, err := s.rerank.Rerank(ctx, query, candidates)
	if err != nil {
		return nil, failed(StageReranking, err)
	}
	if len(ranked) > s.opts.RerankTopK {
		ranked = ranked[:s.opts.RerankTopK]
	}

	// Assembling
	history := memory.FormatForPrompt(s.memory.Recent(sessionID.String(), historyTurns))
	assembled, err := s.assembler.Assemble(query, ranked, session.Store.Get, history)
	if err != nil {
		return nil, failed(StageAssembling, err)
	}

	// Generating
	generationStart := time.Now()
	text, err := s.generate(ctx, assembled.Prompt)
	if err != nil {
		return nil, failed(StageGenerating, err)
	}
	generationMillis := time.Since(generationStart).Milliseconds()

	// Resolving
	resolved := citation.Resolve(text, assembled.Citations, session.Store.Get, s.logger)

	s.memory.AddUserMessage(sessionID.String(), query)
	s.memory.AddAssistantMessage(sessionID.String(), resolved.Text)

	answer := &Answer{
		Answer: resolved,
		Metadata: Metadata{
			RetrievalMillis:  retrievalMillis,
			GenerationMillis: generationMillis,
			TotalMillis:      time.Since(started).Milliseconds(),
			ChunksRetrieved:  len(candidates),
			ChunksCited:      len(resolved.Citations),
			Model:            s.opts.Model,
		},
	}

	s.logger.Info("query answered",
		"session_id", sessionID,
		"retrieved", answer.Metadata.ChunksRetrieved,
		"cited", answer.Metadata.ChunksCited,
		"total_ms", answer.Metadata.TotalMillis,
	)

	return answer, nil
}

// ChunkLocator resolves a chunk ID to its source locator, for the UI to
// jump to the cited page or date range.
func (s *Service) ChunkLocator(sessionID uuid.UUID, chunkID string) (chunk.Locator, error) {
	session, ok := s.registry.get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	c, ok := session.Store.Get(chunkID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChunkNotFound, chunkID)
	}
	return c.Locator, nil
}

// SessionInfo describes a live session to the API layer.
type SessionInfo struct {
	ID     uuid.UUID
	Source chunk.SourceKind
	Chunks int
}

// Session returns metadata about a live session.
func (s *Service) Session(id uuid.UUID) (SessionInfo, error) {
	session, ok := s.registry.get(id)
	if !ok {
		return SessionInfo{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return SessionInfo{ID: session.ID, Source: session.Kind, Chunks: session.Store.Len()}, nil
}

func (s *Service) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if s.opts.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.EmbedTimeout)
		defer cancel()
	}
	return s.embedder.Embed(ctx, query)
}

func (s *Service) generate(ctx context.Context, promptText string) (string, error) {
	if s.opts.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.GenerateTimeout)
		defer cancel()
	}
	return s.llmClient.Generate(ctx, promptText, llm.GenerateOptions{
		Model: s.opts.Model,
	})
}

// toCandidates hydrates retrieval results with chunk text for reranking.
func (s *Service) toCandidates(store *chunk.Store, results []index.Result) []reranker.Candidate {
	candidates := make([]reranker.Candidate, 0, len(results))
	for _, r := range results {
		c, ok := store.Get(r.ChunkID)
		if !ok {
			// Build guarantees index/store correspondence; a miss here
			// would mean the session was corrupted.
			s.logger.Warn("retrieved chunk missing from store", "chunk_id", r.ChunkID)
			continue
		}
		candidates = append(candidates, reranker.Candidate{
			ChunkID:    r.ChunkID,
			Text:       c.Text,
			Similarity: r.Score,
		})
	}
	return candidates
}

// dedupe drops candidates whose text nearly duplicates a higher-ranked
// one, keeping the earlier (better scored) of each pair.
func dedupe(candidates []reranker.Candidate) []reranker.Candidate {
	if len(candidates) <= 1 {
		return candidates
	}

	keep := make([]bool, len(candidates))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(candidates); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(candidates); j++ {
			if !keep[j] {
				continue
			}
			if reranker.Overlap(candidates[i].Text, candidates[j].Text) >= dedupeThreshold {
				keep[j] = false
			}
		}
	}

	out := make([]reranker.Candidate, 0, len(candidates))
	for i, c := range candidates {
		if keep[i] {
			out = append(out, c)
		}
	}
	return out
}
