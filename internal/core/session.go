package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonlabs/consilium/internal/config"
	"github.com/halcyonlabs/consilium/internal/core/analysis"
	"github.com/halcyonlabs/consilium/internal/core/batch"
	"github.com/halcyonlabs/consilium/internal/core/merge"
	"github.com/halcyonlabs/consilium/internal/core/model"
	"github.com/halcyonlabs/consilium/internal/core/provider"
	"github.com/halcyonlabs/consilium/internal/core/qom"
	"github.com/halcyonlabs/consilium/internal/core/relation"
	"github.com/halcyonlabs/consilium/internal/core/workflow"
	"github.com/halcyonlabs/consilium/internal/driver"
	"github.com/halcyonlabs/consilium/internal/llm"
	"github.com/halcyonlabs/consilium/internal/logger"
)

var (
	ErrSessionStopped = fmt.Errorf("session already stopped")
	ErrNoTranscriber  = fmt.Errorf("no transcriber configured")
)

// Well-known node ids of the initial expert graph. Specialists are spliced
// between the primary and the merger as patterns emerge.
const (
	nodeInput   = "input"
	nodePrimary = "gp"
	nodeMerger  = "merger"
	nodeOutput  = "output"
)

// Deps carries the shared collaborators a session needs. Events and Exporter
// are optional; everything else is required.
type Deps struct {
	Logger      *logger.Logger
	Invoker     llm.Invoker
	Transcriber llm.Transcriber
	Selector    *provider.Selector
	Events      qom.Sink
	Exporter    *driver.Exporter
	Config      *config.Config
}

// Session is one live consultation: an accumulating transcript analyzed in
// batches, merged clinical items, derived signal relationships, and an expert
// graph that grows as clinical patterns appear.
type Session struct {
	ID        string
	Patient   model.PatientContext
	StartedAt time.Time

	log      *logger.Logger
	deps     Deps
	analyzer *analysis.Analyzer
	merger   *merge.Merger
	relation *relation.Engine
	clusters *relation.ClusterDetector
	batches  *batch.Controller
	audio    *batch.AudioBuffer
	orch     *qom.Orchestrator
	recorder *workflow.Recorder

	mu              sync.Mutex
	transcript      string
	lastAnalyzedLen int
	passCount       int
	signals         map[string]model.Signal
	relationships   []model.SignalRelationship
	patterns        []string
	triggered       map[string]bool
	lastSelection   model.SelectionResult
	stopped         bool
	completedAt     time.Time
}

func NewSession(patient model.PatientContext, deps Deps) *Session {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Config == nil {
		deps.Config = config.Default()
	}
	cfg := deps.Config
	id := uuid.New().String()

	s := &Session{
		ID:        id,
		Patient:   patient,
		StartedAt: time.Now(),
		deps:      deps,
		analyzer:  analysis.NewAnalyzer(deps.Invoker),
		merger:    merge.NewMerger(),
		relation:  relation.NewEngine(),
		clusters:  relation.NewClusterDetector(),
		batches:   batch.NewController(cfg.Batching.MinMeaningfulContent, cfg.MaxWait()),
		recorder: workflow.NewRecorder(map[string]interface{}{
			"session_id":  id,
			"patient_sex": patient.Sex,
			"patient_age": patient.Age,
		}),
		signals:   make(map[string]model.Signal),
		triggered: make(map[string]bool),
	}
	s.log = deps.Logger.With("session", s.ID)
	s.orch = qom.NewOrchestrator(s.log, qom.SinkFunc(s.publish), cfg.Debounce(), cfg.RetryDelay())
	s.audio = batch.NewAudioBuffer(cfg.Audio.MaxSamples, cfg.AudioFlushTimeout(), s.onAudioFlush)

	s.orch.Submit(model.Event{
		Type: model.EventQOMInitialized,
		InitialNodes: []model.ExpertNode{
			{ID: nodeInput, Name: "Transcript Intake", Type: model.NodeTypeInput, Layer: 0, Children: []string{nodePrimary}},
			{ID: nodePrimary, Name: "General Practitioner", Type: model.NodeTypePrimary, Layer: 1, Parent: nodeInput, Children: []string{nodeMerger}, FallbackModel: "gpt-4o-mini"},
			{ID: nodeMerger, Name: "Consensus Merger", Type: model.NodeTypeMerger, Layer: 2, Parent: nodePrimary, Children: []string{nodeOutput}},
			{ID: nodeOutput, Name: "Session Output", Type: model.NodeTypeOutput, Layer: 3, Parent: nodeMerger},
		},
		InitialLinks: []model.ExpertLink{
			{ID: "init-input-gp", Source: nodeInput, Target: nodePrimary, Type: model.LinkDataFlow, Strength: 1, Active: true},
			{ID: "init-gp-merger", Source: nodePrimary, Target: nodeMerger, Type: model.LinkDataFlow, Strength: 1, Active: true},
			{ID: "init-merger-output", Source: nodeMerger, Target: nodeOutput, Type: model.LinkDataFlow, Strength: 1, Active: true},
		},
	})
	return s
}

// publish stamps outgoing graph events with the session id.
func (s *Session) publish(ev model.Event) {
	if s.deps.Events == nil {
		return
	}
	ev.SessionID = s.ID
	s.deps.Events.Publish(ev)
}

// AppendTranscript adds text to the running transcript and analyzes the full
// accumulated text once enough new content (or enough time) has built up.
// Returns whether an analysis pass ran.
func (s *Session) AppendTranscript(ctx context.Context, text string) (bool, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false, ErrSessionStopped
	}
	if strings.TrimSpace(text) != "" {
		if s.transcript != "" {
			s.transcript += " "
		}
		s.transcript += strings.TrimSpace(text)
	}
	full := s.transcript
	s.mu.Unlock()

	if !s.batches.TryBegin(s.ID, len(full)) {
		return false, nil
	}

	err := s.runAnalysis(ctx, full)
	s.batches.Complete(s.ID, len(full), err == nil)
	return true, err
}

// AppendAudio buffers PCM samples; the buffer transcribes and feeds the
// transcript on threshold or inactivity flush.
func (s *Session) AppendAudio(samples []int16) error {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return ErrSessionStopped
	}
	if s.deps.Transcriber == nil {
		return ErrNoTranscriber
	}
	s.audio.Append(samples)
	return nil
}

func (s *Session) onAudioFlush(samples []int16) {
	if s.deps.Transcriber == nil || len(samples) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	transcript, err := s.deps.Transcriber.Transcribe(ctx, samples, s.deps.Config.Audio.SampleRate, "")
	if err != nil {
		s.log.Error("audio transcription failed", "err", err)
		return
	}
	s.log.Debug("audio flushed", "samples", len(samples), "confidence", transcript.Confidence)
	if _, err := s.AppendTranscript(ctx, transcript.Text); err != nil {
		s.log.Error("transcript append from audio failed", "err", err)
	}
}

// runAnalysis is one full pass: select a provider, invoke the analyzer over
// the whole transcript, merge items, refresh relationships, grow the expert
// graph, and record the step for replay.
func (s *Session) runAnalysis(ctx context.Context, full string) error {
	start := time.Now()
	s.mu.Lock()
	s.passCount++
	pass := s.passCount
	s.mu.Unlock()

	criteria := model.SelectionCriteria{
		DocumentType:    "transcript",
		EstimatedTokens: len(full)/4 + 500,
	}
	selection, err := s.deps.Selector.SelectOptimal(criteria)
	if err != nil {
		return fmt.Errorf("provider selection failed: %w", err)
	}
	s.mu.Lock()
	s.lastSelection = selection
	s.mu.Unlock()

	if pass == 1 {
		s.orch.Submit(model.Event{
			Type:   model.EventNodeStarted,
			NodeID: nodePrimary,
			Patch:  &model.NodePatch{Provider: selection.SelectedProvider},
		})
	}

	res, err := s.analyzer.Analyze(ctx, full, s.Patient)
	if err != nil {
		s.orch.Submit(model.Event{
			Type:      model.EventNodeFailed,
			NodeID:    nodePrimary,
			WillRetry: true,
			Patch:     &model.NodePatch{Error: err.Error()},
		})
		s.recordStep(pass, start, model.MergeSummary{}, err)
		return err
	}

	summary := s.mergeResults(res)
	patterns := s.refreshSignals(res.Signals)
	s.spliceSpecialists(ctx, patterns)

	progress := minFloat(float64(pass)/10.0, 0.9)
	s.orch.Submit(model.Event{
		Type:   model.EventNodeProgress,
		NodeID: nodePrimary,
		Patch: &model.NodePatch{
			Progress: &progress,
			Output: map[string]interface{}{
				"items_total":   summary.Total,
				"items_added":   summary.Added,
				"items_updated": summary.Updated,
			},
		},
	})

	s.recordStep(pass, start, summary, nil)
	s.mu.Lock()
	s.lastAnalyzedLen = len(full)
	s.mu.Unlock()

	s.log.Info("analysis pass completed",
		"pass", pass,
		"provider", selection.SelectedProvider,
		"added", summary.Added,
		"updated", summary.Updated,
	)
	return nil
}

// mergeResults folds one pass's extracted items into the per-type stores.
// The merger itself is not concurrency safe; the session mutex covers it.
func (s *Session) mergeResults(res analysis.Result) model.MergeSummary {
	grouped := make(map[model.ItemType][]model.ExtractedItem)
	for _, item := range res.Items {
		t := item.Payload.Kind()
		grouped[t] = append(grouped[t], item)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var summary model.MergeSummary
	for t, items := range grouped {
		r := s.merger.MergeItems(items, t)
		summary.Added += r.Summary.Added
		summary.Updated += r.Summary.Updated
	}
	for _, t := range allItemTypes {
		summary.Total += len(s.merger.Items(t))
	}
	return summary
}

var allItemTypes = []model.ItemType{
	model.ItemDiagnosis,
	model.ItemTreatment,
	model.ItemMedication,
	model.ItemFollowUp,
	model.ItemQuestion,
	model.ItemRecommendation,
}

// refreshSignals ingests new signal values (latest value wins per name) and
// recomputes relationships and pattern flags over the full set. Returns the
// patterns that are new this pass.
func (s *Session) refreshSignals(incoming []model.Signal) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sig := range incoming {
		// Canonical lowercase names: the rule tables and cluster edges all
		// key on them.
		sig.Name = strings.ToLower(sig.Name)
		s.signals[sig.Name] = sig
	}
	all := s.signalsLocked()

	s.relationships = s.relation.AnalyzeRelationships(all, s.Patient)
	detected := s.relation.DetectClinicalPatterns(all, s.Patient)

	known := make(map[string]bool, len(s.patterns))
	for _, p := range s.patterns {
		known[p] = true
	}
	var fresh []string
	for _, p := range detected {
		if !known[p] {
			fresh = append(fresh, p)
		}
	}
	s.patterns = detected
	return fresh
}

func (s *Session) signalsLocked() []model.Signal {
	names := make([]string, 0, len(s.signals))
	for name := range s.signals {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]model.Signal, 0, len(names))
	for _, name := range names {
		out = append(out, s.signals[name])
	}
	return out
}

// specialist describes the expert spawned for a clinical pattern.
type specialist struct {
	id       string
	name     string
	category string
	focus    string
}

var patternSpecialists = map[string]specialist{
	relation.PatternDiabetes:     {id: "endocrinology", name: "Endocrinology", category: "endocrinology", focus: "glycemic control and diabetes workup"},
	relation.PatternHypothyroid:  {id: "endocrinology", name: "Endocrinology", category: "endocrinology", focus: "thyroid function"},
	relation.PatternHyperthyroid: {id: "endocrinology", name: "Endocrinology", category: "endocrinology", focus: "thyroid function"},
	relation.PatternAnemia:       {id: "hematology", name: "Hematology", category: "hematology", focus: "anemia workup and red cell indices"},
	relation.PatternKidney:       {id: "nephrology", name: "Nephrology", category: "nephrology", focus: "renal function"},
	relation.PatternLiver:        {id: "hepatology", name: "Hepatology", category: "hepatology", focus: "liver enzyme elevation"},
}

// spliceSpecialists grows the expert graph for newly detected patterns and
// runs each new specialist's focused assessment.
func (s *Session) spliceSpecialists(ctx context.Context, patterns []string) {
	var fresh []specialist
	s.mu.Lock()
	for _, p := range patterns {
		sp, ok := patternSpecialists[p]
		if !ok || s.triggered[sp.id] {
			continue
		}
		s.triggered[sp.id] = true
		fresh = append(fresh, sp)
	}
	s.mu.Unlock()

	for _, sp := range fresh {
		s.orch.Submit(model.Event{
			Type:     model.EventExpertTriggered,
			ParentID: nodePrimary,
			ChildID:  nodeMerger,
			NewNode: &model.ExpertNode{
				ID:       sp.id,
				Name:     sp.name,
				Type:     model.NodeTypeSpecialist,
				Category: sp.category,
				Layer:    2,
			},
		})
	}
	if len(fresh) > 0 {
		s.orch.FlushNow()
		for _, sp := range fresh {
			s.runSpecialist(ctx, sp)
		}
	}
}

var specialistSchema = []byte(`{
  "type": "object",
  "properties": {
    "assessment": {"type": "string"},
    "severity": {"type": "string", "enum": ["mild", "moderate", "severe", "unknown"]},
    "confidence": {"type": "number"}
  },
  "required": ["assessment"]
}`)

func (s *Session) runSpecialist(ctx context.Context, sp specialist) {
	s.orch.Submit(model.Event{Type: model.EventNodeStarted, NodeID: sp.id})

	s.mu.Lock()
	signals := s.signalsLocked()
	transcript := s.transcript
	s.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "You are a %s consultant reviewing a consultation. Focus on %s.\n", sp.name, sp.focus)
	b.WriteString("Relevant measurements:\n")
	for _, sig := range signals {
		fmt.Fprintf(&b, "- %s: %v %s\n", sig.Name, sig.Value, sig.Unit)
	}
	b.WriteString("\nTranscript:\n")
	b.WriteString(transcript)
	b.WriteString("\nGive a short focused assessment.")

	raw, err := s.deps.Invoker.Invoke(ctx, b.String(), specialistSchema)
	if err != nil {
		s.orch.Submit(model.Event{
			Type:      model.EventNodeFailed,
			NodeID:    sp.id,
			WillRetry: true,
			Patch:     &model.NodePatch{Error: err.Error()},
		})
		return
	}

	type assessment struct {
		Assessment string  `json:"assessment"`
		Severity   string  `json:"severity"`
		Confidence float64 `json:"confidence"`
	}
	parsed, err := llm.ParseJSON[assessment](string(raw))
	if err != nil {
		s.orch.Submit(model.Event{
			Type:   model.EventNodeFailed,
			NodeID: sp.id,
			Patch:  &model.NodePatch{Error: err.Error()},
		})
		return
	}

	s.orch.Submit(model.Event{
		Type:   model.EventNodeCompleted,
		NodeID: sp.id,
		Patch: &model.NodePatch{
			Output: map[string]interface{}{
				"assessment": parsed.Assessment,
				"severity":   parsed.Severity,
				"confidence": parsed.Confidence,
			},
		},
	})
}

func (s *Session) recordStep(pass int, start time.Time, summary model.MergeSummary, err error) {
	s.mu.Lock()
	relCount := len(s.relationships)
	patterns := append([]string(nil), s.patterns...)
	s.mu.Unlock()

	step := workflow.Step{
		StepID:     uuid.New().String(),
		StepName:   fmt.Sprintf("analysis_pass_%d", pass),
		DurationMs: float64(time.Since(start).Milliseconds()),
		OutputStateDelta: map[string]interface{}{
			"items_added":   summary.Added,
			"items_updated": summary.Updated,
			"items_total":   summary.Total,
			"relationships": relCount,
			"patterns":      patterns,
		},
	}
	if err != nil {
		step.Errors = []string{err.Error()}
	}
	s.recorder.Record(step)
}

// Stop closes the session: drains buffered audio, runs a final pass over any
// unanalyzed tail, completes the graph, and exports the audit record.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSessionStopped
	}
	s.mu.Unlock()

	s.audio.Close()

	s.mu.Lock()
	full := s.transcript
	analyzed := s.lastAnalyzedLen
	s.mu.Unlock()

	var passErr error
	if len(full) > analyzed {
		passErr = s.runAnalysis(ctx, full)
	}

	s.mu.Lock()
	summary := model.MergeSummary{}
	for _, t := range allItemTypes {
		summary.Total += len(s.merger.Items(t))
	}
	s.mu.Unlock()

	s.orch.Submit(model.Event{
		Type:   model.EventNodeCompleted,
		NodeID: nodePrimary,
		Patch:  &model.NodePatch{Output: map[string]interface{}{"items_total": summary.Total}},
	})
	s.orch.Submit(model.Event{Type: model.EventNodeStarted, NodeID: nodeMerger})
	s.orch.Submit(model.Event{
		Type:   model.EventNodeCompleted,
		NodeID: nodeMerger,
		Patch:  &model.NodePatch{Output: map[string]interface{}{"merged_items": summary.Total}},
	})
	s.orch.Submit(model.Event{Type: model.EventQOMCompleted})
	s.orch.FlushNow()

	s.mu.Lock()
	s.stopped = true
	s.completedAt = time.Now()
	started, completed := s.StartedAt, s.completedAt
	s.mu.Unlock()

	s.batches.Drop(s.ID)

	if s.deps.Exporter != nil {
		nodes, links := s.orch.Snapshot()
		succeeded, failed, _ := s.orch.Counts()
		if err := s.deps.Exporter.ExportSession(ctx, s.ID, started, completed, succeeded, failed, nodes, links); err != nil {
			s.log.Error("session graph export failed", "err", err)
		}
	}

	s.log.Info("session stopped", "items", summary.Total)
	return passErr
}

// Items returns the merged items of one type, in first-seen order.
func (s *Session) Items(t model.ItemType) []*model.MergedItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.merger.Items(t)
}

func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

func (s *Session) Signals() []model.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signalsLocked()
}

func (s *Session) Relationships() []model.SignalRelationship {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.SignalRelationship(nil), s.relationships...)
}

func (s *Session) Patterns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.patterns...)
}

// Suggestions lists companion measurements worth asking for, given the
// signals seen so far.
func (s *Session) Suggestions() []string {
	s.mu.Lock()
	signals := s.signalsLocked()
	s.mu.Unlock()
	return s.relation.SuggestMissingSignals(signals)
}

// SignalClusters groups related signals by label propagation over the
// current relationship edges.
func (s *Session) SignalClusters() [][]string {
	s.mu.Lock()
	signals := s.signalsLocked()
	rels := append([]model.SignalRelationship(nil), s.relationships...)
	s.mu.Unlock()
	return s.clusters.Detect(signals, rels)
}

// Graph returns the current expert DAG.
func (s *Session) Graph() ([]model.ExpertNode, []model.ExpertLink) {
	return s.orch.Snapshot()
}

func (s *Session) Consensus() (qom.ConsensusResult, bool) {
	return s.orch.Consensus()
}

// Recording freezes the workflow trace recorded so far.
func (s *Session) Recording() workflow.Recording {
	return s.recorder.Snapshot()
}

func (s *Session) LastSelection() model.SelectionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSelection
}

func (s *Session) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
