package server

import (
	"context"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/halcyonlabs/consilium/internal/config"
	"github.com/halcyonlabs/consilium/internal/core"
	"github.com/halcyonlabs/consilium/internal/core/model"
	"github.com/halcyonlabs/consilium/internal/core/provider"
	"github.com/halcyonlabs/consilium/internal/core/qom"
	"github.com/halcyonlabs/consilium/internal/core/workflow"
	"github.com/halcyonlabs/consilium/internal/driver"
	"github.com/halcyonlabs/consilium/internal/llm"
	"github.com/halcyonlabs/consilium/internal/logger"
	"github.com/halcyonlabs/consilium/internal/sse"
)

type Server struct {
	log      *logger.Logger
	cfg      *config.Config
	sessions *core.Manager
	hub      *sse.Hub
	selector *provider.Selector
}

func NewServer() *Server {
	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		panic(err)
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.toml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Warn("could not load config file, using defaults", "path", cfgPath, "err", err)
		cfg = config.Default()
	}
	applyEnvOverrides(cfg)

	invoker, transcriber, err := llm.NewClient(context.Background(), cfg.LLM)
	if err != nil {
		log.Fatal("failed to initialize LLM client", "err", err)
	}

	var exporter *driver.Exporter
	if cfg.Memgraph.URI != "" {
		d, err := driver.NewMemgraphDriver(cfg.Memgraph.URI, cfg.Memgraph.User, cfg.Memgraph.Password, log)
		if err != nil {
			log.Warn("Memgraph unavailable; session graphs will not be exported", "err", err)
		} else {
			if err := d.BuildIndices(context.Background()); err != nil {
				log.Warn("failed to build indices", "err", err)
			}
			exporter = driver.NewExporter(d, log)
		}
	}

	hub := sse.NewHub(log)
	selector := provider.NewSelector(cfg.Providers, cfg.PreferredProviders)
	manager := core.NewManager(core.Deps{
		Logger:      log,
		Invoker:     invoker,
		Transcriber: transcriber,
		Selector:    selector,
		Events:      qom.SinkFunc(hub.Broadcast),
		Exporter:    exporter,
		Config:      cfg,
	})

	return &Server{
		log:      log,
		cfg:      cfg,
		sessions: manager,
		hub:      hub,
		selector: selector,
	}
}

func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("MEMGRAPH_URI"); v != "" {
		cfg.Memgraph.URI = v
	}
	if v := os.Getenv("MEMGRAPH_USER"); v != "" {
		cfg.Memgraph.User = v
	}
	if v := os.Getenv("MEMGRAPH_PASSWORD"); v != "" {
		cfg.Memgraph.Password = v
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "ollama"
		cfg.LLM.Model = "gpt-oss:latest"
		cfg.LLM.BaseURL = "http://localhost:11434"
	}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.Default()

	r.POST("/sessions", s.CreateSession)
	r.GET("/sessions", s.ListSessions)
	r.DELETE("/sessions/:id", s.StopSession)

	r.POST("/sessions/:id/transcript", s.AppendTranscript)
	r.POST("/sessions/:id/audio", s.AppendAudio)

	r.GET("/sessions/:id/items", s.GetItems)
	r.GET("/sessions/:id/relationships", s.GetRelationships)
	r.GET("/sessions/:id/graph", s.GetGraph)
	r.GET("/sessions/:id/recording", s.GetRecording)
	r.POST("/sessions/:id/replay", s.ReplaySession)
	r.GET("/sessions/:id/events", s.StreamEvents)

	r.POST("/providers/select", s.SelectProvider)

	return r
}

// StopAll closes every live session, for graceful shutdown.
func (s *Server) StopAll(ctx context.Context) {
	s.sessions.StopAll(ctx)
}

type CreateSessionRequest struct {
	PatientSex string `json:"patient_sex"`
	PatientAge int    `json:"patient_age"`
}

func (s *Server) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	session := s.sessions.Create(model.PatientContext{Sex: req.PatientSex, Age: req.PatientAge})
	c.JSON(http.StatusCreated, gin.H{"session_id": session.ID})
}

func (s *Server) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.sessions.List()})
}

func (s *Server) session(c *gin.Context) (*core.Session, bool) {
	session, ok := s.sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return session, true
}

type AppendTranscriptRequest struct {
	Text string `json:"text" binding:"required"`
}

func (s *Server) AppendTranscript(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	var req AppendTranscriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	analyzed, err := session.AppendTranscript(c.Request.Context(), req.Text)
	if err != nil {
		s.log.Error("transcript analysis failed", "session", session.ID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed", "analyzed": analyzed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyzed": analyzed})
}

type AppendAudioRequest struct {
	Samples []int16 `json:"samples" binding:"required"`
}

func (s *Server) AppendAudio(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	var req AppendAudioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := session.AppendAudio(req.Samples); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"buffered": len(req.Samples)})
}

func (s *Server) GetItems(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}

	if t := c.Query("type"); t != "" {
		c.JSON(http.StatusOK, gin.H{"items": session.Items(model.ItemType(t))})
		return
	}

	items := make(map[model.ItemType][]*model.MergedItem)
	for _, t := range []model.ItemType{
		model.ItemDiagnosis, model.ItemTreatment, model.ItemMedication,
		model.ItemFollowUp, model.ItemQuestion, model.ItemRecommendation,
	} {
		items[t] = session.Items(t)
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) GetRelationships(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"signals":       session.Signals(),
		"relationships": session.Relationships(),
		"patterns":      session.Patterns(),
		"suggestions":   session.Suggestions(),
		"clusters":      session.SignalClusters(),
	})
}

func (s *Server) GetGraph(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	nodes, links := session.Graph()
	resp := gin.H{"nodes": nodes, "links": links}
	if consensus, ok := session.Consensus(); ok {
		resp["consensus"] = consensus
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetRecording(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.Recording())
}

type ReplayRequest struct {
	StopAt string   `json:"stop_at,omitempty"`
	Skip   []string `json:"skip,omitempty"`
}

// ReplaySession re-executes the recorded workflow trace deterministically and
// returns the reconstructed state, with a diff against a second replay as a
// determinism check.
func (s *Server) ReplaySession(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	var req ReplayRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	opts := workflow.ReplayOptions{StopAt: req.StopAt}
	if len(req.Skip) > 0 {
		opts.Skip = make(map[string]bool, len(req.Skip))
		for _, id := range req.Skip {
			opts.Skip[id] = true
		}
	}

	rec := session.Recording()
	state, err := workflow.NewReplayer(rec, opts).Run(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	verify, err := workflow.NewReplayer(rec, opts).Run(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"state": state,
		"diffs": workflow.CompareStates(state, verify),
		"steps": len(rec.Steps),
	})
}

func (s *Server) StreamEvents(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}

	client := s.hub.Subscribe(session.ID)
	defer s.hub.Unsubscribe(client)
	s.hub.ServeHTTP(c.Writer, c.Request, client)
}

func (s *Server) StopSession(c *gin.Context) {
	session, err := s.sessions.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		if session == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		s.log.Error("session stop finished with errors", "session", session.ID, "err", err)
	}

	resp := gin.H{"stopped": true, "recording": session.Recording()}
	if consensus, ok := session.Consensus(); ok {
		resp["consensus"] = consensus
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) SelectProvider(c *gin.Context) {
	var criteria model.SelectionCriteria
	if err := c.ShouldBindJSON(&criteria); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	result, err := s.selector.SelectOptimal(criteria)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
