//go:build integration

package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/consilium/internal/config"
	"github.com/halcyonlabs/consilium/internal/core"
	"github.com/halcyonlabs/consilium/internal/core/model"
	"github.com/halcyonlabs/consilium/internal/core/provider"
	"github.com/halcyonlabs/consilium/internal/driver"
	"github.com/halcyonlabs/consilium/internal/llm"
	"github.com/halcyonlabs/consilium/internal/logger"
)

// TestSessionFlow runs a full consultation against the configured LLM
// provider and, when Memgraph is reachable, exports the expert graph.
func TestSessionFlow(t *testing.T) {
	_ = godotenv.Load("../../.env")

	cfg, err := config.Load("../../config/config.toml")
	if err != nil {
		t.Logf("Config not found, using default: %v", err)
		cfg = config.Default()
		cfg.LLM = config.LLMConfig{
			Provider: "ollama",
			Model:    "gpt-oss:latest",
			BaseURL:  "http://localhost:11434",
		}
	}
	if apiKey := os.Getenv("LLM_API_KEY"); apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	// Analyze on every append so the test does not depend on content volume.
	cfg.Batching.MinMeaningfulContent = 1

	log, err := logger.New("development")
	require.NoError(t, err)

	ctx := context.Background()
	invoker, transcriber, err := llm.NewClient(ctx, cfg.LLM)
	require.NoError(t, err)

	var exporter *driver.Exporter
	var d *driver.MemgraphDriver
	if uri := cfg.Memgraph.URI; uri != "" {
		d, err = driver.NewMemgraphDriver(uri, cfg.Memgraph.User, cfg.Memgraph.Password, log)
		if err != nil {
			t.Logf("Memgraph unavailable, skipping export checks: %v", err)
		} else {
			defer d.Close(ctx)
			exporter = driver.NewExporter(d, log)
		}
	}

	manager := core.NewManager(core.Deps{
		Logger:      log,
		Invoker:     invoker,
		Transcriber: transcriber,
		Selector:    provider.NewSelector(cfg.Providers, cfg.PreferredProviders),
		Exporter:    exporter,
		Config:      cfg,
	})

	session := manager.Create(model.PatientContext{Sex: "female", Age: 52})
	defer func() {
		if !session.Stopped() {
			_, _ = manager.Stop(ctx, session.ID)
		}
	}()
	if d != nil {
		defer func() {
			_, _ = d.ExecuteQuery(ctx,
				`MATCH (s:Session {id: $id})-[:RAN]->(n) DETACH DELETE s, n`,
				map[string]interface{}{"id": session.ID})
		}()
	}

	analyzed, err := session.AppendTranscript(ctx,
		"Patient complains of constant thirst and frequent urination for three months. "+
			"Fasting glucose measured at 152 mg/dL, HbA1c is 7.4 percent. "+
			"We will start metformin 500mg twice daily and repeat labs in three months.")
	require.NoError(t, err)
	require.True(t, analyzed)

	require.NotEmpty(t, session.Items(model.ItemDiagnosis), "a diabetes diagnosis should be extracted")
	assert.NotEmpty(t, session.Signals())
	assert.NotEmpty(t, session.Patterns())

	// A second append with overlapping content must merge, not duplicate.
	before := len(session.Items(model.ItemDiagnosis))
	deadline := time.Now().Add(cfg.MaxWait())
	for {
		analyzed, err = session.AppendTranscript(ctx,
			"To repeat: glucose 152, HbA1c 7.4, continuing metformin 500mg twice daily.")
		require.NoError(t, err)
		if analyzed || time.Now().After(deadline) {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	assert.LessOrEqual(t, len(session.Items(model.ItemDiagnosis)), before+1)

	stopped, err := manager.Stop(ctx, session.ID)
	require.NoError(t, err)

	nodes, _ := stopped.Graph()
	assert.GreaterOrEqual(t, len(nodes), 4)
	consensus, ok := stopped.Consensus()
	require.True(t, ok)
	t.Logf("consensus: %+v", consensus)

	rec := stopped.Recording()
	assert.NotEmpty(t, rec.Steps)

	if d != nil {
		res, err := d.ExecuteQuery(ctx, driver.GetSessionGraphQuery,
			map[string]interface{}{"session_id": session.ID})
		require.NoError(t, err)
		assert.NotEmpty(t, res.Records, "exported expert nodes should be queryable")
	}
}
