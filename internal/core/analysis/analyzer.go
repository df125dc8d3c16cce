package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/halcyonlabs/consilium/internal/core/model"
	"github.com/halcyonlabs/consilium/internal/llm"
)

// Analyzer turns a consultation transcript into structured clinical items
// and numeric signals through one structured LLM invocation.
type Analyzer struct {
	LLM llm.Invoker
}

func NewAnalyzer(client llm.Invoker) *Analyzer {
	return &Analyzer{LLM: client}
}

// Result is the output of one analysis pass, before merging.
type Result struct {
	Items   []model.ExtractedItem
	Signals []model.Signal
}

type wireItem struct {
	Name        string  `json:"name,omitempty"`
	Description string  `json:"description,omitempty"`
	Text        string  `json:"text,omitempty"`
	Probability float64 `json:"probability,omitempty"`
	Basis       string  `json:"basis,omitempty"`
	Code        string  `json:"code,omitempty"`
	Target      string  `json:"target,omitempty"`
	Dosage      string  `json:"dosage,omitempty"`
	Frequency   string  `json:"frequency,omitempty"`
	Purpose     string  `json:"purpose,omitempty"`
	Timeframe   string  `json:"timeframe,omitempty"`
	Urgency     string  `json:"urgency,omitempty"`
	Category    string  `json:"category,omitempty"`
	Priority    string  `json:"priority,omitempty"`
	Origin      string  `json:"origin,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
}

type wireSignal struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
	Unit  string      `json:"unit,omitempty"`
}

type wireResponse struct {
	Diagnoses       []wireItem   `json:"diagnoses"`
	Treatments      []wireItem   `json:"treatments"`
	Medications     []wireItem   `json:"medications"`
	FollowUps       []wireItem   `json:"follow_ups"`
	Questions       []wireItem   `json:"questions"`
	Recommendations []wireItem   `json:"recommendations"`
	Signals         []wireSignal `json:"signals"`
}

// analysisSchema constrains the structured invocation to the wire format above.
var analysisSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "diagnoses": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "probability": {"type": "number"},
          "basis": {"type": "string"},
          "code": {"type": "string", "description": "ICD-10 code if known"},
          "origin": {"type": "string", "enum": ["doctor", "suggestion"]},
          "confidence": {"type": "number"}
        },
        "required": ["name"]
      }
    },
    "treatments": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "description": {"type": "string"},
          "target": {"type": "string"},
          "origin": {"type": "string", "enum": ["doctor", "suggestion"]},
          "confidence": {"type": "number"}
        },
        "required": ["description"]
      }
    },
    "medications": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "dosage": {"type": "string"},
          "frequency": {"type": "string"},
          "purpose": {"type": "string"},
          "origin": {"type": "string", "enum": ["doctor", "suggestion"]},
          "confidence": {"type": "number"}
        },
        "required": ["name"]
      }
    },
    "follow_ups": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "description": {"type": "string"},
          "timeframe": {"type": "string"},
          "urgency": {"type": "string"},
          "confidence": {"type": "number"}
        },
        "required": ["description"]
      }
    },
    "questions": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "text": {"type": "string"},
          "category": {"type": "string"},
          "priority": {"type": "string"},
          "confidence": {"type": "number"}
        },
        "required": ["text"]
      }
    },
    "recommendations": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "text": {"type": "string"},
          "urgency": {"type": "string"},
          "confidence": {"type": "number"}
        },
        "required": ["text"]
      }
    },
    "signals": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string", "description": "snake_case measurement name, e.g. hemoglobin"},
          "value": {},
          "unit": {"type": "string"}
        },
        "required": ["name", "value"]
      }
    }
  }
}`)

// Analyze runs one pass over the full transcript so far.
func (a *Analyzer) Analyze(ctx context.Context, transcript string, patient model.PatientContext) (Result, error) {
	prompt := buildPrompt(transcript, patient)

	raw, err := a.LLM.Invoke(ctx, prompt, analysisSchema)
	if err != nil {
		return Result{}, fmt.Errorf("analysis invocation failed: %w", err)
	}

	var resp wireResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Result{}, fmt.Errorf("failed to unmarshal analysis: %w", err)
	}
	return decode(resp), nil
}

func buildPrompt(transcript string, patient model.PatientContext) string {
	var b strings.Builder
	b.WriteString("You are analyzing a live medical consultation transcript.\n")
	b.WriteString("Extract every diagnosis, treatment, medication, follow-up, open question and recommendation mentioned or clearly implied, ")
	b.WriteString("and every numeric measurement (lab values, vitals) as a signal.\n")
	b.WriteString("Mark items the doctor stated with origin \"doctor\" and items you infer with origin \"suggestion\".\n")
	if patient.Sex != "" {
		fmt.Fprintf(&b, "Patient sex: %s.\n", patient.Sex)
	}
	if patient.Age > 0 {
		fmt.Fprintf(&b, "Patient age: %d.\n", patient.Age)
	}
	b.WriteString("\nTranscript:\n")
	b.WriteString(transcript)
	return b.String()
}

func decode(resp wireResponse) Result {
	var res Result
	add := func(p model.Payload, confidence float64) {
		if strings.TrimSpace(p.KeyText()) == "" {
			return
		}
		res.Items = append(res.Items, model.ExtractedItem{Payload: p, Confidence: confidence})
	}

	for _, w := range resp.Diagnoses {
		add(model.DiagnosisPayload{
			Name:        w.Name,
			Probability: w.Probability,
			Basis:       w.Basis,
			Code:        w.Code,
			Origin:      w.Origin,
		}, w.Confidence)
	}
	for _, w := range resp.Treatments {
		add(model.TreatmentPayload{
			Description: w.Description,
			Target:      w.Target,
			Origin:      w.Origin,
		}, w.Confidence)
	}
	for _, w := range resp.Medications {
		add(model.MedicationPayload{
			Name:      w.Name,
			Dosage:    w.Dosage,
			Frequency: w.Frequency,
			Purpose:   w.Purpose,
			Origin:    w.Origin,
		}, w.Confidence)
	}
	for _, w := range resp.FollowUps {
		add(model.FollowUpPayload{
			Description: w.Description,
			Timeframe:   w.Timeframe,
			Urgency:     w.Urgency,
		}, w.Confidence)
	}
	for _, w := range resp.Questions {
		add(model.QuestionPayload{
			Text:     w.Text,
			Category: w.Category,
			Priority: w.Priority,
		}, w.Confidence)
	}
	for _, w := range resp.Recommendations {
		add(model.RecommendationPayload{
			Text:    w.Text,
			Urgency: w.Urgency,
		}, w.Confidence)
	}

	for _, s := range resp.Signals {
		if s.Name == "" {
			continue
		}
		res.Signals = append(res.Signals, model.Signal{
			Name:  s.Name,
			Value: s.Value,
			Unit:  s.Unit,
		})
	}
	return res
}
