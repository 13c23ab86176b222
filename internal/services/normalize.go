package services

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/jonboulle/clockwork"

	"holiday-status-api/internal/models"
)

// Defaults applied when a field is missing or has the wrong type
const (
	ModelDefaultProbability  = 30
	ManualDefaultProbability = 1

	// NoStructuredOutputMessage is shown when the model reply held no usable JSON
	NoStructuredOutputMessage = "مدل هوش مصنوعی خروجی ساختاریافته برنگرداند؛ وضعیت با اطمینان پایین گزارش شده است."

	// NoReasonMessage fills a model overall that carried neither message nor reason
	NoReasonMessage = "مدل هوش مصنوعی دلیلی برای این وضعیت ارائه نکرد."
)

// Normalizer coerces model replies and operator overrides into an AnalysisResult
type Normalizer struct {
	clock clockwork.Clock
}

// NewNormalizer creates a normalizer. A nil clock means the real clock.
func NewNormalizer(clock clockwork.Clock) *Normalizer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Normalizer{clock: clock}
}

// ParseModelReply extracts and decodes the JSON object in a model reply.
// A nil map comes back with a non-nil error when nothing usable was found.
func ParseModelReply(raw string) (map[string]any, error) {
	candidate, ok := ExtractJSONObject(raw)
	if !ok {
		return nil, fmt.Errorf("no JSON object found in model reply")
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse model reply JSON: %w", err)
	}
	if parsed == nil {
		return nil, fmt.Errorf("model reply JSON is null")
	}
	return parsed, nil
}

// NormalizeReply runs ParseModelReply and Normalize in one step
func (n *Normalizer) NormalizeReply(raw string, fallbackSources int) models.AnalysisResult {
	parsed, err := ParseModelReply(raw)
	return n.Normalize(parsed, err, raw, fallbackSources)
}

// Normalize builds an AnalysisResult from a decoded model reply.
//
// parsed is nil when extraction or decoding failed; the result is then fully
// defaulted and carries raw and parseErr as diagnostics. fallbackSources is used
// whenever the reply has no positive sourcesCount.
func (n *Normalizer) Normalize(parsed map[string]any, parseErr error, raw string, fallbackSources int) models.AnalysisResult {
	now := models.FormatTimestamp(n.clock.Now())

	if parsed == nil {
		result := models.AnalysisResult{
			Overall: defaultOverall(fallbackSources, now),
			Grades:  defaultGrades(false, ModelDefaultProbability),
		}
		result.DebugRaw = raw
		if parseErr != nil {
			result.DebugError = parseErr.Error()
		} else {
			result.DebugError = "empty model reply"
		}
		return result
	}

	var overall models.OverallStatus
	if obj, ok := asObject(parsed["overall"]); ok {
		overall = models.OverallStatus{
			IsOff:        boolOr(obj["isOff"], false),
			Probability:  numberOr(obj["probability"], ModelDefaultProbability),
			SourcesCount: positiveIntOr(obj["sourcesCount"], fallbackSources),
			UpdatedAt:    now,
			Message:      messageOf(obj),
		}
		if overall.Message == "" {
			overall.Message = NoReasonMessage
		}
	} else {
		overall = defaultOverall(fallbackSources, now)
	}

	return models.AnalysisResult{
		Overall: overall,
		Grades:  normalizeGrades(parsed["grades"], overall.IsOff, ModelDefaultProbability),
	}
}

// BuildManualResult normalizes an operator-submitted override.
// The input is already structured, so no extraction step is involved.
func (n *Normalizer) BuildManualResult(manual map[string]any) models.AnalysisResult {
	obj, _ := asObject(manual["overall"])

	updatedAt, _ := obj["updatedAt"].(string)
	if strings.TrimSpace(updatedAt) == "" {
		updatedAt = models.FormatTimestamp(n.clock.Now())
	}

	sourcesCount := 0
	if v, ok := obj["sourcesCount"].(float64); ok && v > 0 {
		sourcesCount = int(v)
	}

	overall := models.OverallStatus{
		IsOff:        boolOr(obj["isOff"], false),
		Probability:  numberOr(obj["probability"], ManualDefaultProbability),
		SourcesCount: sourcesCount,
		UpdatedAt:    updatedAt,
		Message:      messageOf(obj),
	}

	return models.AnalysisResult{
		Overall:  overall,
		Grades:   normalizeGrades(manual["grades"], overall.IsOff, ManualDefaultProbability),
		Provider: models.ProviderManual,
	}
}

func defaultOverall(sourcesCount int, updatedAt string) models.OverallStatus {
	return models.OverallStatus{
		IsOff:        false,
		Probability:  ModelDefaultProbability,
		SourcesCount: sourcesCount,
		UpdatedAt:    updatedAt,
		Message:      NoStructuredOutputMessage,
	}
}

func defaultGrades(isOff bool, probability float64) models.GradeSet {
	var grades models.GradeSet
	for _, key := range models.GradeKeys() {
		grades.Set(key, models.ClosureStatus{IsOff: isOff, Probability: probability})
	}
	return grades
}

// normalizeGrades fills every fixed grade key. Missing keys and non-boolean
// isOff values inherit the overall isOff.
func normalizeGrades(raw any, overallIsOff bool, defaultProbability float64) models.GradeSet {
	obj, ok := asObject(raw)
	if !ok {
		return defaultGrades(overallIsOff, defaultProbability)
	}

	var grades models.GradeSet
	for _, key := range models.GradeKeys() {
		grade, _ := asObject(obj[key])
		grades.Set(key, models.ClosureStatus{
			IsOff:       boolOr(grade["isOff"], overallIsOff),
			Probability: numberOr(grade["probability"], defaultProbability),
			Message:     messageOf(grade),
		})
	}
	return grades
}

func asObject(v any) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	return obj, ok && obj != nil
}

func boolOr(v any, fallback bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return fallback
}

func numberOr(v any, fallback float64) float64 {
	if f, ok := v.(float64); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return fallback
}

func positiveIntOr(v any, fallback int) int {
	if f, ok := v.(float64); ok && f >= 1 {
		return int(f)
	}
	return fallback
}

// messageOf prefers "message" and falls back to the "reason" key the prompt asks for
func messageOf(obj map[string]any) string {
	if msg, ok := obj["message"].(string); ok && strings.TrimSpace(msg) != "" {
		return strings.TrimSpace(msg)
	}
	if reason, ok := obj["reason"].(string); ok {
		return strings.TrimSpace(reason)
	}
	return ""
}
