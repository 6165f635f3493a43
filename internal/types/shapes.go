package types

import "researchnerd/internal/schema"

// StageOutput is the closed set of records a stage can produce. Each variant
// carries the shape its model output must satisfy.
type StageOutput interface {
	Shape() *schema.Shape
	stageOutput()
}

func (SubtaskList) stageOutput()       {}
func (ResearchResult) stageOutput()    {}
func (SynthesizedReport) stageOutput() {}
func (CriticReview) stageOutput()      {}

// Subtask count bounds for Decompose.
const (
	MinSubtasks = 2
	MaxSubtasks = 4
)

var (
	findingShape = schema.Object("Finding",
		schema.Required("claim", schema.NonEmptyString()),
		schema.Required("source", schema.URL()),
		schema.Required("details", schema.NonEmptyString()),
		schema.Optional("confidence", schema.Range(0, 1)),
	)

	subtaskListShape = &schema.Shape{
		Name:     "SubtaskList",
		Kind:     schema.KindArray,
		Elem:     schema.NonEmptyString(),
		MinItems: MinSubtasks,
		MaxItems: MaxSubtasks,
	}

	researchResultShape = schema.Object("ResearchResult",
		schema.Required("subtask", schema.NonEmptyString()),
		schema.Required("findings", schema.ArrayOf(findingShape)),
	)

	sectionShape = schema.Object("SynthesisSection",
		schema.Required("title", schema.NonEmptyString()),
		schema.Required("content", schema.NonEmptyString()),
		schema.Required("sources", schema.ArrayOf(schema.URL())),
	)

	synthesizedReportShape = schema.Object("SynthesizedReport",
		schema.Required("summary", schema.NonEmptyString()),
		schema.Required("sections", schema.ArrayOf(sectionShape).Items(1, 0)),
		schema.Optional("key_insights", schema.ArrayOf(schema.NonEmptyString())),
	)

	criticIssueShape = schema.Object("CriticIssue",
		schema.Required("type", schema.NonEmptyString()),
		schema.Required("description", schema.NonEmptyString()),
		schema.Required("severity", schema.NonEmptyString()),
		schema.Optional("location", schema.String()),
	)

	criticReviewShape = schema.Object("CriticReview",
		schema.Required("overall_quality", schema.NonEmptyString()),
		schema.Optional("issues", schema.ArrayOf(criticIssueShape)),
		schema.Optional("suggestions", schema.ArrayOf(schema.String())),
		schema.Required("needs_more_research", schema.Bool()),
	)

	searchInputShape = schema.Object("web_search input",
		schema.Required("query", schema.NonEmptyString()),
		schema.Optional("max_results", &schema.Shape{Kind: schema.KindInteger, Min: ptr(1), Max: ptr(20)}),
	)
)

func (SubtaskList) Shape() *schema.Shape       { return subtaskListShape }
func (ResearchResult) Shape() *schema.Shape    { return researchResultShape }
func (SynthesizedReport) Shape() *schema.Shape { return synthesizedReportShape }
func (CriticReview) Shape() *schema.Shape      { return criticReviewShape }

// SearchInputShape is the accepted input of the web_search tool.
func SearchInputShape() *schema.Shape { return searchInputShape }

// UnwrapSubtasks accepts both forms the decomposer emits: a bare array or
// {"subtasks": [...]}. Anything else is returned unchanged for validation to reject.
func UnwrapSubtasks(v any) any {
	if obj, ok := v.(map[string]any); ok {
		if inner, ok := obj["subtasks"]; ok {
			return inner
		}
	}
	return v
}

func ptr(f float64) *float64 { return &f }
