package tasks

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// ArtifactType tags the content payload of an Artifact.
type ArtifactType string

const (
	ArtifactPlan               ArtifactType = "plan"
	ArtifactImplementationPlan ArtifactType = "implementation_plan"
	ArtifactCodePatch          ArtifactType = "code_patch"
	ArtifactScreenshot         ArtifactType = "screenshot"
	ArtifactWalkthrough        ArtifactType = "walkthrough"
	ArtifactReasoning          ArtifactType = "reasoning"
)

// ArtifactContent is the closed set of artifact payloads. Only types in this
// package implement it.
type ArtifactContent interface {
	ArtifactType() ArtifactType
	cloneContent() ArtifactContent
}

// ArtifactMetadata carries versioning information.
type ArtifactMetadata struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
	Summary   string    `json:"summary,omitempty"`
}

// Artifact is a typed, versioned output unit produced by a role.
type Artifact struct {
	ID       string           `json:"id"`
	Type     ArtifactType     `json:"type"`
	AgentID  string           `json:"agent_id,omitempty"`
	TaskID   string           `json:"task_id"`
	Content  ArtifactContent  `json:"-"`
	Metadata ArtifactMetadata `json:"metadata"`
	Feedback []Feedback       `json:"feedback"`
}

func (a Artifact) Clone() Artifact {
	if a.Content != nil {
		a.Content = a.Content.cloneContent()
	}
	a.Feedback = slices.Clone(a.Feedback)
	return a
}

// WithFeedback returns a copy of a with fb appended and the version bumped by one.
func (a Artifact) WithFeedback(fb Feedback, now time.Time) Artifact {
	next := a.Clone()
	fb.ArtifactID = a.ID
	next.Feedback = append(next.Feedback, fb)
	next.Metadata.Version = a.Metadata.Version + 1
	next.Metadata.UpdatedAt = now
	return next
}

type artifactJSON struct {
	ID       string           `json:"id"`
	Type     ArtifactType     `json:"type"`
	AgentID  string           `json:"agent_id,omitempty"`
	TaskID   string           `json:"task_id"`
	Content  json.RawMessage  `json:"content"`
	Metadata ArtifactMetadata `json:"metadata"`
	Feedback []Feedback       `json:"feedback"`
}

func (a Artifact) MarshalJSON() ([]byte, error) {
	if a.Content != nil && a.Content.ArtifactType() != a.Type {
		return nil, fmt.Errorf("artifact %s: content type %q does not match %q", a.ID, a.Content.ArtifactType(), a.Type)
	}
	content := json.RawMessage("null")
	if a.Content != nil {
		data, err := json.Marshal(a.Content)
		if err != nil {
			return nil, fmt.Errorf("marshal artifact content: %w", err)
		}
		content = data
	}
	return json.Marshal(artifactJSON{
		ID:       a.ID,
		Type:     a.Type,
		AgentID:  a.AgentID,
		TaskID:   a.TaskID,
		Content:  content,
		Metadata: a.Metadata,
		Feedback: a.Feedback,
	})
}

func (a *Artifact) UnmarshalJSON(data []byte) error {
	var raw artifactJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	content, err := decodeContent(raw.Type, raw.Content)
	if err != nil {
		return fmt.Errorf("artifact %s: %w", raw.ID, err)
	}
	*a = Artifact{
		ID:       raw.ID,
		Type:     raw.Type,
		AgentID:  raw.AgentID,
		TaskID:   raw.TaskID,
		Content:  content,
		Metadata: raw.Metadata,
		Feedback: raw.Feedback,
	}
	return nil
}

func decodeContent(typ ArtifactType, data json.RawMessage) (ArtifactContent, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var c ArtifactContent
	switch typ {
	case ArtifactPlan:
		c = &PlanContent{}
	case ArtifactImplementationPlan:
		c = &ImplementationPlanContent{}
	case ArtifactCodePatch:
		c = &CodePatchContent{}
	case ArtifactScreenshot:
		c = &ScreenshotContent{}
	case ArtifactWalkthrough:
		c = &WalkthroughContent{}
	case ArtifactReasoning:
		c = &ReasoningContent{}
	default:
		return nil, fmt.Errorf("unknown artifact type %q", typ)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("decode %s content: %w", typ, err)
	}
	return c, nil
}

// PlanContent is the payload of a plan artifact.
type PlanContent struct {
	Plan     Plan   `json:"plan"`
	Markdown string `json:"markdown"`
}

func (*PlanContent) ArtifactType() ArtifactType { return ArtifactPlan }

func (c *PlanContent) cloneContent() ArtifactContent {
	n := *c
	n.Plan = *c.Plan.Clone()
	return &n
}

// ImplementationPlanContent is the payload of an implementation_plan artifact.
type ImplementationPlanContent struct {
	Plan     ImplementationPlan `json:"plan"`
	Markdown string             `json:"markdown"`
}

func (*ImplementationPlanContent) ArtifactType() ArtifactType { return ArtifactImplementationPlan }

func (c *ImplementationPlanContent) cloneContent() ArtifactContent {
	n := *c
	n.Plan = *c.Plan.Clone()
	return &n
}

// CodePatch is a single file change produced by the coder.
type CodePatch struct {
	Path    string     `json:"path"`
	Action  FileAction `json:"action"`
	Content string     `json:"content,omitempty"`
	Applied bool       `json:"applied"`
	Error   string     `json:"error,omitempty"`
}

// CodePatchContent is the payload of a code_patch artifact.
type CodePatchContent struct {
	Patches  []CodePatch `json:"patches"`
	Markdown string      `json:"markdown"`
}

func (*CodePatchContent) ArtifactType() ArtifactType { return ArtifactCodePatch }

func (c *CodePatchContent) cloneContent() ArtifactContent {
	n := *c
	n.Patches = slices.Clone(c.Patches)
	return &n
}

// ScreenshotContent is the payload of a screenshot artifact.
type ScreenshotContent struct {
	Path     string `json:"path"`
	URL      string `json:"url,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Markdown string `json:"markdown"`
}

func (*ScreenshotContent) ArtifactType() ArtifactType { return ArtifactScreenshot }

func (c *ScreenshotContent) cloneContent() ArtifactContent {
	n := *c
	return &n
}

// Section is one heading + body pair of a walkthrough.
type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// WalkthroughContent is the payload of a walkthrough artifact.
type WalkthroughContent struct {
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
	Markdown string    `json:"markdown"`
}

func (*WalkthroughContent) ArtifactType() ArtifactType { return ArtifactWalkthrough }

func (c *WalkthroughContent) cloneContent() ArtifactContent {
	n := *c
	n.Sections = slices.Clone(c.Sections)
	return &n
}

// ReasoningContent is the payload of a reasoning artifact.
type ReasoningContent struct {
	Role     Role     `json:"role"`
	Entries  []string `json:"entries"`
	Markdown string   `json:"markdown"`
}

func (*ReasoningContent) ArtifactType() ArtifactType { return ArtifactReasoning }

func (c *ReasoningContent) cloneContent() ArtifactContent {
	n := *c
	n.Entries = slices.Clone(c.Entries)
	return &n
}

var (
	_ ArtifactContent = (*PlanContent)(nil)
	_ ArtifactContent = (*ImplementationPlanContent)(nil)
	_ ArtifactContent = (*CodePatchContent)(nil)
	_ ArtifactContent = (*ScreenshotContent)(nil)
	_ ArtifactContent = (*WalkthroughContent)(nil)
	_ ArtifactContent = (*ReasoningContent)(nil)
)
