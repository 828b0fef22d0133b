package generation

import (
	"fmt"
	"strings"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
)

const jsonOnly = "Respond with a single JSON object and nothing else."

// Input тело запроса генерации для одного типа действия.
type Input interface {
	Action() domain.ActionType
	Prompt() Prompt
}

// DiagramInput запрос на генерацию диаграммы (mermaid).
type DiagramInput struct {
	Text        string `json:"prompt" validate:"required,max=4000"`
	DiagramType string `json:"diagramType" validate:"omitempty,oneof=flowchart sequence class er gantt mindmap"`
}

func (in *DiagramInput) Action() domain.ActionType { return domain.ActionDiagram }

func (in *DiagramInput) Prompt() Prompt {
	kind := in.DiagramType
	if kind == "" {
		kind = "flowchart"
	}
	return Prompt{
		System: "You create Mermaid diagrams. " + jsonOnly +
			` Use the shape {"title": string, "mermaid": string, "description": string}.`,
		User: fmt.Sprintf("Diagram type: %s\n\n%s", kind, in.Text),
	}
}

// LetterInput запрос на генерацию письма.
type LetterInput struct {
	Text      string `json:"prompt" validate:"required,max=4000"`
	Recipient string `json:"recipient" validate:"max=200"`
	Tone      string `json:"tone" validate:"omitempty,oneof=formal friendly persuasive neutral"`
}

func (in *LetterInput) Action() domain.ActionType { return domain.ActionLetter }

func (in *LetterInput) Prompt() Prompt {
	return Prompt{
		System: "You write professional letters. " + jsonOnly +
			` Use the shape {"subject": string, "greeting": string, "body": [string], "closing": string}.`,
		User: joinLines(
			field("Recipient", in.Recipient),
			field("Tone", orDefault(in.Tone, "formal")),
			in.Text,
		),
	}
}

// CoverLetterInput запрос на сопроводительное письмо под вакансию.
type CoverLetterInput struct {
	JobDescription string `json:"jobDescription" validate:"required,max=10000"`
	Resume         string `json:"resume" validate:"max=20000"`
	CompanyName    string `json:"companyName" validate:"max=200"`
	Name           string `json:"name" validate:"max=200"`
}

func (in *CoverLetterInput) Action() domain.ActionType { return domain.ActionCoverLetter }

func (in *CoverLetterInput) Prompt() Prompt {
	return Prompt{
		System: "You write tailored cover letters. " + jsonOnly +
			` Use the shape {"subject": string, "greeting": string, "body": [string], "closing": string, "signature": string}.`,
		User: joinLines(
			field("Candidate", in.Name),
			field("Company", in.CompanyName),
			"Job description:\n"+in.JobDescription,
			field("Resume", in.Resume),
		),
	}
}

// ATSInput запрос на анализ резюме под вакансию.
type ATSInput struct {
	ResumeText     string `json:"resumeText" validate:"required,max=20000"`
	JobDescription string `json:"jobDescription" validate:"required,max=10000"`
}

func (in *ATSInput) Action() domain.ActionType { return domain.ActionATSCheck }

func (in *ATSInput) Prompt() Prompt {
	return Prompt{
		System: "You are an applicant tracking system analyst. " + jsonOnly +
			` Use the shape {"score": number, "matchedKeywords": [string], "missingKeywords": [string], "suggestions": [string]}.`,
		User: "Job description:\n" + in.JobDescription + "\n\nResume:\n" + in.ResumeText,
	}
}

// ResumeInput запрос на генерацию резюме.
type ResumeInput struct {
	Text       string `json:"prompt" validate:"required,max=8000"`
	Name       string `json:"name" validate:"max=200"`
	Email      string `json:"email" validate:"omitempty,email"`
	TargetRole string `json:"targetRole" validate:"max=200"`
}

func (in *ResumeInput) Action() domain.ActionType { return domain.ActionResume }

func (in *ResumeInput) Prompt() Prompt {
	return Prompt{
		System: "You write concise, ATS-friendly resumes. " + jsonOnly +
			` Use the shape {"name": string, "email": string, "summary": string, "experience": [{"title": string, "company": string, "period": string, "highlights": [string]}], "education": [{"degree": string, "school": string, "year": string}], "skills": [string]}.`,
		User: joinLines(
			field("Name", in.Name),
			field("Email", in.Email),
			field("Target role", in.TargetRole),
			in.Text,
		),
	}
}

// PresentationInput запрос на презентацию; списание идет за каждый слайд.
type PresentationInput struct {
	Text       string `json:"prompt" validate:"required,max=8000"`
	SlideCount int    `json:"slideCount" validate:"required,min=1,max=50"`
	Style      string `json:"style" validate:"max=100"`
}

func (in *PresentationInput) Action() domain.ActionType { return domain.ActionPresentation }

// Slides множитель стоимости.
func (in *PresentationInput) Slides() int { return in.SlideCount }

func (in *PresentationInput) Prompt() Prompt {
	return Prompt{
		System: "You design slide decks. " + jsonOnly +
			` Use the shape {"title": string, "slides": [{"title": string, "bullets": [string], "notes": string}]}.`,
		User: joinLines(
			fmt.Sprintf("Exactly %d slides.", in.SlideCount),
			field("Style", in.Style),
			in.Text,
		),
	}
}

func field(label, value string) string {
	if value == "" {
		return ""
	}
	return label + ": " + value
}

func joinLines(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
