package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/Muneerali199/DocMagic-sub004/internal/generation"
	"github.com/Muneerali199/DocMagic-sub004/internal/metering"
	"github.com/Muneerali199/DocMagic-sub004/internal/middleware"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"github.com/Muneerali199/DocMagic-sub004/pkg/req"
	"github.com/Muneerali199/DocMagic-sub004/pkg/res"

	"github.com/gin-gonic/gin"
)

// Generator часть generation.Service, вызываемая внутри списания.
type Generator interface {
	Configured() error
	Generate(ctx context.Context, in generation.Input) (json.RawMessage, error)
}

// GenerationHandler обрабатывает /generate/*.
type GenerationHandler struct {
	meter     Metering
	generator Generator
	log       *logger.Logger
}

// NewGenerationHandler создает новый экземпляр GenerationHandler.
func NewGenerationHandler(meter Metering, generator Generator, log *logger.Logger) *GenerationHandler {
	return &GenerationHandler{
		meter:     meter,
		generator: generator,
		log:       log,
	}
}

// GenerationResponse ответ успешной генерации.
type GenerationResponse struct {
	Success          bool            `json:"success"`
	Data             json.RawMessage `json:"data"`
	CreditsUsed      int             `json:"creditsUsed"`
	CreditsRemaining int             `json:"creditsRemaining"`
	Tier             domain.Tier     `json:"tier"`
}

func (h *GenerationHandler) Diagram(c *gin.Context)      { serve[generation.DiagramInput](h, c) }
func (h *GenerationHandler) Letter(c *gin.Context)       { serve[generation.LetterInput](h, c) }
func (h *GenerationHandler) CoverLetter(c *gin.Context)  { serve[generation.CoverLetterInput](h, c) }
func (h *GenerationHandler) ATS(c *gin.Context)          { serve[generation.ATSInput](h, c) }
func (h *GenerationHandler) Resume(c *gin.Context)       { serve[generation.ResumeInput](h, c) }
func (h *GenerationHandler) Presentation(c *gin.Context) { serve[generation.PresentationInput](h, c) }

// inputPtr ограничивает T типами, у которых *T реализует generation.Input.
type inputPtr[T any] interface {
	*T
	generation.Input
}

// serve: аутентификация уже пройдена middleware, затем проверка провайдера,
// разбор тела и генерация внутри Meter.Run.
func serve[T any, P inputPtr[T]](h *GenerationHandler, c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		writeError(c, domain.ErrUnauthenticated, h.log)
		return
	}
	if err := h.generator.Configured(); err != nil {
		writeError(c, err, h.log)
		return
	}

	body, err := req.HandleBody[T](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}
	input := P(body)

	request := metering.Request{
		UserID:   userID,
		Action:   input.Action(),
		Metadata: domain.Metadata{},
	}
	if slides, ok := any(input).(interface{ Slides() int }); ok {
		request.Multiplier = slides.Slides()
		request.Metadata["slideCount"] = slides.Slides()
	}

	result, err := h.meter.Run(c.Request.Context(), request, func(ctx context.Context) (any, error) {
		return h.generator.Generate(ctx, input)
	})
	if err != nil {
		writeError(c, err, h.log)
		return
	}

	artifact, _ := result.Value.(json.RawMessage)
	res.JsonResponse(c.Writer, GenerationResponse{
		Success:          true,
		Data:             artifact,
		CreditsUsed:      result.CreditsUsed,
		CreditsRemaining: result.CreditsRemaining,
		Tier:             result.Tier,
	}, http.StatusOK)
}
